package transactions

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
)

// Type is the kind of transaction a caller declares.
type Type string

const (
	TypeExpense     Type = "expense"
	TypeIncome      Type = "income"
	TypeTransfer    Type = "transfer"
	TypeCardPayment Type = "card_payment"
)

// Input carries the caller's fields for create and edit. An edit replaces
// every field.
type Input struct {
	Type                 Type
	Amount               models.Amount
	Date                 time.Time
	Description          string
	CategoryID           *uuid.UUID
	SourceAccountID      *uuid.UUID
	DestinationAccountID *uuid.UUID
	CreditCardID         *uuid.UUID
	InstallmentMonths    int
}

// validate checks that the populated references fit the declared type.
//
//	expense       source xor card
//	income        destination only
//	transfer      source and a different destination
//	card_payment  source and card
func (in Input) validate() error {
	src, dst, card := in.SourceAccountID != nil, in.DestinationAccountID != nil, in.CreditCardID != nil
	if in.Amount <= 0 {
		return apperr.Validation("amount", "must be positive")
	}
	switch in.Type {
	case TypeExpense:
		if src == card {
			return apperr.Validation("source_account_id", "expense needs either a source account or a card")
		}
		if dst {
			return apperr.Validation("destination_account_id", "expense has no destination")
		}
	case TypeIncome:
		if !dst {
			return apperr.Validation("destination_account_id", "income needs a destination account")
		}
		if src || card {
			return apperr.Validation("source_account_id", "income has no source or card")
		}
	case TypeTransfer:
		if !src || !dst {
			return apperr.Validation("destination_account_id", "transfer needs source and destination accounts")
		}
		if *in.SourceAccountID == *in.DestinationAccountID {
			return apperr.Validation("destination_account_id", "must differ from the source account")
		}
		if card {
			return apperr.Validation("credit_card_id", "transfer has no card")
		}
	case TypeCardPayment:
		if !src || !card || dst {
			return apperr.Validation("credit_card_id", "card payment needs a source account and a card")
		}
	default:
		return apperr.Validation("type", "must be expense, income, transfer or card_payment")
	}
	switch {
	case in.InstallmentMonths < 0 || in.InstallmentMonths > models.MaxInstallmentMonths:
		return apperr.Validation("installment_months", "must be between 0 and 120")
	case in.InstallmentMonths > 1 && !(in.Type == TypeExpense && card):
		return apperr.Validation("installment_months", "only card expenses can be paid in installments")
	}
	return nil
}

// build validates in and returns the transaction it describes, kind inferred.
func (e *Engine) build(scope access.Scope, in Input) (*models.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	date := in.Date
	if date.IsZero() {
		date = e.now()
	}
	t := &models.Transaction{
		LedgerID:             scope.LedgerID,
		Date:                 models.StartOfDay(date),
		Amount:               in.Amount,
		Description:          strings.TrimSpace(in.Description),
		CategoryID:           in.CategoryID,
		SourceAccountID:      in.SourceAccountID,
		DestinationAccountID: in.DestinationAccountID,
		CreditCardID:         in.CreditCardID,
	}
	if err := t.Infer(); err != nil {
		return nil, err
	}
	return t, nil
}
