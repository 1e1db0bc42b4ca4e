package models

import (
	"bytes"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/linfan/backend/internal/apperr"
)

// Kind is the semantic type of a transaction. It is inferred from which
// references are populated, never stored.
type Kind string

const (
	KindExpense     Kind = "expense"
	KindIncome      Kind = "income"
	KindTransfer    Kind = "transfer"
	KindCardExpense Kind = "card_expense"
	KindCardPayment Kind = "card_payment"
)

// Classify infers the kind from the populated references.
//
//	source  destination  card   kind
//	set     -            -      expense
//	-       set          -      income
//	set     set          -      transfer
//	-       -            set    card expense
//	set     -            set    card payment
func Classify(source, destination, card *uuid.UUID) (Kind, error) {
	s, d, c := source != nil, destination != nil, card != nil
	switch {
	case s && !d && !c:
		return KindExpense, nil
	case !s && d && !c:
		return KindIncome, nil
	case s && d && !c:
		return KindTransfer, nil
	case !s && !d && c:
		return KindCardExpense, nil
	case s && !d && c:
		return KindCardPayment, nil
	}
	return "", apperr.Validation("type", "transaction references do not form a known type")
}

type Transaction struct {
	ID                   uuid.UUID  `json:"id"`
	LedgerID             uuid.UUID  `json:"ledger_id"`
	UserID               uuid.UUID  `json:"user_id"`
	Kind                 Kind       `json:"kind"`
	Date                 time.Time  `json:"date"`
	Amount               Amount     `json:"amount"`
	Description          string     `json:"description"`
	CategoryID           *uuid.UUID `json:"category_id,omitempty"`
	SourceAccountID      *uuid.UUID `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID `json:"destination_account_id,omitempty"`
	CreditCardID         *uuid.UUID `json:"credit_card_id,omitempty"`
	InstallmentID        *uuid.UUID `json:"installment_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Infer sets t.Kind from its references.
func (t *Transaction) Infer() error {
	k, err := Classify(t.SourceAccountID, t.DestinationAccountID, t.CreditCardID)
	if err != nil {
		return err
	}
	t.Kind = k
	return nil
}

// IsExpense reports whether t counts as spending (cash or card).
func (t *Transaction) IsExpense() bool {
	return t.Kind == KindExpense || t.Kind == KindCardExpense
}

// Effect is the set of signed balance deltas a transaction applies, keyed by
// account id.
type Effect map[uuid.UUID]Amount

// EffectOf returns the balance deltas t applies on creation. Card expenses
// touch no account; their liability is derived.
func EffectOf(t *Transaction) Effect {
	e := Effect{}
	switch t.Kind {
	case KindExpense, KindCardPayment:
		e.add(*t.SourceAccountID, -t.Amount)
	case KindIncome:
		e.add(*t.DestinationAccountID, t.Amount)
	case KindTransfer:
		e.add(*t.SourceAccountID, -t.Amount)
		e.add(*t.DestinationAccountID, t.Amount)
	}
	return e
}

func (e Effect) add(id uuid.UUID, delta Amount) {
	if v := e[id] + delta; v != 0 {
		e[id] = v
	} else {
		delete(e, id)
	}
}

// Inverse returns the deltas that undo e.
func (e Effect) Inverse() Effect {
	out := make(Effect, len(e))
	for id, d := range e {
		out[id] = -d
	}
	return out
}

// Plus returns the net of applying e then o. Accounts whose deltas cancel
// are dropped.
func (e Effect) Plus(o Effect) Effect {
	out := make(Effect, len(e)+len(o))
	for id, d := range e {
		out.add(id, d)
	}
	for id, d := range o {
		out.add(id, d)
	}
	return out
}

// Accounts returns the touched account ids in a deterministic order so that
// concurrent units of work lock rows in the same sequence.
func (e Effect) Accounts() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e))
	for id := range e {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return ids
}

// Transaction list bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// TransactionFilter selects a page of a ledger's transactions, newest first.
type TransactionFilter struct {
	Limit     int
	Offset    int
	AccountID *uuid.UUID
	CardID    *uuid.UUID
}

// Normalize clamps the page bounds.
func (f TransactionFilter) Normalize() TransactionFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether t passes the account and card filters.
func (f TransactionFilter) Matches(t *Transaction) bool {
	if f.AccountID != nil {
		id := *f.AccountID
		if !(eq(t.SourceAccountID, id) || eq(t.DestinationAccountID, id)) {
			return false
		}
	}
	if f.CardID != nil && !eq(t.CreditCardID, *f.CardID) {
		return false
	}
	return true
}

func eq(p *uuid.UUID, id uuid.UUID) bool { return p != nil && *p == id }
