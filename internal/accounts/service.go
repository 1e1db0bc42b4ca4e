// Package accounts manages cash-like balance holders inside a ledger.
package accounts

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/text/currency"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/platform/db"
)

type Store interface {
	Create(ctx context.Context, a *models.Account) error
	Get(ctx context.Context, ledgerID, id uuid.UUID) (*models.Account, error)
	List(ctx context.Context, ledgerID uuid.UUID) ([]*models.Account, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Account, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, a *models.Account, balance *models.Amount) error
	Delete(ctx context.Context, ledgerID, id uuid.UUID) error
	AdjustBalance(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID, delta models.Amount) (models.Amount, error)
}

type Service struct {
	pool     db.TxBeginner
	accounts Store
}

func NewService(pool db.TxBeginner, accounts Store) *Service {
	return &Service{pool: pool, accounts: accounts}
}

type CreateInput struct {
	Name     string
	Kind     models.AccountKind
	Currency string
	Balance  models.Amount
	Hidden   bool
}

func (s *Service) Create(ctx context.Context, scope access.Scope, in CreateInput) (*models.Account, error) {
	if err := scope.Authorize(access.WriteAccounts); err != nil {
		return nil, err
	}
	a := &models.Account{
		ID:       uuid.New(),
		LedgerID: scope.LedgerID,
		Name:     strings.TrimSpace(in.Name),
		Kind:     in.Kind,
		Balance:  in.Balance,
		Hidden:   in.Hidden,
	}
	if a.Name == "" {
		return nil, apperr.Validation("name", "is required")
	}
	if !a.Kind.Valid() {
		return nil, apperr.Validation("kind", "must be cash, bank or digital")
	}
	code, err := normalizeCurrency(in.Currency)
	if err != nil {
		return nil, err
	}
	a.Currency = code
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*models.Account, error) {
	if err := scope.Authorize(access.ReadLedger); err != nil {
		return nil, err
	}
	return s.accounts.Get(ctx, scope.LedgerID, id)
}

func (s *Service) List(ctx context.Context, scope access.Scope) ([]*models.Account, error) {
	if err := scope.Authorize(access.ReadLedger); err != nil {
		return nil, err
	}
	return s.accounts.List(ctx, scope.LedgerID)
}

// PatchInput lists the fields to change; nil fields are kept. Setting Balance
// overwrites the stored balance directly.
type PatchInput struct {
	Name     *string
	Kind     *models.AccountKind
	Currency *string
	Balance  *models.Amount
	Hidden   *bool
}

// Patch locks the account row for the update. The stored balance is only
// written when in.Balance is set, so concurrent deltas are never overwritten.
func (s *Service) Patch(ctx context.Context, scope access.Scope, id uuid.UUID, in PatchInput) (*models.Account, error) {
	if err := scope.Authorize(access.WriteAccounts); err != nil {
		return nil, err
	}
	var a *models.Account
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if a, err = s.accounts.GetForUpdate(ctx, tx, scope.LedgerID, id); err != nil {
			return err
		}
		if err := in.apply(a); err != nil {
			return err
		}
		return s.accounts.UpdateTx(ctx, tx, a, in.Balance)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (in PatchInput) apply(a *models.Account) error {
	if in.Name != nil {
		if a.Name = strings.TrimSpace(*in.Name); a.Name == "" {
			return apperr.Validation("name", "is required")
		}
	}
	if in.Kind != nil {
		if !in.Kind.Valid() {
			return apperr.Validation("kind", "must be cash, bank or digital")
		}
		a.Kind = *in.Kind
	}
	if in.Currency != nil {
		code, err := normalizeCurrency(*in.Currency)
		if err != nil {
			return err
		}
		a.Currency = code
	}
	if in.Hidden != nil {
		a.Hidden = *in.Hidden
	}
	return nil
}

// Delete removes the account whatever its balance.
func (s *Service) Delete(ctx context.Context, scope access.Scope, id uuid.UUID) error {
	if err := scope.Authorize(access.WriteAccounts); err != nil {
		return err
	}
	return s.accounts.Delete(ctx, scope.LedgerID, id)
}

// AdjustBalance applies delta as one atomic statement and returns the new
// balance.
func (s *Service) AdjustBalance(ctx context.Context, scope access.Scope, id uuid.UUID, delta models.Amount) (models.Amount, error) {
	if err := scope.Authorize(access.WriteAccounts); err != nil {
		return 0, err
	}
	var balance models.Amount
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		balance, err = s.accounts.AdjustBalance(ctx, tx, scope.LedgerID, id, delta)
		return err
	})
	return balance, err
}

func normalizeCurrency(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return models.DefaultCurrency, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", apperr.Validation("currency", "must be an ISO 4217 code")
	}
	return unit.String(), nil
}
