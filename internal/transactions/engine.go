// Package transactions is the ledger engine: it records transactions and
// keeps account balances and installment plans consistent with them.
//
// Every mutation runs in one database transaction. Balance changes are
// applied as single-statement deltas in account id order, so concurrent
// units of work touching the same accounts serialize without lost updates.
package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/platform/db"
)

type TransactionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	Get(ctx context.Context, ledgerID, id uuid.UUID) (*models.Transaction, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Transaction, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	DeleteTx(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) error
	List(ctx context.Context, ledgerID uuid.UUID, f models.TransactionFilter) ([]*models.Transaction, error)
}

type AccountStore interface {
	GetTx(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Account, error)
	AdjustBalance(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID, delta models.Amount) (models.Amount, error)
}

type CardStore interface {
	GetForShare(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Card, error)
}

type InstallmentStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, i *models.Installment) error
	GetTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Installment, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, i *models.Installment) error
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

type CategoryStore interface {
	Get(ctx context.Context, ledgerID, id uuid.UUID) (*models.Category, error)
}

// Recorder counts balance-affecting operations.
type Recorder interface {
	Mutation(entity, op string, err error)
}

type Engine struct {
	pool         db.TxBeginner
	transactions TransactionStore
	accounts     AccountStore
	cards        CardStore
	installments InstallmentStore
	categories   CategoryStore
	metrics      Recorder
	now          func() time.Time
}

type Deps struct {
	Pool         db.TxBeginner
	Transactions TransactionStore
	Accounts     AccountStore
	Cards        CardStore
	Installments InstallmentStore
	Categories   CategoryStore
	Metrics      Recorder
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		pool:         d.Pool,
		transactions: d.Transactions,
		accounts:     d.Accounts,
		cards:        d.Cards,
		installments: d.Installments,
		categories:   d.Categories,
		metrics:      d.Metrics,
		now:          time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Create records a transaction and applies its balance effect. When a card
// expense is spread over more than one month an installment plan is created
// and linked to it.
func (e *Engine) Create(ctx context.Context, scope access.Scope, in Input) (t *models.Transaction, err error) {
	defer func() { e.record("create", err) }()
	if err := scope.Authorize(access.WriteTransactions); err != nil {
		return nil, err
	}
	t, err = e.build(scope, in)
	if err != nil {
		return nil, err
	}
	t.ID = uuid.New()
	t.UserID = scope.UserID

	err = db.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		card, err := e.checkReferences(ctx, tx, t)
		if err != nil {
			return err
		}
		if wantsPlan(t, in) {
			plan := newPlan(t, card, in.InstallmentMonths)
			if err := e.installments.CreateTx(ctx, tx, plan); err != nil {
				return err
			}
			t.InstallmentID = &plan.ID
		}
		if err := e.transactions.CreateTx(ctx, tx, t); err != nil {
			return err
		}
		return e.apply(ctx, tx, scope.LedgerID, models.EffectOf(t))
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Edit replaces the transaction's fields. The old effect is reverted and the
// new one applied; only the net delta per account is written.
func (e *Engine) Edit(ctx context.Context, scope access.Scope, id uuid.UUID, in Input) (t *models.Transaction, err error) {
	defer func() { e.record("edit", err) }()
	if err := scope.Authorize(access.WriteTransactions); err != nil {
		return nil, err
	}
	t, err = e.build(scope, in)
	if err != nil {
		return nil, err
	}

	err = db.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		old, err := e.transactions.GetForUpdate(ctx, tx, scope.LedgerID, id)
		if err != nil {
			return err
		}
		t.ID, t.UserID, t.CreatedAt = old.ID, old.UserID, old.CreatedAt

		card, err := e.checkReferences(ctx, tx, t)
		if err != nil {
			return err
		}
		net := models.EffectOf(old).Inverse().Plus(models.EffectOf(t))
		if err := e.apply(ctx, tx, scope.LedgerID, net); err != nil {
			return err
		}
		return e.syncPlan(ctx, tx, old, t, card, in)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// syncPlan brings the installment plan in line with the edited transaction
// and persists the row.
func (e *Engine) syncPlan(ctx context.Context, tx pgx.Tx, old, t *models.Transaction, card *models.Card, in Input) error {
	want := wantsPlan(t, in)
	switch {
	case old.InstallmentID != nil && want:
		plan, err := e.installments.GetTx(ctx, tx, *old.InstallmentID)
		if err != nil {
			return err
		}
		fresh := newPlan(t, card, in.InstallmentMonths)
		fresh.ID = plan.ID
		if err := e.installments.UpdateTx(ctx, tx, fresh); err != nil {
			return err
		}
		t.InstallmentID = &plan.ID
		return e.transactions.UpdateTx(ctx, tx, t)

	case old.InstallmentID != nil:
		if err := e.transactions.UpdateTx(ctx, tx, t); err != nil {
			return err
		}
		return e.installments.DeleteTx(ctx, tx, *old.InstallmentID)

	case want:
		plan := newPlan(t, card, in.InstallmentMonths)
		if err := e.installments.CreateTx(ctx, tx, plan); err != nil {
			return err
		}
		t.InstallmentID = &plan.ID
	}
	return e.transactions.UpdateTx(ctx, tx, t)
}

// Delete reverts the transaction's effect and removes it with its plan.
func (e *Engine) Delete(ctx context.Context, scope access.Scope, id uuid.UUID) (err error) {
	defer func() { e.record("delete", err) }()
	if err := scope.Authorize(access.WriteTransactions); err != nil {
		return err
	}
	return db.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		old, err := e.transactions.GetForUpdate(ctx, tx, scope.LedgerID, id)
		if err != nil {
			return err
		}
		if err := e.apply(ctx, tx, scope.LedgerID, models.EffectOf(old).Inverse()); err != nil {
			return err
		}
		if err := e.transactions.DeleteTx(ctx, tx, scope.LedgerID, id); err != nil {
			return err
		}
		if old.InstallmentID != nil {
			return e.installments.DeleteTx(ctx, tx, *old.InstallmentID)
		}
		return nil
	})
}

func (e *Engine) Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*models.Transaction, error) {
	if err := scope.Authorize(access.ReadLedger); err != nil {
		return nil, err
	}
	return e.transactions.Get(ctx, scope.LedgerID, id)
}

// List returns a page of transactions, newest first. Oversized pages are
// clamped to models.MaxListLimit.
func (e *Engine) List(ctx context.Context, scope access.Scope, f models.TransactionFilter) ([]*models.Transaction, error) {
	if err := scope.Authorize(access.ReadLedger); err != nil {
		return nil, err
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, apperr.Validation("offset", "must not be negative")
	}
	return e.transactions.List(ctx, scope.LedgerID, f.Normalize())
}

// apply writes each account delta in a stable order.
func (e *Engine) apply(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, eff models.Effect) error {
	for _, id := range eff.Accounts() {
		if _, err := e.accounts.AdjustBalance(ctx, tx, ledgerID, id, eff[id]); err != nil {
			return err
		}
	}
	return nil
}

// checkReferences verifies that every referenced row belongs to the
// transaction's ledger. It returns the card, if any, holding a share lock on
// it so the card cannot be closed underneath the write.
func (e *Engine) checkReferences(ctx context.Context, tx pgx.Tx, t *models.Transaction) (*models.Card, error) {
	if t.CategoryID != nil {
		if _, err := e.categories.Get(ctx, t.LedgerID, *t.CategoryID); err != nil {
			return nil, foreign(err, "category_id", "category does not belong to this ledger")
		}
	}
	for field, id := range map[string]*uuid.UUID{
		"source_account_id":      t.SourceAccountID,
		"destination_account_id": t.DestinationAccountID,
	} {
		if id == nil {
			continue
		}
		if _, err := e.accounts.GetTx(ctx, tx, t.LedgerID, *id); err != nil {
			return nil, foreign(err, field, "account does not belong to this ledger")
		}
	}
	if t.CreditCardID == nil {
		return nil, nil
	}
	card, err := e.cards.GetForShare(ctx, tx, t.LedgerID, *t.CreditCardID)
	if err != nil {
		return nil, foreign(err, "credit_card_id", "card does not belong to this ledger")
	}
	if card.Closed() {
		return nil, apperr.Conflict("card is closed")
	}
	return card, nil
}

func foreign(err error, field, msg string) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Validation(field, msg)
	}
	return err
}

func wantsPlan(t *models.Transaction, in Input) bool {
	return t.Kind == models.KindCardExpense && in.InstallmentMonths > 1
}

func newPlan(t *models.Transaction, card *models.Card, months int) *models.Installment {
	desc := t.Description
	if desc == "" {
		desc = card.Name
	}
	return &models.Installment{
		ID:              uuid.New(),
		CardID:          card.ID,
		Description:     desc,
		TotalAmount:     t.Amount,
		TotalMonths:     months,
		RemainingMonths: months,
		StartDate:       t.Date,
	}
}

func (e *Engine) record(op string, err error) {
	if e.metrics != nil {
		e.metrics.Mutation("transaction", op, err)
	}
}
