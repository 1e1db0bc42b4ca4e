// Package cards manages credit cards. A card's liability is derived from its
// transactions on every read and never stored.
package cards

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/platform/db"
)

type CardStore interface {
	Create(ctx context.Context, c *models.Card) error
	Get(ctx context.Context, ledgerID, id uuid.UUID) (*models.Card, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Card, error)
	List(ctx context.Context, ledgerID uuid.UUID, includeDeleted bool) ([]*models.Card, error)
	Update(ctx context.Context, c *models.Card) error
	SoftDeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error
	Liability(ctx context.Context, cardID uuid.UUID) (models.Amount, error)
	LiabilityTx(ctx context.Context, tx pgx.Tx, cardID uuid.UUID) (models.Amount, error)
}

type AccountStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Account, error)
	DeductIfSufficient(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID, amount models.Amount) (models.Amount, error)
}

type TransactionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
}

type InstallmentStore interface {
	ListByCard(ctx context.Context, cardID uuid.UUID) ([]*models.Installment, error)
	SetRemaining(ctx context.Context, id uuid.UUID, remaining int) error
}

// Recorder counts balance-affecting operations.
type Recorder interface {
	Mutation(entity, op string, err error)
}

type Service struct {
	pool         db.TxBeginner
	cards        CardStore
	accounts     AccountStore
	transactions TransactionStore
	installments InstallmentStore
	metrics      Recorder
	now          func() time.Time
}

func NewService(pool db.TxBeginner, cards CardStore, accounts AccountStore, transactions TransactionStore,
	installments InstallmentStore, metrics Recorder) *Service {
	return &Service{
		pool:         pool,
		cards:        cards,
		accounts:     accounts,
		transactions: transactions,
		installments: installments,
		metrics:      metrics,
		now:          time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CardInput struct {
	Name        string
	BillingDay  int
	PaymentDay  int
	CreditLimit models.Amount
}

func (in CardInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return apperr.Validation("name", "is required")
	case in.BillingDay < 1 || in.BillingDay > 31:
		return apperr.Validation("billing_day", "must be between 1 and 31")
	case in.PaymentDay < 1 || in.PaymentDay > 31:
		return apperr.Validation("payment_day", "must be between 1 and 31")
	case in.CreditLimit < 0:
		return apperr.Validation("credit_limit", "must not be negative")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, scope access.Scope, in CardInput) (*models.CardView, error) {
	if err := scope.Authorize(access.WriteCards); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	c := &models.Card{
		ID:          uuid.New(),
		LedgerID:    scope.LedgerID,
		Name:        strings.TrimSpace(in.Name),
		BillingDay:  in.BillingDay,
		PaymentDay:  in.PaymentDay,
		CreditLimit: in.CreditLimit,
	}
	if err := s.cards.Create(ctx, c); err != nil {
		return nil, err
	}
	v := models.NewCardView(*c, 0)
	return &v, nil
}

// Update replaces the card's settings. Closed cards cannot be changed.
func (s *Service) Update(ctx context.Context, scope access.Scope, id uuid.UUID, in CardInput) (*models.CardView, error) {
	if err := scope.Authorize(access.WriteCards); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	c, err := s.cards.Get(ctx, scope.LedgerID, id)
	if err != nil {
		return nil, err
	}
	if c.Closed() {
		return nil, apperr.Conflict("card is closed")
	}
	c.Name = strings.TrimSpace(in.Name)
	c.BillingDay, c.PaymentDay, c.CreditLimit = in.BillingDay, in.PaymentDay, in.CreditLimit
	if err := s.cards.Update(ctx, c); err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

// Get returns the card with its derived balances, including closed cards.
func (s *Service) Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*models.CardView, error) {
	if err := scope.Authorize(access.ReadLedger); err != nil {
		return nil, err
	}
	c, err := s.cards.Get(ctx, scope.LedgerID, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

func (s *Service) view(ctx context.Context, c *models.Card) (*models.CardView, error) {
	liability, err := s.cards.Liability(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	v := models.NewCardView(*c, liability)
	return &v, nil
}

// List returns the ledger's cards with their liabilities, derived concurrently.
func (s *Service) List(ctx context.Context, scope access.Scope, includeDeleted bool) ([]models.CardView, error) {
	if err := scope.Authorize(access.ReadLedger); err != nil {
		return nil, err
	}
	cards, err := s.cards.List(ctx, scope.LedgerID, includeDeleted)
	if err != nil {
		return nil, err
	}
	views := make([]models.CardView, len(cards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range cards {
		g.Go(func() error {
			liability, err := s.cards.Liability(gctx, c.ID)
			if err != nil {
				return err
			}
			views[i] = models.NewCardView(*c, liability)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// ComputeLiability sums charges minus payments over every transaction on the
// card. Two calls without intervening writes return the same value.
func (s *Service) ComputeLiability(ctx context.Context, scope access.Scope, id uuid.UUID) (models.Amount, error) {
	if err := scope.Authorize(access.ReadLedger); err != nil {
		return 0, err
	}
	if _, err := s.cards.Get(ctx, scope.LedgerID, id); err != nil {
		return 0, err
	}
	return s.cards.Liability(ctx, id)
}

type PayInput struct {
	SourceAccountID uuid.UUID
	Amount          models.Amount
	Date            time.Time
	Description     string
}

// Pay moves amount from a cash account to the card. The deduction and the
// payment record commit together or not at all.
func (s *Service) Pay(ctx context.Context, scope access.Scope, cardID uuid.UUID, in PayInput) (t *models.Transaction, err error) {
	defer func() { s.record("pay", err) }()
	if err := scope.Authorize(access.WriteTransactions); err != nil {
		return nil, err
	}
	if in.Amount <= 0 {
		return nil, apperr.Validation("amount", "must be positive")
	}
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		card, err := s.cards.GetForUpdate(ctx, tx, scope.LedgerID, cardID)
		if err != nil {
			return err
		}
		if card.Closed() {
			return apperr.Conflict("card is closed")
		}
		src, err := s.accounts.GetForUpdate(ctx, tx, scope.LedgerID, in.SourceAccountID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation("source_account_id", "account does not belong to this ledger")
		}
		if err != nil {
			return err
		}
		if src.Balance < in.Amount {
			return apperr.ErrInsufficientFunds
		}
		if _, err := s.accounts.DeductIfSufficient(ctx, tx, scope.LedgerID, src.ID, in.Amount); err != nil {
			return err
		}
		t = &models.Transaction{
			ID:              uuid.New(),
			LedgerID:        scope.LedgerID,
			UserID:          scope.UserID,
			Kind:            models.KindCardPayment,
			Date:            s.dateOr(in.Date),
			Amount:          in.Amount,
			Description:     strings.TrimSpace(in.Description),
			SourceAccountID: &src.ID,
			CreditCardID:    &card.ID,
		}
		if t.Description == "" {
			t.Description = "Payment: " + card.Name
		}
		return s.transactions.CreateTx(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete soft-deletes the card. A card that still carries a positive
// liability is rejected.
func (s *Service) Delete(ctx context.Context, scope access.Scope, id uuid.UUID) (err error) {
	defer func() { s.record("delete", err) }()
	if err := scope.Authorize(access.WriteCards); err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		card, err := s.cards.GetForUpdate(ctx, tx, scope.LedgerID, id)
		if err != nil {
			return err
		}
		if card.Closed() {
			return apperr.Conflict("card is already closed")
		}
		liability, err := s.cards.LiabilityTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if liability > 0 {
			return apperr.Conflictf("card has an outstanding balance of %s", liability)
		}
		return s.cards.SoftDeleteTx(ctx, tx, id, s.now())
	})
}

// Installments lists the card's plans with remaining months brought up to
// date. Callers allowed to write cards also store the refreshed counts;
// viewers only see them.
func (s *Service) Installments(ctx context.Context, scope access.Scope, cardID uuid.UUID) ([]*models.Installment, error) {
	if err := scope.Authorize(access.ReadLedger); err != nil {
		return nil, err
	}
	if _, err := s.cards.Get(ctx, scope.LedgerID, cardID); err != nil {
		return nil, err
	}
	list, err := s.installments.ListByCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	persist := scope.Authorize(access.WriteCards) == nil
	for _, inst := range list {
		remaining := inst.RemainingAsOf(now)
		if remaining == inst.RemainingMonths {
			continue
		}
		if persist {
			if err := s.installments.SetRemaining(ctx, inst.ID, remaining); err != nil {
				return nil, err
			}
		}
		inst.RemainingMonths = remaining
	}
	return list, nil
}

func (s *Service) dateOr(d time.Time) time.Time {
	if d.IsZero() {
		d = s.now()
	}
	return models.StartOfDay(d)
}

func (s *Service) record(op string, err error) {
	if s.metrics != nil {
		s.metrics.Mutation("card", op, err)
	}
}
