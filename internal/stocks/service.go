// Package stocks tracks share holdings per ticker and owner label. Trades
// move cash through an account and are recorded as ledger transactions.
package stocks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/platform/db"
)

type HoldingStore interface {
	LockTx(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, ticker, owner string) (*models.Stock, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, s *models.Stock) error
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	List(ctx context.Context, ledgerID uuid.UUID) ([]*models.Stock, error)
}

type AccountStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Account, error)
	AdjustBalance(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID, delta models.Amount) (models.Amount, error)
	DeductIfSufficient(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID, amount models.Amount) (models.Amount, error)
}

type TransactionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
}

type Recorder interface {
	Mutation(entity, op string, err error)
}

type Service struct {
	pool         db.TxBeginner
	holdings     HoldingStore
	accounts     AccountStore
	transactions TransactionStore
	metrics      Recorder
	now          func() time.Time
}

func NewService(pool db.TxBeginner, holdings HoldingStore, accounts AccountStore, transactions TransactionStore, metrics Recorder) *Service {
	return &Service{
		pool:         pool,
		holdings:     holdings,
		accounts:     accounts,
		transactions: transactions,
		metrics:      metrics,
		now:          time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TradeInput describes a buy or a sell. Shares and Price use the fixed-point
// scale. AccountID pays for a buy and receives the proceeds of a sell.
type TradeInput struct {
	Ticker     string
	OwnerLabel string
	Shares     models.Amount
	Price      models.Amount
	Date       time.Time
	AccountID  uuid.UUID

	value models.Amount
}

func (in *TradeInput) normalize() error {
	in.Ticker = strings.ToUpper(strings.TrimSpace(in.Ticker))
	in.OwnerLabel = strings.TrimSpace(in.OwnerLabel)
	if in.OwnerLabel == "" {
		in.OwnerLabel = models.DefaultOwnerLabel
	}
	switch {
	case in.Ticker == "":
		return apperr.Validation("ticker", "is required")
	case in.Shares <= 0:
		return apperr.Validation("shares", "must be positive")
	case in.Price <= 0:
		return apperr.Validation("price", "must be positive")
	}
	value, err := models.MulScaled(in.Shares, in.Price)
	switch {
	case err != nil:
		return apperr.Validation("price", "trade value out of range")
	case value <= 0:
		return apperr.Validation("shares", "trade value rounds to zero")
	}
	in.value = value
	return nil
}

// TradeResult is the holding after a trade and the transaction recording it.
// RealizedPnL is only set by sells.
type TradeResult struct {
	Holding     models.Stock        `json:"holding"`
	Transaction *models.Transaction `json:"transaction"`
	RealizedPnL models.Amount       `json:"realized_pnl"`
}

func (s *Service) List(ctx context.Context, scope access.Scope) ([]*models.Stock, error) {
	if err := scope.Authorize(access.ReadLedger); err != nil {
		return nil, err
	}
	return s.holdings.List(ctx, scope.LedgerID)
}

// Buy pays shares*price from the account and folds the purchase into the
// holding's weighted average cost. The account must cover the full cost.
func (s *Service) Buy(ctx context.Context, scope access.Scope, in TradeInput) (res *TradeResult, err error) {
	defer func() { s.record("buy", err) }()
	if err := scope.Authorize(access.WriteStocks); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	cost := in.value

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.checkAccount(ctx, tx, scope.LedgerID, in.AccountID); err != nil {
			return err
		}
		if _, err := s.accounts.DeductIfSufficient(ctx, tx, scope.LedgerID, in.AccountID, cost); err != nil {
			return err
		}
		h, err := s.holdings.LockTx(ctx, tx, scope.LedgerID, in.Ticker, in.OwnerLabel)
		if err != nil {
			return err
		}
		if h.Shares > math.MaxInt64-in.Shares {
			return apperr.Validation("shares", "holding out of range")
		}
		if h.AvgCost, err = averageCost(h.Shares, h.AvgCost, in.Shares, cost); err != nil {
			return err
		}
		h.Shares += in.Shares
		if err := s.holdings.UpdateTx(ctx, tx, h); err != nil {
			return err
		}
		t := s.trade(scope, in, cost, fmt.Sprintf("Buy %s %s @ %s", in.Ticker, in.Shares.Decimal(), in.Price))
		t.SourceAccountID = &in.AccountID
		if err := s.insert(ctx, tx, t); err != nil {
			return err
		}
		res = &TradeResult{Holding: *h, Transaction: t}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Sell credits shares*price to the account. The average cost of what remains
// is unchanged; a holding sold down to zero is removed.
func (s *Service) Sell(ctx context.Context, scope access.Scope, in TradeInput) (res *TradeResult, err error) {
	defer func() { s.record("sell", err) }()
	if err := scope.Authorize(access.WriteStocks); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	proceeds := in.value

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.checkAccount(ctx, tx, scope.LedgerID, in.AccountID); err != nil {
			return err
		}
		h, err := s.holdings.LockTx(ctx, tx, scope.LedgerID, in.Ticker, in.OwnerLabel)
		if err != nil {
			return err
		}
		if h.Shares < in.Shares {
			return apperr.ErrInsufficientShares
		}
		basis, err := models.MulScaled(in.Shares, h.AvgCost)
		if err != nil {
			return err
		}
		pnl := proceeds - basis

		h.Shares -= in.Shares
		if h.Shares == 0 {
			err = s.holdings.DeleteTx(ctx, tx, h.ID)
		} else {
			err = s.holdings.UpdateTx(ctx, tx, h)
		}
		if err != nil {
			return err
		}
		if _, err := s.accounts.AdjustBalance(ctx, tx, scope.LedgerID, in.AccountID, proceeds); err != nil {
			return err
		}
		t := s.trade(scope, in, proceeds, fmt.Sprintf("Sell %s %s @ %s", in.Ticker, in.Shares.Decimal(), in.Price))
		t.DestinationAccountID = &in.AccountID
		if err := s.insert(ctx, tx, t); err != nil {
			return err
		}
		res = &TradeResult{Holding: *h, Transaction: t, RealizedPnL: pnl}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) checkAccount(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) error {
	if _, err := s.accounts.GetForUpdate(ctx, tx, ledgerID, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation("account_id", "account does not belong to this ledger")
		}
		return err
	}
	return nil
}

func (s *Service) trade(scope access.Scope, in TradeInput, amount models.Amount, desc string) *models.Transaction {
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	return &models.Transaction{
		ID:          uuid.New(),
		LedgerID:    scope.LedgerID,
		UserID:      scope.UserID,
		Date:        models.StartOfDay(date),
		Amount:      amount,
		Description: desc,
	}
}

func (s *Service) insert(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	if err := t.Infer(); err != nil {
		return err
	}
	return s.transactions.CreateTx(ctx, tx, t)
}

func (s *Service) record(op string, err error) {
	if s.metrics != nil {
		s.metrics.Mutation("stock", op, err)
	}
}

// averageCost folds a purchase of shares costing cost into a holding of held
// shares at avg per share.
func averageCost(held, avg, shares, cost models.Amount) (models.Amount, error) {
	total := held.Decimal().Mul(avg.Decimal()).Add(cost.Decimal())
	return models.NewAmount(total.Div((held + shares).Decimal()))
}
