// Package dashboard summarizes a ledger's financial position.
package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/models"
)

// RecentCount is how many of the latest transactions a summary carries.
const RecentCount = 5

type AccountLister interface {
	List(ctx context.Context, ledgerID uuid.UUID) ([]*models.Account, error)
}

type CardStore interface {
	List(ctx context.Context, ledgerID uuid.UUID, includeDeleted bool) ([]*models.Card, error)
	Liability(ctx context.Context, cardID uuid.UUID) (models.Amount, error)
}

type TransactionStore interface {
	List(ctx context.Context, ledgerID uuid.UUID, f models.TransactionFilter) ([]*models.Transaction, error)
	SpendingSince(ctx context.Context, ledgerID uuid.UUID, since time.Time) (models.Amount, error)
}

type Summary struct {
	TotalAssets      models.Amount         `json:"total_assets"`
	TotalLiabilities models.Amount         `json:"total_liabilities"`
	NetWorth         models.Amount         `json:"net_worth"`
	MonthSpending    models.Amount         `json:"month_spending"`
	Recent           []*models.Transaction `json:"recent_transactions"`
	AsOf             time.Time             `json:"as_of"`
}

type Service struct {
	accounts     AccountLister
	cards        CardStore
	transactions TransactionStore
	now          func() time.Time
}

func NewService(accounts AccountLister, cards CardStore, transactions TransactionStore) *Service {
	return &Service{accounts: accounts, cards: cards, transactions: transactions, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Summary gathers balances, liabilities, spending and recent activity in
// parallel. Only active cards count toward liabilities.
func (s *Service) Summary(ctx context.Context, scope access.Scope) (*Summary, error) {
	if err := scope.Authorize(access.ReadLedger); err != nil {
		return nil, err
	}
	now := s.now()
	sum := &Summary{AsOf: now, Recent: []*models.Transaction{}}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		accounts, err := s.accounts.List(gctx, scope.LedgerID)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			sum.TotalAssets += a.Balance
		}
		return nil
	})
	g.Go(func() error {
		cards, err := s.cards.List(gctx, scope.LedgerID, false)
		if err != nil {
			return err
		}
		for _, c := range cards {
			liability, err := s.cards.Liability(gctx, c.ID)
			if err != nil {
				return err
			}
			sum.TotalLiabilities += liability
		}
		return nil
	})
	g.Go(func() error {
		spent, err := s.transactions.SpendingSince(gctx, scope.LedgerID, models.StartOfMonth(now))
		sum.MonthSpending = spent
		return err
	})
	g.Go(func() error {
		recent, err := s.transactions.List(gctx, scope.LedgerID, models.TransactionFilter{Limit: RecentCount})
		if err != nil {
			return err
		}
		if recent != nil {
			sum.Recent = recent
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sum.NetWorth = sum.TotalAssets - sum.TotalLiabilities
	return sum, nil
}
