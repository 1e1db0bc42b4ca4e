package stocks

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/storetest"
)

var today = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

func setup(balance models.Amount) (*storetest.Store, *Service, access.Scope, uuid.UUID) {
	st := storetest.New()
	svc := NewService(st, st.Stocks(), st.Accounts(), st.Transactions(), nil).
		WithClock(func() time.Time { return today })
	scope := access.Scope{UserID: uuid.New(), LedgerID: uuid.New(), Role: models.RoleEditor}
	broker := st.SeedAccount(models.Account{LedgerID: scope.LedgerID, Name: "Broker", Balance: balance})
	return st, svc, scope, broker.ID
}

func shares(n int64) models.Amount { return models.Amount(n * models.Scale) }

func TestBuy_WeightedAverageCost(t *testing.T) {
	st, svc, scope, broker := setup(100_000_000)
	ctx := context.Background()

	res, err := svc.Buy(ctx, scope, TradeInput{Ticker: " aapl ", Shares: shares(10), Price: 1_000_000, AccountID: broker})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", res.Holding.Ticker)
	assert.Equal(t, models.DefaultOwnerLabel, res.Holding.OwnerLabel)
	assert.Equal(t, models.Amount(1_000_000), res.Holding.AvgCost)
	assert.Equal(t, models.KindExpense, res.Transaction.Kind)
	assert.Equal(t, models.Amount(10_000_000), res.Transaction.Amount)

	res, err = svc.Buy(ctx, scope, TradeInput{Ticker: "AAPL", Shares: shares(30), Price: 2_000_000, AccountID: broker})
	require.NoError(t, err)
	assert.Equal(t, shares(40), res.Holding.Shares)
	assert.Equal(t, models.Amount(1_750_000), res.Holding.AvgCost)
	assert.Equal(t, models.Amount(30_000_000), st.Balance(broker))

	list, err := svc.List(ctx, scope)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestBuy_InsufficientFunds(t *testing.T) {
	st, svc, scope, broker := setup(9_999_999)
	ctx := context.Background()

	_, err := svc.Buy(ctx, scope, TradeInput{Ticker: "TSM", Shares: shares(1), Price: 10_000_000, AccountID: broker})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Equal(t, models.Amount(9_999_999), st.Balance(broker))
	assert.Zero(t, st.TransactionCount())

	list, err := svc.List(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Buy(ctx, scope, TradeInput{Ticker: "TSM", Shares: shares(1), Price: 9_999_999, AccountID: broker})
	require.NoError(t, err)
	assert.Zero(t, st.Balance(broker))
}

func TestSell_RealizesPnLAndRemovesEmptyHolding(t *testing.T) {
	st, svc, scope, broker := setup(50_000_000)
	ctx := context.Background()

	_, err := svc.Buy(ctx, scope, TradeInput{Ticker: "VT", OwnerLabel: "Kid", Shares: shares(10), Price: 1_000_000, AccountID: broker})
	require.NoError(t, err)

	res, err := svc.Sell(ctx, scope, TradeInput{Ticker: "VT", OwnerLabel: "Kid", Shares: shares(4), Price: 1_500_000, AccountID: broker})
	require.NoError(t, err)
	assert.Equal(t, models.Amount(2_000_000), res.RealizedPnL)
	assert.Equal(t, shares(6), res.Holding.Shares)
	assert.Equal(t, models.Amount(1_000_000), res.Holding.AvgCost)
	assert.Equal(t, models.KindIncome, res.Transaction.Kind)
	assert.Equal(t, models.Amount(46_000_000), st.Balance(broker))

	_, err = svc.Sell(ctx, scope, TradeInput{Ticker: "VT", OwnerLabel: "Kid", Shares: shares(7), Price: 1_500_000, AccountID: broker})
	assert.ErrorIs(t, err, apperr.ErrInsufficientShares)

	res, err = svc.Sell(ctx, scope, TradeInput{Ticker: "VT", OwnerLabel: "Kid", Shares: shares(6), Price: 500_000, AccountID: broker})
	require.NoError(t, err)
	assert.Equal(t, models.Amount(-3_000_000), res.RealizedPnL)

	list, err := svc.List(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 3, st.TransactionCount())
}

func TestSell_UnknownHolding(t *testing.T) {
	_, svc, scope, broker := setup(0)
	_, err := svc.Sell(context.Background(), scope, TradeInput{Ticker: "NVDA", Shares: shares(1), Price: 1, AccountID: broker})
	assert.ErrorIs(t, err, apperr.ErrInsufficientShares)
}

func TestTradeValidation(t *testing.T) {
	_, svc, scope, broker := setup(100_000_000)
	ctx := context.Background()

	for name, in := range map[string]TradeInput{
		"no ticker":       {Shares: shares(1), Price: 1, AccountID: broker},
		"zero shares":     {Ticker: "A", Price: 1, AccountID: broker},
		"zero price":      {Ticker: "A", Shares: shares(1), AccountID: broker},
		"rounds to zero":  {Ticker: "A", Shares: 1, Price: 1, AccountID: broker},
		"value overflows": {Ticker: "A", Shares: shares(1_000_000), Price: math.MaxInt64, AccountID: broker},
		"foreign acct":    {Ticker: "A", Shares: shares(1), Price: 1, AccountID: uuid.New()},
	} {
		_, err := svc.Buy(ctx, scope, in)
		assert.ErrorIs(t, err, apperr.ErrValidation, name)
	}

	viewer := scope
	viewer.Role = models.RoleViewer
	_, err := svc.Buy(ctx, viewer, TradeInput{Ticker: "A", Shares: shares(1), Price: 1, AccountID: broker})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
