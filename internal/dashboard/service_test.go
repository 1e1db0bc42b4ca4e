package dashboard

import (
	"context"
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

func TestSummary(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	svc := NewService(st.Accounts(), st.Cards(), st.Transactions()).WithClock(func() time.Time { return now })
	scope := access.Scope{UserID: uuid.New(), LedgerID: uuid.New(), Role: models.RoleViewer}

	bank := st.SeedAccount(models.Account{LedgerID: scope.LedgerID, Name: "Bank", Balance: 50_000_000}).ID
	st.SeedAccount(models.Account{LedgerID: scope.LedgerID, Name: "Wallet", Balance: 2_000_000})
	st.SeedAccount(models.Account{LedgerID: uuid.New(), Name: "Not mine", Balance: 99_000_000})
	visa := st.SeedCard(models.Card{LedgerID: scope.LedgerID, Name: "Visa"}).ID
	closedAt := now.Add(-48 * time.Hour)
	old := st.SeedCard(models.Card{LedgerID: scope.LedgerID, Name: "Old", DeletedAt: &closedAt}).ID

	may := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	june := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	for _, row := range []models.Transaction{
		{Date: may, Amount: 1_000_000, SourceAccountID: &bank},
		{Date: june, Amount: 3_000_000, SourceAccountID: &bank},
		{Date: june, Amount: 8_000_000, CreditCardID: &visa},
		{Date: june, Amount: 2_000_000, CreditCardID: &visa, SourceAccountID: &bank},
		{Date: june, Amount: 5_000_000, DestinationAccountID: &bank},
		{Date: may, Amount: 4_000_000, CreditCardID: &old},
		{Date: june, Amount: 1_500_000, SourceAccountID: &bank},
	} {
		row.ID, row.LedgerID, row.UserID = uuid.New(), scope.LedgerID, scope.UserID
		require.NoError(t, st.Transactions().CreateTx(ctx, tx, &row))
	}
	require.NoError(t, tx.Commit(ctx))

	sum, err := svc.Summary(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(52_000_000), sum.TotalAssets)
	assert.Equal(t, models.Amount(6_000_000), sum.TotalLiabilities)
	assert.Equal(t, models.Amount(46_000_000), sum.NetWorth)
	assert.Equal(t, models.Amount(12_500_000), sum.MonthSpending)
	require.Len(t, sum.Recent, RecentCount)
	assert.Equal(t, models.Amount(1_500_000), sum.Recent[0].Amount)
	assert.Equal(t, now, sum.AsOf)
}

func TestSummaryEmptyLedger(t *testing.T) {
	st := storetest.New()
	svc := NewService(st.Accounts(), st.Cards(), st.Transactions())

	sum, err := svc.Summary(context.Background(), access.Scope{LedgerID: uuid.New(), Role: models.RoleOwner})
	require.NoError(t, err)
	assert.Zero(t, sum.NetWorth)
	assert.NotNil(t, sum.Recent)

	_, err = svc.Summary(context.Background(), access.Scope{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
