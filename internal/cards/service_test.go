package cards

import (
	"context"
	"errors"
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

type env struct {
	st    *storetest.Store
	svc   *Service
	scope access.Scope
}

func newEnv() *env {
	st := storetest.New()
	svc := NewService(st, st.Cards(), st.Accounts(), st.Transactions(), st.Installments(), nil).
		WithClock(func() time.Time { return today })
	return &env{st: st, svc: svc, scope: access.Scope{UserID: uuid.New(), LedgerID: uuid.New(), Role: models.RoleEditor}}
}

// charge records a card expense directly in the store.
func (e *env) charge(t *testing.T, cardID uuid.UUID, amount models.Amount) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	tx, err := e.st.Begin(ctx)
	require.NoError(t, err)
	id := uuid.New()
	require.NoError(t, e.st.Transactions().CreateTx(ctx, tx, &models.Transaction{
		ID: id, LedgerID: e.scope.LedgerID, UserID: e.scope.UserID, Date: today, Amount: amount, CreditCardID: &cardID,
	}))
	require.NoError(t, tx.Commit(ctx))
	return id
}

func TestCreateValidates(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	v, err := e.svc.Create(ctx, e.scope, CardInput{Name: "Visa", BillingDay: 5, PaymentDay: 25, CreditLimit: 500_000_000})
	require.NoError(t, err)
	assert.Equal(t, models.Amount(500_000_000), v.AvailableCredit)

	for _, in := range []CardInput{
		{Name: "", BillingDay: 1, PaymentDay: 1},
		{Name: "X", BillingDay: 0, PaymentDay: 1},
		{Name: "X", BillingDay: 1, PaymentDay: 32},
		{Name: "X", BillingDay: 1, PaymentDay: 1, CreditLimit: -1},
	} {
		_, err := e.svc.Create(ctx, e.scope, in)
		assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", in)
	}

	viewer := e.scope
	viewer.Role = models.RoleViewer
	_, err = e.svc.Create(ctx, viewer, CardInput{Name: "Visa", BillingDay: 5, PaymentDay: 25})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestPayCard_ReducesLiability(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	card := e.st.SeedCard(models.Card{LedgerID: e.scope.LedgerID, Name: "Visa", CreditLimit: 50_000_000})
	bank := e.st.SeedAccount(models.Account{LedgerID: e.scope.LedgerID, Name: "Bank", Balance: 20_000_000})
	e.charge(t, card.ID, 10_000_000)

	liability, err := e.svc.ComputeLiability(ctx, e.scope, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(10_000_000), liability)

	tx, err := e.svc.Pay(ctx, e.scope, card.ID, PayInput{SourceAccountID: bank.ID, Amount: 4_000_000})
	require.NoError(t, err)
	assert.Equal(t, models.KindCardPayment, tx.Kind)
	assert.Equal(t, models.StartOfDay(today), tx.Date)
	assert.Equal(t, "Payment: Visa", tx.Description)

	liability, err = e.svc.ComputeLiability(ctx, e.scope, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(6_000_000), liability)
	assert.Equal(t, models.Amount(16_000_000), e.st.Balance(bank.ID))

	v, err := e.svc.Get(ctx, e.scope, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(44_000_000), v.AvailableCredit)
}

func TestPayCard_ExactBalanceBoundary(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	card := e.st.SeedCard(models.Card{LedgerID: e.scope.LedgerID, Name: "Visa"})
	bank := e.st.SeedAccount(models.Account{LedgerID: e.scope.LedgerID, Name: "Bank", Balance: 1_000_000})
	e.charge(t, card.ID, 5_000_000)

	_, err := e.svc.Pay(ctx, e.scope, card.ID, PayInput{SourceAccountID: bank.ID, Amount: 1_000_001})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, models.Amount(1_000_000), e.st.Balance(bank.ID))
	assert.Equal(t, 1, e.st.TransactionCount())

	_, err = e.svc.Pay(ctx, e.scope, card.ID, PayInput{SourceAccountID: bank.ID, Amount: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, models.Amount(0), e.st.Balance(bank.ID))
}

func TestPayCard_Rejections(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	card := e.st.SeedCard(models.Card{LedgerID: e.scope.LedgerID, Name: "Visa"})
	foreign := e.st.SeedAccount(models.Account{LedgerID: uuid.New(), Name: "Elsewhere", Balance: 9_000_000})
	bank := e.st.SeedAccount(models.Account{LedgerID: e.scope.LedgerID, Name: "Bank", Balance: 9_000_000})

	_, err := e.svc.Pay(ctx, e.scope, card.ID, PayInput{SourceAccountID: foreign.ID, Amount: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Pay(ctx, e.scope, card.ID, PayInput{SourceAccountID: bank.ID, Amount: 0})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Pay(ctx, e.scope, uuid.New(), PayInput{SourceAccountID: bank.ID, Amount: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	viewer := e.scope
	viewer.Role = models.RoleViewer
	_, err = e.svc.Pay(ctx, viewer, card.ID, PayInput{SourceAccountID: bank.ID, Amount: 1})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	require.NoError(t, e.svc.Delete(ctx, e.scope, card.ID))
	_, err = e.svc.Pay(ctx, e.scope, card.ID, PayInput{SourceAccountID: bank.ID, Amount: 1})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, models.Amount(9_000_000), e.st.Balance(bank.ID))
}

func TestPayCard_RecordFailureRestoresBalance(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	card := e.st.SeedCard(models.Card{LedgerID: e.scope.LedgerID, Name: "Visa"})
	bank := e.st.SeedAccount(models.Account{LedgerID: e.scope.LedgerID, Name: "Bank", Balance: 3_000_000})

	boom := errors.New("disk full")
	e.st.FailOn("Transactions.CreateTx", boom)
	_, err := e.svc.Pay(ctx, e.scope, card.ID, PayInput{SourceAccountID: bank.ID, Amount: 1_000_000})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, models.Amount(3_000_000), e.st.Balance(bank.ID))
	assert.Equal(t, 1, e.st.Rollbacks)
}

func TestDeleteCard_BlockedByLiability(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	card := e.st.SeedCard(models.Card{LedgerID: e.scope.LedgerID, Name: "Visa"})
	bank := e.st.SeedAccount(models.Account{LedgerID: e.scope.LedgerID, Name: "Bank", Balance: 5_000_000})
	e.charge(t, card.ID, 1_000_000)

	err := e.svc.Delete(ctx, e.scope, card.ID)
	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Reason, "100.00")

	_, err = e.svc.Pay(ctx, e.scope, card.ID, PayInput{SourceAccountID: bank.ID, Amount: 1_000_000})
	require.NoError(t, err)
	require.NoError(t, e.svc.Delete(ctx, e.scope, card.ID))

	v, err := e.svc.Get(ctx, e.scope, card.ID)
	require.NoError(t, err)
	require.NotNil(t, v.DeletedAt)
	assert.Equal(t, today, *v.DeletedAt)
	assert.Equal(t, models.Amount(0), v.Liability)

	active, err := e.svc.List(ctx, e.scope, false)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := e.svc.List(ctx, e.scope, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, e.svc.Delete(ctx, e.scope, card.ID), apperr.ErrConflict)
	_, err = e.svc.Update(ctx, e.scope, card.ID, CardInput{Name: "Reopen", BillingDay: 1, PaymentDay: 1})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDeleteCard_OverpaidIsAllowed(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	card := e.st.SeedCard(models.Card{LedgerID: e.scope.LedgerID, Name: "Visa"})
	bank := e.st.SeedAccount(models.Account{LedgerID: e.scope.LedgerID, Name: "Bank", Balance: 5_000_000})

	_, err := e.svc.Pay(ctx, e.scope, card.ID, PayInput{SourceAccountID: bank.ID, Amount: 10_000})
	require.NoError(t, err)
	liability, err := e.svc.ComputeLiability(ctx, e.scope, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(-10_000), liability)
	assert.NoError(t, e.svc.Delete(ctx, e.scope, card.ID))
}

func TestComputeLiability_IdempotentAndReversible(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	card := e.st.SeedCard(models.Card{LedgerID: e.scope.LedgerID, Name: "Visa"})
	bank := e.st.SeedAccount(models.Account{LedgerID: e.scope.LedgerID, Name: "Bank", Balance: 5_000_000})
	chargeID := e.charge(t, card.ID, 2_500_000)
	e.charge(t, card.ID, 700_000)
	payment, err := e.svc.Pay(ctx, e.scope, card.ID, PayInput{SourceAccountID: bank.ID, Amount: 1_000_000})
	require.NoError(t, err)

	first, err := e.svc.ComputeLiability(ctx, e.scope, card.ID)
	require.NoError(t, err)
	second, err := e.svc.ComputeLiability(ctx, e.scope, card.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, models.Amount(2_200_000), first)

	tx, err := e.st.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, e.st.Transactions().DeleteTx(ctx, tx, e.scope.LedgerID, chargeID))
	require.NoError(t, tx.Commit(ctx))
	afterCharge, err := e.svc.ComputeLiability(ctx, e.scope, card.ID)
	require.NoError(t, err)
	assert.Equal(t, first-2_500_000, afterCharge)

	tx, err = e.st.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, e.st.Transactions().DeleteTx(ctx, tx, e.scope.LedgerID, payment.ID))
	require.NoError(t, tx.Commit(ctx))
	afterPayment, err := e.svc.ComputeLiability(ctx, e.scope, card.ID)
	require.NoError(t, err)
	assert.Equal(t, afterCharge+1_000_000, afterPayment)
}

func TestInstallments_RefreshRemaining(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	card := e.st.SeedCard(models.Card{LedgerID: e.scope.LedgerID, Name: "Visa"})
	tx, err := e.st.Begin(ctx)
	require.NoError(t, err)
	inst := &models.Installment{
		ID: uuid.New(), CardID: card.ID, Description: "Laptop", TotalAmount: 12_000_000,
		TotalMonths: 12, RemainingMonths: 12, StartDate: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, e.st.Installments().CreateTx(ctx, tx, inst))
	require.NoError(t, tx.Commit(ctx))

	list, err := e.svc.Installments(ctx, e.scope, card.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 8, list[0].RemainingMonths)

	again, err := e.svc.Installments(ctx, e.scope, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, again[0].RemainingMonths)

	stored, err := e.st.Installments().GetTx(ctx, nil, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, stored.RemainingMonths)

	_, err = e.svc.Installments(ctx, e.scope, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestInstallments_ViewerDoesNotWrite(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	card := e.st.SeedCard(models.Card{LedgerID: e.scope.LedgerID, Name: "Visa"})
	tx, err := e.st.Begin(ctx)
	require.NoError(t, err)
	inst := &models.Installment{
		ID: uuid.New(), CardID: card.ID, Description: "Phone", TotalAmount: 6_000_000,
		TotalMonths: 6, RemainingMonths: 6, StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, e.st.Installments().CreateTx(ctx, tx, inst))
	require.NoError(t, tx.Commit(ctx))

	viewer := e.scope
	viewer.Role = models.RoleViewer
	list, err := e.svc.Installments(ctx, viewer, card.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].RemainingMonths)

	stored, err := e.st.Installments().GetTx(ctx, nil, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.RemainingMonths)
}
