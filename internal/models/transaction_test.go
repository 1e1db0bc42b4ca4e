package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linfan/backend/internal/apperr"
)

func ref() *uuid.UUID {
	id := uuid.New()
	return &id
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		src, dst  *uuid.UUID
		card      *uuid.UUID
		want      Kind
		wantError bool
	}{
		{name: "expense", src: ref(), want: KindExpense},
		{name: "income", dst: ref(), want: KindIncome},
		{name: "transfer", src: ref(), dst: ref(), want: KindTransfer},
		{name: "card expense", card: ref(), want: KindCardExpense},
		{name: "card payment", src: ref(), card: ref(), want: KindCardPayment},
		{name: "empty", wantError: true},
		{name: "destination and card", dst: ref(), card: ref(), wantError: true},
		{name: "all three", src: ref(), dst: ref(), card: ref(), wantError: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Classify(tc.src, tc.dst, tc.card)
			if tc.wantError {
				require.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEffectOfMatchesTable(t *testing.T) {
	src, dst, card := ref(), ref(), ref()
	amt := Amount(2_000_000)

	mk := func(s, d, c *uuid.UUID) *Transaction {
		tx := &Transaction{Amount: amt, SourceAccountID: s, DestinationAccountID: d, CreditCardID: c}
		require.NoError(t, tx.Infer())
		return tx
	}

	assert.Equal(t, Effect{*src: -amt}, EffectOf(mk(src, nil, nil)))
	assert.Equal(t, Effect{*dst: amt}, EffectOf(mk(nil, dst, nil)))
	assert.Equal(t, Effect{*src: -amt, *dst: amt}, EffectOf(mk(src, dst, nil)))
	assert.Empty(t, EffectOf(mk(nil, nil, card)))
	assert.Equal(t, Effect{*src: -amt}, EffectOf(mk(src, nil, card)))
}

func TestEffectRevertApplyIsLossFree(t *testing.T) {
	a, b := ref(), ref()
	old := &Transaction{Amount: 500, SourceAccountID: a}
	require.NoError(t, old.Infer())
	next := &Transaction{Amount: 700, SourceAccountID: a, DestinationAccountID: b}
	require.NoError(t, next.Infer())

	net := EffectOf(old).Inverse().Plus(EffectOf(next))
	assert.Equal(t, Effect{*a: -200, *b: 700}, net)

	same := EffectOf(old).Inverse().Plus(EffectOf(old))
	assert.Empty(t, same)
}

func TestEffectAccountsSorted(t *testing.T) {
	e := Effect{}
	for i := 0; i < 10; i++ {
		e[uuid.New()] = 1
	}
	ids := e.Accounts()
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1].String(), ids[i].String())
	}
}

func TestLiability(t *testing.T) {
	card := uuid.New()
	other := uuid.New()
	bank := ref()
	txs := []*Transaction{
		{Amount: 10_000_000, CreditCardID: &card},
		{Amount: 4_000_000, CreditCardID: &card, SourceAccountID: bank},
		{Amount: 99, CreditCardID: &other},
		{Amount: 50, SourceAccountID: bank},
	}
	assert.Equal(t, Amount(6_000_000), Liability(card, txs))
	assert.Equal(t, Liability(card, txs), Liability(card, txs))
}

func TestInstallmentSchedule(t *testing.T) {
	start := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	inst := &Installment{TotalAmount: 1_000_001, TotalMonths: 3, RemainingMonths: 3, StartDate: start}

	assert.Equal(t, 3, inst.RemainingAsOf(start))
	assert.Equal(t, 2, inst.RemainingAsOf(start.AddDate(0, 1, 0)))
	assert.Equal(t, 0, inst.RemainingAsOf(start.AddDate(2, 0, 0)))
	assert.Equal(t, 3, inst.RemainingAsOf(start.AddDate(0, -2, 0)))

	var sum Amount
	for n := 0; n < inst.TotalMonths; n++ {
		sum += inst.MonthlyAmount(n)
	}
	assert.Equal(t, inst.TotalAmount, sum)
	assert.Equal(t, Amount(333_335), inst.MonthlyAmount(0))
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleOwner.AtLeast(RoleEditor))
	assert.True(t, RoleEditor.AtLeast(RoleEditor))
	assert.False(t, RoleViewer.AtLeast(RoleEditor))
	assert.False(t, Role("admin").AtLeast(RoleViewer))
}
