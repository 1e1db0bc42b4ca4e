package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/storetest"
)

type env struct {
	store  *storetest.Store
	grants *access.RedisGrants
	svc    *Service
	owner  models.User
	other  models.User
}

func newEnv(t *testing.T, passwords PasswordChecker) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := storetest.New()
	e := &env{store: st, grants: access.NewRedisGrants(client, time.Hour)}
	e.owner = st.SeedUser(models.User{Email: "owner@example.com", Name: "owner"})
	e.other = st.SeedUser(models.User{Email: "friend@example.com", Name: "friend"})
	e.svc = NewService(st, st.Ledgers(), st.Members(), st.Users(), passwords, e.grants, nil)
	return e
}

func (e *env) hasGrant(t *testing.T, userID, ledgerID uuid.UUID) bool {
	t.Helper()
	ok, err := e.grants.Has(context.Background(), userID, ledgerID)
	require.NoError(t, err)
	return ok
}

func TestCreateLedger_GrantsOwner(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	l, err := e.svc.CreateLedger(ctx, e.owner.ID, "  Household ", "")
	require.NoError(t, err)
	assert.Equal(t, "Household", l.Name)
	assert.False(t, l.HasPassword())

	list, err := e.svc.ListLedgers(ctx, e.owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.RoleOwner, list[0].Role)
	assert.False(t, list[0].HasPassword)

	_, err = e.svc.CreateLedger(ctx, e.owner.ID, "   ", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListLedgers_MostRecentFirst(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	first, err := e.svc.CreateLedger(ctx, e.owner.ID, "First", "")
	require.NoError(t, err)
	second, err := e.svc.CreateLedger(ctx, e.owner.ID, "Second", "")
	require.NoError(t, err)

	list, err := e.svc.ListLedgers(ctx, e.owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	require.NoError(t, e.store.Members().TouchMembership(ctx, first.ID, e.owner.ID, time.Now()))
	list, err = e.svc.ListLedgers(ctx, e.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, list[0].ID)
}

func TestVerifyEntry(t *testing.T) {
	for name, checker := range map[string]PasswordChecker{
		"plain":  PlainPasswords{},
		"bcrypt": BcryptPasswords{Cost: 4},
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, checker)
			ctx := context.Background()

			locked, err := e.svc.CreateLedger(ctx, e.owner.ID, "Locked", "hunter2")
			require.NoError(t, err)
			open, err := e.svc.CreateLedger(ctx, e.owner.ID, "Open", "")
			require.NoError(t, err)

			assert.ErrorIs(t, e.svc.VerifyEntry(ctx, e.owner.ID, locked.ID, "wrong"), apperr.ErrForbidden)
			assert.False(t, e.hasGrant(t, e.owner.ID, locked.ID))

			require.NoError(t, e.svc.VerifyEntry(ctx, e.owner.ID, locked.ID, "hunter2"))
			assert.True(t, e.hasGrant(t, e.owner.ID, locked.ID))

			require.NoError(t, e.svc.VerifyEntry(ctx, e.owner.ID, open.ID, "anything"))
		})
	}
}

func TestVerifyEntry_NonMemberAndUnknownLedgerAreForbidden(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	l, err := e.svc.CreateLedger(ctx, e.owner.ID, "Mine", "")
	require.NoError(t, err)

	assert.ErrorIs(t, e.svc.VerifyEntry(ctx, e.other.ID, l.ID, ""), apperr.ErrForbidden)
	assert.ErrorIs(t, e.svc.VerifyEntry(ctx, e.owner.ID, uuid.New(), ""), apperr.ErrForbidden)
}

func seedLedgerContents(t *testing.T, st *storetest.Store, ledgerID, userID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	acct := st.SeedAccount(models.Account{LedgerID: ledgerID, Name: "Bank", Balance: 1_000_000})
	card := st.SeedCard(models.Card{LedgerID: ledgerID, Name: "Visa"})
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	inst := &models.Installment{ID: uuid.New(), CardID: card.ID, TotalAmount: 30_000, TotalMonths: 3, RemainingMonths: 3}
	require.NoError(t, st.Installments().CreateTx(ctx, tx, inst))
	require.NoError(t, st.Transactions().CreateTx(ctx, tx, &models.Transaction{
		ID: uuid.New(), LedgerID: ledgerID, UserID: userID, Amount: 10_000, SourceAccountID: &acct.ID,
	}))
	require.NoError(t, st.Transactions().CreateTx(ctx, tx, &models.Transaction{
		ID: uuid.New(), LedgerID: ledgerID, UserID: userID, Amount: 30_000, CreditCardID: &card.ID, InstallmentID: &inst.ID,
	}))
	require.NoError(t, tx.Commit(ctx))
}

func TestDeleteLedger_CascadesEverything(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	l, err := e.svc.CreateLedger(ctx, e.owner.ID, "Doomed", "pw")
	require.NoError(t, err)
	keep, err := e.svc.CreateLedger(ctx, e.owner.ID, "Keep", "")
	require.NoError(t, err)
	seedLedgerContents(t, e.store, l.ID, e.owner.ID)
	seedLedgerContents(t, e.store, keep.ID, e.owner.ID)

	assert.ErrorIs(t, e.svc.DeleteLedger(ctx, e.owner.ID, l.ID, "nope"), apperr.ErrForbidden)
	require.NoError(t, e.svc.DeleteLedger(ctx, e.owner.ID, l.ID, "pw"))

	_, err = e.store.Ledgers().GetByID(ctx, l.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 2, e.store.TransactionCount())
	assert.Equal(t, 1, e.store.InstallmentCount())

	list, err := e.svc.ListLedgers(ctx, e.owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)
}

func TestDeleteLedger_PartialFailureRollsBack(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	l, err := e.svc.CreateLedger(ctx, e.owner.ID, "Sturdy", "")
	require.NoError(t, err)
	seedLedgerContents(t, e.store, l.ID, e.owner.ID)

	boom := errors.New("connection reset")
	e.store.FailOn("Ledgers.PurgeTx", boom)
	assert.ErrorIs(t, e.svc.DeleteLedger(ctx, e.owner.ID, l.ID, ""), boom)

	assert.Equal(t, 2, e.store.TransactionCount())
	_, err = e.store.Ledgers().GetByID(ctx, l.ID)
	assert.NoError(t, err)
}

func TestDeleteLedger_OnlyOwner(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	l, err := e.svc.CreateLedger(ctx, e.owner.ID, "Shared", "")
	require.NoError(t, err)
	_, err = e.svc.AddMember(ctx, e.owner.ID, l.ID, "FRIEND@example.com", models.RoleEditor)
	require.NoError(t, err)

	assert.ErrorIs(t, e.svc.DeleteLedger(ctx, e.other.ID, l.ID, ""), apperr.ErrForbidden)
	assert.ErrorIs(t, e.svc.DeleteLedger(ctx, uuid.New(), l.ID, ""), apperr.ErrForbidden)
}

func TestUpdateLedger_PasswordChangeRevokesGrants(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	l, err := e.svc.CreateLedger(ctx, e.owner.ID, "Locked", "old")
	require.NoError(t, err)
	require.NoError(t, e.svc.VerifyEntry(ctx, e.owner.ID, l.ID, "old"))
	require.True(t, e.hasGrant(t, e.owner.ID, l.ID))

	pw, name := "new", "Renamed"
	updated, err := e.svc.UpdateLedger(ctx, e.owner.ID, l.ID, UpdateLedgerInput{Name: &name, Password: &pw})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, e.hasGrant(t, e.owner.ID, l.ID))

	assert.ErrorIs(t, e.svc.VerifyEntry(ctx, e.owner.ID, l.ID, "old"), apperr.ErrForbidden)
	require.NoError(t, e.svc.VerifyEntry(ctx, e.owner.ID, l.ID, "new"))

	empty := ""
	updated, err = e.svc.UpdateLedger(ctx, e.owner.ID, l.ID, UpdateLedgerInput{Password: &empty})
	require.NoError(t, err)
	assert.False(t, updated.HasPassword())
}

func TestMembers(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	l, err := e.svc.CreateLedger(ctx, e.owner.ID, "Family", "")
	require.NoError(t, err)

	_, err = e.svc.AddMember(ctx, e.owner.ID, l.ID, "friend@example.com", models.RoleOwner)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = e.svc.AddMember(ctx, e.owner.ID, l.ID, "nobody@example.com", models.RoleViewer)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	m, err := e.svc.AddMember(ctx, e.owner.ID, l.ID, "friend@example.com", models.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, e.other.ID, m.UserID)

	_, err = e.svc.AddMember(ctx, e.owner.ID, l.ID, "friend@example.com", models.RoleEditor)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = e.svc.AddMember(ctx, e.other.ID, l.ID, "owner@example.com", models.RoleViewer)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	members, err := e.svc.ListMembers(ctx, e.other.ID, l.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, models.RoleOwner, members[0].Role)

	require.NoError(t, e.svc.UpdateMemberRole(ctx, e.owner.ID, l.ID, e.other.ID, models.RoleEditor))
	assert.ErrorIs(t, e.svc.UpdateMemberRole(ctx, e.owner.ID, l.ID, e.owner.ID, models.RoleViewer), apperr.ErrConflict)
	assert.ErrorIs(t, e.svc.RemoveMember(ctx, e.owner.ID, l.ID, e.owner.ID), apperr.ErrConflict)
	assert.ErrorIs(t, e.svc.RemoveMember(ctx, e.other.ID, l.ID, e.owner.ID), apperr.ErrForbidden)

	require.NoError(t, e.svc.RemoveMember(ctx, e.owner.ID, l.ID, e.other.ID))
	_, err = e.svc.ListMembers(ctx, e.other.ID, l.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestPasswordCheckers(t *testing.T) {
	plain := PlainPasswords{}
	secret, err := plain.Seal("pw")
	require.NoError(t, err)
	assert.Equal(t, "pw", secret)
	assert.True(t, plain.Match(secret, "pw"))
	assert.False(t, plain.Match(secret, "PW"))

	b := BcryptPasswords{Cost: 4}
	hash, err := b.Seal("pw")
	require.NoError(t, err)
	assert.NotEqual(t, "pw", hash)
	assert.True(t, b.Match(hash, "pw"))
	assert.False(t, b.Match(hash, "pw "))

	assert.IsType(t, BcryptPasswords{}, NewPasswordChecker("bcrypt"))
	assert.IsType(t, PlainPasswords{}, NewPasswordChecker("plain"))
}
