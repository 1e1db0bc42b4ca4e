package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, ledger_id, name, kind, currency, balance, hidden, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.LedgerID, &a.Name, &a.Kind, &a.Currency, &a.Balance, &a.Hidden, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return translate(r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, ledger_id, name, kind, currency, balance, hidden)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, a.ID, a.LedgerID, a.Name, a.Kind, a.Currency, a.Balance, a.Hidden).Scan(&a.CreatedAt, &a.UpdatedAt))
}

// Get returns the account only if it belongs to ledgerID.
func (r *AccountRepo) Get(ctx context.Context, ledgerID, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND ledger_id = $2`, id, ledgerID))
}

// GetTx reads the account inside tx without locking it.
func (r *AccountRepo) GetTx(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND ledger_id = $2`, id, ledgerID))
}

// GetForUpdate locks the account row. Call within a transaction.
func (r *AccountRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND ledger_id = $2 FOR UPDATE`, id, ledgerID))
}

func (r *AccountRepo) List(ctx context.Context, ledgerID uuid.UUID) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE ledger_id = $1 ORDER BY created_at`, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// UpdateTx writes the descriptive fields. The balance is replaced only when
// balance is non-nil; otherwise the stored value, including deltas committed
// by other transactions, is kept and read back into a.
func (r *AccountRepo) UpdateTx(ctx context.Context, tx pgx.Tx, a *models.Account, balance *models.Amount) error {
	return translate(tx.QueryRow(ctx, `
		UPDATE accounts SET name = $3, kind = $4, currency = $5, balance = COALESCE($6, balance), hidden = $7, updated_at = now()
		WHERE id = $1 AND ledger_id = $2
		RETURNING balance, updated_at
	`, a.ID, a.LedgerID, a.Name, a.Kind, a.Currency, balance, a.Hidden).Scan(&a.Balance, &a.UpdatedAt))
}

// Delete removes the account regardless of balance. Accounts still referenced
// by transactions yield a conflict.
func (r *AccountRepo) Delete(ctx context.Context, ledgerID, id uuid.UUID) error {
	return affected(r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND ledger_id = $2`, id, ledgerID))
}

// AdjustBalance adds delta to the balance in a single statement and returns
// the new balance.
func (r *AccountRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID, delta models.Amount) (newBalance models.Amount, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = now()
		WHERE id = $2 AND ledger_id = $3
		RETURNING balance
	`, delta, id, ledgerID).Scan(&newBalance)
	return newBalance, translate(err)
}

// DeductIfSufficient subtracts amount only if the balance covers it.
func (r *AccountRepo) DeductIfSufficient(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID, amount models.Amount) (newBalance models.Amount, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $1, updated_at = now()
		WHERE id = $2 AND ledger_id = $3 AND balance >= $1
		RETURNING balance
	`, amount, id, ledgerID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.ErrInsufficientFunds
	}
	return newBalance, translate(err)
}
