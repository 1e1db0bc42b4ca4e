package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linfan/backend/internal/models"
)

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, ledger_id, user_id, date, amount, description, category_id,
	source_account_id, destination_account_id, credit_card_id, installment_id, created_at, updated_at`

// scanTransaction reads a row and infers its kind.
func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.LedgerID, &t.UserID, &t.Date, &t.Amount, &t.Description, &t.CategoryID,
		&t.SourceAccountID, &t.DestinationAccountID, &t.CreditCardID, &t.InstallmentID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if err := t.Infer(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return translate(tx.QueryRow(ctx, `
		INSERT INTO transactions (id, ledger_id, user_id, date, amount, description, category_id,
			source_account_id, destination_account_id, credit_card_id, installment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, t.ID, t.LedgerID, t.UserID, t.Date, t.Amount, t.Description, t.CategoryID,
		t.SourceAccountID, t.DestinationAccountID, t.CreditCardID, t.InstallmentID,
	).Scan(&t.CreatedAt, &t.UpdatedAt))
}

func (r *TransactionRepo) Get(ctx context.Context, ledgerID, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND ledger_id = $2`, id, ledgerID))
}

// GetForUpdate locks the transaction row. Call within a transaction.
func (r *TransactionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND ledger_id = $2 FOR UPDATE`, id, ledgerID))
}

func (r *TransactionRepo) UpdateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return translate(tx.QueryRow(ctx, `
		UPDATE transactions
		SET date = $3, amount = $4, description = $5, category_id = $6, source_account_id = $7,
			destination_account_id = $8, credit_card_id = $9, installment_id = $10, updated_at = now()
		WHERE id = $1 AND ledger_id = $2
		RETURNING updated_at
	`, t.ID, t.LedgerID, t.Date, t.Amount, t.Description, t.CategoryID, t.SourceAccountID,
		t.DestinationAccountID, t.CreditCardID, t.InstallmentID,
	).Scan(&t.UpdatedAt))
}

func (r *TransactionRepo) DeleteTx(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) error {
	return affected(tx.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND ledger_id = $2`, id, ledgerID))
}

// List returns one page of the ledger's transactions, newest first.
func (r *TransactionRepo) List(ctx context.Context, ledgerID uuid.UUID, f models.TransactionFilter) ([]*models.Transaction, error) {
	f = f.Normalize()
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE ledger_id = $1
		  AND ($2::uuid IS NULL OR source_account_id = $2 OR destination_account_id = $2)
		  AND ($3::uuid IS NULL OR credit_card_id = $3)
		ORDER BY date DESC, created_at DESC
		LIMIT $4 OFFSET $5
	`, ledgerID, f.AccountID, f.CardID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// SpendingSince sums cash and card expenses dated on or after since.
func (r *TransactionRepo) SpendingSince(ctx context.Context, ledgerID uuid.UUID, since time.Time) (models.Amount, error) {
	var total models.Amount
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::bigint FROM transactions
		WHERE ledger_id = $1 AND date >= $2 AND destination_account_id IS NULL
		  AND ((source_account_id IS NOT NULL AND credit_card_id IS NULL)
		    OR (source_account_id IS NULL AND credit_card_id IS NOT NULL))
	`, ledgerID, since).Scan(&total)
	return total, err
}
