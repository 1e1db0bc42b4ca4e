package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linfan/backend/internal/models"
)

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func (r *LedgerRepo) CreateTx(ctx context.Context, tx pgx.Tx, l *models.Ledger) error {
	return translate(tx.QueryRow(ctx, `
		INSERT INTO ledgers (id, name, password_secret)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, l.ID, l.Name, l.PasswordSecret).Scan(&l.CreatedAt))
}

func (r *LedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Ledger, error) {
	return getLedger(ctx, r.pool, `SELECT id, name, password_secret, created_at FROM ledgers WHERE id = $1`, id)
}

// GetForUpdate locks the ledger row. Call within a transaction.
func (r *LedgerRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Ledger, error) {
	return getLedger(ctx, tx, `SELECT id, name, password_secret, created_at FROM ledgers WHERE id = $1 FOR UPDATE`, id)
}

func getLedger(ctx context.Context, q querier, sql string, id uuid.UUID) (*models.Ledger, error) {
	var l models.Ledger
	if err := q.QueryRow(ctx, sql, id).Scan(&l.ID, &l.Name, &l.PasswordSecret, &l.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

func (r *LedgerRepo) UpdateTx(ctx context.Context, tx pgx.Tx, l *models.Ledger) error {
	return affected(tx.Exec(ctx, `
		UPDATE ledgers SET name = $2, password_secret = $3 WHERE id = $1
	`, l.ID, l.Name, l.PasswordSecret))
}

// ListForUser returns the ledgers userID belongs to, most recently used first.
func (r *LedgerRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.LedgerSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.name, m.role, m.last_accessed_at, COALESCE(l.password_secret, '') <> ''
		FROM ledger_members m JOIN ledgers l ON l.id = m.ledger_id
		WHERE m.user_id = $1
		ORDER BY m.last_accessed_at DESC, l.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.LedgerSummary
	for rows.Next() {
		var s models.LedgerSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Role, &s.LastAccessedAt, &s.HasPassword); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// purgeStatements delete everything a ledger owns, children first.
var purgeStatements = []string{
	`DELETE FROM transactions WHERE ledger_id = $1`,
	`DELETE FROM installments WHERE card_id IN (SELECT id FROM credit_cards WHERE ledger_id = $1)`,
	`DELETE FROM stocks WHERE ledger_id = $1`,
	`DELETE FROM credit_cards WHERE ledger_id = $1`,
	`DELETE FROM accounts WHERE ledger_id = $1`,
	`DELETE FROM categories WHERE ledger_id = $1`,
	`DELETE FROM ledger_members WHERE ledger_id = $1`,
	`DELETE FROM ledgers WHERE id = $1`,
}

// PurgeTx deletes the ledger and all rows it owns as one batch inside tx.
func (r *LedgerRepo) PurgeTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	batch := &pgx.Batch{}
	for _, sql := range purgeStatements {
		batch.Queue(sql, id)
	}
	br := tx.SendBatch(ctx, batch)
	for range purgeStatements {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return translate(err)
		}
	}
	return br.Close()
}
