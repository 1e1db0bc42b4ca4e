package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linfan/backend/internal/models"
)

type StockRepo struct {
	pool *pgxpool.Pool
}

func NewStockRepo(pool *pgxpool.Pool) *StockRepo {
	return &StockRepo{pool: pool}
}

// LockTx returns the holding for (ticker, owner) locked for update, creating
// an empty one if none exists.
func (r *StockRepo) LockTx(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, ticker, owner string) (*models.Stock, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO stocks (id, ledger_id, ticker, owner_label) VALUES ($1, $2, $3, $4)
		ON CONFLICT (ledger_id, ticker, owner_label) DO NOTHING
	`, uuid.New(), ledgerID, ticker, owner); err != nil {
		return nil, translate(err)
	}
	var s models.Stock
	err := tx.QueryRow(ctx, `
		SELECT id, ledger_id, ticker, owner_label, shares, avg_cost FROM stocks
		WHERE ledger_id = $1 AND ticker = $2 AND owner_label = $3 FOR UPDATE
	`, ledgerID, ticker, owner).Scan(&s.ID, &s.LedgerID, &s.Ticker, &s.OwnerLabel, &s.Shares, &s.AvgCost)
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *StockRepo) UpdateTx(ctx context.Context, tx pgx.Tx, s *models.Stock) error {
	return affected(tx.Exec(ctx, `UPDATE stocks SET shares = $2, avg_cost = $3 WHERE id = $1`, s.ID, s.Shares, s.AvgCost))
}

func (r *StockRepo) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return affected(tx.Exec(ctx, `DELETE FROM stocks WHERE id = $1`, id))
}

// List returns non-empty holdings ordered by owner then ticker.
func (r *StockRepo) List(ctx context.Context, ledgerID uuid.UUID) ([]*models.Stock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ledger_id, ticker, owner_label, shares, avg_cost FROM stocks
		WHERE ledger_id = $1 AND shares > 0
		ORDER BY owner_label, ticker
	`, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Stock
	for rows.Next() {
		var s models.Stock
		if err := rows.Scan(&s.ID, &s.LedgerID, &s.Ticker, &s.OwnerLabel, &s.Shares, &s.AvgCost); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}
