package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linfan/backend/internal/models"
)

type CategoryRepo struct {
	pool *pgxpool.Pool
}

func NewCategoryRepo(pool *pgxpool.Pool) *CategoryRepo {
	return &CategoryRepo{pool: pool}
}

func (r *CategoryRepo) Create(ctx context.Context, c *models.Category) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO categories (id, ledger_id, name, kind, icon) VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.LedgerID, c.Name, c.Kind, c.Icon)
	return translate(err)
}

// SeedTx inserts cs unless the ledger already has categories. It locks the
// ledger row so concurrent seeds insert once. Returns the number inserted.
func (r *CategoryRepo) SeedTx(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, cs []*models.Category) (int, error) {
	if _, err := tx.Exec(ctx, `SELECT 1 FROM ledgers WHERE id = $1 FOR UPDATE`, ledgerID); err != nil {
		return 0, err
	}
	var n int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM categories WHERE ledger_id = $1`, ledgerID).Scan(&n); err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, []any{c.ID, c.LedgerID, c.Name, c.Kind, c.Icon})
	}
	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"categories"},
		[]string{"id", "ledger_id", "name", "kind", "icon"}, pgx.CopyFromRows(rows))
	return int(copied), translate(err)
}

func (r *CategoryRepo) Get(ctx context.Context, ledgerID, id uuid.UUID) (*models.Category, error) {
	var c models.Category
	err := r.pool.QueryRow(ctx, `
		SELECT id, ledger_id, name, kind, icon FROM categories WHERE id = $1 AND ledger_id = $2
	`, id, ledgerID).Scan(&c.ID, &c.LedgerID, &c.Name, &c.Kind, &c.Icon)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *CategoryRepo) List(ctx context.Context, ledgerID uuid.UUID) ([]*models.Category, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ledger_id, name, kind, icon FROM categories WHERE ledger_id = $1 ORDER BY kind, name
	`, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.LedgerID, &c.Name, &c.Kind, &c.Icon); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}
