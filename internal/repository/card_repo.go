package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linfan/backend/internal/models"
)

type CardRepo struct {
	pool *pgxpool.Pool
}

func NewCardRepo(pool *pgxpool.Pool) *CardRepo {
	return &CardRepo{pool: pool}
}

const cardColumns = `id, ledger_id, name, billing_day, payment_day, credit_limit, deleted_at, created_at`

func scanCard(row pgx.Row) (*models.Card, error) {
	var c models.Card
	if err := row.Scan(&c.ID, &c.LedgerID, &c.Name, &c.BillingDay, &c.PaymentDay, &c.CreditLimit, &c.DeletedAt, &c.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *CardRepo) Create(ctx context.Context, c *models.Card) error {
	return translate(r.pool.QueryRow(ctx, `
		INSERT INTO credit_cards (id, ledger_id, name, billing_day, payment_day, credit_limit)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, c.ID, c.LedgerID, c.Name, c.BillingDay, c.PaymentDay, c.CreditLimit).Scan(&c.CreatedAt))
}

// Get returns the card, soft-deleted or not, if it belongs to ledgerID.
func (r *CardRepo) Get(ctx context.Context, ledgerID, id uuid.UUID) (*models.Card, error) {
	return scanCard(r.pool.QueryRow(ctx, `SELECT `+cardColumns+` FROM credit_cards WHERE id = $1 AND ledger_id = $2`, id, ledgerID))
}

// GetForShare reads the card and blocks concurrent deletion until tx ends.
func (r *CardRepo) GetForShare(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Card, error) {
	return scanCard(tx.QueryRow(ctx, `SELECT `+cardColumns+` FROM credit_cards WHERE id = $1 AND ledger_id = $2 FOR SHARE`, id, ledgerID))
}

// GetForUpdate locks the card row. Call within a transaction.
func (r *CardRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, ledgerID, id uuid.UUID) (*models.Card, error) {
	return scanCard(tx.QueryRow(ctx, `SELECT `+cardColumns+` FROM credit_cards WHERE id = $1 AND ledger_id = $2 FOR UPDATE`, id, ledgerID))
}

func (r *CardRepo) List(ctx context.Context, ledgerID uuid.UUID, includeDeleted bool) ([]*models.Card, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+cardColumns+` FROM credit_cards
		WHERE ledger_id = $1 AND ($2 OR deleted_at IS NULL)
		ORDER BY created_at
	`, ledgerID, includeDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *CardRepo) Update(ctx context.Context, c *models.Card) error {
	return affected(r.pool.Exec(ctx, `
		UPDATE credit_cards SET name = $3, billing_day = $4, payment_day = $5, credit_limit = $6
		WHERE id = $1 AND ledger_id = $2 AND deleted_at IS NULL
	`, c.ID, c.LedgerID, c.Name, c.BillingDay, c.PaymentDay, c.CreditLimit))
}

func (r *CardRepo) SoftDeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	return affected(tx.Exec(ctx, `
		UPDATE credit_cards SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL
	`, id, at))
}

// liabilitySQL derives the outstanding balance: charges have no source
// account, payments do.
const liabilitySQL = `
	SELECT COALESCE(SUM(CASE WHEN source_account_id IS NULL THEN amount ELSE -amount END), 0)::bigint
	FROM transactions WHERE credit_card_id = $1`

func (r *CardRepo) Liability(ctx context.Context, cardID uuid.UUID) (models.Amount, error) {
	var total models.Amount
	err := r.pool.QueryRow(ctx, liabilitySQL, cardID).Scan(&total)
	return total, err
}

// LiabilityTx derives the liability inside the given transaction.
func (r *CardRepo) LiabilityTx(ctx context.Context, tx pgx.Tx, cardID uuid.UUID) (models.Amount, error) {
	var total models.Amount
	err := tx.QueryRow(ctx, liabilitySQL, cardID).Scan(&total)
	return total, err
}
