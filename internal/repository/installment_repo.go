package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linfan/backend/internal/models"
)

type InstallmentRepo struct {
	pool *pgxpool.Pool
}

func NewInstallmentRepo(pool *pgxpool.Pool) *InstallmentRepo {
	return &InstallmentRepo{pool: pool}
}

const installmentColumns = `id, card_id, description, total_amount, total_months, remaining_months, start_date`

func scanInstallment(row pgx.Row) (*models.Installment, error) {
	var i models.Installment
	if err := row.Scan(&i.ID, &i.CardID, &i.Description, &i.TotalAmount, &i.TotalMonths, &i.RemainingMonths, &i.StartDate); err != nil {
		return nil, translate(err)
	}
	return &i, nil
}

func (r *InstallmentRepo) CreateTx(ctx context.Context, tx pgx.Tx, i *models.Installment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO installments (`+installmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, i.ID, i.CardID, i.Description, i.TotalAmount, i.TotalMonths, i.RemainingMonths, i.StartDate)
	return translate(err)
}

func (r *InstallmentRepo) GetTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Installment, error) {
	return scanInstallment(tx.QueryRow(ctx, `SELECT `+installmentColumns+` FROM installments WHERE id = $1 FOR UPDATE`, id))
}

func (r *InstallmentRepo) UpdateTx(ctx context.Context, tx pgx.Tx, i *models.Installment) error {
	return affected(tx.Exec(ctx, `
		UPDATE installments
		SET card_id = $2, description = $3, total_amount = $4, total_months = $5, remaining_months = $6, start_date = $7
		WHERE id = $1
	`, i.ID, i.CardID, i.Description, i.TotalAmount, i.TotalMonths, i.RemainingMonths, i.StartDate))
}

func (r *InstallmentRepo) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return affected(tx.Exec(ctx, `DELETE FROM installments WHERE id = $1`, id))
}

func (r *InstallmentRepo) ListByCard(ctx context.Context, cardID uuid.UUID) ([]*models.Installment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+installmentColumns+` FROM installments WHERE card_id = $1 ORDER BY start_date DESC`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Installment
	for rows.Next() {
		i, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, i)
	}
	return list, rows.Err()
}

// SetRemaining stores a recomputed remaining month count.
func (r *InstallmentRepo) SetRemaining(ctx context.Context, id uuid.UUID, remaining int) error {
	_, err := r.pool.Exec(ctx, `UPDATE installments SET remaining_months = $2 WHERE id = $1`, id, remaining)
	return err
}
