package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linfan/backend/internal/models"
)

type MemberRepo struct {
	pool *pgxpool.Pool
}

func NewMemberRepo(pool *pgxpool.Pool) *MemberRepo {
	return &MemberRepo{pool: pool}
}

func (r *MemberRepo) AddTx(ctx context.Context, tx pgx.Tx, m *models.Membership) error {
	return translate(tx.QueryRow(ctx, `
		INSERT INTO ledger_members (ledger_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING last_accessed_at
	`, m.LedgerID, m.UserID, m.Role).Scan(&m.LastAccessedAt))
}

func (r *MemberRepo) Get(ctx context.Context, ledgerID, userID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := r.pool.QueryRow(ctx, `
		SELECT ledger_id, user_id, role, last_accessed_at
		FROM ledger_members WHERE ledger_id = $1 AND user_id = $2
	`, ledgerID, userID).Scan(&m.LedgerID, &m.UserID, &m.Role, &m.LastAccessedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// Access resolves the membership of userID in ledgerID together with whether
// the ledger is password protected.
func (r *MemberRepo) Access(ctx context.Context, ledgerID, userID uuid.UUID) (*models.MemberAccess, error) {
	var a models.MemberAccess
	err := r.pool.QueryRow(ctx, `
		SELECT m.ledger_id, m.user_id, m.role, m.last_accessed_at, COALESCE(l.password_secret, '') <> ''
		FROM ledger_members m JOIN ledgers l ON l.id = m.ledger_id
		WHERE m.ledger_id = $1 AND m.user_id = $2
	`, ledgerID, userID).Scan(&a.LedgerID, &a.UserID, &a.Role, &a.LastAccessedAt, &a.HasPassword)
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *MemberRepo) List(ctx context.Context, ledgerID uuid.UUID) ([]models.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.email, u.name, m.role, m.last_accessed_at
		FROM ledger_members m JOIN users u ON u.id = m.user_id
		WHERE m.ledger_id = $1
		ORDER BY CASE m.role WHEN 'owner' THEN 0 WHEN 'editor' THEN 1 ELSE 2 END, u.name
	`, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.Name, &m.Role, &m.LastAccessedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (r *MemberRepo) UpdateRole(ctx context.Context, ledgerID, userID uuid.UUID, role models.Role) error {
	return affected(r.pool.Exec(ctx, `
		UPDATE ledger_members SET role = $3 WHERE ledger_id = $1 AND user_id = $2
	`, ledgerID, userID, role))
}

func (r *MemberRepo) Remove(ctx context.Context, ledgerID, userID uuid.UUID) error {
	return affected(r.pool.Exec(ctx, `
		DELETE FROM ledger_members WHERE ledger_id = $1 AND user_id = $2
	`, ledgerID, userID))
}

// TouchMembership moves last_accessed_at forward to at. Older timestamps are
// ignored so out-of-order jobs cannot rewind it.
func (r *MemberRepo) TouchMembership(ctx context.Context, ledgerID, userID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE ledger_members SET last_accessed_at = $3
		WHERE ledger_id = $1 AND user_id = $2 AND last_accessed_at < $3
	`, ledgerID, userID, at)
	return err
}
