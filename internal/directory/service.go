// Package directory owns ledgers, their entry passwords and memberships.
package directory

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/platform/db"
)

type LedgerStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, l *models.Ledger) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ledger, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Ledger, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, l *models.Ledger) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.LedgerSummary, error)
	PurgeTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

type MemberStore interface {
	AddTx(ctx context.Context, tx pgx.Tx, m *models.Membership) error
	Get(ctx context.Context, ledgerID, userID uuid.UUID) (*models.Membership, error)
	List(ctx context.Context, ledgerID uuid.UUID) ([]models.Member, error)
	UpdateRole(ctx context.Context, ledgerID, userID uuid.UUID, role models.Role) error
	Remove(ctx context.Context, ledgerID, userID uuid.UUID) error
}

type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type Service struct {
	pool      db.TxBeginner
	ledgers   LedgerStore
	members   MemberStore
	users     UserLookup
	passwords PasswordChecker
	grants    access.GrantStore
	log       *slog.Logger
}

func NewService(pool db.TxBeginner, ledgers LedgerStore, members MemberStore, users UserLookup,
	passwords PasswordChecker, grants access.GrantStore, log *slog.Logger) *Service {
	if passwords == nil {
		passwords = PlainPasswords{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{pool: pool, ledgers: ledgers, members: members, users: users, passwords: passwords, grants: grants, log: log}
}

// CreateLedger creates a ledger owned by userID. An empty password leaves the
// ledger open.
func (s *Service) CreateLedger(ctx context.Context, userID uuid.UUID, name, password string) (*models.Ledger, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name", "is required")
	}
	l := &models.Ledger{ID: uuid.New(), Name: name}
	if err := s.setPassword(l, password); err != nil {
		return nil, err
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.ledgers.CreateTx(ctx, tx, l); err != nil {
			return err
		}
		return s.members.AddTx(ctx, tx, &models.Membership{LedgerID: l.ID, UserID: userID, Role: models.RoleOwner})
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) ListLedgers(ctx context.Context, userID uuid.UUID) ([]models.LedgerSummary, error) {
	return s.ledgers.ListForUser(ctx, userID)
}

// VerifyEntry checks the entry password of a ledger and records a grant for
// the caller. Non-members get the same answer as a wrong password.
func (s *Service) VerifyEntry(ctx context.Context, userID, ledgerID uuid.UUID, password string) error {
	if _, err := s.role(ctx, ledgerID, userID); err != nil {
		return err
	}
	l, err := s.ledgers.GetByID(ctx, ledgerID)
	if err != nil {
		return forbidIfMissing(err)
	}
	if !l.HasPassword() {
		return nil
	}
	if !s.passwords.Match(*l.PasswordSecret, password) {
		return apperr.ErrForbidden
	}
	if s.grants == nil {
		return nil
	}
	return s.grants.Grant(ctx, userID, ledgerID)
}

// DeleteLedger removes the ledger and everything it owns in one unit of work.
// Only the owner may delete, and a protected ledger needs its password.
func (s *Service) DeleteLedger(ctx context.Context, userID, ledgerID uuid.UUID, password string) error {
	if err := s.requireOwner(ctx, ledgerID, userID); err != nil {
		return err
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		l, err := s.ledgers.GetForUpdate(ctx, tx, ledgerID)
		if err != nil {
			return forbidIfMissing(err)
		}
		if l.HasPassword() && !s.passwords.Match(*l.PasswordSecret, password) {
			return apperr.ErrForbidden
		}
		return s.ledgers.PurgeTx(ctx, tx, ledgerID)
	})
	if err != nil {
		return err
	}
	s.revokeGrants(ctx, ledgerID)
	return nil
}

// UpdateLedgerInput changes the name and/or password. A non-nil empty
// password clears protection.
type UpdateLedgerInput struct {
	Name     *string
	Password *string
}

func (s *Service) UpdateLedger(ctx context.Context, userID, ledgerID uuid.UUID, in UpdateLedgerInput) (*models.Ledger, error) {
	if err := s.requireOwner(ctx, ledgerID, userID); err != nil {
		return nil, err
	}
	var l *models.Ledger
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		l, err = s.ledgers.GetForUpdate(ctx, tx, ledgerID)
		if err != nil {
			return forbidIfMissing(err)
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return apperr.Validation("name", "is required")
			}
			l.Name = name
		}
		if in.Password != nil {
			if err := s.setPassword(l, *in.Password); err != nil {
				return err
			}
		}
		return s.ledgers.UpdateTx(ctx, tx, l)
	})
	if err != nil {
		return nil, err
	}
	if in.Password != nil {
		s.revokeGrants(ctx, ledgerID)
	}
	return l, nil
}

func (s *Service) ListMembers(ctx context.Context, userID, ledgerID uuid.UUID) ([]models.Member, error) {
	if _, err := s.role(ctx, ledgerID, userID); err != nil {
		return nil, err
	}
	return s.members.List(ctx, ledgerID)
}

// AddMember invites the registered user with email. Ownership cannot be granted.
func (s *Service) AddMember(ctx context.Context, userID, ledgerID uuid.UUID, email string, role models.Role) (*models.Membership, error) {
	if err := s.requireOwner(ctx, ledgerID, userID); err != nil {
		return nil, err
	}
	if err := grantable(role); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("email", "no registered user has this email")
	}
	if err != nil {
		return nil, err
	}
	m := &models.Membership{LedgerID: ledgerID, UserID: u.ID, Role: role}
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return s.members.AddTx(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) UpdateMemberRole(ctx context.Context, userID, ledgerID, memberID uuid.UUID, role models.Role) error {
	if err := s.requireOwner(ctx, ledgerID, userID); err != nil {
		return err
	}
	if memberID == userID {
		return apperr.Conflict("owners cannot change their own role")
	}
	if err := grantable(role); err != nil {
		return err
	}
	return s.members.UpdateRole(ctx, ledgerID, memberID, role)
}

func (s *Service) RemoveMember(ctx context.Context, userID, ledgerID, memberID uuid.UUID) error {
	if err := s.requireOwner(ctx, ledgerID, userID); err != nil {
		return err
	}
	if memberID == userID {
		return apperr.Conflict("owners cannot remove themselves")
	}
	return s.members.Remove(ctx, ledgerID, memberID)
}

func (s *Service) setPassword(l *models.Ledger, password string) error {
	if password == "" {
		l.PasswordSecret = nil
		return nil
	}
	secret, err := s.passwords.Seal(password)
	if err != nil {
		return err
	}
	l.PasswordSecret = &secret
	return nil
}

func (s *Service) role(ctx context.Context, ledgerID, userID uuid.UUID) (models.Role, error) {
	m, err := s.members.Get(ctx, ledgerID, userID)
	if err != nil {
		return "", forbidIfMissing(err)
	}
	return m.Role, nil
}

func (s *Service) requireOwner(ctx context.Context, ledgerID, userID uuid.UUID) error {
	role, err := s.role(ctx, ledgerID, userID)
	if err != nil {
		return err
	}
	if role != models.RoleOwner {
		return apperr.ErrForbidden
	}
	return nil
}

// revokeGrants is best effort: grants expire on their own.
func (s *Service) revokeGrants(ctx context.Context, ledgerID uuid.UUID) {
	if s.grants == nil {
		return
	}
	if err := s.grants.RevokeLedger(ctx, ledgerID); err != nil {
		s.log.Warn("revoke entry grants", "ledger_id", ledgerID, "error", err)
	}
}

func grantable(role models.Role) error {
	if role != models.RoleEditor && role != models.RoleViewer {
		return apperr.Validation("role", "must be editor or viewer")
	}
	return nil
}

func forbidIfMissing(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.ErrForbidden
	}
	return err
}
