package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger is the isolation boundary for accounts, cards, categories and
// transactions.
type Ledger struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	PasswordSecret *string   `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasPassword reports whether entering the ledger requires verification.
func (l *Ledger) HasPassword() bool {
	return l.PasswordSecret != nil && *l.PasswordSecret != ""
}

// Membership grants one user one role in one ledger.
type Membership struct {
	LedgerID       uuid.UUID `json:"ledger_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           Role      `json:"role"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// MemberAccess is a membership together with the entry requirement of its
// ledger, as resolved for every ledger-scoped request.
type MemberAccess struct {
	Membership
	HasPassword bool
}

// LedgerSummary is one row of a user's ledger list.
type LedgerSummary struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	HasPassword    bool      `json:"has_password"`
}

// Member is a membership joined with the user's profile.
type Member struct {
	UserID         uuid.UUID `json:"user_id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}
