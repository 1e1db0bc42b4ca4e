package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountKind classifies a cash-like balance holder.
type AccountKind string

const (
	AccountCash    AccountKind = "cash"
	AccountBank    AccountKind = "bank"
	AccountDigital AccountKind = "digital"
)

// Valid reports whether k is a known account kind.
func (k AccountKind) Valid() bool {
	switch k {
	case AccountCash, AccountBank, AccountDigital:
		return true
	}
	return false
}

// DefaultCurrency is used when an account is created without one.
const DefaultCurrency = "TWD"

type Account struct {
	ID        uuid.UUID   `json:"id"`
	LedgerID  uuid.UUID   `json:"ledger_id"`
	Name      string      `json:"name"`
	Kind      AccountKind `json:"kind"`
	Currency  string      `json:"currency"`
	Balance   Amount      `json:"balance"`
	Hidden    bool        `json:"hidden"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
