package models

import "github.com/google/uuid"

// DefaultOwnerLabel groups holdings bought without an explicit owner.
const DefaultOwnerLabel = "Self"

// Stock is a holding of one ticker for one owner label. Shares and AvgCost
// use the same fixed-point scale as Amount.
type Stock struct {
	ID         uuid.UUID `json:"id"`
	LedgerID   uuid.UUID `json:"ledger_id"`
	Ticker     string    `json:"ticker"`
	OwnerLabel string    `json:"owner_label"`
	Shares     Amount    `json:"shares"`
	AvgCost    Amount    `json:"avg_cost"`
}
