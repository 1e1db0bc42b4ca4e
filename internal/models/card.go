package models

import (
	"time"

	"github.com/google/uuid"
)

// Card is a credit instrument. Its liability is never stored; see Liability.
type Card struct {
	ID          uuid.UUID  `json:"id"`
	LedgerID    uuid.UUID  `json:"ledger_id"`
	Name        string     `json:"name"`
	BillingDay  int        `json:"billing_day"`
	PaymentDay  int        `json:"payment_day"`
	CreditLimit Amount     `json:"credit_limit"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Closed reports whether the card has been soft-deleted.
func (c *Card) Closed() bool { return c.DeletedAt != nil }

// CardView is a card with its derived balances.
type CardView struct {
	Card
	Liability       Amount `json:"liability"`
	AvailableCredit Amount `json:"available_credit"`
}

// NewCardView derives the available credit from the liability.
func NewCardView(c Card, liability Amount) CardView {
	return CardView{Card: c, Liability: liability, AvailableCredit: c.CreditLimit - liability}
}

// LiabilityDelta is how much t moves the liability of card cardID: charges
// (no source account) raise it, payments from an account lower it.
func LiabilityDelta(cardID uuid.UUID, t *Transaction) Amount {
	if t.CreditCardID == nil || *t.CreditCardID != cardID {
		return 0
	}
	if t.SourceAccountID == nil {
		return t.Amount
	}
	return -t.Amount
}

// Liability derives the outstanding balance of card cardID from txs.
func Liability(cardID uuid.UUID, txs []*Transaction) Amount {
	var total Amount
	for _, t := range txs {
		total += LiabilityDelta(cardID, t)
	}
	return total
}
