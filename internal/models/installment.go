package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxInstallmentMonths bounds a single plan.
const MaxInstallmentMonths = 120

// Installment is a multi-month repayment plan attached to one card expense.
type Installment struct {
	ID              uuid.UUID `json:"id"`
	CardID          uuid.UUID `json:"card_id"`
	Description     string    `json:"description"`
	TotalAmount     Amount    `json:"total_amount"`
	TotalMonths     int       `json:"total_months"`
	RemainingMonths int       `json:"remaining_months"`
	StartDate       time.Time `json:"start_date"`
}

// MonthsElapsed counts calendar months from start to asOf, never negative.
func MonthsElapsed(start, asOf time.Time) int {
	n := (asOf.Year()-start.Year())*12 + int(asOf.Month()) - int(start.Month())
	if n < 0 {
		return 0
	}
	return n
}

// RemainingAsOf returns the number of unbilled months at asOf.
func (i *Installment) RemainingAsOf(asOf time.Time) int {
	r := i.TotalMonths - MonthsElapsed(i.StartDate, asOf)
	if r < 0 {
		return 0
	}
	if r > i.TotalMonths {
		return i.TotalMonths
	}
	return r
}

// MonthlyAmount is the charge billed in month n (0-based). The remainder of
// the integer division lands on the first month so the months sum to the total.
func (i *Installment) MonthlyAmount(n int) Amount {
	if i.TotalMonths <= 0 || n < 0 || n >= i.TotalMonths {
		return 0
	}
	base := i.TotalAmount / Amount(i.TotalMonths)
	if n == 0 {
		return base + i.TotalAmount%Amount(i.TotalMonths)
	}
	return base
}
