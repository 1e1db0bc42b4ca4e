package models

import "github.com/google/uuid"

// CategoryKind says which side of the ledger a category labels.
type CategoryKind string

const (
	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"
)

func (k CategoryKind) Valid() bool {
	return k == CategoryIncome || k == CategoryExpense
}

type Category struct {
	ID       uuid.UUID    `json:"id"`
	LedgerID uuid.UUID    `json:"ledger_id"`
	Name     string       `json:"name"`
	Kind     CategoryKind `json:"kind"`
	Icon     *string      `json:"icon,omitempty"`
}

// DefaultCategories is the seed set offered to a fresh ledger.
var DefaultCategories = []struct {
	Name string
	Kind CategoryKind
	Icon string
}{
	{"Food", CategoryExpense, "utensils"},
	{"Transport", CategoryExpense, "bus"},
	{"Housing", CategoryExpense, "home"},
	{"Entertainment", CategoryExpense, "gamepad-2"},
	{"Shopping", CategoryExpense, "shopping-bag"},
	{"Health", CategoryExpense, "heart-pulse"},
	{"Education", CategoryExpense, "graduation-cap"},
	{"Salary", CategoryIncome, "briefcase"},
	{"Bonus", CategoryIncome, "gift"},
	{"Investment", CategoryIncome, "trending-up"},
	{"Other", CategoryIncome, "more-horizontal"},
}
