package models

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/linfan/backend/internal/apperr"
)

// Scale is the fixed-point factor between display units and stored integers.
const Scale = 10000

const scaleExp = 4

// Amount is a monetary value (or share quantity) stored as an integer scaled by
// Scale. 100.00 display units is Amount(1_000_000). JSON carries the display
// decimal so clients never see the scaled integer.
type Amount int64

// ErrAmountRange reports a value that does not fit the fixed-point range.
var ErrAmountRange = fmt.Errorf("%w: amount out of range", apperr.ErrValidation)

var (
	maxScaled = decimal.NewFromInt(math.MaxInt64)
	minScaled = decimal.NewFromInt(math.MinInt64)
)

// NewAmount converts a display-unit decimal, rounding half away from zero to
// the fourth fractional digit.
func NewAmount(d decimal.Decimal) (Amount, error) {
	scaled := d.Shift(scaleExp).Round(0)
	if scaled.GreaterThan(maxScaled) || scaled.LessThan(minScaled) {
		return 0, ErrAmountRange
	}
	return Amount(scaled.IntPart()), nil
}

// ParseAmount parses a display-unit decimal string.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return NewAmount(d)
}

// Display returns a in display units (e.g. 1000000 -> 100).
func Display(a int64) decimal.Decimal { return decimal.New(a, -scaleExp) }

// Decimal returns the display-unit value.
func (a Amount) Decimal() decimal.Decimal { return Display(int64(a)) }

func (a Amount) String() string { return a.Decimal().StringFixed(2) }

// MulScaled multiplies two fixed-point values (e.g. shares by price) and
// rounds the product back to fixed point.
func MulScaled(a, b Amount) (Amount, error) {
	return NewAmount(a.Decimal().Mul(b.Decimal()))
}

// DivScaled divides two fixed-point values and rounds the quotient back to
// fixed point. Division by zero yields zero.
func DivScaled(a, b Amount) (Amount, error) {
	if b == 0 {
		return 0, nil
	}
	return NewAmount(a.Decimal().Div(b.Decimal()))
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal().String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	v, err := NewAmount(d)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
