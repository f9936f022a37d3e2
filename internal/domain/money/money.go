// Package money provides the fixed-point amount type used for every
// monetary quantity in the ledger. Amounts are backed by decimal
// arithmetic; binary floats never enter the money path, so repeated
// additions and subtractions cannot drift.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount indicates a malformed, non-positive or
// negative-producing money value.
var ErrInvalidAmount = errors.New("invalid money amount")

// Amount is an immutable fixed-point monetary value with two fraction
// digits of display precision.
type Amount struct {
	d decimal.Decimal
}

// Zero is the zero amount.
func Zero() Amount {
	return Amount{d: decimal.Zero}
}

// Parse converts a decimal string (e.g. "1000.00") into an Amount.
// Returns ErrInvalidAmount for unparseable input and for values with a
// non-zero sub-cent part; amounts are stored with exactly two fraction
// digits, so finer input cannot round-trip.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.Equal(d.Truncate(2)) {
		return Amount{}, fmt.Errorf("%w: %q has more than two fraction digits", ErrInvalidAmount, s)
	}
	return Amount{d: d}, nil
}

// ParsePositive converts a decimal string into an Amount and requires
// the result to be strictly positive.
func ParsePositive(s string) (Amount, error) {
	a, err := Parse(s)
	if err != nil {
		return Amount{}, err
	}
	if !a.IsPositive() {
		return Amount{}, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidAmount, s)
	}
	return a, nil
}

// FromDecimal wraps an existing decimal value.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d}
}

// Decimal exposes the underlying decimal value for derived math such as
// percentage calculations.
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Sub returns a - b. A negative result is rejected with ErrInvalidAmount;
// the domain never allows a balance below zero, so clamping is left to
// display code that explicitly wants it.
func (a Amount) Sub(b Amount) (Amount, error) {
	r := a.d.Sub(b.d)
	if r.IsNegative() {
		return Amount{}, fmt.Errorf("%w: %s - %s is negative", ErrInvalidAmount, a, b)
	}
	return Amount{d: r}, nil
}

// Cmp compares a against b: -1 if a < b, 0 if equal, +1 if a > b.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// Equal reports whether the two amounts are numerically equal.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.d.LessThan(b.d)
}

// GreaterThan reports a > b.
func (a Amount) GreaterThan(b Amount) bool {
	return a.d.GreaterThan(b.d)
}

// IsPositive reports a > 0.
func (a Amount) IsPositive() bool {
	return a.d.IsPositive()
}

// IsZero reports a == 0.
func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// String renders the amount with exactly two fraction digits.
func (a Amount) String() string {
	return a.d.StringFixed(2)
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes a quoted or bare decimal number, applying the
// same two-fraction-digit limit as Parse.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, data)
	}
	if !d.Equal(d.Truncate(2)) {
		return fmt.Errorf("%w: %s has more than two fraction digits", ErrInvalidAmount, data)
	}
	a.d = d
	return nil
}
