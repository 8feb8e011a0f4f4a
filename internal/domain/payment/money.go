package payment

import (
	"fmt"

	"github.com/vhorak/payflow/internal/domain/errors"
)

// Money represents a monetary amount in the smallest currency unit
// (e.g. cents, haléře).
type Money struct {
	ValueMinor int64  `json:"value_minor"`
	Currency   string `json:"currency"`
}

// String returns a human-readable representation of the amount.
func (m Money) String() string {
	whole := m.ValueMinor / 100
	frac := m.ValueMinor % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, m.Currency)
}

// EnsurePositive checks that the amount can represent a payment instruction.
// A payment amount must be strictly positive and carry a 3-letter currency.
func (m Money) EnsurePositive() error {
	if m.ValueMinor <= 0 {
		return errors.NewDomainError("invalid_amount", fmt.Sprintf("amount must be greater than 0, got %d", m.ValueMinor), errors.ErrInvalidAmount)
	}
	if len(m.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}

// Equals reports value equality of amount and currency.
func (m Money) Equals(other Money) bool {
	return m.ValueMinor == other.ValueMinor && m.Currency == other.Currency
}

// LessThan reports whether m is strictly smaller than other. Comparing
// amounts in different currencies is a programming error and returns false.
func (m Money) LessThan(other Money) bool {
	return m.Currency == other.Currency && m.ValueMinor < other.ValueMinor
}

// GreaterThan reports whether m is strictly larger than other.
func (m Money) GreaterThan(other Money) bool {
	return m.Currency == other.Currency && m.ValueMinor > other.ValueMinor
}
