package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountScale is the fixed-point scale of every balance and transfer amount.
const AmountScale = 4

// ParseAmount parses a decimal string, rejecting values that carry more
// precision than the ledger stores. Amounts never pass through floats.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Exponent() < -AmountScale {
		return decimal.Zero, fmt.Errorf("%w: %q exceeds scale %d", ErrInvalidAmount, s, AmountScale)
	}
	return QuantizeAmount(d), nil
}

// QuantizeAmount normalizes a value to the ledger scale.
func QuantizeAmount(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(AmountScale)
}

// FormatAmount renders a value with the full ledger scale, e.g. "95.0000".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}
