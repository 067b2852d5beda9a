package models

import (
	"github.com/shopspring/decimal"
)

// Balances are stored as int64 minor units (cents) so ledger arithmetic
// never touches floating point. The API accepts and renders decimal
// amounts ("12.34"); conversion happens only at that boundary.
const minorUnitScale = 2

// ParseAmount converts a decimal amount string into minor units.
// Amounts with sub-cent precision are rejected rather than rounded.
func ParseAmount(raw string) (int64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	units := d.Shift(minorUnitScale)
	if !units.IsInteger() {
		return 0, ErrInvalidAmount
	}
	return units.IntPart(), nil
}

// FormatAmount renders minor units back as a decimal amount.
func FormatAmount(units int64) decimal.Decimal {
	return decimal.NewFromInt(units).Shift(-minorUnitScale)
}
