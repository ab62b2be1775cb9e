// Package types provides common value types shared by the inventory core.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Extend returns unit value multiplied by an integer quantity.
func Extend(unit Money, quantity int64) Money {
	return unit.Mul(decimal.NewFromInt(quantity))
}

// Percentage returns part/total*100 rounded to two places, or zero when total is zero.
func Percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	pct, _ := decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(total)).
		Round(2).
		Float64()
	return pct
}
