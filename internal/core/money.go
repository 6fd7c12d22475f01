// Package core provides money parsing and handling utilities.
//
// Amounts are carried as decimal.Decimal rounded to cents. Aggregates are summed
// as integer cents and converted back with FromCents, so that derived values such
// as a balance are exact.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RoundAmount rounds to two decimal places, half away from zero.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ParseAmount converts a user supplied string to a positive amount rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("-1")     -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, invalid("amount", ErrInvalidAmount)
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, invalid("amount", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid("amount", ErrInvalidAmount)
	}
	d = RoundAmount(d)
	if !d.IsPositive() {
		return decimal.Zero, invalid("amount", ErrInvalidAmount)
	}
	return d, nil
}

// FromCents converts an integer number of cents to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Cents returns the amount as an integer number of cents.
func Cents(d decimal.Decimal) int64 {
	return RoundAmount(d).Shift(2).IntPart()
}
