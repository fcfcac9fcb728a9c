// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from loosely
// formatted strings and formatting them back for display.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrencySymbol is prefixed to formatted amounts.
const DefaultCurrencySymbol = "₱"

// maxAmountExponent keeps exponent forms within float64 range.
const maxAmountExponent = 308

// ParseAmount converts a decimal string to a non-negative amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional exponent (1e3, 2.5E-1). Signs on the number, thousands separators
// and anything else are rejected.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("1e3")   -> 1000, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")

	mantissa, exponent, hasExp := strings.Cut(strings.ToLower(s), "e")
	if !isPlainDecimal(mantissa) {
		return decimal.Zero, ErrInvalidAmount
	}
	if hasExp {
		digits := strings.TrimPrefix(strings.TrimPrefix(exponent, "+"), "-")
		if digits == "" || strings.Trim(digits, "0123456789") != "" {
			return decimal.Zero, ErrInvalidAmount
		}
		if n, err := strconv.Atoi(digits); err != nil || n > maxAmountExponent {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil || math.IsInf(d.InexactFloat64(), 0) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// isPlainDecimal reports whether s is digits with at most one dot and at
// least one digit.
func isPlainDecimal(s string) bool {
	if s == "" || s == "." || strings.Count(s, ".") > 1 {
		return false
	}
	return strings.Trim(s, "0123456789.") == ""
}

// CoerceAmount is ParseAmount with every failure mapped to zero. Stored
// entries are read through it so a bad amount never aborts a read.
func CoerceAmount(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AmountFromFloat converts a float amount, mapping NaN, infinities and
// negative values to zero.
func AmountFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// FormatAmount renders v with two decimals behind the currency symbol.
func FormatAmount(symbol string, v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return symbol + decimal.NewFromFloat(v).StringFixed(2)
}
