// Package money holds the decimal helpers used for NF-e amounts.
package money

import (
	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

// Tolerance is the accepted difference between quantity × unit price and a line total
var Tolerance = decimal.New(1, -2)

// FromString parses decimal from string
func FromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustFromString parses decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Amount renders a monetary value with two decimal places
func Amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Quantity renders quantities and unit prices with four decimal places
func Quantity(d decimal.Decimal) string {
	return d.StringFixed(4)
}

// Rate renders tax rates with four decimal places
func Rate(d decimal.Decimal) string {
	return d.StringFixed(4)
}

// Mul multiplies two decimals, rounds to 2 places
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Round(2)
}

// Percent computes amount × rate / 100 rounded to 2 places
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// WithinTolerance reports whether |a - b| ≤ Tolerance
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// OrZero dereferences an optional amount
func OrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return Zero
	}
	return *d
}
