// Package mathutil provides common decimal helpers for money arithmetic.
package mathutil

import (
	"github.com/iwvelando/loan-engine/pkg/constants"
	"github.com/shopspring/decimal"
)

var (
	// Hundred is 100 as a decimal, used for percentage conversions.
	Hundred = decimal.NewFromInt(constants.PercentageMultiplier)

	// HalfCent is the remainder below which a balance counts as retired.
	HalfCent = decimal.RequireFromString(constants.SettlementThreshold)
)

// Round rounds a value to two decimals, i.e. to represent real currency.
func Round(val decimal.Decimal) decimal.Decimal {
	return val.Round(constants.CurrencyPlaces)
}

// FloorCents truncates a value toward negative infinity at cent precision.
func FloorCents(val decimal.Decimal) decimal.Decimal {
	return val.RoundFloor(constants.CurrencyPlaces)
}

// Min returns the minimum of two values
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the maximum of two values
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// CalculatePercentage calculates what percentage value is of total
func CalculatePercentage(value, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return value.Div(total).Mul(Hundred)
}

// PowInt raises base to a non-negative integer power by repeated squaring,
// rounding every intermediate product to places decimals so the digit count
// stays bounded for long terms.
func PowInt(base decimal.Decimal, exp int, places int32) decimal.Decimal {
	result := decimal.NewFromInt(1)
	if exp <= 0 {
		return result
	}
	b := base
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(b).Round(places)
		}
		exp >>= 1
		if exp > 0 {
			b = b.Mul(b).Round(places)
		}
	}
	return result
}
