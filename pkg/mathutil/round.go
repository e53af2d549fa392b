// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"

	"github.com/tovarich86/calculadora-cidada/pkg/constants"
)

// Round rounds a value to two decimals, i.e. to represent real currency.
func Round(val float64) float64 {
	return math.Round(val*constants.DecimalPrecision) / constants.DecimalPrecision
}

// RoundTo rounds a value to the given number of decimal places.
func RoundTo(val float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(val*scale) / scale
}

// ToPercent converts a fraction into percentage points (0.0231 -> 2.31).
func ToPercent(fraction float64) float64 {
	return fraction * constants.PercentageMultiplier
}

// WithinTolerance checks if two values are within a specified absolute tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// RelativelyClose checks if two values agree within a relative tolerance.
func RelativelyClose(val1, val2, tolerance float64) bool {
	if val1 == val2 {
		return true
	}
	return math.Abs(val1-val2) <= tolerance*math.Max(math.Abs(val1), math.Abs(val2))
}
