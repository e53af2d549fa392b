// Package format renders numbers the way Brazilian users read them: dot as the thousands
// separator and comma as the decimal separator.
package format

import (
	"fmt"
	"math"
	"strings"

	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"github.com/tovarich86/calculadora-cidada/pkg/mathutil"
)

// Currency returns a real-denominated string with separators (e.g., "-R$ 1.234,56").
func Currency(amount float64) string {
	formatted := Number(math.Abs(amount), constants.CurrencyPlaces)
	if mathutil.Round(amount) < 0 {
		return "-R$ " + formatted
	}
	return "R$ " + formatted
}

// NumericCurrency returns a currency string without a currency symbol but with separators (e.g., "-1.234,56").
func NumericCurrency(amount float64) string {
	return Number(amount, constants.CurrencyPlaces)
}

// Percent renders a fraction as percentage points with four decimals (0.0231 -> "2,3100%").
func Percent(fraction float64) string {
	return Number(mathutil.ToPercent(fraction), constants.PercentPlaces) + "%"
}

// Number renders value with the given decimal places and pt-BR separators.
func Number(value float64, places int) string {
	formatted := fmt.Sprintf("%.*f", places, math.Abs(value))
	parts := strings.SplitN(formatted, ".", 2)
	intPart := parts[0]
	decPart := ""
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte('.')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}

	sign := ""
	if value < 0 && strings.Trim(formatted, "0.") != "" {
		sign = "-"
	}
	if decPart == "" {
		return sign + intPart
	}
	return sign + intPart + "," + decPart
}
