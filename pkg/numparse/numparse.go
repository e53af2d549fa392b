// Package numparse implements the number grammar accepted from users: surrounding
// whitespace is ignored, a trailing percent sign is allowed and either a comma or a dot
// may be used as the decimal separator.
package numparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
)

// ErrInvalidNumber is matched by every InvalidNumberError.
var ErrInvalidNumber = errors.New("invalid number")

// InvalidNumberError reports user input that does not follow the number grammar.
type InvalidNumberError struct {
	Input  string
	Reason string
}

func (e *InvalidNumberError) Error() string {
	return fmt.Sprintf("invalid number %q: %s", e.Input, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidNumber) true.
func (e *InvalidNumberError) Is(target error) bool {
	return target == ErrInvalidNumber
}

var numberPattern = regexp.MustCompile(`^[+-]?[0-9]+([.,][0-9]+)?$`)

// Decimal parses a token into a decimal using the user grammar. Empty input is an error.
func Decimal(input string) (decimal.Decimal, error) {
	token := strings.TrimSpace(input)
	token = strings.TrimSpace(strings.TrimSuffix(token, "%"))
	if token == "" {
		return decimal.Zero, &InvalidNumberError{Input: input, Reason: "empty"}
	}
	if !numberPattern.MatchString(token) {
		return decimal.Zero, &InvalidNumberError{Input: input, Reason: "expected digits with an optional comma or dot decimal separator"}
	}
	d, err := decimal.NewFromString(strings.Replace(token, ",", ".", 1))
	if err != nil {
		return decimal.Zero, &InvalidNumberError{Input: input, Reason: err.Error()}
	}
	return d, nil
}

// ParsePercent reads a percentage such as "6,5" or "6.5%" and returns it as a fraction
// (0.065). Empty input means zero. Negative values are rejected.
func ParsePercent(input string) (float64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}
	d, err := Decimal(input)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, &InvalidNumberError{Input: input, Reason: "must not be negative"}
	}
	return d.Div(decimal.NewFromFloat(constants.PercentageMultiplier)).InexactFloat64(), nil
}

// ParseAmount reads a monetary amount such as "1000" or "1000,50". Empty input yields the
// default base amount. Negative values are rejected.
func ParseAmount(input string) (float64, error) {
	if strings.TrimSpace(input) == "" {
		return constants.DefaultBaseAmount, nil
	}
	if strings.HasSuffix(strings.TrimSpace(input), "%") {
		return 0, &InvalidNumberError{Input: input, Reason: "amount cannot be a percentage"}
	}
	d, err := Decimal(input)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, &InvalidNumberError{Input: input, Reason: "must not be negative"}
	}
	return d.InexactFloat64(), nil
}

// parseNumber rewrites a JSON number literal, which may use an exponent, in plain decimal
// notation before handing it to parse.
func parseNumber(literal string, parse func(string) (float64, error)) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(literal))
	if err != nil {
		return 0, &InvalidNumberError{Input: literal, Reason: err.Error()}
	}
	return parse(d.String())
}

// ParseAny normalizes a loosely typed value, as decoded from JSON, into its string form and
// hands it to parse. Numbers are taken as-is; nil is treated as empty input.
func ParseAny(value interface{}, parse func(string) (float64, error)) (float64, error) {
	switch v := value.(type) {
	case nil:
		return parse("")
	case string:
		return parse(v)
	case json.Number:
		return parseNumber(v.String(), parse)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &InvalidNumberError{Input: fmt.Sprint(v), Reason: "not a finite number"}
		}
		return parse(decimal.NewFromFloat(v).String())
	case int:
		return parse(fmt.Sprintf("%d", v))
	case int64:
		return parse(fmt.Sprintf("%d", v))
	case fmt.Stringer:
		// number types of other JSON decoders
		return parseNumber(v.String(), parse)
	default:
		return 0, &InvalidNumberError{Input: fmt.Sprint(v), Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}
