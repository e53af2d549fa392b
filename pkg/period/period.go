// Package period provides the calendar-month type used across the application.
package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tovarich86/calculadora-cidada/pkg/constants"
)

// DateTimeLayout is the format expected in config files and user input and is also the
// output format.
const DateTimeLayout = constants.DateTimeLayout

// Period is a calendar month. The day is implicitly the first of the month.
type Period struct {
	Year  int
	Month time.Month
}

// New returns the Period for the given year and month, normalizing month overflow.
func New(year int, month time.Month) Period {
	return FromTime(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
}

// FromTime truncates t to its calendar month.
func FromTime(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParseCode decodes a provider period code of the form YYYYMM.
func ParseCode(code string) (Period, error) {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return Period{}, fmt.Errorf("period code %q must have 6 digits", code)
	}
	year, err := strconv.Atoi(code[:4])
	if err != nil {
		return Period{}, fmt.Errorf("period code %q has invalid year: %w", code, err)
	}
	month, err := strconv.Atoi(code[4:])
	if err != nil {
		return Period{}, fmt.Errorf("period code %q has invalid month: %w", code, err)
	}
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("period code %q has month %d outside 1-12", code, month)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// Parse reads a user supplied month. It accepts 2006-01, 200601 and 2006-01-02; the day of
// the last form is dropped.
func Parse(value string) (Period, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Period{}, fmt.Errorf("empty period")
	}
	if t, err := time.Parse(DateTimeLayout, trimmed); err == nil {
		return FromTime(t), nil
	}
	if t, err := time.Parse(time.DateOnly, trimmed); err == nil {
		return FromTime(t), nil
	}
	if p, err := ParseCode(trimmed); err == nil {
		return p, nil
	}
	return Period{}, fmt.Errorf("invalid period %q, expected YYYY-MM", value)
}

// MustParse parses a period and panics on error.
// This is intended for use in tests where the value is known to be valid.
func MustParse(value string) Period {
	p, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return p
}

// Time returns the first instant of the month in UTC.
func (p Period) Time() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether p is the zero Period.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// String formats the period as 2006-01.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Code formats the period as the provider code YYYYMM.
func (p Period) Code() string {
	return fmt.Sprintf("%04d%02d", p.Year, int(p.Month))
}

// index counts months since year zero and drives ordering and arithmetic.
func (p Period) index() int {
	return p.Year*constants.MonthsPerYear + int(p.Month) - 1
}

// Compare returns -1, 0 or +1 depending on whether p is before, equal to or after other.
func (p Period) Compare(other Period) int {
	switch a, b := p.index(), other.index(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Before reports whether p is strictly before other.
func (p Period) Before(other Period) bool { return p.Compare(other) < 0 }

// After reports whether p is strictly after other.
func (p Period) After(other Period) bool { return p.Compare(other) > 0 }

// Equal reports whether both periods are the same month.
func (p Period) Equal(other Period) bool { return p.Compare(other) == 0 }

// AddMonths returns the period offset by the given number of months.
func (p Period) AddMonths(months int) Period {
	idx := p.index() + months
	year := idx / constants.MonthsPerYear
	month := idx % constants.MonthsPerYear
	if month < 0 {
		month += constants.MonthsPerYear
		year--
	}
	return Period{Year: year, Month: time.Month(month + 1)}
}

// Prev returns the month immediately before p.
func (p Period) Prev() Period { return p.AddMonths(-1) }

// Next returns the month immediately after p.
func (p Period) Next() Period { return p.AddMonths(1) }

// MonthsUntil returns the signed number of calendar months from p to other.
func (p Period) MonthsUntil(other Period) int {
	return other.index() - p.index()
}

// Adjacent reports whether one period is exactly one month before the other.
func (p Period) Adjacent(other Period) bool {
	d := p.MonthsUntil(other)
	return d == 1 || d == -1
}

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
