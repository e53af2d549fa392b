package series

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tovarich86/calculadora-cidada/pkg/numparse"
	"github.com/tovarich86/calculadora-cidada/pkg/period"
)

// ErrMalformedPeriod is matched by every MalformedPeriodError.
var ErrMalformedPeriod = errors.New("malformed period code")

// MalformedPeriodError is returned when a numeric period code cannot be decoded into a
// valid month. It aborts the whole load.
type MalformedPeriodError struct {
	Code   string
	Reason string
}

func (e *MalformedPeriodError) Error() string {
	return fmt.Sprintf("malformed period code %q: %s", e.Code, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedPeriod) true.
func (e *MalformedPeriodError) Is(target error) bool {
	return target == ErrMalformedPeriod
}

// NormalizeReport describes what Normalize discarded.
type NormalizeReport struct {
	Received       int
	Kept           int
	SentinelCodes  int // codes that are not numeric, such as header rows
	InvalidValues  int // values that are not numbers, such as "..." or "-"
	DuplicatesSeen int // later rows for an already seen period
}

// Normalize turns raw provider rows into a Series.
//
// Codes containing anything other than digits are treated as sentinel rows and dropped.
// Numeric codes must be YYYYMM with a month in 1-12, otherwise the load fails with a
// MalformedPeriodError. Unparseable values are dropped. When a period repeats, the first
// row in input order is kept. Index levels must be positive; zero or negative values are
// dropped like any other unparseable value.
func Normalize(raw []RawPoint) (Series, error) {
	s, _, err := NormalizeWithReport(raw)
	return s, err
}

// NormalizeWithReport is Normalize plus counters of the discarded rows.
func NormalizeWithReport(raw []RawPoint) (Series, NormalizeReport, error) {
	report := NormalizeReport{Received: len(raw)}
	points := make([]IndexPoint, 0, len(raw))
	seen := make(map[period.Period]struct{}, len(raw))

	for _, r := range raw {
		code := strings.TrimSpace(r.Code)
		if !isDigits(code) {
			report.SentinelCodes++
			continue
		}
		p, err := period.ParseCode(code)
		if err != nil {
			return Series{}, report, &MalformedPeriodError{Code: r.Code, Reason: err.Error()}
		}

		value, err := numparse.Decimal(r.Value)
		if err != nil || !value.IsPositive() {
			report.InvalidValues++
			continue
		}

		if _, dup := seen[p]; dup {
			report.DuplicatesSeen++
			continue
		}
		seen[p] = struct{}{}
		points = append(points, IndexPoint{Period: p, Value: value.InexactFloat64()})
	}

	s := FromPoints(points)
	report.Kept = s.Len()
	return s, report, nil
}

func isDigits(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
