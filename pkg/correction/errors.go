package correction

import (
	"errors"
	"fmt"

	"github.com/tovarich86/calculadora-cidada/pkg/period"
)

// Sentinel targets for errors.Is. Every failure of Compute matches exactly one of them.
var (
	ErrRangeOrder     = errors.New("start period is after end period")
	ErrEmptyPeriod    = errors.New("no index data in period")
	ErrMissingAnchor  = errors.New("anchor month missing from series")
	ErrInvalidRequest = errors.New("invalid correction request")
)

// RangeOrderError is returned when the start period is after the end period.
type RangeOrderError struct {
	Start period.Period
	End   period.Period
}

func (e *RangeOrderError) Error() string {
	return fmt.Sprintf("start period %s is after end period %s", e.Start, e.End)
}

// Is makes errors.Is(err, ErrRangeOrder) true.
func (e *RangeOrderError) Is(target error) bool { return target == ErrRangeOrder }

// EmptyPeriodError is returned when no index point falls inside [Start, End].
type EmptyPeriodError struct {
	Start period.Period
	End   period.Period
}

func (e *EmptyPeriodError) Error() string {
	return fmt.Sprintf("no index data between %s and %s", e.Start, e.End)
}

// Is makes errors.Is(err, ErrEmptyPeriod) true.
func (e *EmptyPeriodError) Is(target error) bool { return target == ErrEmptyPeriod }

// MissingAnchorError is returned under PolicyAnchored when the month before Start has no
// index value.
type MissingAnchorError struct {
	Start  period.Period
	Anchor period.Period
}

func (e *MissingAnchorError) Error() string {
	return fmt.Sprintf("index for %s is required to compute the variation of %s but is missing", e.Anchor, e.Start)
}

// Is makes errors.Is(err, ErrMissingAnchor) true.
func (e *MissingAnchorError) Is(target error) bool { return target == ErrMissingAnchor }

// InvalidRequestError reports a request field outside its domain.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidRequest) true.
func (e *InvalidRequestError) Is(target error) bool { return target == ErrInvalidRequest }
