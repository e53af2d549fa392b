// Package provider defines the source of raw index rows consumed by the series cache.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/tovarich86/calculadora-cidada/pkg/series"
)

// ErrUnavailable is matched by every UnavailableError.
var ErrUnavailable = errors.New("index provider unavailable")

// Provider returns the raw monthly rows of the index of interest, already filtered to that
// index. Implementations do not retry.
type Provider interface {
	FetchRawSeries(ctx context.Context) ([]series.RawPoint, error)
	Name() string
}

// UnavailableError reports that the upstream source could not be read.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying transport or decoding error.
func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) true.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Static serves a fixed set of rows. It is used for offline runs and tests.
type Static struct {
	Points []series.RawPoint
	Err    error
}

// NewStatic returns a provider that always yields a copy of points.
func NewStatic(points []series.RawPoint) *Static {
	return &Static{Points: points}
}

// FetchRawSeries implements Provider.
func (s *Static) FetchRawSeries(ctx context.Context) ([]series.RawPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, &UnavailableError{Provider: s.Name(), Err: err}
	}
	if s.Err != nil {
		return nil, &UnavailableError{Provider: s.Name(), Err: s.Err}
	}
	return append([]series.RawPoint(nil), s.Points...), nil
}

// Name implements Provider.
func (s *Static) Name() string { return "static" }
