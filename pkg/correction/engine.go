// Package correction computes monetary correction over a monthly index series, optionally
// compounding a prefixed annual rate on top of the index variation.
package correction

import (
	"math"

	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"github.com/tovarich86/calculadora-cidada/pkg/period"
	"github.com/tovarich86/calculadora-cidada/pkg/series"
)

// Request holds the inputs of one calculation. AnnualRate is a fraction (0.065 for 6.5%).
type Request struct {
	Start      period.Period
	End        period.Period
	BaseAmount float64
	AnnualRate float64
	Policy     Policy
}

// MonthlyVariation is one row of the per-month breakdown.
type MonthlyVariation struct {
	Period    period.Period `json:"period"`
	Index     float64       `json:"index"`
	Variation float64       `json:"variation"`
}

// Result is the full-precision outcome of Compute. Rounding is left to presentation.
type Result struct {
	Start                period.Period      `json:"start"`
	End                  period.Period      `json:"end"`
	Policy               Policy             `json:"policy"`
	Anchor               *series.IndexPoint `json:"anchor,omitempty"`
	BaseAmount           float64            `json:"baseAmount"`
	AnnualRate           float64            `json:"annualRate"`
	MonthlyRate          float64            `json:"monthlyRate"`
	Months               int                `json:"months"`
	AccumulatedVariation float64            `json:"accumulatedVariation"`
	AccumulatedWithRate  float64            `json:"accumulatedWithRate"`
	CorrectedByIndex     float64            `json:"correctedByIndex"`
	CorrectedWithRate    float64            `json:"correctedWithRate"`
	Breakdown            []MonthlyVariation `json:"breakdown"`
}

// Compute corrects req.BaseAmount by the index variation over [req.Start, req.End] and
// then by req.AnnualRate compounded monthly. It is a pure function of its arguments.
func Compute(s series.Series, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	if req.Start.After(req.End) {
		return Result{}, &RangeOrderError{Start: req.Start, End: req.End}
	}

	window := s.Window(req.Start, req.End)
	if len(window) == 0 {
		return Result{}, &EmptyPeriodError{Start: req.Start, End: req.End}
	}

	result := Result{
		Start:      req.Start,
		End:        req.End,
		Policy:     req.Policy,
		BaseAmount: req.BaseAmount,
		AnnualRate: req.AnnualRate,
		Breakdown:  make([]MonthlyVariation, len(window)),
	}

	first, anchor, err := firstVariation(s, req, window[0])
	if err != nil {
		return Result{}, err
	}
	result.Anchor = anchor

	factor := 1.0
	for i, point := range window {
		variation := first
		if i > 0 {
			variation = point.Value/window[i-1].Value - 1
		}
		result.Breakdown[i] = MonthlyVariation{Period: point.Period, Index: point.Value, Variation: variation}
		factor *= 1 + variation
	}

	result.AccumulatedVariation = factor - 1
	result.CorrectedByIndex = req.BaseAmount * factor

	result.Months = req.Start.MonthsUntil(req.End) + 1
	rateFactor := 1.0
	if req.AnnualRate > 0 {
		result.MonthlyRate = MonthlyRate(req.AnnualRate)
		rateFactor = math.Pow(1+result.MonthlyRate, float64(result.Months))
	}
	result.CorrectedWithRate = result.CorrectedByIndex * rateFactor
	result.AccumulatedWithRate = factor*rateFactor - 1

	return result, nil
}

func firstVariation(s series.Series, req Request, first series.IndexPoint) (float64, *series.IndexPoint, error) {
	switch req.Policy {
	case PolicySelfReferential:
		return first.Value / constants.PercentageMultiplier, nil, nil
	default:
		anchorPeriod := req.Start.Prev()
		anchor, ok := s.Lookup(anchorPeriod)
		if !ok {
			return 0, nil, &MissingAnchorError{Start: req.Start, Anchor: anchorPeriod}
		}
		return first.Value/anchor.Value - 1, &anchor, nil
	}
}

func (req Request) validate() error {
	if !req.Policy.Valid() {
		return &InvalidRequestError{Field: "policy", Reason: req.Policy.String() + " is not a known policy"}
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return &InvalidRequestError{Field: "period", Reason: "start and end are required"}
	}
	if math.IsNaN(req.BaseAmount) || math.IsInf(req.BaseAmount, 0) || req.BaseAmount < 0 {
		return &InvalidRequestError{Field: "base amount", Reason: "must be a finite number >= 0"}
	}
	if math.IsNaN(req.AnnualRate) || math.IsInf(req.AnnualRate, 0) || req.AnnualRate < 0 {
		return &InvalidRequestError{Field: "annual rate", Reason: "must be a finite number >= 0"}
	}
	return nil
}

// MonthlyRate converts an annual rate into the equivalent monthly compounding rate.
func MonthlyRate(annual float64) float64 {
	return math.Pow(1+annual, 1.0/constants.MonthsPerYear) - 1
}

// ApplyFixedRate compounds value by the monthly equivalent of annual over months.
func ApplyFixedRate(value, annual float64, months int) float64 {
	return value * math.Pow(1+MonthlyRate(annual), float64(months))
}

// ClosedForm returns the telescoped accumulated variation value[last]/value[anchor] - 1
// for [start, end], where last is the latest point in the window.
func ClosedForm(s series.Series, start, end period.Period) (float64, error) {
	if start.After(end) {
		return 0, &RangeOrderError{Start: start, End: end}
	}
	window := s.Window(start, end)
	if len(window) == 0 {
		return 0, &EmptyPeriodError{Start: start, End: end}
	}
	anchor, ok := s.Lookup(start.Prev())
	if !ok {
		return 0, &MissingAnchorError{Start: start, Anchor: start.Prev()}
	}
	return window[len(window)-1].Value/anchor.Value - 1, nil
}
