// Package calculator joins the series cache and the correction engine into the operation
// used by the CLI and the HTTP service.
package calculator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tovarich86/calculadora-cidada/internal/metrics"
	"github.com/tovarich86/calculadora-cidada/internal/provider"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"github.com/tovarich86/calculadora-cidada/pkg/correction"
	"github.com/tovarich86/calculadora-cidada/pkg/mathutil"
	"github.com/tovarich86/calculadora-cidada/pkg/numparse"
	"github.com/tovarich86/calculadora-cidada/pkg/period"
	"github.com/tovarich86/calculadora-cidada/pkg/series"
	"go.uber.org/zap"
)

// Error kinds reported to users and used as metric labels.
const (
	KindOK                  = "ok"
	KindRangeOrder          = "range_order"
	KindEmptyPeriod         = "empty_period"
	KindMissingAnchor       = "missing_anchor"
	KindInvalidRequest      = "invalid_request"
	KindInvalidNumber       = "invalid_number"
	KindMalformedPeriod     = "malformed_period"
	KindProviderUnavailable = "provider_unavailable"
	KindInternal            = "internal"
)

// Source supplies the normalized index series.
type Source interface {
	Get(ctx context.Context) (series.Series, error)
}

// Input is a calculation request with amounts already parsed.
type Input struct {
	Start      period.Period
	End        period.Period
	Amount     float64
	AnnualRate float64 // fraction, 0.065 for 6.5%
	Policy     correction.Policy
}

// Service computes corrections against the current series snapshot.
type Service struct {
	source  Source
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Service. A nil logger discards logs and a nil metrics records nothing.
func New(logger *zap.Logger, source Source, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, logger: logger, metrics: m}
}

// Calculate loads the series and corrects in.Amount over [in.Start, in.End].
func (s *Service) Calculate(ctx context.Context, in Input) (correction.Result, error) {
	idx, err := s.source.Get(ctx)
	if err != nil {
		s.metrics.ObserveCalculation(Kind(err))
		return correction.Result{}, err
	}

	result, err := correction.Compute(idx, correction.Request{
		Start:      in.Start,
		End:        in.End,
		BaseAmount: in.Amount,
		AnnualRate: in.AnnualRate,
		Policy:     in.Policy,
	})
	if err != nil {
		kind := Kind(err)
		s.metrics.ObserveCalculation(kind)
		s.logger.Debug("calculation rejected",
			zap.String("op", "calculator.Calculate"),
			zap.String("kind", kind),
			zap.Stringer("start", in.Start),
			zap.Stringer("end", in.End),
			zap.Error(err),
		)
		return correction.Result{}, err
	}

	s.metrics.ObserveCalculation(KindOK)
	fields := []zap.Field{
		zap.String("op", "calculator.Calculate"),
		zap.Stringer("start", in.Start),
		zap.Stringer("end", in.End),
		zap.Stringer("policy", in.Policy),
		zap.Int("points", len(result.Breakdown)),
		zap.Float64("accumulated", result.AccumulatedVariation),
	}
	s.logger.Debug("calculation completed", fields...)

	// Anchored products telescope to last/anchor when the window has no gaps.
	if in.Policy == correction.PolicyAnchored && len(result.Breakdown) == result.Months {
		closed, err := correction.ClosedForm(idx, in.Start, in.End)
		if err == nil && !mathutil.RelativelyClose(1+closed, 1+result.AccumulatedVariation, constants.RelativeTolerance) {
			s.logger.Warn("accumulated variation disagrees with the closed form",
				zap.String("op", "calculator.Calculate"),
				zap.Float64("product", result.AccumulatedVariation),
				zap.Float64("closedForm", closed),
			)
		}
	}
	return result, nil
}

// Clamp bounds the range of in to the coverage of the current snapshot. See ClampRange.
func (s *Service) Clamp(ctx context.Context, in Input) (Input, []string, error) {
	idx, err := s.source.Get(ctx)
	if err != nil {
		return in, nil, err
	}
	start, end, warnings := ClampRange(idx, in.Start, in.End, in.Policy)
	in.Start, in.End = start, end
	for _, warning := range warnings {
		s.logger.Debug("range clamped",
			zap.String("op", "calculator.Clamp"),
			zap.String("warning", warning),
		)
	}
	return in, warnings, nil
}

// Series returns the points of the current snapshot within [start, end]. Zero bounds are
// open.
func (s *Service) Series(ctx context.Context, start, end period.Period) ([]series.IndexPoint, error) {
	idx, err := s.source.Get(ctx)
	if err != nil {
		return nil, err
	}
	if idx.Empty() {
		return []series.IndexPoint{}, nil
	}
	if start.IsZero() {
		first, _ := idx.First()
		start = first.Period
	}
	if end.IsZero() {
		last, _ := idx.Last()
		end = last.Period
	}
	if start.After(end) {
		return nil, &correction.RangeOrderError{Start: start, End: end}
	}
	points := idx.Window(start, end)
	if points == nil {
		points = []series.IndexPoint{}
	}
	return points, nil
}

// ClampRange bounds [start, end] to the months the series can serve under policy and
// returns a warning for every adjustment. Under PolicyAnchored the earliest start is the
// month after the first point, since the first point can only be an anchor. The range is
// returned unchanged when the series is empty or clamping would invert it.
func ClampRange(s series.Series, start, end period.Period, policy correction.Policy) (period.Period, period.Period, []string) {
	first, ok := s.First()
	if !ok {
		return start, end, nil
	}
	last, _ := s.Last()

	earliest := first.Period
	if policy == correction.PolicyAnchored && s.Len() > 1 {
		earliest = first.Period.Next()
	}

	clampedStart, clampedEnd := start, end
	if clampedStart.Before(earliest) {
		clampedStart = earliest
	}
	if clampedEnd.After(last.Period) {
		clampedEnd = last.Period
	}
	if clampedStart.After(clampedEnd) {
		return start, end, nil
	}

	var warnings []string
	if !clampedStart.Equal(start) {
		warnings = append(warnings, fmt.Sprintf("start %s moved to %s, the first month with data", start, clampedStart))
	}
	if !clampedEnd.Equal(end) {
		warnings = append(warnings, fmt.Sprintf("end %s moved to %s, the last published month", end, clampedEnd))
	}
	return clampedStart, clampedEnd, warnings
}

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, correction.ErrRangeOrder):
		return KindRangeOrder
	case errors.Is(err, correction.ErrEmptyPeriod):
		return KindEmptyPeriod
	case errors.Is(err, correction.ErrMissingAnchor):
		return KindMissingAnchor
	case errors.Is(err, correction.ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, numparse.ErrInvalidNumber):
		return KindInvalidNumber
	case errors.Is(err, series.ErrMalformedPeriod):
		return KindMalformedPeriod
	case errors.Is(err, provider.ErrUnavailable):
		return KindProviderUnavailable
	default:
		return KindInternal
	}
}

// Message returns a sentence suitable for end users describing err.
func Message(err error) string {
	switch Kind(err) {
	case KindOK:
		return ""
	case KindRangeOrder:
		return "A data inicial deve ser anterior ou igual à data final."
	case KindEmptyPeriod:
		return "Não há dados do IPCA para o período selecionado."
	case KindMissingAnchor:
		return "Não há índice do mês anterior ao início do período; escolha um início posterior."
	case KindInvalidRequest:
		return "Parâmetros inválidos: " + err.Error()
	case KindInvalidNumber:
		return "Número inválido: use vírgula ou ponto como separador decimal."
	case KindMalformedPeriod:
		return "A série recebida contém um período em formato inválido."
	case KindProviderUnavailable:
		return "Não foi possível obter a série do IPCA no IBGE. Tente novamente mais tarde."
	default:
		return "Erro inesperado: " + err.Error()
	}
}
