// Package server exposes the correction calculator over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/tovarich86/calculadora-cidada/internal/calculator"
	"github.com/tovarich86/calculadora-cidada/internal/config"
	"github.com/tovarich86/calculadora-cidada/internal/metrics"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"github.com/tovarich86/calculadora-cidada/pkg/correction"
	"github.com/tovarich86/calculadora-cidada/pkg/format"
	"github.com/tovarich86/calculadora-cidada/pkg/numparse"
	"github.com/tovarich86/calculadora-cidada/pkg/period"
	"github.com/tovarich86/calculadora-cidada/pkg/series"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Refresher reloads the index series from its provider.
type Refresher interface {
	Refresh(ctx context.Context) (series.Series, error)
}

// Options carries the collaborators of the HTTP handler.
type Options struct {
	Calculator  *calculator.Service
	Refresher   Refresher
	Metrics     *metrics.Metrics
	Defaults    config.Defaults
	MaxBodySize int64
	RateLimit   RateLimitConfig
	Version     string
}

type handler struct {
	logger      *zap.Logger
	calc        *calculator.Service
	refresher   Refresher
	defaults    config.Defaults
	validate    *validator.Validate
	maxBodySize int64
	version     string
}

// NewHandler constructs the HTTP handler that serves the correction API.
func NewHandler(logger *zap.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxBodySize := opts.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = constants.DefaultMaxBodySizeBytes
	}

	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = "dev"
	}

	h := &handler{
		logger:      logger,
		calc:        opts.Calculator,
		refresher:   opts.Refresher,
		defaults:    opts.Defaults,
		validate:    newValidator(),
		maxBodySize: maxBodySize,
		version:     version,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger, opts.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimit.RPS > 0 {
			r.Use(newRateLimiter(opts.RateLimit, logger).handler)
		}
		r.Post("/correction", h.handleCorrection)
		r.Get("/series", h.handleSeries)
		r.Post("/series/refresh", h.handleRefresh)
		r.Get("/version", h.handleVersion)
	})

	return r
}

type correctionRequest struct {
	Start  string      `json:"start" validate:"required,yearmonth"`
	End    string      `json:"end" validate:"required,yearmonth"`
	Amount interface{} `json:"amount"`
	Rate   interface{} `json:"rate"`
	Policy string      `json:"policy" validate:"omitempty,policy"`
	Clamp  bool        `json:"clamp"`
}

type correctionResponse struct {
	Result    correction.Result `json:"result"`
	Formatted formattedResult   `json:"formatted"`
	Warnings  []string          `json:"warnings,omitempty"`
}

type formattedResult struct {
	AccumulatedVariation string `json:"accumulatedVariation"`
	AccumulatedWithRate  string `json:"accumulatedWithRate"`
	CorrectedByIndex     string `json:"correctedByIndex"`
	CorrectedWithRate    string `json:"correctedWithRate"`
	MonthlyRate          string `json:"monthlyRate"`
}

type seriesResponse struct {
	Points []series.IndexPoint `json:"points"`
}

type refreshResponse struct {
	Points int            `json:"points"`
	First  *period.Period `json:"first,omitempty"`
	Last   *period.Period `json:"last,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (h *handler) handleCorrection(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("request body exceeds limit of %d bytes", h.maxBodySize),
				Kind:  calculator.KindInvalidRequest,
			})
			return
		}
		h.respondError(w, &correction.InvalidRequestError{Field: "body", Reason: err.Error()}, "server.handleCorrection")
		return
	}

	var req correctionRequest
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.respondError(w, &correction.InvalidRequestError{Field: "body", Reason: err.Error()}, "server.handleCorrection")
		return
	}

	in, err := h.buildInput(req)
	if err != nil {
		h.respondError(w, err, "server.handleCorrection")
		return
	}

	var warnings []string
	if req.Clamp {
		in, warnings, err = h.calc.Clamp(r.Context(), in)
		if err != nil {
			h.respondError(w, err, "server.handleCorrection")
			return
		}
	}

	result, err := h.calc.Calculate(r.Context(), in)
	if err != nil {
		h.respondError(w, err, "server.handleCorrection")
		return
	}

	h.writeJSON(w, http.StatusOK, correctionResponse{
		Result: result,
		Formatted: formattedResult{
			AccumulatedVariation: format.Percent(result.AccumulatedVariation),
			AccumulatedWithRate:  format.Percent(result.AccumulatedWithRate),
			CorrectedByIndex:     format.Currency(result.CorrectedByIndex),
			CorrectedWithRate:    format.Currency(result.CorrectedWithRate),
			MonthlyRate:          format.Percent(result.MonthlyRate),
		},
		Warnings: warnings,
	})
}

// buildInput validates req and fills omitted fields from the configured defaults.
func (h *handler) buildInput(req correctionRequest) (calculator.Input, error) {
	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return calculator.Input{}, &correction.InvalidRequestError{
				Field:  strings.ToLower(fe.Field()),
				Reason: validationReason(fe),
			}
		}
		return calculator.Input{}, &correction.InvalidRequestError{Field: "body", Reason: err.Error()}
	}

	// Both were validated above.
	start, _ := period.Parse(req.Start)
	end, _ := period.Parse(req.End)

	in := calculator.Input{
		Start:      start,
		End:        end,
		Amount:     h.defaults.Amount,
		AnnualRate: h.defaults.AnnualRate,
		Policy:     h.defaults.Policy,
	}
	if req.Amount != nil {
		amount, err := numparse.ParseAny(req.Amount, numparse.ParseAmount)
		if err != nil {
			return calculator.Input{}, err
		}
		in.Amount = amount
	}
	if req.Rate != nil {
		annual, err := numparse.ParseAny(req.Rate, numparse.ParsePercent)
		if err != nil {
			return calculator.Input{}, err
		}
		in.AnnualRate = annual
	}
	if req.Policy != "" {
		policy, err := correction.ParsePolicy(req.Policy)
		if err != nil {
			return calculator.Input{}, &correction.InvalidRequestError{Field: "policy", Reason: err.Error()}
		}
		in.Policy = policy
	}
	return in, nil
}

func (h *handler) handleSeries(w http.ResponseWriter, r *http.Request) {
	var bounds [2]period.Period
	for i, name := range []string{"start", "end"} {
		value := strings.TrimSpace(r.URL.Query().Get(name))
		if value == "" {
			continue
		}
		p, err := period.Parse(value)
		if err != nil {
			h.respondError(w, &correction.InvalidRequestError{Field: name, Reason: err.Error()}, "server.handleSeries")
			return
		}
		bounds[i] = p
	}

	points, err := h.calc.Series(r.Context(), bounds[0], bounds[1])
	if err != nil {
		h.respondError(w, err, "server.handleSeries")
		return
	}
	h.writeJSON(w, http.StatusOK, seriesResponse{Points: points})
}

func (h *handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		h.writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "refresh is not available", Kind: calculator.KindInternal})
		return
	}

	s, err := h.refresher.Refresh(r.Context())
	if err != nil {
		h.respondError(w, err, "server.handleRefresh")
		return
	}

	resp := refreshResponse{Points: s.Len()}
	if first, ok := s.First(); ok {
		resp.First = &first.Period
	}
	if last, ok := s.Last(); ok {
		resp.Last = &last.Period
	}
	h.logger.Info("index series refreshed",
		zap.String("op", "server.handleRefresh"),
		zap.Int("points", resp.Points),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case calculator.KindRangeOrder, calculator.KindInvalidRequest, calculator.KindInvalidNumber:
		return http.StatusBadRequest
	case calculator.KindEmptyPeriod, calculator.KindMissingAnchor:
		return http.StatusUnprocessableEntity
	case calculator.KindMalformedPeriod:
		return http.StatusBadGateway
	case calculator.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) respondError(w http.ResponseWriter, err error, op string) {
	kind := calculator.Kind(err)
	status := statusFor(kind)

	logFn := h.logger.Info
	if status >= http.StatusInternalServerError {
		logFn = h.logger.Error
	}
	logFn("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("kind", kind),
		zap.Error(err),
	)

	h.writeJSON(w, status, errorResponse{Error: calculator.Message(err), Kind: kind})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("yearmonth", func(fl validator.FieldLevel) bool {
		_, err := period.Parse(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("policy", func(fl validator.FieldLevel) bool {
		_, err := correction.ParsePolicy(fl.Field().String())
		return err == nil
	})
	return v
}

func validationReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "yearmonth":
		return fmt.Sprintf("%q is not a YYYY-MM month", fe.Value())
	case "policy":
		return fmt.Sprintf("%q is not a known policy", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

const unmatchedRoute = "unmatched"

func requestLogger(logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			// Unknown paths share one label.
			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			m.ObserveRequest(route, strconv.Itoa(status))
			logger.Debug("request completed",
				zap.String("op", "server.request"),
				zap.String("requestId", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type rateLimiter struct {
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newRateLimiter(cfg RateLimitConfig, logger *zap.Logger) *rateLimiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		logger:  logger,
	}
}

func (rl *rateLimiter) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("op", "server.rateLimit"),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remoteAddr", r.RemoteAddr),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests","kind":"rate_limited"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
