package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tovarich86/calculadora-cidada/internal/cache"
	"github.com/tovarich86/calculadora-cidada/internal/calculator"
	"github.com/tovarich86/calculadora-cidada/internal/config"
	"github.com/tovarich86/calculadora-cidada/internal/metrics"
	"github.com/tovarich86/calculadora-cidada/internal/provider"
	"github.com/tovarich86/calculadora-cidada/internal/provider/sidra"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"github.com/tovarich86/calculadora-cidada/pkg/correction"
	"github.com/tovarich86/calculadora-cidada/pkg/series"
	"github.com/tovarich86/calculadora-cidada/pkg/testutil"
	"go.uber.org/zap"
)

var testRows = testutil.ReferenceRows()

func newTestHandler(t *testing.T, p provider.Provider, opts Options) http.Handler {
	t.Helper()
	c := cache.New(zap.NewNop(), p)
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	opts.Calculator = calculator.New(zap.NewNop(), c, opts.Metrics)
	opts.Refresher = c
	if opts.Defaults == (config.Defaults{}) {
		opts.Defaults = config.Defaults{Amount: constants.DefaultBaseAmount, Policy: correction.PolicyAnchored}
	}
	return NewHandler(zap.NewNop(), opts)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandleCorrectionSuccess(t *testing.T) {
	h := newTestHandler(t, provider.NewStatic(testRows), Options{})

	rr := do(t, h, http.MethodPost, "/api/correction", `{"start":"2023-01","end":"2023-03","amount":"1000"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp correctionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.InDelta(t, 0.0231, resp.Result.AccumulatedVariation, 1e-12)
	assert.InDelta(t, 1023.10, resp.Result.CorrectedByIndex, 1e-9)
	assert.Equal(t, correction.PolicyAnchored, resp.Result.Policy)
	assert.Equal(t, "R$ 1.023,10", resp.Formatted.CorrectedByIndex)
	assert.Equal(t, "2,3100%", resp.Formatted.AccumulatedVariation)
	assert.Len(t, resp.Result.Breakdown, 3)
}

func TestHandleCorrectionRateFormats(t *testing.T) {
	h := newTestHandler(t, provider.NewStatic(testRows), Options{})

	bodies := []string{
		`{"start":"2023-01","end":"2023-03","amount":1000,"rate":"6,5"}`,
		`{"start":"2023-01","end":"2023-03","amount":"1000,00","rate":"6.5%"}`,
		`{"start":"2023-01","end":"2023-03","rate":6.5}`,
		`{"start":"2023-01","end":"2023-03","amount":1e3,"rate":6.5E0}`,
	}
	for _, body := range bodies {
		rr := do(t, h, http.MethodPost, "/api/correction", body)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp correctionResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.InDelta(t, 0.065, resp.Result.AnnualRate, 1e-12, body)
		assert.InDelta(t, 1039.33, resp.Result.CorrectedWithRate, 0.01, body)
		assert.Equal(t, "R$ 1.039,33", resp.Formatted.CorrectedWithRate, body)
	}
}

func TestHandleCorrectionDefaultsFromConfig(t *testing.T) {
	h := newTestHandler(t, provider.NewStatic(testRows), Options{
		Defaults: config.Defaults{Amount: 500, AnnualRate: 0.065, Policy: correction.PolicyAnchored},
	})

	rr := do(t, h, http.MethodPost, "/api/correction", `{"start":"2023-01","end":"2023-03"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp correctionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 500.0, resp.Result.BaseAmount)
	assert.InDelta(t, 0.065, resp.Result.AnnualRate, 1e-12)
}

func TestHandleCorrectionClamp(t *testing.T) {
	h := newTestHandler(t, provider.NewStatic(testRows), Options{})

	rr := do(t, h, http.MethodPost, "/api/correction", `{"start":"2020-01","end":"2024-12","clamp":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp correctionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "2023-01", resp.Result.Start.String())
	assert.Equal(t, "2023-03", resp.Result.End.String())
	assert.Len(t, resp.Warnings, 2)
}

func TestHandleCorrectionErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"Reversed range", `{"start":"2023-03","end":"2023-01"}`, http.StatusBadRequest, calculator.KindRangeOrder},
		{"Missing start", `{"end":"2023-01"}`, http.StatusBadRequest, calculator.KindInvalidRequest},
		{"Bad month", `{"start":"2023-13","end":"2023-03"}`, http.StatusBadRequest, calculator.KindInvalidRequest},
		{"Unknown policy", `{"start":"2023-01","end":"2023-03","policy":"c"}`, http.StatusBadRequest, calculator.KindInvalidRequest},
		{"Unknown field", `{"start":"2023-01","end":"2023-03","currency":"USD"}`, http.StatusBadRequest, calculator.KindInvalidRequest},
		{"Malformed JSON", `{"start":`, http.StatusBadRequest, calculator.KindInvalidRequest},
		{"Bad rate", `{"start":"2023-01","end":"2023-03","rate":"seis"}`, http.StatusBadRequest, calculator.KindInvalidNumber},
		{"Negative amount", `{"start":"2023-01","end":"2023-03","amount":-10}`, http.StatusBadRequest, calculator.KindInvalidNumber},
		{"Empty period", `{"start":"2030-01","end":"2030-03"}`, http.StatusUnprocessableEntity, calculator.KindEmptyPeriod},
		{"Missing anchor", `{"start":"2022-12","end":"2023-03"}`, http.StatusUnprocessableEntity, calculator.KindMissingAnchor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, provider.NewStatic(testRows), Options{})

			rr := do(t, h, http.MethodPost, "/api/correction", tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandleCorrectionProviderUnavailable(t *testing.T) {
	h := newTestHandler(t, &provider.Static{Err: errors.New("connection refused")}, Options{})

	rr := do(t, h, http.MethodPost, "/api/correction", `{"start":"2023-01","end":"2023-03"}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, calculator.KindProviderUnavailable, resp.Kind)
}

func TestHandleCorrectionMalformedUpstream(t *testing.T) {
	rows := append([]series.RawPoint{{Code: "20231", Value: "100"}}, testRows...)
	h := newTestHandler(t, provider.NewStatic(rows), Options{})

	rr := do(t, h, http.MethodPost, "/api/correction", `{"start":"2023-01","end":"2023-03"}`)
	require.Equal(t, http.StatusBadGateway, rr.Code, rr.Body.String())
}

func TestHandleCorrectionBodyTooLarge(t *testing.T) {
	h := newTestHandler(t, provider.NewStatic(testRows), Options{MaxBodySize: 32})

	rr := do(t, h, http.MethodPost, "/api/correction", `{"start":"2023-01","end":"2023-03","amount":"1000"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestHandleSeries(t *testing.T) {
	h := newTestHandler(t, provider.NewStatic(testRows), Options{})

	rr := do(t, h, http.MethodGet, "/api/series?start=2023-02", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp seriesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Points, 2)
	assert.Equal(t, "2023-02", resp.Points[0].Period.String())
	assert.Equal(t, 101.90, resp.Points[0].Value)

	rr = do(t, h, http.MethodGet, "/api/series?end=garbage", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleRefresh(t *testing.T) {
	h := newTestHandler(t, provider.NewStatic(testRows), Options{})

	rr := do(t, h, http.MethodPost, "/api/series/refresh", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp refreshResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Points)
	require.NotNil(t, resp.First)
	require.NotNil(t, resp.Last)
	assert.Equal(t, "2022-12", resp.First.String())
	assert.Equal(t, "2023-03", resp.Last.String())
}

func TestHandleVersionAndHealth(t *testing.T) {
	h := newTestHandler(t, provider.NewStatic(testRows), Options{Version: "1.2.3"})

	rr := do(t, h, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"version":"1.2.3"}`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/api/version", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, provider.NewStatic(testRows), Options{})

	do(t, h, http.MethodPost, "/api/correction", `{"start":"2023-01","end":"2023-03"}`)
	rr := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, `calculadora_cidada_calculations_total{outcome="ok"} 1`)
	assert.Contains(t, body, `calculadora_cidada_http_requests_total{code="200",route="/api/correction"} 1`)
}

func TestMetricsUnknownPathsShareOneLabel(t *testing.T) {
	h := newTestHandler(t, provider.NewStatic(testRows), Options{})

	for i := 0; i < 5; i++ {
		rr := do(t, h, http.MethodGet, fmt.Sprintf("/random-%d", i), "")
		require.Equal(t, http.StatusNotFound, rr.Code)
	}

	body := do(t, h, http.MethodGet, "/metrics", "").Body.String()
	assert.Contains(t, body, `calculadora_cidada_http_requests_total{code="404",route="unmatched"} 5`)
	assert.NotContains(t, body, `route="/random-`)
}

func TestRateLimit(t *testing.T) {
	h := newTestHandler(t, provider.NewStatic(testRows), Options{
		RateLimit: RateLimitConfig{RPS: 0.001, Burst: 1},
	})

	rr := do(t, h, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/version", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// Health checks are outside the limited group.
	rr = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestEndToEndWithSidra(t *testing.T) {
	fixture, err := os.ReadFile(filepath.Join("..", "provider", "sidra", "testdata", "ipca.json"))
	require.NoError(t, err)

	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(fixture)
	}))
	defer upstream.Close()

	h := newTestHandler(t, sidra.NewClient(zap.NewNop(), upstream.URL, time.Second), Options{})

	rr := do(t, h, http.MethodPost, "/api/correction", `{"start":"2023-01","end":"2023-03","rate":"6,5"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp correctionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.InDelta(t, 6609.67/6474.09-1, resp.Result.AccumulatedVariation, 1e-12)
	require.NotNil(t, resp.Result.Anchor)
	assert.Equal(t, "2022-12", resp.Result.Anchor.Period.String())

	rr = do(t, h, http.MethodGet, "/api/series", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var listed seriesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	assert.Len(t, listed.Points, 4)
	assert.NotNil(t, testutil.FindPoint(listed.Points, resp.Result.End))
	assert.Nil(t, testutil.FindPoint(listed.Points, resp.Result.End.Next()))

	// The second and third calls were served from the cache.
	assert.Equal(t, int32(1), hits.Load())
}
