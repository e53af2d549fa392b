// Package metrics exposes Prometheus collectors for the calculator service. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "calculadora_cidada"

// Cache events.
const (
	CacheHit        = "hit"
	CacheMiss       = "miss"
	CacheRefresh    = "refresh"
	CacheStoreHit   = "store_hit"
	CacheStoreError = "store_error"
)

// Metrics groups the collectors and the registry they are registered on.
type Metrics struct {
	registry      *prometheus.Registry
	calculations  *prometheus.CounterVec
	cacheEvents   *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	seriesPoints  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Correction calculations by outcome.",
		}, []string{"outcome"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_cache_events_total",
			Help:      "Series cache lookups and refreshes.",
		}, []string{"event"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_fetch_duration_seconds",
			Help:      "Duration of upstream index fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "result"}),
		seriesPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "series_points",
			Help:      "Number of points in the cached index series.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		m.calculations,
		m.cacheEvents,
		m.fetchDuration,
		m.seriesPoints,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCalculation counts one calculation outcome.
func (m *Metrics) ObserveCalculation(outcome string) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(outcome).Inc()
}

// CacheEvent counts one cache event.
func (m *Metrics) CacheEvent(event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(event).Inc()
}

// ObserveFetch records the duration of an upstream fetch.
func (m *Metrics) ObserveFetch(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetchDuration.WithLabelValues(provider, result).Observe(d.Seconds())
}

// SetSeriesPoints records the size of the cached series.
func (m *Metrics) SetSeriesPoints(n int) {
	if m == nil {
		return
	}
	m.seriesPoints.Set(float64(n))
}

// ObserveRequest counts one HTTP response.
func (m *Metrics) ObserveRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}
