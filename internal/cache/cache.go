// Package cache owns the index series snapshot shared by calculations. The snapshot is
// reused until its TTL expires or it is invalidated; concurrent reloads are collapsed into
// a single provider fetch.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tovarich86/calculadora-cidada/internal/metrics"
	"github.com/tovarich86/calculadora-cidada/internal/provider"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"github.com/tovarich86/calculadora-cidada/pkg/series"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const loadKey = "series"

// SeriesCache serves the normalized series, refreshing it from the provider when stale.
type SeriesCache struct {
	provider provider.Provider
	store    Store
	ttl      time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	group    singleflight.Group

	mu       sync.RWMutex
	snapshot series.Series
	loadedAt time.Time
	valid    bool
}

// Option customizes a SeriesCache.
type Option func(*SeriesCache)

// WithStore replaces the default in-memory store.
func WithStore(store Store) Option {
	return func(c *SeriesCache) {
		if store != nil {
			c.store = store
		}
	}
}

// WithTTL sets how long a fetched series is reused.
func WithTTL(ttl time.Duration) Option {
	return func(c *SeriesCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *SeriesCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics records cache events on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *SeriesCache) { c.metrics = m }
}

// New builds a cache in front of p.
func New(logger *zap.Logger, p provider.Provider, opts ...Option) *SeriesCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &SeriesCache{
		provider: p,
		store:    NewMemoryStore(),
		ttl:      constants.DefaultCacheTTL,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached series, loading it when missing or expired.
func (c *SeriesCache) Get(ctx context.Context) (series.Series, error) {
	if s, ok := c.fresh(); ok {
		c.metrics.CacheEvent(metrics.CacheHit)
		return s, nil
	}
	c.metrics.CacheEvent(metrics.CacheMiss)
	return c.load(ctx, false)
}

// Refresh fetches from the provider, bypassing the store. The snapshot and the stored
// rows are only replaced once the fetch succeeds; on error the previous snapshot keeps
// serving until its TTL expires.
func (c *SeriesCache) Refresh(ctx context.Context) (series.Series, error) {
	return c.load(ctx, true)
}

// Invalidate marks the snapshot stale so the next Get reloads it.
func (c *SeriesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

// LoadedAt returns when the current snapshot was fetched from the provider.
func (c *SeriesCache) LoadedAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt, c.valid
}

func (c *SeriesCache) fresh() (series.Series, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid || !c.within(c.loadedAt) {
		return series.Series{}, false
	}
	return c.snapshot, true
}

func (c *SeriesCache) within(fetchedAt time.Time) bool {
	return c.now().Sub(fetchedAt) < c.ttl
}

func (c *SeriesCache) load(ctx context.Context, skipStore bool) (series.Series, error) {
	key := loadKey
	if skipStore {
		key += ":refresh"
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if !skipStore {
			if s, ok := c.fromStore(ctx); ok {
				return s, nil
			}
		}
		return c.fromProvider(ctx)
	})
	if err != nil {
		return series.Series{}, err
	}
	return v.(series.Series), nil
}

func (c *SeriesCache) fromStore(ctx context.Context) (series.Series, bool) {
	entry, ok, err := c.store.Load(ctx)
	if err != nil {
		c.metrics.CacheEvent(metrics.CacheStoreError)
		c.logger.Warn("failed to read series store, falling back to provider",
			zap.String("op", "cache.fromStore"),
			zap.Error(err),
		)
		return series.Series{}, false
	}
	if !ok || !c.within(entry.FetchedAt) {
		return series.Series{}, false
	}

	s, err := series.Normalize(entry.Points)
	if err != nil {
		c.metrics.CacheEvent(metrics.CacheStoreError)
		c.logger.Warn("stored series is malformed, falling back to provider",
			zap.String("op", "cache.fromStore"),
			zap.Error(err),
		)
		if err := c.store.Clear(ctx); err != nil {
			c.logger.Warn("failed to clear series store",
				zap.String("op", "cache.fromStore"),
				zap.Error(err),
			)
		}
		return series.Series{}, false
	}

	c.metrics.CacheEvent(metrics.CacheStoreHit)
	return c.set(s, entry.FetchedAt), true
}

func (c *SeriesCache) fromProvider(ctx context.Context) (series.Series, error) {
	start := time.Now()
	points, err := c.provider.FetchRawSeries(ctx)
	c.metrics.ObserveFetch(c.provider.Name(), time.Since(start), err)
	if err != nil {
		c.logger.Error("failed to fetch index series",
			zap.String("op", "cache.fromProvider"),
			zap.String("provider", c.provider.Name()),
			zap.Error(err),
		)
		return series.Series{}, err
	}

	s, report, err := series.NormalizeWithReport(points)
	if err != nil {
		return series.Series{}, err
	}
	if dropped := report.Received - report.Kept; dropped > 0 {
		c.logger.Debug("dropped provider rows while normalizing",
			zap.String("op", "cache.fromProvider"),
			zap.Int("sentinelCodes", report.SentinelCodes),
			zap.Int("invalidValues", report.InvalidValues),
			zap.Int("duplicates", report.DuplicatesSeen),
		)
	}

	fetchedAt := c.now()
	if err := c.store.Save(ctx, Entry{FetchedAt: fetchedAt, Points: points}, c.ttl); err != nil {
		c.metrics.CacheEvent(metrics.CacheStoreError)
		c.logger.Warn("failed to persist series",
			zap.String("op", "cache.fromProvider"),
			zap.Error(err),
		)
	}

	c.metrics.CacheEvent(metrics.CacheRefresh)
	s = c.set(s, fetchedAt)
	c.logger.Info("index series loaded",
		zap.String("op", "cache.fromProvider"),
		zap.String("provider", c.provider.Name()),
		zap.Int("points", s.Len()),
	)
	return s, nil
}

// set installs s and returns the snapshot in effect. A load that started before a newer one
// finished never replaces it.
func (c *SeriesCache) set(s series.Series, fetchedAt time.Time) series.Series {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loadedAt.IsZero() && fetchedAt.Before(c.loadedAt) {
		c.valid = true
		return c.snapshot
	}
	c.snapshot = s
	c.loadedAt = fetchedAt
	c.valid = true
	c.metrics.SetSeriesPoints(s.Len())
	return s
}
