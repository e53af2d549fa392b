// Package app assembles the provider, cache and calculator from configuration. Both
// binaries start from here.
package app

import (
	"fmt"

	"github.com/tovarich86/calculadora-cidada/internal/cache"
	"github.com/tovarich86/calculadora-cidada/internal/calculator"
	"github.com/tovarich86/calculadora-cidada/internal/config"
	"github.com/tovarich86/calculadora-cidada/internal/metrics"
	"github.com/tovarich86/calculadora-cidada/internal/provider"
	"github.com/tovarich86/calculadora-cidada/internal/provider/sidra"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"go.uber.org/zap"
)

// App holds the long-lived collaborators.
type App struct {
	Provider   provider.Provider
	Cache      *cache.SeriesCache
	Calculator *calculator.Service
	Metrics    *metrics.Metrics
	Defaults   config.Defaults

	closers []func() error
}

// New validates conf and builds an App from it. The caller must Close it.
func New(logger *zap.Logger, conf *config.Configuration, m *metrics.Metrics) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	defaults, err := conf.Defaults()
	if err != nil {
		return nil, err
	}

	p, err := NewProvider(logger, conf.Provider)
	if err != nil {
		return nil, err
	}

	a := &App{Provider: p, Metrics: m, Defaults: defaults}

	opts := []cache.Option{cache.WithTTL(conf.Cache.TTL), cache.WithMetrics(m)}
	switch conf.Cache.Backend {
	case constants.CacheBackendRedis:
		store := cache.NewRedisStore(conf.Cache.Redis.Address, conf.Cache.Redis.Password, conf.Cache.Redis.DB, conf.Cache.Redis.Key)
		a.closers = append(a.closers, store.Close)
		opts = append(opts, cache.WithStore(store))
		logger.Info("using redis series store",
			zap.String("op", "app.New"),
			zap.String("address", conf.Cache.Redis.Address),
		)
	case constants.CacheBackendMemory:
	default:
		return nil, fmt.Errorf("unknown cache backend %s", conf.Cache.Backend)
	}

	a.Cache = cache.New(logger, p, opts...)
	a.Calculator = calculator.New(logger, a.Cache, m)
	return a, nil
}

// NewProvider returns the provider selected by cfg.Kind.
func NewProvider(logger *zap.Logger, cfg config.ProviderConfig) (provider.Provider, error) {
	switch cfg.Kind {
	case constants.ProviderSidra:
		return sidra.NewClient(logger, cfg.URL, cfg.Timeout, sidra.WithVariable(cfg.Variable)), nil
	case constants.ProviderFile:
		return sidra.NewFile(cfg.File, cfg.Variable), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %s", cfg.Kind)
	}
}

// Close releases the resources held by the App.
func (a *App) Close() error {
	var first error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
