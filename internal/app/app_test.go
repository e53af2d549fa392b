package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tovarich86/calculadora-cidada/internal/calculator"
	"github.com/tovarich86/calculadora-cidada/internal/config"
	"github.com/tovarich86/calculadora-cidada/internal/metrics"
	"github.com/tovarich86/calculadora-cidada/internal/provider/sidra"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"github.com/tovarich86/calculadora-cidada/pkg/period"
	"go.uber.org/zap"
)

func fileConfiguration(t *testing.T) *config.Configuration {
	t.Helper()
	conf, err := config.DefaultConfiguration()
	require.NoError(t, err)
	conf.Provider.Kind = constants.ProviderFile
	conf.Provider.File = filepath.Join("..", "provider", "sidra", "testdata", "ipca.json")
	return conf
}

func TestNewWithFileProvider(t *testing.T) {
	a, err := New(zap.NewNop(), fileConfiguration(t), metrics.New())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.IsType(t, &sidra.File{}, a.Provider)
	assert.Equal(t, constants.DefaultBaseAmount, a.Defaults.Amount)

	result, err := a.Calculator.Calculate(context.Background(), calculator.Input{
		Start:  period.MustParse("2023-01"),
		End:    period.MustParse("2023-03"),
		Amount: a.Defaults.Amount,
	})
	require.NoError(t, err)
	assert.InDelta(t, 6609.67/6474.09-1, result.AccumulatedVariation, 1e-12)
	assert.Equal(t, 3, result.Months)
}

func TestNewWithRedisBackend(t *testing.T) {
	conf := fileConfiguration(t)
	conf.Cache.Backend = constants.CacheBackendRedis
	conf.Cache.Redis.Address = "127.0.0.1:0"

	a, err := New(nil, conf, nil)
	require.NoError(t, err)
	assert.Len(t, a.closers, 1)
	assert.NoError(t, a.Close())
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	conf := fileConfiguration(t)
	conf.Provider.File = ""

	_, err := New(nil, conf, nil)
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(nil, config.ProviderConfig{Kind: constants.ProviderSidra})
	require.NoError(t, err)
	assert.Equal(t, constants.ProviderSidra, p.Name())

	_, err = NewProvider(nil, config.ProviderConfig{Kind: "ftp"})
	assert.Error(t, err)
}
