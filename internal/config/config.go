// Package config defines the data structures related to configuration and
// includes functions for loading and validating the config.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"github.com/tovarich86/calculadora-cidada/pkg/correction"
	"github.com/tovarich86/calculadora-cidada/pkg/numparse"
	"github.com/tovarich86/calculadora-cidada/pkg/validation"
)

// Configuration holds all configuration for calculadora-cidada.
type Configuration struct {
	Provider    ProviderConfig    `yaml:"provider"`
	Cache       CacheConfig       `yaml:"cache"`
	Calculation CalculationConfig `yaml:"calculation"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Output      OutputConfig      `yaml:"output,omitempty"`
}

// ProviderConfig selects where the index series comes from.
type ProviderConfig struct {
	Kind     string        `yaml:"kind"`     // sidra, file
	URL      string        `yaml:"url"`      // SIDRA query URL
	Variable string        `yaml:"variable"` // SIDRA variable code, 2266 is the index number
	Timeout  time.Duration `yaml:"timeout"`
	File     string        `yaml:"file"` // SIDRA JSON document for the file provider
}

// CacheConfig controls how long the series is reused and where it is kept.
type CacheConfig struct {
	Backend string        `yaml:"backend"` // memory, redis
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds the connection settings of the redis cache backend.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// CalculationConfig holds the defaults applied when a request omits a field. Amount and
// Rate are kept as text so that either decimal separator can be used.
type CalculationConfig struct {
	Amount string `yaml:"amount"`
	Rate   string `yaml:"rate"` // annual percentage, e.g. "6,5"
	Policy string `yaml:"policy"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv
}

// Defaults are the parsed calculation defaults.
type Defaults struct {
	Amount     float64
	AnnualRate float64
	Policy     correction.Policy
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("provider.kind", constants.ProviderSidra)
	v.SetDefault("provider.url", constants.DefaultSidraURL)
	v.SetDefault("provider.variable", constants.DefaultSidraVariable)
	v.SetDefault("provider.timeout", constants.DefaultProviderTimeout)
	v.SetDefault("provider.file", "")
	v.SetDefault("cache.backend", constants.CacheBackendMemory)
	v.SetDefault("cache.ttl", constants.DefaultCacheTTL)
	v.SetDefault("cache.redis.address", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key", constants.DefaultRedisKey)
	v.SetDefault("calculation.amount", fmt.Sprintf("%.2f", constants.DefaultBaseAmount))
	v.SetDefault("calculation.rate", "0")
	v.SetDefault("calculation.policy", correction.PolicyAnchored.String())
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", constants.OutputFormatPretty)
	return v
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Environment variables prefixed with CALC_ override file values
// (e.g. CALC_CACHE_TTL=1h).
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}
	return decode(v)
}

// LoadConfigurationFromReader loads a YAML configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %s", err)
	}
	return decode(v)
}

// DefaultConfiguration returns the configuration used when no file is available.
func DefaultConfiguration() (*Configuration, error) {
	return decode(newViper())
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	return &configuration, nil
}

// Validate returns an error for settings the application cannot run with.
func (c *Configuration) Validate() error {
	switch c.Provider.Kind {
	case constants.ProviderSidra:
	case constants.ProviderFile:
		if strings.TrimSpace(c.Provider.File) == "" {
			return fmt.Errorf("provider.file is required when provider.kind is %s", constants.ProviderFile)
		}
	default:
		return fmt.Errorf("expected provider.kind of %s or %s, got %s",
			constants.ProviderSidra, constants.ProviderFile, c.Provider.Kind)
	}

	switch c.Cache.Backend {
	case constants.CacheBackendMemory:
	case constants.CacheBackendRedis:
		if strings.TrimSpace(c.Cache.Redis.Address) == "" {
			return fmt.Errorf("cache.redis.address is required when cache.backend is %s", constants.CacheBackendRedis)
		}
	default:
		return fmt.Errorf("expected cache.backend of %s or %s, got %s",
			constants.CacheBackendMemory, constants.CacheBackendRedis, c.Cache.Backend)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}

	if _, err := c.Defaults(); err != nil {
		return err
	}

	return validation.ValidateOutputFormat(c.Output.Format)
}

// Defaults parses the calculation defaults.
func (c *Configuration) Defaults() (Defaults, error) {
	amount, err := numparse.ParseAmount(c.Calculation.Amount)
	if err != nil {
		return Defaults{}, fmt.Errorf("calculation.amount: %w", err)
	}
	rate, err := numparse.ParsePercent(c.Calculation.Rate)
	if err != nil {
		return Defaults{}, fmt.Errorf("calculation.rate: %w", err)
	}
	policy, err := correction.ParsePolicy(c.Calculation.Policy)
	if err != nil {
		return Defaults{}, fmt.Errorf("calculation.policy: %w", err)
	}
	return Defaults{Amount: amount, AnnualRate: rate, Policy: policy}, nil
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string

	if c.Cache.TTL > 0 && c.Cache.TTL < time.Hour {
		warnings = append(warnings, fmt.Sprintf("cache.ttl of %s refetches the index more often than IBGE publishes it", c.Cache.TTL))
	}
	if strings.EqualFold(strings.TrimSpace(c.Calculation.Policy), correction.PolicySelfReferential.String()) {
		warnings = append(warnings, "calculation.policy self-referential treats the first index value as a monthly rate and overstates the correction")
	}
	if c.Provider.Kind == constants.ProviderSidra && c.Provider.Variable != constants.DefaultSidraVariable {
		warnings = append(warnings, fmt.Sprintf("provider.variable %s is not the IPCA index number (%s)", c.Provider.Variable, constants.DefaultSidraVariable))
	}
	if c.Provider.Timeout <= 0 {
		warnings = append(warnings, fmt.Sprintf("provider.timeout is not positive, using %s", constants.DefaultProviderTimeout))
	}

	if len(warnings) == 0 {
		return nil
	}
	return warnings
}
