// Package constants provides shared constants for the calculadora-cidada application.
package constants

import "time"

// DateTimeLayout is the month format expected in config files and user input and is
// also the output date format.
const DateTimeLayout = "2006-01"

// PeriodCodeLayout is the month format used by the statistics provider (YYYYMM).
const PeriodCodeLayout = "200601"

// Financial constants
const (
	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12

	// DecimalPrecision is the precision for currency rounding (2 decimal places)
	DecimalPrecision = 100

	// PercentPlaces is the number of decimal places shown for percentages
	PercentPlaces = 4

	// CurrencyPlaces is the number of decimal places shown for currency
	CurrencyPlaces = 2

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0

	// DefaultBaseAmount is the base amount used when the caller provides none
	DefaultBaseAmount = 1000.0

	// RelativeTolerance is the tolerance used when comparing compounded products
	RelativeTolerance = 1e-9
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix is the prefix for environment overrides of the configuration
	EnvPrefix = "CALC"
)

// Provider defaults
const (
	// DefaultSidraURL is the IBGE SIDRA query for table 1737 (IPCA) with every period.
	DefaultSidraURL = "https://apisidra.ibge.gov.br/values/t/1737/n1/all/v/all/p/all/d/v63%202,v69%202,v2266%2013,v2263%202,v2264%202,v2265%202?formato=json"

	// DefaultSidraVariable is the SIDRA variable code of the IPCA index number series.
	DefaultSidraVariable = "2266"

	// DefaultProviderTimeout bounds a single upstream fetch
	DefaultProviderTimeout = 30 * time.Second

	// ProviderSidra fetches from the IBGE SIDRA API
	ProviderSidra = "sidra"

	// ProviderFile reads a SIDRA-format JSON document from disk
	ProviderFile = "file"
)

// Cache defaults
const (
	// DefaultCacheTTL is how long a fetched series is reused before refreshing
	DefaultCacheTTL = 24 * time.Hour

	// CacheBackendMemory keeps the raw series in process memory
	CacheBackendMemory = "memory"

	// CacheBackendRedis keeps the raw series in redis
	CacheBackendRedis = "redis"

	// DefaultRedisKey is the redis key holding the raw series
	DefaultRedisKey = "calculadora-cidada:ipca:raw"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxBodySizeBytes is the default maximum request body size (64 KB)
	DefaultMaxBodySizeBytes int64 = 64 * 1024

	// DefaultRateLimitRPS is the default sustained request rate for the API
	DefaultRateLimitRPS = 20.0

	// DefaultRateLimitBurst is the default burst size for the API rate limiter
	DefaultRateLimitBurst = 40

	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second
)
