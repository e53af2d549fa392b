package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/tovarich86/calculadora-cidada/internal/app"
	"github.com/tovarich86/calculadora-cidada/internal/calculator"
	"github.com/tovarich86/calculadora-cidada/internal/config"
	"github.com/tovarich86/calculadora-cidada/internal/logging"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"github.com/tovarich86/calculadora-cidada/pkg/correction"
	"github.com/tovarich86/calculadora-cidada/pkg/numparse"
	"github.com/tovarich86/calculadora-cidada/pkg/output"
	"github.com/tovarich86/calculadora-cidada/pkg/period"
	"github.com/tovarich86/calculadora-cidada/pkg/validation"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("calculadora-cidada", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configLocation := flags.String("config", constants.DefaultConfigFile, "path to configuration file")
	startFlag := flags.String("start", "", "first month of the period (YYYY-MM)")
	endFlag := flags.String("end", "", "last month of the period (YYYY-MM)")
	amountFlag := flags.String("amount", "", "amount to correct, comma or dot decimals (default from config)")
	rateFlag := flags.String("rate", "", "prefixed annual rate in percent, e.g. 6,5 (default from config)")
	policyFlag := flags.String("policy", "", "first month policy: anchored, self-referential")
	clampFlag := flags.Bool("clamp", false, "bound the period to the months with published data")
	outputFormatFlag := flags.String("output-format", "", "type of output override: pretty, csv")
	logLevel := flags.String("log-level", "", "log level override (debug, info, warn, error)")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	conf, err := loadConfiguration(*configLocation)
	if err != nil {
		fmt.Fprintf(stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		return 1
	}

	if err := validation.ValidateLogLevel(*logLevel); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger, err := logging.New(conf.Logging, *logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Determine output format (CLI override takes precedence over config)
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	a, err := app.New(logger, conf, nil)
	if err != nil {
		logger.Error("invalid configuration",
			zap.String("op", "main"),
			zap.Error(err),
		)
		fmt.Fprintf(stderr, "Configuração inválida: %v\n", err)
		return 1
	}
	defer func() {
		_ = a.Close()
	}()

	in, err := buildInput(a.Defaults, *startFlag, *endFlag, *amountFlag, *rateFlag, *policyFlag)
	if err != nil {
		fmt.Fprintln(stderr, calculator.Message(err))
		return 2
	}

	var notes []string
	if *clampFlag {
		in, notes, err = a.Calculator.Clamp(ctx, in)
		if err != nil {
			return fail(logger, stderr, err)
		}
	}

	result, err := a.Calculator.Calculate(ctx, in)
	if err != nil {
		return fail(logger, stderr, err)
	}

	switch outputFormat {
	case constants.OutputFormatPretty:
		err = output.PrettyFormat(stdout, result, notes...)
	case constants.OutputFormatCSV:
		err = output.CsvFormat(stdout, result)
	}
	if err != nil {
		logger.Error("failed to write output",
			zap.String("op", "main"),
			zap.Error(err),
		)
		return 1
	}
	return 0
}

// loadConfiguration falls back to the defaults when the default config file is absent.
func loadConfiguration(path string) (*config.Configuration, error) {
	if path == constants.DefaultConfigFile {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.DefaultConfiguration()
		}
	}
	return config.LoadConfiguration(path)
}

func buildInput(defaults config.Defaults, start, end, amount, rate, policy string) (calculator.Input, error) {
	if start == "" || end == "" {
		return calculator.Input{}, &correction.InvalidRequestError{Field: "start/end", Reason: "both -start and -end are required"}
	}
	startPeriod, err := period.Parse(start)
	if err != nil {
		return calculator.Input{}, &correction.InvalidRequestError{Field: "start", Reason: err.Error()}
	}
	endPeriod, err := period.Parse(end)
	if err != nil {
		return calculator.Input{}, &correction.InvalidRequestError{Field: "end", Reason: err.Error()}
	}

	in := calculator.Input{
		Start:      startPeriod,
		End:        endPeriod,
		Amount:     defaults.Amount,
		AnnualRate: defaults.AnnualRate,
		Policy:     defaults.Policy,
	}
	if amount != "" {
		if in.Amount, err = numparse.ParseAmount(amount); err != nil {
			return calculator.Input{}, err
		}
	}
	if rate != "" {
		if in.AnnualRate, err = numparse.ParsePercent(rate); err != nil {
			return calculator.Input{}, err
		}
	}
	if policy != "" {
		if in.Policy, err = correction.ParsePolicy(policy); err != nil {
			return calculator.Input{}, &correction.InvalidRequestError{Field: "policy", Reason: err.Error()}
		}
	}
	return in, nil
}

func fail(logger *zap.Logger, stderr io.Writer, err error) int {
	logger.Debug("calculation failed",
		zap.String("op", "main"),
		zap.String("kind", calculator.Kind(err)),
		zap.Error(err),
	)
	fmt.Fprintln(stderr, calculator.Message(err))
	switch calculator.Kind(err) {
	case calculator.KindProviderUnavailable, calculator.KindMalformedPeriod, calculator.KindInternal:
		return 1
	default:
		return 2
	}
}
