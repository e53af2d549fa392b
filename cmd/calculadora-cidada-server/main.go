package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tovarich86/calculadora-cidada/internal/app"
	"github.com/tovarich86/calculadora-cidada/internal/config"
	"github.com/tovarich86/calculadora-cidada/internal/logging"
	"github.com/tovarich86/calculadora-cidada/internal/metrics"
	"github.com/tovarich86/calculadora-cidada/internal/server"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	serverConfigLocation := flag.String("server-config", constants.DefaultServerConfigFile, "path to server configuration file")
	address := flag.String("address", "", "listen address override")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	serverConf, err := server.LoadConfig(*serverConfigLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load server configuration at %s\", \"error\": \"%v\"}\n", *serverConfigLocation, err)
		os.Exit(1)
	}
	if *address != "" {
		serverConf.Address = *address
	}

	conf, err := loadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	// Server logging settings take precedence over the calculator's.
	loggingConf := conf.Logging
	if serverConf.Logging != (config.LoggingConfig{}) {
		loggingConf = serverConf.Logging
	}
	logger, err := logging.New(loggingConf, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	m := metrics.New()
	a, err := app.New(logger, conf, m)
	if err != nil {
		logger.Fatal("invalid configuration",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to release resources",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	}()

	handler := server.NewHandler(logger, server.Options{
		Calculator:  a.Calculator,
		Refresher:   a.Cache,
		Metrics:     m,
		Defaults:    a.Defaults,
		MaxBodySize: serverConf.BodySizeBytes(),
		RateLimit:   serverConf.RateLimit,
		Version:     version,
	})

	srv := &http.Server{
		Addr:         serverConf.Address,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: conf.Provider.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("op", "main"),
			zap.String("address", serverConf.Address),
			zap.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Fatal("server failed",
			zap.String("op", "main"),
			zap.Error(err),
		)
	case sig := <-quit:
		logger.Info("shutting down server",
			zap.String("op", "main"),
			zap.String("signal", sig.String()),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), serverConf.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("error during server shutdown",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	logger.Info("server exited", zap.String("op", "main"))
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
