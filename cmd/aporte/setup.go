package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aporte/internal/app"
	"github.com/newthinker/aporte/internal/config"
	"github.com/newthinker/aporte/internal/logger"
)

// loadApp reads the config and builds the application. Stored policies are
// loaded by the commands that need them. The returned cleanup flushes the
// logger.
func loadApp() (*app.App, *zap.Logger, func(), error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	log, err := logger.NewWithLevel(debug || cfg.Log.Development, level)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	cleanup := func() { _ = log.Sync() }
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("config validation failed: %w", err)
	}
	a, err := app.Build(cfg, log)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("building app: %w", err)
	}
	return a, log, cleanup, nil
}

// commandContext is cancelled on SIGINT or SIGTERM. Metrics are served for
// the lifetime of the command when enabled.
func commandContext(a *app.App, log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		if err := a.ServeMetrics(ctx); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	return ctx, stop
}

func parseDate(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date format (expected YYYY-MM-DD): %w", name, err)
	}
	return d, nil
}
