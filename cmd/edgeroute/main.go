package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sourceplane/edgeroute/internal/config"
	"github.com/sourceplane/edgeroute/internal/loader"
	"github.com/sourceplane/edgeroute/internal/logging"
	"github.com/sourceplane/edgeroute/internal/metrics"
	"github.com/sourceplane/edgeroute/internal/negotiate"
	"github.com/sourceplane/edgeroute/internal/reconcile"
	"github.com/sourceplane/edgeroute/internal/schema"
	"github.com/sourceplane/edgeroute/internal/workload"
)

// app bundles what every command needs
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	loader  *loader.Loader
	planner *reconcile.Planner
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	codec, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		loader:  loader.NewLoader(codec),
		planner: reconcile.NewPlanner(negotiate.NewNegotiator(codec, logger), cfg.Workload.DynamicDir),
	}, nil
}

func (rt *app) driver(m *metrics.Collector) *reconcile.Driver {
	w := rt.cfg.Workload
	wl := workload.NewLocal(w.Root, w.RestartCommand, os.Stdout, os.Stderr, dryRun)
	return reconcile.NewDriver(wl, rt.planner, m, rt.logger, reconcile.Options{
		DynamicDir: w.DynamicDir,
		StaticPath: w.StaticPath,
	})
}

func (rt *app) snapshot() (*loader.Snapshot, *reconcile.Input, error) {
	snap, err := rt.loader.Load(stateFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	in, err := snap.Input()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, in, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
