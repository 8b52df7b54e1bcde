package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourceplane/edgeroute/internal/metrics"
	"github.com/sourceplane/edgeroute/internal/model"
	"github.com/sourceplane/edgeroute/internal/watch"
	"github.com/spf13/cobra"
)

var metricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile continuously as the snapshot changes",
	Long:  "Watch the host snapshot and reconcile on every change, re-evaluating status on the heartbeat schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watchSnapshot(ctx)
	},
}

func registerWatchCommand(root *cobra.Command) {
	root.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides configuration)")
}

func watchSnapshot(ctx context.Context) error {
	rt, err := newApp()
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		rt.cfg.Metrics.Enabled = true
		rt.cfg.Metrics.Address = metricsAddr
	}
	collector := metrics.NewCollector()
	if rt.cfg.Metrics.Enabled {
		srv := serveMetrics(rt, collector)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	driver := rt.driver(collector)
	loop := watch.New(stateFile, rt.cfg.Heartbeat.Schedule, rt.logger)

	fmt.Printf("□ Watching %s...\n", stateFile)
	err = loop.Run(ctx, func(ctx context.Context, n model.Notification) error {
		snap, in, err := rt.snapshot()
		if err != nil {
			return err
		}
		rep, err := driver.Reconcile(ctx, n, in)
		if err != nil {
			return err
		}
		data, err := persist(snap, in)
		if err != nil {
			return err
		}
		if data != nil {
			loop.Remember(data)
		}
		fmt.Printf("✓ %s: %s\n", n.Kind, rep.Status)
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Println("✓ Watch stopped")
	return nil
}

func serveMetrics(rt *app, collector *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(rt.cfg.Metrics.Path, collector.Handler())
	srv := &http.Server{Addr: rt.cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		rt.logger.Info("serving metrics", "address", srv.Addr, "path", rt.cfg.Metrics.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
