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

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/tickspeak/internal/feed"
	"github.com/dgnsrekt/tickspeak/internal/metrics"
)

// runDaemon watches the price feed until SIGINT or SIGTERM.
func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The producer must already be running.
	region, err := feed.OpenRegion(cfg.Feed.ShmPath, cfg.Feed.RegionSize)
	if err != nil {
		return err
	}
	defer region.Close() //nolint:errcheck

	gate, err := feed.OpenGate(cfg.Feed.FIFOPath)
	if err != nil {
		return err
	}
	defer gate.Close() //nolint:errcheck

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Alert.ShutdownTimeout)
		defer cancel()
		_ = a.Close(shutdownCtx)
	}()

	srv := serveMetrics(cfg.Metrics.Listen, a.metrics)
	if srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("Watching price feed",
		"shm", region.Path(),
		"fifo", gate.Path(),
		"threshold", cfg.Alert.Threshold,
		"debounce", cfg.Alert.Debounce,
		"device", a.device.Name(),
	)

	start := time.Now()
	reader := feed.NewReader(region, gate, feed.NewTracker(cfg.Alert.Threshold), a.coord, log.WithPrefix("feed"), a.metrics)
	if err := reader.Run(ctx); err != nil {
		return fmt.Errorf("price feed stopped: %w", err)
	}

	log.Info("Shutting down", "uptime", time.Since(start).Round(time.Second))
	return nil
}

// serveMetrics starts the Prometheus endpoint when addr is set.
func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}
