// Package main runs the in-memory AXME stub service.
//
// The stub implements every endpoint the conformance suite exercises and is
// meant for local development and CI: point the runner at it to validate the
// suite itself, or use it as a scratch target while building a real service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AxmeAI/axme-conformance/internal/logging"
	"github.com/AxmeAI/axme-conformance/internal/stubserver"
)

func main() {
	addr := flag.String("addr", ":9090", "Listen address")
	apiKey := flag.String("api-key", os.Getenv("AXME_STUB_API_KEY"), "Bearer token required on authenticated routes (empty disables auth)")
	pageSize := flag.Int("page-size", 0, "Change feed page size (0 uses the default)")
	metricsEnabled := flag.Bool("metrics", false, "Expose Prometheus metrics on /metrics")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "auto", "Log format (auto, text, or json)")
	flag.Parse()

	logger := logging.New(os.Stderr, *logLevel, *logFormat)
	slog.SetDefault(logger)

	if *apiKey == "" {
		slog.Warn("authentication disabled, all requests accepted",
			"recommendation", "pass -api-key or set AXME_STUB_API_KEY")
	}

	srv := stubserver.New(stubserver.Config{
		APIKey:         *apiKey,
		ChangePageSize: *pageSize,
		MetricsEnabled: *metricsEnabled,
		Logger:         logger,
	})

	// Handle graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down stub...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("stub shutdown error", "error", err)
		}
	}()

	slog.Info("starting stub", "address", *addr, "metrics", *metricsEnabled)

	if err := srv.Start(*addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("stub stopped gracefully")
		} else {
			slog.Error("stub failed to start", "error", err)
			os.Exit(1)
		}
	}
}
