// Package main is the entry point for the conformance runner.
//
// It executes the contract check suite against an AXME-compatible service and
// prints a per-check report. Exit code 0 means every check passed, 1 means at
// least one check failed, and 2 means the run could not complete (bad
// configuration or a transport failure).
//
// Usage:
//
//	AXME_API_KEY=sk-xxx axme-conformance -base-url=http://localhost:9090
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	conformance "github.com/AxmeAI/axme-conformance"
	"github.com/AxmeAI/axme-conformance/config"
	"github.com/AxmeAI/axme-conformance/internal/journal"
	"github.com/AxmeAI/axme-conformance/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: ./"+config.DefaultFile+" if present)")
	baseURL := flag.String("base-url", "", "Base URL of the service under test (overrides config)")
	apiKey := flag.String("api-key", "", "Bearer token for the service under test (overrides config)")
	owner := flag.String("owner", "", "Owner agent URI used by the checks (overrides config)")
	timeout := flag.Duration("timeout", 0, "Per-request timeout (overrides config)")
	rps := flag.Float64("rps", 0, "Request pacing in requests per second, 0 disables (overrides config)")
	journalPath := flag.String("journal", "", "SQLite journal path for recording runs (overrides config)")
	jsonOut := flag.Bool("json", false, "Emit results as JSON instead of a plain-text report")
	list := flag.Bool("list", false, "List check names in execution order and exit")
	flag.Parse()

	if *list {
		for _, name := range conformance.Checks() {
			fmt.Println(name)
		}
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	// Flags win over config and environment
	if *baseURL != "" {
		cfg.Target.BaseURL = *baseURL
	}
	if *apiKey != "" {
		cfg.Target.APIKey = *apiKey
	}
	if *owner != "" {
		cfg.Target.OwnerAgent = *owner
	}
	if *timeout > 0 {
		cfg.Run.TimeoutSeconds = int(timeout.Seconds())
	}
	if *rps > 0 {
		cfg.Run.RequestsPerSecond = *rps
	}
	if *journalPath != "" {
		cfg.Journal.Path = *journalPath
	}

	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cfg.Target.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: target base URL is required (-base-url, target.base_url, or AXME_BASE_URL)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting conformance run",
		"base_url", cfg.Target.BaseURL,
		"owner_agent", cfg.Target.OwnerAgent,
		"timeout", cfg.Timeout(),
	)

	started := time.Now()
	results, runErr := conformance.Run(ctx, conformance.Options{
		BaseURL:           cfg.Target.BaseURL,
		APIKey:            cfg.Target.APIKey,
		Timeout:           cfg.Timeout(),
		OwnerAgent:        cfg.Target.OwnerAgent,
		RequestsPerSecond: cfg.Run.RequestsPerSecond,
		Logger:            logger,
	})
	finished := time.Now()

	if cfg.Journal.Path != "" {
		// Fresh context: the run context may already be cancelled by a signal
		recordRun(context.Background(), cfg.Journal.Path, cfg.Target.BaseURL, started, finished, results)
	}

	if *jsonOut {
		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(conformance.Render(results))
	}

	if runErr != nil {
		slog.Error("run aborted", "error", runErr, "completed_checks", len(results))
		os.Exit(2)
	}
	if !conformance.AllPassed(results) {
		os.Exit(1)
	}
}

// recordRun appends the run to the SQLite journal. Journal failures are
// reported but never change the runner's verdict.
func recordRun(ctx context.Context, path, baseURL string, started, finished time.Time, results []conformance.Result) {
	store, err := journal.Open(path)
	if err != nil {
		slog.Warn("journal unavailable", "path", path, "error", err)
		return
	}
	defer store.Close()

	runID, err := store.RecordRun(ctx, baseURL, started, finished, results)
	if err != nil {
		slog.Warn("journal write failed", "path", path, "error", err)
		return
	}
	slog.Info("run recorded", "run_id", runID, "journal", path)
}
