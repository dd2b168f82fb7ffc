// Package journal persists conformance runs to SQLite so results can be
// compared across invocations of the runner.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	conformance "github.com/AxmeAI/axme-conformance"
)

// ErrNotFound is returned when a run id is not in the journal.
var ErrNotFound = errors.New("journal: run not found")

// Run summarizes one recorded suite run.
type Run struct {
	ID         string
	BaseURL    string
	StartedAt  time.Time
	FinishedAt time.Time
	Passed     int
	Total      int
}

// Store is a SQLite-backed journal of suite runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal at path and ensures the schema exists.
// ":memory:" yields an ephemeral journal for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("journal path is required")
	}
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal directory %s: %w", dir, err)
			}
		}
		// WAL keeps readers unblocked while a run is being recorded
		dsn = fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// SQLite allows a single writer; a second connection only causes lock churn
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			base_url TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			passed INTEGER NOT NULL,
			total INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			passed INTEGER NOT NULL,
			details TEXT,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create journal schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// RecordRun stores one suite run with its per-check results, preserving the
// execution order, and returns the generated run id.
func (s *Store) RecordRun(ctx context.Context, baseURL string, startedAt, finishedAt time.Time, results []conformance.Result) (string, error) {
	runID := uuid.NewString()
	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin journal transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, base_url, started_at, finished_at, passed, total) VALUES (?, ?, ?, ?, ?, ?)`,
		runID,
		baseURL,
		startedAt.UTC().Format(time.RFC3339Nano),
		finishedAt.UTC().Format(time.RFC3339Nano),
		passed,
		len(results),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for i, r := range results {
		// Bool to int for SQLite
		passedInt := 0
		if r.Passed {
			passedInt = 1
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO results (run_id, seq, name, passed, details) VALUES (?, ?, ?, ?, ?)`,
			runID, i, r.Name, passedInt, r.Details,
		)
		if err != nil {
			return "", fmt.Errorf("insert result %s: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit journal transaction: %w", err)
	}
	return runID, nil
}

// RecentRuns returns up to limit run summaries, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, base_url, started_at, finished_at, passed, total
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			startedAt  string
			finishedAt string
		)
		if err := rows.Scan(&run.ID, &run.BaseURL, &startedAt, &finishedAt, &run.Passed, &run.Total); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunResults returns the per-check results of a recorded run in execution
// order. Unknown run ids yield ErrNotFound.
func (s *Store) RunResults(ctx context.Context, runID string) ([]conformance.Result, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, passed, details FROM results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []conformance.Result
	for rows.Next() {
		var (
			r         conformance.Result
			passedInt int
		)
		if err := rows.Scan(&r.Name, &passedInt, &r.Details); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Passed = passedInt != 0
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
