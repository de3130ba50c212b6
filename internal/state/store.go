// Package state persists the provisioning run journal. Every setup
// run is recorded with its per-step outcomes so `buildit status` can
// answer what the last run did and which steps have ever warned or
// failed on this machine.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"buildit/internal/step"
)

// Store manages the run journal database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// RunRecord is one journaled setup run.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Failed     bool
	DryRun     bool
}

// StepRecord is one journaled step outcome.
type StepRecord struct {
	RunID    string
	Position int
	StepID   string
	Summary  string
	Status   step.Status
	Err      string
	Duration time.Duration
}

// NewStore creates or opens the journal under the buildit home
// directory.
func NewStore(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, "state.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS step_results (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		step_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, position),
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);
	CREATE INDEX IF NOT EXISTS idx_step_results_step ON step_results(step_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun journals a completed run and its step results in one
// transaction.
func (s *Store) RecordRun(report *step.Report, dryRun bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, started_at, finished_at, duration_ms, failed, dry_run)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		report.RunID, report.StartedAt, report.FinishedAt,
		report.Duration.Milliseconds(), boolToInt(report.Failed), boolToInt(dryRun),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, res := range report.Results {
		_, err = tx.Exec(
			`INSERT INTO step_results (run_id, position, step_id, summary, status, error, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, i, res.StepID, res.Summary, string(res.Status), res.Err,
			res.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert step result: %w", err)
		}
	}

	return tx.Commit()
}

// LastRun returns the most recent run, or nil when the journal is
// empty.
func (s *Store) LastRun() (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT run_id, started_at, finished_at, duration_ms, failed, dry_run
		 FROM runs ORDER BY started_at DESC LIMIT 1`)

	var rec RunRecord
	var durationMs int64
	var failed, dryRun int
	err := row.Scan(&rec.RunID, &rec.StartedAt, &rec.FinishedAt, &durationMs, &failed, &dryRun)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last run: %w", err)
	}

	rec.Duration = time.Duration(durationMs) * time.Millisecond
	rec.Failed = failed != 0
	rec.DryRun = dryRun != 0
	return &rec, nil
}

// StepResults returns the journaled step outcomes of a run, in order.
func (s *Store) StepResults(runID string) ([]StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT run_id, position, step_id, summary, status, error, duration_ms
		 FROM step_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step results: %w", err)
	}
	defer rows.Close()

	var records []StepRecord
	for rows.Next() {
		var rec StepRecord
		var status string
		var errText sql.NullString
		var durationMs int64
		if err := rows.Scan(&rec.RunID, &rec.Position, &rec.StepID, &rec.Summary, &status, &errText, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		rec.Status = step.Status(status)
		rec.Err = errText.String
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(
		`SELECT run_id, started_at, finished_at, duration_ms, failed, dry_run
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var durationMs int64
		var failed, dryRun int
		if err := rows.Scan(&rec.RunID, &rec.StartedAt, &rec.FinishedAt, &durationMs, &failed, &dryRun); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.Failed = failed != 0
		rec.DryRun = dryRun != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
