// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history records harvest runs and their results in SQLite so later
// runs can skip institutions that already have a downloaded PDF and so past
// outcomes can be listed.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/pdf-harvester/pkg/types"
)

// DefaultPath is where the history database lives unless configured.
const DefaultPath = "logs/history.db"

// Store manages the history database.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Run is one invocation of the harvest command.
type Run struct {
	ID             string       `db:"id"`
	StartedAt      time.Time    `db:"started_at"`
	FinishedAt     sql.NullTime `db:"finished_at"`
	Profile        string       `db:"profile"`
	Input          string       `db:"input"`
	Downloaded     int          `db:"downloaded"`
	ManualRequired int          `db:"manual_required"`
	NotFound       int          `db:"not_found"`
	Errors         int          `db:"errors"`
}

// Total returns the number of results recorded for the run.
func (r Run) Total() int {
	return r.Downloaded + r.ManualRequired + r.NotFound + r.Errors
}

// record is the row shape of the results table.
type record struct {
	ID          int64     `db:"id"`
	RunID       string    `db:"run_id"`
	Institution string    `db:"institution"`
	StartURL    string    `db:"start_url"`
	FinalURL    string    `db:"final_url"`
	Status      string    `db:"status"`
	FilePath    string    `db:"file_path"`
	Notes       string    `db:"notes"`
	Actions     string    `db:"actions"`
	Screenshot  string    `db:"screenshot"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
}

func (rec record) result() *types.HarvestResult {
	r := &types.HarvestResult{
		Institution: rec.Institution,
		StartURL:    rec.StartURL,
		FinalURL:    rec.FinalURL,
		Status:      types.Status(rec.Status),
		FilePath:    rec.FilePath,
		Notes:       rec.Notes,
		Actions:     []string{},
		Screenshot:  rec.Screenshot,
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
	}
	if rec.Actions != "" {
		// A corrupt column leaves the actions empty rather than hiding the row.
		_ = json.Unmarshal([]byte(rec.Actions), &r.Actions)
	}
	return r
}

// Open opens or creates the history database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			profile TEXT NOT NULL DEFAULT '',
			input TEXT NOT NULL DEFAULT '',
			downloaded INTEGER NOT NULL DEFAULT 0,
			manual_required INTEGER NOT NULL DEFAULT 0,
			not_found INTEGER NOT NULL DEFAULT 0,
			errors INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			institution TEXT NOT NULL,
			start_url TEXT NOT NULL,
			final_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			file_path TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			actions TEXT NOT NULL DEFAULT '[]',
			screenshot TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_task ON results(institution, start_url, status)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// BeginRun inserts a new run and returns its ID.
func (s *Store) BeginRun(ctx context.Context, profile types.InvestorProfile, input string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, profile, input) VALUES (?, ?, ?, ?)`,
		id, s.now().UTC(), string(profile), input)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// RecordResult stores a finalized result under runID.
func (s *Store) RecordResult(ctx context.Context, runID string, r *types.HarvestResult) error {
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("encoding actions: %w", err)
	}
	rec := record{
		RunID:       runID,
		Institution: r.Institution,
		StartURL:    r.StartURL,
		FinalURL:    r.FinalURL,
		Status:      string(r.Status),
		FilePath:    r.FilePath,
		Notes:       r.Notes,
		Actions:     string(actions),
		Screenshot:  r.Screenshot,
		StartedAt:   r.StartedAt.UTC(),
		FinishedAt:  r.FinishedAt.UTC(),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO results (
			run_id, institution, start_url, final_url, status, file_path,
			notes, actions, screenshot, started_at, finished_at
		) VALUES (
			:run_id, :institution, :start_url, :final_url, :status, :file_path,
			:notes, :actions, :screenshot, :started_at, :finished_at
		)`, rec)
	if err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}
	return nil
}

// FinishRun stamps the run's end time and stores its per-status counts.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			downloaded = (SELECT COUNT(*) FROM results WHERE run_id = runs.id AND status = 'downloaded'),
			manual_required = (SELECT COUNT(*) FROM results WHERE run_id = runs.id AND status = 'manual_required'),
			not_found = (SELECT COUNT(*) FROM results WHERE run_id = runs.id AND status = 'not_found'),
			errors = (SELECT COUNT(*) FROM results WHERE run_id = runs.id AND status = 'error')
		WHERE id = ?`, s.now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, started_at, finished_at, profile, input,
		       downloaded, manual_required, not_found, errors
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// LatestRunID returns the ID of the most recently started run.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("finding latest run: %w", err)
	}
	return id, nil
}

// Results returns the results recorded for runID in insertion order.
func (s *Store) Results(ctx context.Context, runID string) ([]*types.HarvestResult, error) {
	var recs []record
	err := s.db.SelectContext(ctx, &recs, `SELECT * FROM results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	out := make([]*types.HarvestResult, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.result())
	}
	return out, nil
}

// LastDownload returns the most recent downloaded result for the task, or
// nil when there is none.
func (s *Store) LastDownload(ctx context.Context, task types.HarvestTask) (*types.HarvestResult, error) {
	var rec record
	err := s.db.GetContext(ctx, &rec, `
		SELECT * FROM results
		WHERE institution = ? AND start_url = ? AND status = 'downloaded'
		ORDER BY finished_at DESC, id DESC
		LIMIT 1`, task.Institution, task.StartURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up download: %w", err)
	}
	return rec.result(), nil
}

// AlreadyDownloaded reports whether task has a downloaded result whose file
// is still on disk. It is shaped for harvest.WithSkip.
func (s *Store) AlreadyDownloaded(ctx context.Context) func(types.HarvestTask) (string, bool) {
	return func(task types.HarvestTask) (string, bool) {
		r, err := s.LastDownload(ctx, task)
		if err != nil || r == nil {
			return "", false
		}
		if _, err := os.Stat(r.FilePath); err != nil {
			return "", false
		}
		return "already downloaded: " + r.FilePath, true
	}
}
