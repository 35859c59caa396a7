// Package store keeps a local history of finished runs and their scanned
// listings in SQLite, backing the history command and the recently-scanned
// view.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atspilot/atspilot/internal/jobs"

	_ "modernc.org/sqlite"
)

// RunRecord is one finished run as remembered locally.
type RunRecord struct {
	RunID      string
	Mode       string
	Status     string
	Error      string
	CreatedAt  time.Time
	FinishedAt time.Time
}

type Store struct {
	db *sql.DB
}

// DefaultPath returns the history database location under the user's home.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}

	return filepath.Join(home, ".atspilot", "history.db"), nil
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("history: mkdir %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		mode        TEXT NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT,
		created_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS run_jobs (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id    TEXT NOT NULL,
		job_id    TEXT,
		title     TEXT,
		company   TEXT,
		location  TEXT,
		ats_score INTEGER,
		apply_url TEXT,
		source    TEXT
	)`)

	return err
}

// RecordRun upserts a finished run.
func (s *Store) RecordRun(_ context.Context, rec *RunRecord) error {
	if rec == nil || rec.RunID == "" {
		return errors.New("history: run id is required")
	}

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, mode, status, error, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   status = excluded.status,
		   error = excluded.error,
		   finished_at = excluded.finished_at`,
		rec.RunID, rec.Mode, rec.Status, rec.Error,
		created.Format(time.RFC3339), finished.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("history: record run: %w", err)
	}

	return nil
}

// SaveJobs replaces the stored listings for a run.
func (s *Store) SaveJobs(_ context.Context, runID string, listings *jobs.Jobs) error {
	if runID == "" {
		return errors.New("history: run id is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("history: save jobs: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`DELETE FROM run_jobs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("history: save jobs: %w", err)
	}

	for _, job := range listings.Items {
		_, err = tx.Exec(
			`INSERT INTO run_jobs (run_id, job_id, title, company, location, ats_score, apply_url, source)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, job.ID, job.Title, job.Company, job.Location, job.ATSScore, job.ApplyURL, job.Source,
		)
		if err != nil {
			return fmt.Errorf("history: save jobs: %w", err)
		}
	}

	return tx.Commit()
}

// RecentRuns lists finished runs, most recent first. A non-positive limit
// defaults to 20; limits above 100 are clamped to 100.
func (s *Store) RecentRuns(_ context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	if limit > 100 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT run_id, mode, status, error, created_at, finished_at
		 FROM runs ORDER BY finished_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord

	for rows.Next() {
		var (
			rec               RunRecord
			errMsg            sql.NullString
			created, finished string
		)

		if err := rows.Scan(&rec.RunID, &rec.Mode, &rec.Status, &errMsg, &created, &finished); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}

		rec.Error = errMsg.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
		rec.FinishedAt, _ = time.Parse(time.RFC3339, finished)

		records = append(records, &rec)
	}

	return records, rows.Err()
}

// JobsForRun returns the stored listings for a run.
func (s *Store) JobsForRun(_ context.Context, runID string) (*jobs.Jobs, error) {
	rows, err := s.db.Query(
		`SELECT job_id, title, company, location, ats_score, apply_url, source
		 FROM run_jobs WHERE run_id = ? ORDER BY ats_score DESC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("history: list jobs: %w", err)
	}
	defer rows.Close()

	listings := &jobs.Jobs{}

	for rows.Next() {
		var job jobs.Job

		if err := rows.Scan(&job.ID, &job.Title, &job.Company, &job.Location, &job.ATSScore, &job.ApplyURL, &job.Source); err != nil {
			return nil, fmt.Errorf("history: scan job: %w", err)
		}

		listings.Items = append(listings.Items, &job)
	}

	return listings, rows.Err()
}
