// Package audit persists publish-run history to SQLite: one row per batch,
// so a partially failed run stays inspectable after the fact.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Schema for the publish_runs table. Applied by Store.Init().
const Schema = `
CREATE TABLE IF NOT EXISTS publish_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	page_id TEXT NOT NULL,
	succeeded INTEGER NOT NULL,
	total INTEGER NOT NULL,
	errors TEXT NOT NULL DEFAULT '[]',
	duration_ms INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_publish_runs_created ON publish_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_publish_runs_page ON publish_runs(page_id);
`

// BatchRecord is one persisted publish run.
type BatchRecord struct {
	ID        int64
	PageID    string
	Succeeded int
	Total     int
	Errors    []string
	Duration  time.Duration
	CreatedAt time.Time
}

// Store persists publish runs.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) a SQLite audit database at path, applies the
// production pragmas, and initializes the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit open %s: %s: %w", path, p, err)
		}
	}

	s := NewStore(db, logger)
	if err := s.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing database connection. Callers own the schema in
// this case; use Init() to apply it.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Init creates the publish_runs table if it doesn't exist.
func (s *Store) Init() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("audit init: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordBatch persists one publish run.
func (s *Store) RecordBatch(ctx context.Context, rec BatchRecord) error {
	errs := rec.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("audit record: marshal errors: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO publish_runs (page_id, succeeded, total, errors, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.PageID, rec.Succeeded, rec.Total, string(errJSON),
		rec.Duration.Milliseconds(), createdAt.Unix())
	if err != nil {
		return fmt.Errorf("audit record: %w", err)
	}

	s.logger.Debug("audit: batch recorded",
		"page_id", rec.PageID, "succeeded", rec.Succeeded, "total", rec.Total)
	return nil
}

// Recent returns the most recent publish runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, page_id, succeeded, total, errors, duration_ms, created_at
		 FROM publish_runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit recent: %w", err)
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		var rec BatchRecord
		var errJSON string
		var durationMS, createdAt int64
		if err := rows.Scan(&rec.ID, &rec.PageID, &rec.Succeeded, &rec.Total,
			&errJSON, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("audit recent: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(errJSON), &rec.Errors); err != nil {
			return nil, fmt.Errorf("audit recent: decode errors: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ForPage returns the publish runs for one page, newest first.
func (s *Store) ForPage(ctx context.Context, pageID string, limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, page_id, succeeded, total, errors, duration_ms, created_at
		 FROM publish_runs WHERE page_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		pageID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit for page %s: %w", pageID, err)
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		var rec BatchRecord
		var errJSON string
		var durationMS, createdAt int64
		if err := rows.Scan(&rec.ID, &rec.PageID, &rec.Succeeded, &rec.Total,
			&errJSON, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("audit for page %s: scan: %w", pageID, err)
		}
		if err := json.Unmarshal([]byte(errJSON), &rec.Errors); err != nil {
			return nil, fmt.Errorf("audit for page %s: decode errors: %w", pageID, err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}
