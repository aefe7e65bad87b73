package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"reelsight/internal/job"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// ErrSchemaMismatch indicates the database was created by an incompatible build.
var ErrSchemaMismatch = errors.New("history: schema version mismatch")

// Entry is one recorded job.
type Entry struct {
	ID           string     `json:"id"`
	Owner        string     `json:"owner,omitempty"`
	Status       string     `json:"status"`
	CurrentStage string     `json:"currentStage,omitempty"`
	FailedStage  string     `json:"failedStage,omitempty"`
	Error        string     `json:"error,omitempty"`
	ErrorCode    string     `json:"errorCode,omitempty"`
	ResultKey    string     `json:"resultKey,omitempty"`
	Progress     int        `json:"progress"`
	Filename     string     `json:"filename,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	ResumedFrom  string     `json:"resumedFrom,omitempty"`
}

// Filter narrows List. Zero values match everything; Limit defaults to 50.
type Filter struct {
	Owner  string
	Status string
	Limit  int
}

// Store persists job history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history: database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Record upserts the snapshot of a job.
func (s *Store) Record(ctx context.Context, snap job.Snapshot) error {
	if strings.TrimSpace(snap.ID) == "" {
		return errors.New("history: job id required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (
    id, owner, status, current_stage, failed_stage, error, error_code,
    result_key, progress, filename, started_at, ended_at, resumed_from, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    current_stage = excluded.current_stage,
    failed_stage = excluded.failed_stage,
    error = excluded.error,
    error_code = excluded.error_code,
    result_key = excluded.result_key,
    progress = excluded.progress,
    ended_at = excluded.ended_at,
    updated_at = excluded.updated_at`,
			snap.ID,
			nullableString(snap.Owner),
			string(snap.Status),
			nullableString(snap.CurrentStage),
			nullableString(snap.FailedStage),
			nullableString(snap.Error),
			nullableString(snap.ErrorCode),
			nullableString(snap.ResultKey),
			snap.Progress,
			nullableString(snap.Input.Filename),
			snap.StartedAt.UTC().Format(time.RFC3339Nano),
			nullableTime(snap.EndedAt),
			nullableString(snap.ResumedFrom),
			now,
		)
		if err != nil {
			return fmt.Errorf("record job %s: %w", snap.ID, err)
		}
		return nil
	})
}

const entryColumns = "id, owner, status, current_stage, failed_stage, error, error_code, result_key, progress, filename, started_at, ended_at, resumed_from"

// Get returns the entry for id. The boolean is false when no row exists.
func (s *Store) Get(ctx context.Context, id string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM jobs WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get job %s: %w", id, err)
	}
	return entry, true, nil
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if owner := strings.TrimSpace(filter.Owner); owner != "" {
		clauses = append(clauses, "owner = ?")
		args = append(args, owner)
	}
	if status := strings.ToLower(strings.TrimSpace(filter.Status)); status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `SELECT ` + entryColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return entries, nil
}
