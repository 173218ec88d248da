// Package db provides SQLite database access for Signoff.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQL database handle used by all repositories.
type DB struct {
	*sql.DB
}

// Options configures how the database is opened.
type Options struct {
	// MaxConnections limits the connection pool size.
	MaxConnections int

	// BusyTimeoutMs is how long SQLite waits on a locked database.
	BusyTimeoutMs int
}

// DefaultOptions returns the default open options.
func DefaultOptions() Options {
	return Options{
		MaxConnections: 10,
		BusyTimeoutMs:  5000,
	}
}

// Open opens the database at path, applying the standard pragmas.
func Open(path string, opts Options) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultOptions().MaxConnections
	}
	if opts.BusyTimeoutMs <= 0 {
		opts.BusyTimeoutMs = DefaultOptions().BusyTimeoutMs
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)",
		path, opts.BusyTimeoutMs)

	return open(dsn, opts)
}

// OpenInMemory opens a private in-memory database, used by tests.
func OpenInMemory() (*DB, error) {
	opts := DefaultOptions()
	// A single connection keeps every query on the same in-memory database.
	opts.MaxConnections = 1
	return open("file::memory:?_pragma=foreign_keys(ON)", opts)
}

func open(dsn string, opts Options) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxConnections)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// Migrate creates the schema if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS approval_requests (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			project_id TEXT,
			task_id TEXT,
			requester_id TEXT NOT NULL REFERENCES users(id),
			type TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step_index INTEGER NOT NULL DEFAULT 0,
			budget_amount INTEGER,
			priority TEXT,
			attachments_json TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS approval_steps (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL REFERENCES approval_requests(id),
			step_number INTEGER NOT NULL,
			approver_id TEXT NOT NULL REFERENCES users(id),
			status TEXT NOT NULL,
			comment TEXT,
			decided_at TEXT,
			created_at TEXT NOT NULL,
			UNIQUE (request_id, approver_id)
		)`,
		`CREATE TABLE IF NOT EXISTS approval_comments (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL REFERENCES approval_requests(id),
			author_id TEXT NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			attachments_json TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			type TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			actor_id TEXT,
			payload_json TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			key_hash TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_used_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS approval_requests_status_idx ON approval_requests(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS approval_requests_requester_idx ON approval_requests(requester_id)`,
		`CREATE INDEX IF NOT EXISTS approval_steps_request_idx ON approval_steps(request_id, step_number)`,
		`CREATE INDEX IF NOT EXISTS approval_steps_approver_idx ON approval_steps(approver_id, status)`,
		`CREATE INDEX IF NOT EXISTS approval_comments_request_idx ON approval_comments(request_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS events_entity_idx ON events(entity_type, entity_id, timestamp)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// Transaction runs fn inside a transaction, rolling back on error.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") ||
		strings.Contains(message, "constraint failed")
}

func stringTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// timeLayoutNano is a fixed-width nano layout. RFC3339Nano drops
// trailing zeros, which breaks lexical ordering of stored strings
// within a second; this layout keeps them.
const timeLayoutNano = "2006-01-02T15:04:05.000000000Z07:00"

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	return t, nil
}
