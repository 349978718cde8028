package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned whenever a lookup matches no live row.
var ErrNotFound = errors.New("not found")

// IsUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. The driver exposes no typed error for it, so this matches
// the message the way sqlite tooling generally does.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Querier is satisfied by both *sql.DB and *sql.Tx so repository
// methods can run standalone or inside a push transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps the sql.DB handle shared by all repositories.
type DB struct {
	*sql.DB
}

// Open opens the SQLite database at path, creating parent directories
// and the schema as needed. WAL mode keeps readers unblocked during
// push transactions; a single writer connection sidesteps SQLITE_BUSY.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Savepoint helpers give push per-op atomicity inside the batch
// transaction: a failing op rolls back to its savepoint and the rest
// of the batch continues.

func Savepoint(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, "SAVEPOINT "+name)
	return err
}

func ReleaseSavepoint(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

func RollbackToSavepoint(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return err
}

// Timestamps are stored as RFC 3339 text in UTC so snapshots in the
// change log and column values never disagree on format.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'inspector',
	active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS properties (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT UNIQUE,
	revision INTEGER NOT NULL DEFAULT 1,
	property_type TEXT NOT NULL,
	designation TEXT NOT NULL,
	address TEXT NOT NULL,
	owner TEXT,
	postal_code TEXT,
	city TEXT,
	num_apartments INTEGER,
	num_premises INTEGER,
	notes TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS inspections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT UNIQUE,
	revision INTEGER NOT NULL DEFAULT 1,
	property_id INTEGER NOT NULL REFERENCES properties(id),
	inspector_id INTEGER REFERENCES users(id),
	date TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft',
	active_time_seconds INTEGER NOT NULL DEFAULT 0,
	notes TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS apartments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT UNIQUE,
	revision INTEGER NOT NULL DEFAULT 1,
	inspection_id INTEGER NOT NULL REFERENCES inspections(id),
	apartment_number TEXT NOT NULL,
	rooms TEXT NOT NULL DEFAULT '[]',
	notes TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS defects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT UNIQUE,
	revision INTEGER NOT NULL DEFAULT 1,
	apartment_id INTEGER NOT NULL REFERENCES apartments(id),
	room_index INTEGER NOT NULL,
	description TEXT NOT NULL,
	code TEXT,
	title TEXT,
	remedy TEXT,
	severity TEXT NOT NULL DEFAULT 'medium',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS measurements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT UNIQUE,
	revision INTEGER NOT NULL DEFAULT 1,
	inspection_id INTEGER NOT NULL REFERENCES inspections(id),
	type TEXT NOT NULL,
	value REAL NOT NULL,
	unit TEXT NOT NULL,
	apartment_number TEXT,
	sort_key INTEGER,
	notes TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS change_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL,
	server_id INTEGER NOT NULL,
	action TEXT NOT NULL,
	revision INTEGER NOT NULL,
	payload TEXT,
	changed_by_user_id INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_change_log_entity ON change_log(entity_type, server_id);
CREATE INDEX IF NOT EXISTS idx_change_log_created_at ON change_log(created_at);

CREATE TABLE IF NOT EXISTS sync_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	idempotency_key TEXT NOT NULL UNIQUE,
	device_id TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	response_body TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	processed_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_log_expires_at ON sync_log(expires_at);
`
