// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside the Go binary as a single file.
// For a low-QPS, single-region service it is the whole database tier: no server
// to run, and ":memory:" gives every test a fresh, isolated database.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of the SQLite C code, so no CGo,
// no C compiler, cross-compiles like any other Go package.
//
// UPSERTS:
// Every write in this package is `INSERT ... ON CONFLICT(user_id, day) DO UPDATE
// ... WHERE <guard>`. The UNIQUE(user_id, day) constraint guarantees one row per
// day; the WHERE guard turns the update into a compare-and-set. When the guard
// is false SQLite reports zero changed rows, which is how callers learn that a
// concurrent request (or a confirmed day) got in the way.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/outfits.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
//
// ONE CONNECTION:
// SQLite allows a single writer at a time. Capping the pool at one connection
// serialises writers inside the process instead of surfacing SQLITE_BUSY,
// and keeps a ":memory:" database alive (each new connection to ":memory:"
// would otherwise see its own empty database).
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Other processes (a backup job, the sqlite3 CLI) may hold the file lock briefly.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is idempotent, so migrate runs on every start.
// Columns added after the first release go through addColumnIfNotExists.
func (db *DB) migrate() error {
	// One row per (user, business day).
	// locked_until and image_attempted_at are Unix milliseconds: integer
	// comparison is exact, unlike SQLite's text datetimes.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS daily_records (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			day                TEXT NOT NULL,
			mood               TEXT NOT NULL DEFAULT '',
			gender             TEXT NOT NULL DEFAULT '',
			outfit             TEXT NOT NULL DEFAULT '',
			confirmed          BOOLEAN NOT NULL DEFAULT 0,
			locked_until       INTEGER,
			image              BLOB,
			image_generated    BOOLEAN NOT NULL DEFAULT 0,
			image_attempted    BOOLEAN NOT NULL DEFAULT 0,
			image_attempted_at INTEGER,
			image_error        TEXT,
			created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, day)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating daily_records table: %w", err)
	}

	if err := db.addColumnIfNotExists("daily_records", "image_mime_type",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding image_mime_type to daily_records: %w", err)
	}

	// Numeric daily quota for photo analysis.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_limits (
			user_id     TEXT PRIMARY KEY,
			daily_count INTEGER NOT NULL DEFAULT 0,
			last_day    TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user_limits table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so they are safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
