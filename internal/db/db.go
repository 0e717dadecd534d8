// Package db persists the console's settings in a SQLite database
// opened with a single connection and versioned migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB owns the process's one SQLite connection.
type DB struct {
	conn *sql.DB
}

// dsn opens the file with foreign keys on and a busy timeout, so an
// outside process holding the file (a sqlite3 shell on the settings
// row) makes writes wait instead of failing with SQLITE_BUSY.
func dsn(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Open creates the database file and its directory when missing and
// brings the schema up to date. The pool is pinned to one connection:
// SQLite serializes writers anyway, and the daemon's only writer is the
// debounced settings save.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db: database path required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("db: create directory for %q: %w", path, err)
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("db: open %q: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db: ping %q: %w", path, err)
	}

	version, err := RunMigrations(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	slog.Debug("database ready", "path", path, "schema_version", version)

	return &DB{conn: conn}, nil
}

// SQL exposes the underlying connection for the repositories.
func (d *DB) SQL() *sql.DB {
	return d.conn
}

func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
