package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
)

// versionKey is the _meta row holding the applied schema version.
const versionKey = "schema_version"

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create settings table",
		sql: `
CREATE TABLE IF NOT EXISTS settings (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	host       TEXT NOT NULL DEFAULT '',
	username   TEXT NOT NULL DEFAULT '',
	password   TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);`,
	},
}

// schemaVersion ensures the _meta table exists and returns the version
// recorded in it, seeding 0 on a fresh database.
func schemaVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS _meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`)
	if err != nil {
		return 0, fmt.Errorf("db: create _meta table: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO _meta (key, value) VALUES (?, '0')`, versionKey)
	if err != nil {
		return 0, fmt.Errorf("db: seed schema version: %w", err)
	}

	var raw string
	if err := tx.QueryRowContext(ctx,
		`SELECT value FROM _meta WHERE key = ?`, versionKey).Scan(&raw); err != nil {
		return 0, fmt.Errorf("db: read schema version: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("db: parse schema version %q: %w", raw, err)
	}
	return version, nil
}

// RunMigrations applies every migration past the recorded version in a
// single transaction and returns the version the schema ends at.
func RunMigrations(ctx context.Context, conn *sql.DB) (int, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("db: begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := schemaVersion(ctx, tx)
	if err != nil {
		return 0, err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		slog.Info("applying schema migration", "version", m.version, "name", m.name)
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return 0, fmt.Errorf("db: apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE _meta SET value = ? WHERE key = ?`,
			strconv.Itoa(m.version), versionKey); err != nil {
			return 0, fmt.Errorf("db: record migration %d: %w", m.version, err)
		}
		current = m.version
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("db: commit migrations: %w", err)
	}
	return current, nil
}
