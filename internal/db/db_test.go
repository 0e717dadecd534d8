package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roboterm-test.db")
	database, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := database.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	})
	return database, path
}

func assertTableExists(t *testing.T, conn *sql.DB, table string) {
	t.Helper()
	var count int
	err := conn.QueryRow(`SELECT count(1) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master error: %v", err)
	}
	if count != 1 {
		t.Fatalf("table %q not found", table)
	}
}

// TestOpenCreatesDBFileAndRunsMigrations verifies the database file is
// created on first open, the schema is in place and the recorded
// version matches the last migration.
func TestOpenCreatesDBFileAndRunsMigrations(t *testing.T) {
	database, path := openTestDB(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected DB file at %q: %v", path, err)
	}

	assertTableExists(t, database.SQL(), "_meta")
	assertTableExists(t, database.SQL(), "settings")

	var version string
	err := database.SQL().QueryRow(`SELECT value FROM _meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != "1" {
		t.Fatalf("schema version = %q, want \"1\"", version)
	}
}

// TestOpenIsIdempotent verifies a second open on the same file keeps
// the stored data intact.
func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roboterm-test.db")

	first, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	repo := NewSettingsRepo(first.SQL())
	if err := repo.Save(context.Background(), Settings{Host: "10.0.0.1", Username: "robot"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer second.Close()

	got, err := NewSettingsRepo(second.SQL()).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Host != "10.0.0.1" || got.Username != "robot" {
		t.Fatalf("settings lost across reopen: %+v", got)
	}
}

// TestOpenRejectsEmptyPath verifies the guard on the database path.
func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// TestSettingsLoadBeforeSave verifies zero values come back when no row
// was ever written.
func TestSettingsLoadBeforeSave(t *testing.T) {
	database, _ := openTestDB(t)
	repo := NewSettingsRepo(database.SQL())

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Host != "" || got.Username != "" || got.Password != "" {
		t.Fatalf("expected zero settings, got %+v", got)
	}
	if !got.UpdatedAt.IsZero() {
		t.Fatalf("expected zero timestamp, got %v", got.UpdatedAt)
	}
}

// TestSettingsSaveAndLoad verifies a round-trip through the single row.
func TestSettingsSaveAndLoad(t *testing.T) {
	database, _ := openTestDB(t)
	repo := NewSettingsRepo(database.SQL())

	in := Settings{Host: "192.168.1.10", Username: "ubuntu", Password: "turtlebot"}
	if err := repo.Save(context.Background(), in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Host != in.Host || got.Username != in.Username || got.Password != in.Password {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("updated_at not set")
	}
	if time.Since(got.UpdatedAt) > time.Minute {
		t.Fatalf("updated_at looks stale: %v", got.UpdatedAt)
	}
}

// TestSettingsSaveOverwrites verifies the second save replaces the row
// rather than adding one.
func TestSettingsSaveOverwrites(t *testing.T) {
	database, _ := openTestDB(t)
	repo := NewSettingsRepo(database.SQL())

	if err := repo.Save(context.Background(), Settings{Host: "old", Username: "a"}); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if err := repo.Save(context.Background(), Settings{Host: "new", Username: "b", Password: "pw"}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Host != "new" || got.Username != "b" || got.Password != "pw" {
		t.Fatalf("expected overwritten row, got %+v", got)
	}

	var count int
	if err := database.SQL().QueryRow(`SELECT count(1) FROM settings`).Scan(&count); err != nil {
		t.Fatalf("count error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 settings row, got %d", count)
	}
}
