package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Settings is the single persisted credentials row. The password is
// stored in clear; the database lives next to the config file with the
// same access assumptions.
type Settings struct {
	Host      string    `json:"host"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SettingsRepo struct {
	db *sql.DB
}

func NewSettingsRepo(db *sql.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// Save upserts the settings row.
func (r *SettingsRepo) Save(ctx context.Context, s Settings) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = nowUTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO settings (id, host, username, password, updated_at)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	host = excluded.host,
	username = excluded.username,
	password = excluded.password,
	updated_at = excluded.updated_at
`, s.Host, s.Username, s.Password, formatTimestamp(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	return nil
}

// Load returns the stored settings, or zero values when nothing was
// saved yet.
func (r *SettingsRepo) Load(ctx context.Context) (Settings, error) {
	var s Settings
	var updatedAtRaw string

	err := r.db.QueryRowContext(ctx, `
SELECT host, username, password, updated_at
FROM settings
WHERE id = 1
`).Scan(&s.Host, &s.Username, &s.Password, &updatedAtRaw)
	if err != nil {
		if err == sql.ErrNoRows {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	s.UpdatedAt, err = parseTimestamp(updatedAtRaw)
	if err != nil {
		return Settings{}, err
	}

	return s, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = nowUTC()
	}
	return ts.UTC().Format(time.RFC3339)
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return ts, nil
}
