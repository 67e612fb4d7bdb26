package repo

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// Repo holds the small key/value and credential tables.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Setting keys.
const (
	SettingLoggingEnabled = "logging_enabled"
)

// GetSetting returns the stored value for key.
func (r Repo) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// PutSetting upserts key.
func (r Repo) PutSetting(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, now)
	return err
}

// GetBool reads a boolean setting, falling back to def when unset.
func (r Repo) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, err := r.GetSetting(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, nil
	}
	return b, nil
}

// PutBool stores a boolean setting.
func (r Repo) PutBool(ctx context.Context, key string, v bool) error {
	return r.PutSetting(ctx, key, strconv.FormatBool(v))
}

// DeleteSettings removes every setting.
func (r Repo) DeleteSettings(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM settings`)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
