// Package events keeps the operator-facing activity journal: a bounded,
// newest-first list of what the generators and the engine did.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"demopilot/internal/domain"
	"demopilot/internal/repo"
)

// DefaultMaxEntries is the journal cap when none is configured.
const DefaultMaxEntries = 100

// Journal appends entries to activity_log and trims it to MaxEntries.
// When disabled, Log drops messages.
type Journal struct {
	DB         *sql.DB
	Settings   repo.Repo
	MaxEntries int
	// Mirror, when set, receives every entry as a plain log line.
	Mirror *log.Logger
	// Errors receives storage failures of Log, which has no error return.
	Errors *log.Logger
	Now    func() time.Time

	enabled atomic.Bool
}

// Options for New.
type Options struct {
	MaxEntries     int
	EnabledDefault bool
	Mirror         *log.Logger
	Errors         *log.Logger
}

// New builds a Journal. The enabled flag is read from settings and falls back
// to opts.EnabledDefault when it was never toggled.
func New(ctx context.Context, db *sql.DB, opts Options) (*Journal, error) {
	j := &Journal{
		DB:         db,
		Settings:   repo.Repo{DB: db},
		MaxEntries: opts.MaxEntries,
		Mirror:     opts.Mirror,
		Errors:     opts.Errors,
		Now:        time.Now,
	}
	if j.MaxEntries < 1 {
		j.MaxEntries = DefaultMaxEntries
	}
	enabled, err := j.Settings.GetBool(ctx, repo.SettingLoggingEnabled, opts.EnabledDefault)
	if err != nil {
		return nil, fmt.Errorf("read logging flag: %w", err)
	}
	j.enabled.Store(enabled)
	return j, nil
}

func (j *Journal) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *Journal) errorf(format string, args ...any) {
	l := j.Errors
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}

// Enabled reports whether Log records messages.
func (j *Journal) Enabled() bool { return j.enabled.Load() }

// Enable turns logging on and persists the flag.
func (j *Journal) Enable(ctx context.Context) error { return j.setEnabled(ctx, true) }

// Disable turns logging off and persists the flag.
func (j *Journal) Disable(ctx context.Context) error { return j.setEnabled(ctx, false) }

func (j *Journal) setEnabled(ctx context.Context, v bool) error {
	if err := j.Settings.PutBool(ctx, repo.SettingLoggingEnabled, v); err != nil {
		return err
	}
	j.enabled.Store(v)
	return nil
}

// Log records message. Storage failures are reported on the Errors logger.
func (j *Journal) Log(ctx context.Context, message, level, generator string) {
	if err := j.Append(ctx, message, level, generator); err != nil {
		j.errorf("journal: %v", err)
	}
}

// Append is Log with the storage error returned.
func (j *Journal) Append(ctx context.Context, message, level, generator string) error {
	if !j.Enabled() {
		return nil
	}
	level = normalizeLevel(level)
	if j.Mirror != nil {
		prefix := ""
		if generator != "" {
			prefix = "[" + generator + "] "
		}
		j.Mirror.Printf("[demopilot] [%s] %s%s", strings.ToUpper(level), prefix, message)
	}
	tx, err := j.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ts := j.now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `INSERT INTO activity_log(ts,level,message,generator) VALUES (?,?,?,?)`,
		ts, level, message, nullable(generator)); err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_log WHERE id NOT IN (SELECT id FROM activity_log ORDER BY id DESC LIMIT ?)`, j.MaxEntries); err != nil {
		return fmt.Errorf("trim log: %w", err)
	}
	return tx.Commit()
}

// Query filters Logs. Zero values match everything; Limit <= 0 returns up to
// MaxEntries.
type Query struct {
	Limit     int
	Level     string
	Generator string
}

// Logs returns entries newest first.
func (j *Journal) Logs(ctx context.Context, q Query) ([]domain.LogEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if q.Level != "" {
		clauses = append(clauses, "level=?")
		args = append(args, q.Level)
	}
	if q.Generator != "" {
		clauses = append(clauses, "generator=?")
		args = append(args, q.Generator)
	}
	query := `SELECT id,ts,level,message,COALESCE(generator,'') FROM activity_log`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := q.Limit
	if limit <= 0 || limit > j.MaxEntries {
		limit = j.MaxEntries
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := j.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.LogEntry{}
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.Message, &e.Generator); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// After returns up to limit entries with an id greater than cursor, oldest
// first.
func (j *Journal) After(ctx context.Context, cursor int64, limit int) ([]domain.LogEntry, error) {
	rows, err := j.DB.QueryContext(ctx, `SELECT id,ts,level,message,COALESCE(generator,'') FROM activity_log WHERE id > ? ORDER BY id LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.LogEntry{}
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.Message, &e.Generator); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestID returns the id of the newest entry, or 0.
func (j *Journal) LatestID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := j.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM activity_log`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// Clear removes every entry.
func (j *Journal) Clear(ctx context.Context) error {
	_, err := j.DB.ExecContext(ctx, `DELETE FROM activity_log`)
	return err
}

func normalizeLevel(level string) string {
	switch level {
	case domain.LevelInfo, domain.LevelWarning, domain.LevelError, domain.LevelSuccess:
		return level
	default:
		return domain.LevelInfo
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
