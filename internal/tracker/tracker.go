// Package tracker keeps the ledger of every record a generator created, so
// the records can be removed later.
package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"demopilot/internal/domain"
)

// deleteChunk bounds the number of placeholders in one DELETE ... IN (...).
const deleteChunk = 500

// Tracker reads and writes the generated_records table. Inserts are
// independent rows, so concurrent callers need no coordination.
type Tracker struct {
	DB  *sql.DB
	Now func() time.Time
}

func New(db *sql.DB) Tracker {
	return Tracker{DB: db, Now: time.Now}
}

func (t Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Track appends one ledger row and returns its id. An error means the
// storage layer failed.
func (t Tracker) Track(ctx context.Context, generator, kind string, recordID int64, metadata map[string]any) (int64, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := t.DB.ExecContext(ctx, `INSERT INTO generated_records(generator,data_type,record_id,metadata,created_at) VALUES (?,?,?,?,?)`,
		generator, kind, recordID, string(payload), t.now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("track %s/%s #%d: %w", generator, kind, recordID, err)
	}
	return res.LastInsertId()
}

func filter(generator, kind string) (string, []any) {
	clauses := []string{"generator=?"}
	args := []any{generator}
	if kind != "" {
		clauses = append(clauses, "data_type=?")
		args = append(args, kind)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// GetTracked returns full rows for generator, newest first. An empty kind
// matches every kind.
func (t Tracker) GetTracked(ctx context.Context, generator, kind string) ([]domain.TrackedRecord, error) {
	where, args := filter(generator, kind)
	rows, err := t.DB.QueryContext(ctx, `SELECT id,generator,data_type,record_id,COALESCE(metadata,''),created_at FROM generated_records `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetTrackedIDs returns the host record ids for generator in insertion order.
// An empty kind matches every kind.
func (t Tracker) GetTrackedIDs(ctx context.Context, generator, kind string) ([]int64, error) {
	where, args := filter(generator, kind)
	rows, err := t.DB.QueryContext(ctx, `SELECT record_id FROM generated_records `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsTracked reports whether a host record is in the ledger.
func (t Tracker) IsTracked(ctx context.Context, generator, kind string, recordID int64) (bool, error) {
	var id int64
	err := t.DB.QueryRowContext(ctx, `SELECT id FROM generated_records WHERE generator=? AND data_type=? AND record_id=? LIMIT 1`,
		generator, kind, recordID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CleanupAll deletes every ledger row for generator (and kind, if set) and
// returns the number removed.
func (t Tracker) CleanupAll(ctx context.Context, generator, kind string) (int64, error) {
	where, args := filter(generator, kind)
	res, err := t.DB.ExecContext(ctx, `DELETE FROM generated_records `+where, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RemoveTracking deletes ledger rows by their own ids.
func (t Tracker) RemoveTracking(ctx context.Context, ids []int64) (int64, error) {
	return t.deleteIn(ctx, `DELETE FROM generated_records WHERE id IN (%s)`, nil, ids)
}

// RemoveRecords deletes the ledger rows of specific host records.
func (t Tracker) RemoveRecords(ctx context.Context, generator, kind string, recordIDs []int64) (int64, error) {
	return t.deleteIn(ctx, `DELETE FROM generated_records WHERE generator=? AND data_type=? AND record_id IN (%s)`, []any{generator, kind}, recordIDs)
}

func (t Tracker) deleteIn(ctx context.Context, query string, prefix []any, ids []int64) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += deleteChunk {
		end := start + deleteChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		args := append([]any{}, prefix...)
		for _, id := range chunk {
			args = append(args, id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		res, err := t.DB.ExecContext(ctx, fmt.Sprintf(query, placeholders), args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Stats aggregates ledger counts. An empty generator covers every generator.
func (t Tracker) Stats(ctx context.Context, generator string) (domain.Stats, error) {
	where := ""
	var args []any
	if generator != "" {
		where = "WHERE generator=?"
		args = append(args, generator)
	}
	stats := domain.Stats{ByKind: []domain.KindCount{}}
	if err := t.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM generated_records `+where, args...).Scan(&stats.Total); err != nil {
		return stats, err
	}
	rows, err := t.DB.QueryContext(ctx, `SELECT data_type, COUNT(*) FROM generated_records `+where+` GROUP BY data_type ORDER BY data_type`, args...)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var kc domain.KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return stats, err
		}
		stats.ByKind = append(stats.ByKind, kc)
	}
	return stats, rows.Err()
}

// TrackedBefore returns rows created before cutoff, oldest first.
func (t Tracker) TrackedBefore(ctx context.Context, cutoff time.Time) ([]domain.TrackedRecord, error) {
	rows, err := t.DB.QueryContext(ctx, `SELECT id,generator,data_type,record_id,COALESCE(metadata,''),created_at FROM generated_records WHERE created_at < ? ORDER BY created_at, id`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Purge removes every ledger row.
func (t Tracker) Purge(ctx context.Context) (int64, error) {
	res, err := t.DB.ExecContext(ctx, `DELETE FROM generated_records`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRecords(rows *sql.Rows) ([]domain.TrackedRecord, error) {
	res := []domain.TrackedRecord{}
	for rows.Next() {
		var (
			rec  domain.TrackedRecord
			meta string
		)
		if err := rows.Scan(&rec.ID, &rec.Generator, &rec.Kind, &rec.RecordID, &meta, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for row %d: %w", rec.ID, err)
			}
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
