// Package host talks to the application data store the generators seed. The
// store can be SQLite (the default, next to the bookkeeping db), MySQL or
// PostgreSQL.
package host

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialects.
const (
	SQLite   = "sqlite"
	MySQL    = "mysql"
	Postgres = "postgres"
)

// ErrNotFound is returned when a host row does not exist.
var ErrNotFound = errors.New("not found")

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store is a host database handle bound to one dialect. Queries are written
// with ? placeholders and rebound for the dialect.
type Store struct {
	DB      *sql.DB
	Dialect string
}

// Dialect normalizes a configured driver name.
func Dialect(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported host driver %q", driver)
	}
}

// Open connects to the host store. A bare SQLite path gets the same pragmas as
// the bookkeeping db.
func Open(driver, dsn string) (*Store, error) {
	dialect, err := Dialect(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, errors.New("host dsn is required")
	}
	if dialect == SQLite && !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, "?") {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dsn)
	}
	conn, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open host store: %w", err)
	}
	if dialect == SQLite {
		conn.SetMaxOpenConns(1)
	}
	return &Store{DB: conn, Dialect: dialect}, nil
}

// OpenDB wraps an existing connection.
func OpenDB(dialect string, db *sql.DB) *Store {
	return &Store{DB: db, Dialect: dialect}
}

func (s *Store) Close() error { return s.DB.Close() }

// Rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) Rebind(query string) string {
	if s.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func checkIdent(names ...string) error {
	for _, n := range names {
		if !identRe.MatchString(n) {
			return fmt.Errorf("invalid identifier %q", n)
		}
	}
	return nil
}

// Insert adds one row and returns its generated id.
func (s *Store) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	if err := checkIdent(append([]string{table}, cols...)...); err != nil {
		return 0, err
	}
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ","),
		strings.TrimSuffix(strings.Repeat("?,", len(cols)), ","))
	if s.Dialect == Postgres {
		var id int64
		if err := s.DB.QueryRowContext(ctx, s.Rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert %s: %w", table, err)
		}
		return id, nil
	}
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return res.LastInsertId()
}

// Delete removes one row by id. A missing row is ErrNotFound.
func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, s.Rebind("DELETE FROM "+table+" WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete %s #%d: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s #%d: %w", table, id, ErrNotFound)
	}
	return nil
}

// DeleteWhere removes rows matching column = value and returns the count.
func (s *Store) DeleteWhere(ctx context.Context, table, column string, value any) (int64, error) {
	if err := checkIdent(table, column); err != nil {
		return 0, err
	}
	res, err := s.DB.ExecContext(ctx, s.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, column)), value)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	var n int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// RandomIDs returns up to limit random row ids from table.
func (s *Store) RandomIDs(ctx context.Context, table string, limit int) ([]int64, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	fn := "RANDOM()"
	if s.Dialect == MySQL {
		fn = "RAND()"
	}
	rows, err := s.DB.QueryContext(ctx, s.Rebind(fmt.Sprintf("SELECT id FROM %s ORDER BY %s LIMIT ?", table, fn)), limit)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
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

// TableExists reports whether table is present in the host store.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var query string
	switch s.Dialect {
	case MySQL:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	case Postgres:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	default:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}
	var n int
	if err := s.DB.QueryRowContext(ctx, s.Rebind(query), table).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return n > 0, nil
}

// HasTables reports whether every table exists. Lookup errors count as
// missing.
func (s *Store) HasTables(ctx context.Context, tables ...string) bool {
	for _, t := range tables {
		ok, err := s.TableExists(ctx, t)
		if err != nil || !ok {
			return false
		}
	}
	return true
}
