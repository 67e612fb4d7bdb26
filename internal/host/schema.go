package host

import (
	"context"
	"fmt"
	"strings"
)

// ColumnType is a portable column type rendered per dialect.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Money
	Date
	Bool
)

type Column struct {
	Name string
	Type ColumnType
	Null bool
}

// Table describes a host table. Every table gets an auto-increment id
// primary key in addition to Columns.
type Table struct {
	Name    string
	Columns []Column
}

func (s *Store) idColumn() string {
	switch s.Dialect {
	case MySQL:
		return "id BIGINT AUTO_INCREMENT PRIMARY KEY"
	case Postgres:
		return "id BIGSERIAL PRIMARY KEY"
	default:
		return "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

func (s *Store) columnType(t ColumnType) string {
	switch t {
	case Integer:
		return "BIGINT"
	case Money:
		if s.Dialect == SQLite {
			return "REAL"
		}
		return "DECIMAL(12,2)"
	case Date:
		if s.Dialect == SQLite {
			return "TEXT"
		}
		return "DATE"
	case Bool:
		if s.Dialect == Postgres {
			return "BOOLEAN"
		}
		return "INTEGER"
	default:
		if s.Dialect == MySQL {
			return "VARCHAR(255)"
		}
		return "TEXT"
	}
}

// CreateTableSQL renders the CREATE TABLE statement for t.
func (s *Store) CreateTableSQL(t Table) (string, error) {
	if err := checkIdent(t.Name); err != nil {
		return "", err
	}
	defs := []string{s.idColumn()}
	for _, c := range t.Columns {
		if err := checkIdent(c.Name); err != nil {
			return "", err
		}
		def := c.Name + " " + s.columnType(c.Type)
		if !c.Null {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", t.Name, strings.Join(defs, ",\n  ")), nil
}

// Install creates the tables that do not exist yet.
func (s *Store) Install(ctx context.Context, tables ...Table) error {
	for _, t := range tables {
		stmt, err := s.CreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", t.Name, err)
		}
	}
	return nil
}

// Names returns the table names.
func Names(tables []Table) []string {
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = t.Name
	}
	return out
}
