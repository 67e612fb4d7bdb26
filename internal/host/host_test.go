package host

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widgets = Table{Name: "widgets", Columns: []Column{
	{Name: "name", Type: Text},
	{Name: "price", Type: Money},
	{Name: "stock", Type: Integer, Null: true},
}}

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "host.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDialect(t *testing.T) {
	for in, want := range map[string]string{"": SQLite, "SQLite3": SQLite, "mariadb": MySQL, "postgresql": Postgres} {
		got, err := Dialect(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := Dialect("oracle")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Store{Dialect: Postgres}
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c IN ($2,$3)", pg.Rebind("SELECT a FROM t WHERE b = ? AND c IN (?,?)"))
	my := &Store{Dialect: MySQL}
	assert.Equal(t, "DELETE FROM t WHERE id = ?", my.Rebind("DELETE FROM t WHERE id = ?"))
}

func TestCreateTableSQLPerDialect(t *testing.T) {
	stmt, err := (&Store{Dialect: MySQL}).CreateTableSQL(widgets)
	require.NoError(t, err)
	assert.Contains(t, stmt, "id BIGINT AUTO_INCREMENT PRIMARY KEY")
	assert.Contains(t, stmt, "name VARCHAR(255) NOT NULL")
	assert.Contains(t, stmt, "price DECIMAL(12,2) NOT NULL")

	stmt, err = (&Store{Dialect: Postgres}).CreateTableSQL(widgets)
	require.NoError(t, err)
	assert.Contains(t, stmt, "id BIGSERIAL PRIMARY KEY")
	assert.Contains(t, stmt, "stock BIGINT\n)")

	_, err = (&Store{Dialect: SQLite}).CreateTableSQL(Table{Name: "bad name"})
	assert.Error(t, err)
}

func TestInstallInsertDelete(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	assert.False(t, s.HasTables(ctx, "widgets"))
	require.NoError(t, s.Install(ctx, widgets))
	require.NoError(t, s.Install(ctx, widgets))
	assert.True(t, s.HasTables(ctx, "widgets"))
	assert.False(t, s.HasTables(ctx, "widgets", "gadgets"))

	var ids []int64
	for _, name := range []string{"a", "b", "c"} {
		id, err := s.Insert(ctx, "widgets", map[string]any{"name": name, "price": 9.5})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	n, err := s.Count(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sample, err := s.RandomIDs(ctx, "widgets", 2)
	require.NoError(t, err)
	assert.Len(t, sample, 2)
	assert.Subset(t, ids, sample)

	require.NoError(t, s.Delete(ctx, "widgets", ids[0]))
	err = s.Delete(ctx, "widgets", ids[0])
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := s.DeleteWhere(ctx, "widgets", "name", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.Insert(ctx, "widgets; DROP TABLE widgets", map[string]any{"name": "x"})
	assert.Error(t, err)
}

func TestPostgresInsertUsesReturning(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer conn.Close()
	s := OpenDB(Postgres, conn)

	mock.ExpectQuery("INSERT INTO widgets (name,price) VALUES ($1,$2) RETURNING id").
		WithArgs("a", 1.5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	id, err := s.Insert(context.Background(), "widgets", map[string]any{"price": 1.5, "name": "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	mock.ExpectQuery("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1").
		WithArgs("widgets").
		WillReturnError(errors.New("connection refused"))
	assert.False(t, s.HasTables(context.Background(), "widgets"))
	require.NoError(t, mock.ExpectationsWereMet())
}
