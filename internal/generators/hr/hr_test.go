package hr

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demopilot/internal/generator"
	"demopilot/internal/host"
)

func newHR(t *testing.T) *Generator {
	t.Helper()
	store, err := host.Open("sqlite", filepath.Join(t.TempDir(), "host.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Install(context.Background(), Tables...))
	g := New(store, 7)
	g.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return g
}

func TestGenerateEmployees(t *testing.T) {
	g := newHR(t)
	ctx := context.Background()
	require.True(t, g.IsActive(ctx))

	ids, err := g.Generate(ctx, Employees, 8, generator.Args{"department": "Finance"})
	require.NoError(t, err)
	require.Len(t, ids, 8)

	rows, err := g.Store.DB.Query(`SELECT department, hiring_date, pay_type, pay_rate FROM hr_employees`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var dept, hired, payType string
		var rate float64
		require.NoError(t, rows.Scan(&dept, &hired, &payType, &rate))
		assert.Equal(t, "Finance", dept)
		assert.Contains(t, payTypes, payType)
		assert.Greater(t, rate, 0.0)
		d, err := time.Parse("2006-01-02", hired)
		require.NoError(t, err)
		assert.False(t, d.After(g.Now()))
		assert.False(t, d.Before(g.Now().AddDate(-5, 0, -1)))
	}
	require.NoError(t, rows.Err())
}

func TestCleanupEmployees(t *testing.T) {
	g := newHR(t)
	ctx := context.Background()
	ids, err := g.Generate(ctx, Employees, 3, nil)
	require.NoError(t, err)

	require.NoError(t, g.Cleanup(ctx, Employees, ids))
	n, err := g.Store.Count(ctx, "hr_employees")
	require.NoError(t, err)
	assert.Zero(t, n)

	// already gone
	failed, err := g.CleanupReport(ctx, Employees, ids)
	require.NoError(t, err)
	assert.Empty(t, failed)
}
