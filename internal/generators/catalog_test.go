package generators

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demopilot/internal/config"
	"demopilot/internal/host"
	"demopilot/internal/registry"
)

func TestCatalogDiscoverAndInstall(t *testing.T) {
	store, err := host.Open("sqlite", filepath.Join(t.TempDir(), "host.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Generation.BatchSize = 7
	cfg.Generators.Enabled = []string{"shop"}

	reg := registry.New()
	n, errs := reg.Discover(Catalog(Options{Store: store, Config: cfg, Seed: 1}), cfg.GeneratorEnabled)
	require.Empty(t, errs)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"shop"}, reg.Slugs())

	g, ok := reg.Get("shop")
	require.True(t, ok)
	assert.Equal(t, 7, g.DefaultBatchSize())
	assert.False(t, g.IsActive(ctx))
	assert.Empty(t, reg.All(ctx, true))

	require.NoError(t, Install(ctx, store, "shop"))
	assert.True(t, g.IsActive(ctx))
	assert.Len(t, reg.All(ctx, true), 1)

	require.Error(t, Install(ctx, store, "crm"))
	require.NoError(t, Install(ctx, store))
	assert.True(t, store.HasTables(ctx, "hr_employees"))
	assert.Equal(t, []string{"hr", "shop"}, Slugs())
}

func TestCatalogWithoutStore(t *testing.T) {
	reg := registry.New()
	n, errs := reg.Discover(Catalog(Options{}), nil)
	assert.Zero(t, n)
	assert.Len(t, errs, 2)
}
