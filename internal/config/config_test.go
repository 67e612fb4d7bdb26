package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Generation.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Generation.BatchPause)
	assert.Equal(t, 100, cfg.Generation.MaxUnlicensed)
	assert.Equal(t, 5*time.Minute, cfg.Progress.TTL)
	assert.Equal(t, 100, cfg.Logging.MaxEntries)
	assert.True(t, cfg.Logging.Enabled)
	assert.False(t, cfg.Cleanup.Strict)
	assert.Equal(t, "sqlite", cfg.Host.Driver)
	assert.Empty(t, cfg.Webhooks)
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("generation:\n  batch_size: 20\ncleanup:\n  strict: true\n"))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Generation.BatchSize)
	assert.True(t, cfg.Cleanup.Strict)
	assert.Equal(t, 100, cfg.Generation.MaxUnlicensed)
	assert.Equal(t, 30, cfg.Cleanup.Days)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"batch size":     "generation:\n  batch_size: 0\n",
		"negative pause": "generation:\n  batch_pause: -1s\n",
		"ttl":            "progress:\n  ttl: 0s\n",
		"log cap":        "logging:\n  max_entries: 0\n",
		"auto days":      "cleanup:\n  auto: true\n  days: 0\n",
		"driver":         "host:\n  driver: oracle\n",
		"empty slug":     "generators:\n  enabled: [\"\"]\n",
		"webhook url":    "webhooks:\n  - url: ftp://example.com\n",
		"bad yaml":       "generation: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestGeneratorEnabled(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.GeneratorEnabled("shop"))
	cfg.Generators.Enabled = []string{"hr"}
	assert.True(t, cfg.GeneratorEnabled("hr"))
	assert.False(t, cfg.GeneratorEnabled("shop"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.ErrorContains(t, err, "ddp config init")

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Generation.BatchSize)

	yml := "webhooks:\n  - url: https://hooks.example.com/x\n    levels: [error]\n    secret: s\n"
	require.NoError(t, os.WriteFile(Path(dir), []byte(yml), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, []string{"error"}, cfg.Webhooks[0].Levels)
	assert.Equal(t, "s", cfg.Webhooks[0].Secret)
}
