package events_test

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demopilot/internal/db"
	"demopilot/internal/domain"
	"demopilot/internal/events"
	"demopilot/internal/migrate"
)

func newJournal(t *testing.T, opts events.Options) *events.Journal {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	j, err := events.New(context.Background(), conn, opts)
	require.NoError(t, err)
	return j
}

func TestJournalCap(t *testing.T) {
	j := newJournal(t, events.Options{EnabledDefault: true})
	ctx := context.Background()
	for i := 0; i < 150; i++ {
		require.NoError(t, j.Append(ctx, fmt.Sprintf("entry %d", i), domain.LevelInfo, ""))
	}
	logs, err := j.Logs(ctx, events.Query{})
	require.NoError(t, err)
	require.Len(t, logs, 100)
	assert.Equal(t, "entry 149", logs[0].Message)
	assert.Equal(t, "entry 50", logs[99].Message)

	limited, err := j.Logs(ctx, events.Query{Limit: 5})
	require.NoError(t, err)
	require.Len(t, limited, 5)
	assert.Equal(t, "entry 145", limited[4].Message)
}

func TestJournalFilters(t *testing.T) {
	j := newJournal(t, events.Options{EnabledDefault: true})
	ctx := context.Background()
	j.Log(ctx, "started", domain.LevelInfo, "acme")
	j.Log(ctx, "boom", domain.LevelError, "acme")
	j.Log(ctx, "other", domain.LevelError, "zeta")
	j.Log(ctx, "odd level", "loud", "")

	errs, err := j.Logs(ctx, events.Query{Level: domain.LevelError})
	require.NoError(t, err)
	assert.Len(t, errs, 2)

	acme, err := j.Logs(ctx, events.Query{Generator: "acme"})
	require.NoError(t, err)
	require.Len(t, acme, 2)
	assert.Equal(t, "boom", acme[0].Message)

	all, err := j.Logs(ctx, events.Query{})
	require.NoError(t, err)
	assert.Equal(t, domain.LevelInfo, all[0].Level)
	assert.Empty(t, all[0].Generator)
}

func TestJournalDisabledDropsMessages(t *testing.T) {
	j := newJournal(t, events.Options{EnabledDefault: true})
	ctx := context.Background()
	require.NoError(t, j.Disable(ctx))
	j.Log(ctx, "dropped", domain.LevelInfo, "")
	logs, err := j.Logs(ctx, events.Query{})
	require.NoError(t, err)
	assert.Empty(t, logs)

	// the flag survives a new journal on the same store
	again, err := events.New(ctx, j.DB, events.Options{EnabledDefault: true})
	require.NoError(t, err)
	assert.False(t, again.Enabled())

	require.NoError(t, j.Enable(ctx))
	j.Log(ctx, "kept", domain.LevelSuccess, "")
	logs, err = j.Logs(ctx, events.Query{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestJournalClearAndMirror(t *testing.T) {
	var buf bytes.Buffer
	j := newJournal(t, events.Options{EnabledDefault: true, Mirror: log.New(&buf, "", 0)})
	ctx := context.Background()
	j.Log(ctx, "hello", domain.LevelWarning, "acme")
	assert.Equal(t, "[demopilot] [WARNING] [acme] hello\n", buf.String())

	require.NoError(t, j.Clear(ctx))
	require.NoError(t, j.Clear(ctx))
	logs, err := j.Logs(ctx, events.Query{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}
