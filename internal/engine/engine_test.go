package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demopilot/internal/config"
	"demopilot/internal/db"
	"demopilot/internal/domain"
	"demopilot/internal/engine"
	"demopilot/internal/events"
	"demopilot/internal/generator"
	"demopilot/internal/migrate"
	"demopilot/internal/progress"
	"demopilot/internal/registry"
	"demopilot/internal/tracker"
)

// memGenerator keeps its "host records" in a map.
type memGenerator struct {
	generator.Base
	mu       sync.Mutex
	active   bool
	nextID   int64
	records  map[int64]string
	batches  []int
	failAt   int
	failOnce map[int64]bool
	onBatch  func(n int)
}

func newMem(slug string) *memGenerator {
	g := &memGenerator{
		Base:     generator.NewBase(slug, "Mem "+slug, "", map[string]string{"widgets": "", "gadgets": ""}),
		active:   true,
		nextID:   100,
		records:  map[int64]string{},
		failOnce: map[int64]bool{},
	}
	g.Base.Limits.Licensed = true
	return g
}

func (g *memGenerator) IsActive(context.Context) bool { return g.active }

func (g *memGenerator) Generate(ctx context.Context, kind string, count int, _ generator.Args) ([]int64, error) {
	if err := g.ValidateArgs(kind, count); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.batches = append(g.batches, count)
	call := len(g.batches)
	g.mu.Unlock()
	if g.onBatch != nil {
		g.onBatch(call)
	}
	if g.failAt > 0 && call == g.failAt {
		return nil, errors.New("host store unavailable")
	}
	return g.Each(ctx, count, func(context.Context, int) (int64, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.nextID++
		g.records[g.nextID] = kind
		return g.nextID, nil
	}), nil
}

func (g *memGenerator) del(_ context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOnce[id] {
		delete(g.failOnce, id)
		return fmt.Errorf("locked")
	}
	delete(g.records, id)
	return nil
}

func (g *memGenerator) Cleanup(ctx context.Context, kind string, ids []int64) error {
	g.EachDelete(ctx, kind, ids, g.del)
	return nil
}

func (g *memGenerator) CleanupReport(ctx context.Context, kind string, ids []int64) ([]int64, error) {
	return g.EachDelete(ctx, kind, ids, g.del), nil
}

type testEnv struct {
	Engine  engine.Engine
	Tracker tracker.Tracker
	Journal *events.Journal
	Config  *config.Config
	Gen     *memGenerator
	Ctx     context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	ctx := context.Background()
	cfg := config.Default()
	cfg.Generation.BatchPause = 0
	journal, err := events.New(ctx, conn, events.Options{EnabledDefault: true})
	require.NoError(t, err)

	gen := newMem("acme")
	gen.SetBatchSize(10)
	gen.Logger = journal
	reg := registry.New()
	reg.Register(gen)

	tr := tracker.New(conn)
	eng := engine.New(reg, tr, journal, progress.New(time.Minute), cfg)
	eng.Sleep = func(context.Context, time.Duration) {}
	return testEnv{Engine: eng, Tracker: tr, Journal: journal, Config: cfg, Gen: gen, Ctx: ctx}
}

func TestGenerateSplitsIntoBatches(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 25})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 10, 5}, env.Gen.batches)
	assert.Equal(t, 25, res.Count)
	assert.Equal(t, 3, res.Batches)
	assert.Len(t, res.GeneratedIDs, 25)
	assert.NotEmpty(t, res.RunID)

	ids, err := env.Tracker.GetTrackedIDs(env.Ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, res.GeneratedIDs, ids)

	rows, err := env.Tracker.GetTracked(env.Ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, res.RunID, rows[0].Metadata["run_id"])

	snap, ok := env.Engine.GetProgress("acme", "widgets")
	require.True(t, ok)
	assert.Equal(t, 3, snap.CurrentBatch)
	assert.Equal(t, 3, snap.TotalBatches)
	assert.Equal(t, 25, snap.Generated)
	assert.InDelta(t, 100.0, snap.Percentage, 0.001)
}

func TestGenerateBatchCountMatchesCeiling(t *testing.T) {
	cases := []struct{ count, batch, want int }{
		{1, 10, 1}, {10, 10, 1}, {11, 10, 2}, {99, 7, 15}, {100, 50, 2},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d/%d", tc.count, tc.batch), func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{
				Generator: "acme", Kind: "widgets", Count: tc.count,
				Args: generator.Args{"batch_size": tc.batch},
			})
			require.NoError(t, err)
			assert.Len(t, env.Gen.batches, tc.want)
			sum := 0
			for _, n := range env.Gen.batches {
				assert.LessOrEqual(t, n, tc.batch)
				sum += n
			}
			assert.Equal(t, tc.count, sum)
		})
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	var seen []domain.Snapshot
	env.Gen.onBatch = func(int) {
		snap, ok := env.Engine.GetProgress("acme", "widgets")
		require.True(t, ok)
		seen = append(seen, snap)
	}
	_, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 35})
	require.NoError(t, err)
	require.Len(t, seen, 4)
	for i, snap := range seen {
		assert.Equal(t, i+1, snap.CurrentBatch)
		assert.Equal(t, 4, snap.TotalBatches)
		assert.Equal(t, i*10, snap.Generated)
		if i > 0 {
			assert.GreaterOrEqual(t, snap.Percentage, seen[i-1].Percentage)
		}
	}
}

func TestGenerateUnknownGenerator(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "missing", Kind: "widgets", Count: 5})
	require.Error(t, err)
	assert.Equal(t, engine.CodeInvalidGenerator, engine.Code(err))
	assert.Equal(t, "Generator not found: missing", err.Error())

	stats, err := env.Tracker.Stats(env.Ctx, "")
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	_, ok := env.Engine.GetProgress("missing", "widgets")
	assert.False(t, ok)

	logs, err := env.Journal.Logs(env.Ctx, events.Query{Level: domain.LevelError})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Generator not found: missing", logs[0].Message)
}

func TestGenerateValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]engine.GenerateRequest{
		"empty":    {Kind: "widgets", Count: 1},
		"bad kind": {Generator: "acme", Kind: "sprockets", Count: 1},
		"zero":     {Generator: "acme", Kind: "widgets", Count: 0},
		"too many": {Generator: "acme", Kind: "widgets", Count: 101},
		"negative": {Generator: "acme", Kind: "widgets", Count: -3},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.Engine.Generate(env.Ctx, req)
			require.Error(t, err)
			code := engine.Code(err)
			assert.Contains(t, []string{engine.CodeInvalidRequest, engine.CodeValidationFailed}, code)
		})
	}
	assert.Empty(t, env.Gen.batches)

	env.Config.Generation.Licensed = true
	_, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 101})
	require.NoError(t, err)
}

func TestGenerateInactiveGenerator(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.active = false
	_, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 3})
	require.Error(t, err)
	assert.Equal(t, engine.CodeValidationFailed, engine.Code(err))
	var f *generator.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, generator.CodeDependencyMissing, f.Code)
}

func TestPartialFailureKeepsEarlierBatchesTracked(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.failAt = 3
	res, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 50})
	require.Error(t, err)
	assert.Equal(t, engine.CodeGenerationFailed, engine.Code(err))
	assert.Contains(t, err.Error(), "host store unavailable")
	assert.Len(t, res.GeneratedIDs, 20)

	ids, err := env.Tracker.GetTrackedIDs(env.Ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Len(t, ids, 20)
}

func TestGenerateStopsBetweenBatchesOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(env.Ctx)
	env.Gen.onBatch = func(call int) {
		if call == 2 {
			cancel()
		}
	}
	res, err := env.Engine.Generate(ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 40})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, env.Gen.batches, 2)

	// the records of the interrupted batch are not created, earlier ones stay tracked
	ids, err := env.Tracker.GetTrackedIDs(env.Ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, res.GeneratedIDs, ids)
	assert.Len(t, ids, 10)
}

func TestHooks(t *testing.T) {
	env := newTestEnv(t)
	var calls []string
	env.Engine.Hooks = engine.Hooks{
		BatchSize: func(size int, gen, kind string) int { return 4 },
		Args: func(args generator.Args, gen, kind string) generator.Args {
			args["tag"] = "demo"
			return args
		},
		BeforeGenerate: func(_ context.Context, gen, kind string, count int) {
			calls = append(calls, fmt.Sprintf("before %s/%s %d", gen, kind, count))
		},
		AfterGenerate: func(_ context.Context, gen, kind string, ids []int64) {
			calls = append(calls, fmt.Sprintf("after %d", len(ids)))
		},
		BeforeCleanup: func(_ context.Context, gen, kind string, ids []int64) {
			calls = append(calls, fmt.Sprintf("before cleanup %d", len(ids)))
		},
		AfterCleanup: func(context.Context, string, string) { calls = append(calls, "after cleanup") },
	}
	_, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 9})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 1}, env.Gen.batches)

	_, err = env.Engine.Cleanup(env.Ctx, engine.CleanupRequest{Generator: "acme", Kind: "widgets"})
	require.NoError(t, err)
	assert.Equal(t, []string{"before acme/widgets 9", "after 9", "before cleanup 9", "after cleanup"}, calls)
}

func TestCleanupIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 12})
	require.NoError(t, err)
	_, err = env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "gadgets", Count: 3})
	require.NoError(t, err)

	res, err := env.Engine.Cleanup(env.Ctx, engine.CleanupRequest{Generator: "acme", Kind: "widgets"})
	require.NoError(t, err)
	assert.Equal(t, 12, res.Count)
	assert.Equal(t, int64(12), res.Untracked)
	assert.Len(t, env.Gen.records, 3)

	res, err = env.Engine.Cleanup(env.Ctx, engine.CleanupRequest{Generator: "acme", Kind: "widgets"})
	require.NoError(t, err)
	assert.Zero(t, res.Count)

	left, err := env.Tracker.GetTrackedIDs(env.Ctx, "acme", "")
	require.NoError(t, err)
	assert.Len(t, left, 3)
}

func TestCleanupDropsLedgerRowsEvenWhenDeletesFail(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 4})
	require.NoError(t, err)
	env.Gen.failOnce[res.GeneratedIDs[1]] = true

	_, err = env.Engine.Cleanup(env.Ctx, engine.CleanupRequest{Generator: "acme", Kind: "widgets"})
	require.NoError(t, err)
	ids, err := env.Tracker.GetTrackedIDs(env.Ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Len(t, env.Gen.records, 1)
}

func TestStrictCleanupKeepsFailedRowsTracked(t *testing.T) {
	env := newTestEnv(t)
	env.Config.Cleanup.Strict = true
	res, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 4})
	require.NoError(t, err)
	stuck := res.GeneratedIDs[2]
	env.Gen.failOnce[stuck] = true

	out, err := env.Engine.Cleanup(env.Ctx, engine.CleanupRequest{Generator: "acme", Kind: "widgets"})
	require.NoError(t, err)
	assert.Equal(t, []int64{stuck}, out.Failed)
	assert.Equal(t, int64(3), out.Untracked)

	ids, err := env.Tracker.GetTrackedIDs(env.Ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, []int64{stuck}, ids)

	// the retry succeeds and clears the last row
	_, err = env.Engine.Cleanup(env.Ctx, engine.CleanupRequest{Generator: "acme", Kind: "widgets"})
	require.NoError(t, err)
	ids, err = env.Tracker.GetTrackedIDs(env.Ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCleanupExplicitIDs(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 5})
	require.NoError(t, err)

	out, err := env.Engine.Cleanup(env.Ctx, engine.CleanupRequest{Generator: "acme", Kind: "widgets", IDs: res.GeneratedIDs[:2]})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)

	ids, err := env.Tracker.GetTrackedIDs(env.Ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, res.GeneratedIDs[2:], ids)
}

func TestCleanupUnknownGenerator(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Cleanup(env.Ctx, engine.CleanupRequest{Generator: "missing", Kind: "widgets"})
	assert.Equal(t, engine.CodeInvalidGenerator, engine.Code(err))
}

func TestExclusiveRuns(t *testing.T) {
	env := newTestEnv(t)
	env.Config.Generation.ExclusiveRuns = true
	var inner error
	env.Gen.onBatch = func(call int) {
		if call == 1 {
			_, inner = env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 1})
		}
	}
	_, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 5})
	require.NoError(t, err)
	require.Error(t, inner)
	assert.ErrorIs(t, inner, engine.ErrRunInProgress)
	assert.Equal(t, engine.CodeRunInProgress, engine.Code(inner))

	// the lease is released once the run ends
	env.Gen.onBatch = nil
	_, err = env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 1})
	require.NoError(t, err)
}

func TestConcurrentRunsOnDifferentPairs(t *testing.T) {
	env := newTestEnv(t)
	env.Config.Generation.ExclusiveRuns = true
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, kind := range []string{"widgets", "gadgets"} {
		wg.Add(1)
		go func(kind string) {
			defer wg.Done()
			_, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: kind, Count: 15})
			errs <- err
		}(kind)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	stats, err := env.Tracker.Stats(env.Ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 30, stats.Total)
}

func TestListGenerators(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "gadgets", Count: 2})
	require.NoError(t, err)

	list, err := env.Engine.ListGenerators(env.Ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "acme", list[0].Slug)
	assert.True(t, list[0].IsActive)
	assert.Equal(t, "Gadgets", list[0].SupportedKinds["gadgets"])
	assert.Equal(t, 2, list[0].Stats.Total)

	env.Gen.active = false
	list, err = env.Engine.ListGenerators(env.Ctx, true)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPrune(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	env.Engine.Now = func() time.Time { return now }

	env.Engine.Tracker.Now = func() time.Time { return now.AddDate(0, 0, -45) }
	_, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 3})
	require.NoError(t, err)
	_, err = env.Engine.Tracker.Track(env.Ctx, "gone", "things", 1, nil)
	require.NoError(t, err)
	env.Engine.Tracker.Now = func() time.Time { return now }
	_, err = env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 2})
	require.NoError(t, err)

	res, err := env.Engine.Prune(env.Ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, int64(3), res.Untracked)
	assert.Equal(t, []string{"gone/things"}, res.Skipped)
	assert.Len(t, env.Gen.records, 2)

	ids, err := env.Tracker.GetTrackedIDs(env.Ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestStrictPruneKeepsFailedRowsTracked(t *testing.T) {
	env := newTestEnv(t)
	env.Config.Cleanup.Strict = true
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	env.Engine.Now = func() time.Time { return now }
	env.Engine.Tracker.Now = func() time.Time { return now.AddDate(0, 0, -45) }

	var before, after int
	env.Engine.Hooks.BeforeCleanup = func(_ context.Context, _, _ string, ids []int64) { before += len(ids) }
	env.Engine.Hooks.AfterCleanup = func(context.Context, string, string) { after++ }

	gen, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 3})
	require.NoError(t, err)
	stuck := gen.GeneratedIDs[0]
	env.Gen.failOnce[stuck] = true

	res, err := env.Engine.Prune(env.Ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, int64(2), res.Untracked)
	assert.Equal(t, []int64{stuck}, res.Failed)
	assert.Equal(t, 3, before)
	assert.Equal(t, 1, after)

	ids, err := env.Tracker.GetTrackedIDs(env.Ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, []int64{stuck}, ids)
	assert.Len(t, env.Gen.records, 1)

	// the record deletes on the next pass and its row goes with it
	res, err = env.Engine.Prune(env.Ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Records)
	assert.Empty(t, res.Failed)
	assert.Empty(t, env.Gen.records)
}

func TestGenerateContinuesWhenTrackingFails(t *testing.T) {
	env := newTestEnv(t)
	broken, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, broken.Close())
	env.Engine.Tracker = tracker.New(broken)

	res, err := env.Engine.Generate(env.Ctx, engine.GenerateRequest{Generator: "acme", Kind: "widgets", Count: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Count)
	assert.Equal(t, 5, res.Untracked)
	assert.Len(t, env.Gen.records, 5)

	logs, err := env.Journal.Logs(env.Ctx, events.Query{Level: domain.LevelError})
	require.NoError(t, err)
	failures := 0
	for _, l := range logs {
		if strings.HasPrefix(l.Message, "Failed to track widgets #") {
			failures++
		}
	}
	assert.Equal(t, 5, failures)

	success, err := env.Journal.Logs(env.Ctx, events.Query{Level: domain.LevelSuccess})
	require.NoError(t, err)
	var messages []string
	for _, l := range success {
		messages = append(messages, l.Message)
	}
	assert.Contains(t, messages, "Successfully generated 5 widgets records")
}
