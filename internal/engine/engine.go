// Package engine runs generation and cleanup for registered generators: it
// splits requests into batches, tracks every created record, publishes
// progress and journals the outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"demopilot/internal/config"
	"demopilot/internal/domain"
	"demopilot/internal/generator"
	"demopilot/internal/progress"
	"demopilot/internal/registry"
	"demopilot/internal/tracker"
)

// DefaultCount is the record count used by callers that omit one.
const DefaultCount = 10

// Hooks lets embedders adjust or observe runs. Every field is optional.
type Hooks struct {
	BatchSize      func(size int, generator, kind string) int
	Args           func(args generator.Args, generator, kind string) generator.Args
	BeforeGenerate func(ctx context.Context, generator, kind string, count int)
	AfterGenerate  func(ctx context.Context, generator, kind string, ids []int64)
	BeforeCleanup  func(ctx context.Context, generator, kind string, ids []int64)
	AfterCleanup   func(ctx context.Context, generator, kind string)
}

// Engine runs generation, cleanup and prune passes over the registered
// generators.
type Engine struct {
	Registry *registry.Registry
	Tracker  tracker.Tracker
	Journal  generator.Logger
	Progress *progress.Store
	Config   *config.Config
	Hooks    Hooks
	Now      func() time.Time
	// Sleep pauses between batches. It returns early if ctx is done.
	Sleep    func(ctx context.Context, d time.Duration)
	NewRunID func() string

	leases *leaseSet
}

func New(reg *registry.Registry, tr tracker.Tracker, journal generator.Logger, prog *progress.Store, cfg *config.Config) Engine {
	return Engine{
		Registry: reg,
		Tracker:  tr,
		Journal:  journal,
		Progress: prog,
		Config:   cfg,
		Now:      time.Now,
		Sleep:    sleepContext,
		NewRunID: uuid.NewString,
		leases:   newLeaseSet(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// log journals with a context that outlives cancellation, so a stopped run
// still records why it stopped.
func (e Engine) log(ctx context.Context, message, level, gen string) {
	if e.Journal != nil {
		e.Journal.Log(context.WithoutCancel(ctx), message, level, gen)
	}
}

func (e Engine) sleep(ctx context.Context, d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(ctx, d)
		return
	}
	sleepContext(ctx, d)
}

func (e Engine) runID() string {
	if e.NewRunID != nil {
		return e.NewRunID()
	}
	return uuid.NewString()
}

func (e Engine) resolve(slug string) (generator.Generator, error) {
	if e.Registry == nil {
		return nil, newError(CodeInvalidGenerator, nil, "Generator not found: %s", slug)
	}
	g, ok := e.Registry.Get(slug)
	if !ok {
		return nil, newError(CodeInvalidGenerator, nil, "Generator not found: %s", slug)
	}
	return g, nil
}

// lease takes the exclusive-run lease for the pair when configured. The
// returned release func is always safe to call.
func (e Engine) lease(gen, kind, owner string) (func(), error) {
	if e.Config == nil || !e.Config.Generation.ExclusiveRuns || e.leases == nil {
		return func() {}, nil
	}
	key := pairKey(gen, kind)
	if cur, ok := e.leases.acquire(key, owner); !ok {
		return func() {}, newError(CodeRunInProgress, ErrRunInProgress, "A run for %s/%s is already in progress (%s)", gen, kind, cur)
	}
	return func() { e.leases.release(key, owner) }, nil
}

// GenerateRequest asks for Count records of Kind from Generator.
type GenerateRequest struct {
	Generator string
	Kind      string
	Count     int
	Args      generator.Args
}

// GenerateResult reports a run. On failure it carries the ids created by the
// batches that completed before the failing one.
type GenerateResult struct {
	RunID        string  `json:"run_id"`
	Generator    string  `json:"generator"`
	Kind         string  `json:"kind"`
	Count        int     `json:"count"`
	GeneratedIDs []int64 `json:"generated_ids"`
	Batches      int     `json:"batches"`
	Untracked    int     `json:"untracked,omitempty"`
}

// Generate runs a batched generation. Batches are strictly sequential; the
// ids of each batch are tracked before the next batch starts.
func (e Engine) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	res := GenerateResult{Generator: req.Generator, Kind: req.Kind, GeneratedIDs: []int64{}}
	if req.Generator == "" || req.Kind == "" {
		return res, newError(CodeInvalidRequest, nil, "generator and kind are required")
	}
	g, err := e.resolve(req.Generator)
	if err != nil {
		e.log(ctx, err.Error(), domain.LevelError, "")
		return res, err
	}
	if err := generator.ValidateDependencies(ctx, g); err != nil {
		return res, newError(CodeValidationFailed, err, "%s", err.Error())
	}
	if _, ok := g.Kinds()[req.Kind]; !ok {
		return res, newError(CodeValidationFailed, generator.Failf(generator.CodeInvalidKind, "Invalid data type: %s", req.Kind), "Invalid data type: %s", req.Kind)
	}
	if req.Count < 1 {
		return res, newError(CodeValidationFailed, generator.Failf(generator.CodeInvalidCount, "Count must be at least 1"), "Count must be at least 1")
	}
	if e.Config != nil && !e.Config.Generation.Licensed && e.Config.Generation.MaxUnlicensed > 0 && req.Count > e.Config.Generation.MaxUnlicensed {
		limit := e.Config.Generation.MaxUnlicensed
		return res, newError(CodeValidationFailed, generator.Failf(generator.CodeLimitExceeded, "Unlicensed generation is limited to %d records per run", limit),
			"Unlicensed generation is limited to %d records per run", limit)
	}

	res.RunID = e.runID()
	release, err := e.lease(req.Generator, req.Kind, res.RunID)
	if err != nil {
		return res, err
	}
	defer release()

	slug, kind, count := req.Generator, req.Kind, req.Count
	e.log(ctx, fmt.Sprintf("Starting generation of %d %s records for %s", count, kind, g.Name()), domain.LevelInfo, slug)

	batchSize, ok := req.Args.Int("batch_size")
	if !ok {
		batchSize = g.DefaultBatchSize()
	}
	if e.Hooks.BatchSize != nil {
		batchSize = e.Hooks.BatchSize(batchSize, slug, kind)
	}
	if batchSize < 1 {
		batchSize = generator.DefaultBatchSize
	}
	args := req.Args.Clone()
	if e.Hooks.Args != nil {
		args = e.Hooks.Args(args, slug, kind)
	}
	if e.Hooks.BeforeGenerate != nil {
		e.Hooks.BeforeGenerate(ctx, slug, kind, count)
	}

	var pause time.Duration
	if e.Config != nil {
		pause = e.Config.Generation.BatchPause
	}
	totalBatches := (count + batchSize - 1) / batchSize
	remaining := count
	for batch := 1; remaining > 0; batch++ {
		if err := ctx.Err(); err != nil {
			msg := fmt.Sprintf("Generation failed: stopped before batch %d of %d: %v", batch, totalBatches, err)
			e.log(ctx, msg, domain.LevelError, slug)
			return res, newError(CodeGenerationFailed, err, "%s", msg)
		}
		e.publish(slug, kind, res.RunID, batch, totalBatches, len(res.GeneratedIDs))

		n := min(batchSize, remaining)
		ids, err := g.Generate(ctx, kind, n, args)
		if err != nil {
			msg := "Generation failed: " + err.Error()
			e.log(ctx, msg, domain.LevelError, slug)
			return res, newError(CodeGenerationFailed, err, "%s", msg)
		}
		res.Batches = batch
		for _, id := range ids {
			res.GeneratedIDs = append(res.GeneratedIDs, id)
			meta := map[string]any{"run_id": res.RunID, "batch": batch}
			if _, err := e.Tracker.Track(context.WithoutCancel(ctx), slug, kind, id, meta); err != nil {
				res.Untracked++
				e.log(ctx, fmt.Sprintf("Failed to track %s #%d: %v", kind, id, err), domain.LevelError, slug)
			}
		}
		res.Count = len(res.GeneratedIDs)

		remaining -= n
		if remaining > 0 {
			e.sleep(ctx, pause)
		}
	}
	e.publish(slug, kind, res.RunID, totalBatches, totalBatches, len(res.GeneratedIDs))

	if e.Hooks.AfterGenerate != nil {
		e.Hooks.AfterGenerate(ctx, slug, kind, res.GeneratedIDs)
	}
	e.log(ctx, fmt.Sprintf("Successfully generated %d %s records", res.Count, kind), domain.LevelSuccess, slug)
	return res, nil
}

func (e Engine) publish(gen, kind, runID string, current, total, generated int) {
	if e.Progress != nil {
		e.Progress.Update(gen, kind, runID, current, total, generated)
	}
}

// CleanupRequest removes demo records. Empty IDs means every tracked record of
// the kind.
type CleanupRequest struct {
	Generator string
	Kind      string
	IDs       []int64
}

// CleanupResult reports a cleanup. Failed lists ids kept tracked because the
// generator could not delete them.
type CleanupResult struct {
	Generator string  `json:"generator"`
	Kind      string  `json:"kind"`
	Count     int     `json:"count"`
	Untracked int64   `json:"untracked"`
	Failed    []int64 `json:"failed,omitempty"`
}

// Cleanup asks the generator to delete the records and then drops their
// ledger rows. In the default mode the ledger rows go even when some host
// deletions failed; with cleanup.strict and a reporting generator only the
// rows of deleted records are dropped.
func (e Engine) Cleanup(ctx context.Context, req CleanupRequest) (CleanupResult, error) {
	res := CleanupResult{Generator: req.Generator, Kind: req.Kind}
	if req.Generator == "" || req.Kind == "" {
		return res, newError(CodeInvalidRequest, nil, "generator and kind are required")
	}
	g, err := e.resolve(req.Generator)
	if err != nil {
		e.log(ctx, err.Error(), domain.LevelError, "")
		return res, err
	}
	slug, kind := req.Generator, req.Kind
	release, err := e.lease(slug, kind, "cleanup-"+e.runID())
	if err != nil {
		return res, err
	}
	defer release()

	e.log(ctx, fmt.Sprintf("Starting cleanup of %s records for %s", kind, g.Name()), domain.LevelInfo, slug)

	explicit := len(req.IDs) > 0
	ids := req.IDs
	if !explicit {
		ids, err = e.Tracker.GetTrackedIDs(ctx, slug, kind)
		if err != nil {
			return res, e.cleanupFailed(ctx, slug, err)
		}
	}
	if e.Hooks.BeforeCleanup != nil {
		e.Hooks.BeforeCleanup(ctx, slug, kind, ids)
	}

	strict := e.Config != nil && e.Config.Cleanup.Strict
	reporter, reports := g.(generator.ReportingCleaner)
	if strict && reports {
		failed, err := reporter.CleanupReport(ctx, kind, ids)
		if err != nil {
			return res, e.cleanupFailed(ctx, slug, err)
		}
		res.Failed = failed
		res.Untracked, err = e.Tracker.RemoveRecords(ctx, slug, kind, without(ids, failed))
		if err != nil {
			return res, e.cleanupFailed(ctx, slug, err)
		}
		if len(failed) > 0 {
			e.log(ctx, fmt.Sprintf("%d %s records could not be deleted and stay tracked", len(failed), kind), domain.LevelWarning, slug)
		}
	} else {
		if err := g.Cleanup(ctx, kind, ids); err != nil {
			return res, e.cleanupFailed(ctx, slug, err)
		}
		if explicit {
			res.Untracked, err = e.Tracker.RemoveRecords(ctx, slug, kind, ids)
		} else {
			res.Untracked, err = e.Tracker.CleanupAll(ctx, slug, kind)
		}
		if err != nil {
			return res, e.cleanupFailed(ctx, slug, err)
		}
	}
	res.Count = len(ids)

	if e.Hooks.AfterCleanup != nil {
		e.Hooks.AfterCleanup(ctx, slug, kind)
	}
	e.log(ctx, fmt.Sprintf("Successfully cleaned up %d %s records", res.Count, kind), domain.LevelSuccess, slug)
	return res, nil
}

func (e Engine) cleanupFailed(ctx context.Context, slug string, err error) error {
	msg := "Cleanup failed: " + err.Error()
	e.log(ctx, msg, domain.LevelError, slug)
	return newError(CodeCleanupFailed, err, "%s", msg)
}

func without(ids, drop []int64) []int64 {
	if len(drop) == 0 {
		return ids
	}
	skip := make(map[int64]struct{}, len(drop))
	for _, id := range drop {
		skip[id] = struct{}{}
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// GetProgress returns the latest snapshot for the pair, if it has not expired.
func (e Engine) GetProgress(gen, kind string) (domain.Snapshot, bool) {
	if e.Progress == nil {
		return domain.Snapshot{}, false
	}
	return e.Progress.Get(gen, kind)
}

// ListGenerators describes every registered generator with its ledger stats.
func (e Engine) ListGenerators(ctx context.Context, activeOnly bool) ([]domain.GeneratorInfo, error) {
	if e.Registry == nil {
		return []domain.GeneratorInfo{}, nil
	}
	out := []domain.GeneratorInfo{}
	for _, slug := range e.Registry.Slugs() {
		g, ok := e.Registry.Get(slug)
		if !ok {
			continue
		}
		info := generator.Info(ctx, g)
		if activeOnly && !info.IsActive {
			continue
		}
		stats, err := e.Tracker.Stats(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", slug, err)
		}
		info.Stats = stats
		out = append(out, info)
	}
	return out, nil
}

// GetGenerator describes one generator.
func (e Engine) GetGenerator(ctx context.Context, slug string) (domain.GeneratorInfo, error) {
	g, err := e.resolve(slug)
	if err != nil {
		return domain.GeneratorInfo{}, err
	}
	info := generator.Info(ctx, g)
	info.Stats, err = e.Tracker.Stats(ctx, slug)
	if err != nil {
		return domain.GeneratorInfo{}, err
	}
	return info, nil
}

// PruneResult counts what a prune pass removed.
type PruneResult struct {
	Cutoff    string   `json:"cutoff" format:"date-time"`
	Records   int      `json:"records"`
	Untracked int64    `json:"untracked"`
	Skipped   []string `json:"skipped,omitempty"`
	Failed    []int64  `json:"failed,omitempty"`
}

// Prune cleans up records tracked more than olderThan ago. Rows whose
// generator is no longer registered are left in place and reported. With
// cleanup.strict and a reporting generator, rows of records that could not be
// deleted stay tracked and are listed in Failed.
func (e Engine) Prune(ctx context.Context, olderThan time.Duration) (PruneResult, error) {
	cutoff := e.now().Add(-olderThan)
	res := PruneResult{Cutoff: cutoff.UTC().Format(time.RFC3339)}
	rows, err := e.Tracker.TrackedBefore(ctx, cutoff)
	if err != nil {
		return res, err
	}
	type pair struct{ gen, kind string }
	var order []pair
	groups := map[pair][]domain.TrackedRecord{}
	for _, r := range rows {
		p := pair{r.Generator, r.Kind}
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], r)
	}
	strict := e.Config != nil && e.Config.Cleanup.Strict
	var errs []error
	for _, p := range order {
		g, err := e.resolve(p.gen)
		if err != nil {
			res.Skipped = append(res.Skipped, pairKey(p.gen, p.kind))
			continue
		}
		recs := groups[p]
		ids := make([]int64, len(recs))
		rowIDs := make([]int64, len(recs))
		for i, r := range recs {
			ids[i] = r.RecordID
			rowIDs[i] = r.ID
		}
		if e.Hooks.BeforeCleanup != nil {
			e.Hooks.BeforeCleanup(ctx, p.gen, p.kind, ids)
		}
		reporter, reports := g.(generator.ReportingCleaner)
		if strict && reports {
			failed, err := reporter.CleanupReport(ctx, p.kind, ids)
			if err != nil {
				errs = append(errs, fmt.Errorf("prune %s/%s: %w", p.gen, p.kind, err))
				continue
			}
			if len(failed) > 0 {
				keep := make(map[int64]struct{}, len(failed))
				for _, id := range failed {
					keep[id] = struct{}{}
				}
				rowIDs = rowIDs[:0]
				for _, r := range recs {
					if _, ok := keep[r.RecordID]; !ok {
						rowIDs = append(rowIDs, r.ID)
					}
				}
				res.Failed = append(res.Failed, failed...)
				e.log(ctx, fmt.Sprintf("%d %s records could not be deleted and stay tracked", len(failed), p.kind), domain.LevelWarning, p.gen)
			}
		} else if err := g.Cleanup(ctx, p.kind, ids); err != nil {
			errs = append(errs, fmt.Errorf("prune %s/%s: %w", p.gen, p.kind, err))
			continue
		}
		n, err := e.Tracker.RemoveTracking(ctx, rowIDs)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune %s/%s: %w", p.gen, p.kind, err))
			continue
		}
		res.Records += len(rowIDs)
		res.Untracked += n
		if e.Hooks.AfterCleanup != nil {
			e.Hooks.AfterCleanup(ctx, p.gen, p.kind)
		}
		e.log(ctx, fmt.Sprintf("Pruned %d %s records older than %s", len(rowIDs), p.kind, res.Cutoff), domain.LevelInfo, p.gen)
	}
	return res, errors.Join(errs...)
}
