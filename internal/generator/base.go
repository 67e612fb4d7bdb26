package generator

import (
	"context"
	"fmt"

	"demopilot/internal/domain"
)

// DefaultBatchSize is used when a generator does not pick its own.
const DefaultBatchSize = 50

// Limits caps a single generate call.
type Limits struct {
	MaxUnlicensed int
	Licensed      bool
}

// Base carries the identity and argument checks shared by generators. Embed it
// and implement IsActive, Generate and Cleanup.
type Base struct {
	slug        string
	name        string
	description string
	kinds       map[string]string
	batchSize   int

	Limits Limits
	Logger Logger
}

// NewBase builds a Base. Kinds with an empty label get one derived from the
// slug.
func NewBase(slug, name, description string, kinds map[string]string) Base {
	k := make(map[string]string, len(kinds))
	for s, label := range kinds {
		if label == "" {
			label = Label(s)
		}
		k[s] = label
	}
	if description == "" {
		description = fmt.Sprintf("Generate demo data for %s", name)
	}
	return Base{
		slug:        slug,
		name:        name,
		description: description,
		kinds:       k,
		batchSize:   DefaultBatchSize,
		Limits:      Limits{MaxUnlicensed: 100},
	}
}

func (b *Base) Slug() string        { return b.slug }
func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }

// Kinds returns a copy of the supported kinds.
func (b *Base) Kinds() map[string]string {
	out := make(map[string]string, len(b.kinds))
	for k, v := range b.kinds {
		out[k] = v
	}
	return out
}

func (b *Base) DefaultBatchSize() int {
	if b.batchSize < 1 {
		return DefaultBatchSize
	}
	return b.batchSize
}

// SetBatchSize overrides the default batch size.
func (b *Base) SetBatchSize(n int) {
	b.batchSize = n
}

// Supports reports whether kind is one of the generator's kinds.
func (b *Base) Supports(kind string) bool {
	_, ok := b.kinds[kind]
	return ok
}

// ValidateArgs checks kind and count against the generator and its limits.
func (b *Base) ValidateArgs(kind string, count int) error {
	if !b.Supports(kind) {
		return Failf(CodeInvalidKind, "Invalid data type: %s", kind)
	}
	if count < 1 {
		return Failf(CodeInvalidCount, "Count must be at least 1")
	}
	if !b.Limits.Licensed && b.Limits.MaxUnlicensed > 0 && count > b.Limits.MaxUnlicensed {
		return Failf(CodeLimitExceeded, "Unlicensed generation is limited to %d records per run", b.Limits.MaxUnlicensed)
	}
	return nil
}

// Log writes to the generator's logger, if any.
func (b *Base) Log(ctx context.Context, message, level string) {
	if b.Logger == nil {
		return
	}
	b.Logger.Log(ctx, message, level, b.slug)
}

// Each calls create count times. A failing record is logged at error level and
// skipped; the ids of the records that succeeded are returned in order.
func (b *Base) Each(ctx context.Context, count int, create func(ctx context.Context, i int) (int64, error)) []int64 {
	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			b.Log(ctx, fmt.Sprintf("stopped after %d of %d records: %v", len(ids), count, err), domain.LevelWarning)
			break
		}
		id, err := create(ctx, i)
		if err != nil {
			b.Log(ctx, err.Error(), domain.LevelError)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// EachDelete calls del for every id and returns the ids that failed. Failures
// are logged and do not stop the loop.
func (b *Base) EachDelete(ctx context.Context, kind string, ids []int64, del func(ctx context.Context, id int64) error) []int64 {
	var failed []int64
	deleted := 0
	for _, id := range ids {
		if err := del(ctx, id); err != nil {
			b.Log(ctx, fmt.Sprintf("delete %s #%d: %v", kind, id, err), domain.LevelError)
			failed = append(failed, id)
			continue
		}
		deleted++
	}
	b.Log(ctx, fmt.Sprintf("Deleted %d %s records", deleted, kind), domain.LevelSuccess)
	return failed
}
