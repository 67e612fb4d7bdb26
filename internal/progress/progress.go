// Package progress holds the ephemeral progress snapshots polled by clients.
package progress

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"demopilot/internal/domain"
)

const (
	// DefaultTTL is how long a snapshot survives after its last write.
	DefaultTTL = 5 * time.Minute
	// maxPairs bounds the number of live (generator, kind) snapshots.
	maxPairs = 1024
)

// Store keeps at most one live snapshot per (generator, kind) pair. Writes
// overwrite; the last writer wins. Snapshots are stamped and expired on the
// wall clock.
type Store struct {
	cache *expirable.LRU[string, domain.Snapshot]
}

func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		cache: expirable.NewLRU[string, domain.Snapshot](maxPairs, nil, ttl),
	}
}

func key(generator, kind string) string {
	return generator + "\x00" + kind
}

// Update records the state of a run before batch currentBatch executes.
func (s *Store) Update(generator, kind, runID string, currentBatch, totalBatches, generated int) domain.Snapshot {
	snap := domain.Snapshot{
		Generator:    generator,
		Kind:         kind,
		RunID:        runID,
		CurrentBatch: currentBatch,
		TotalBatches: totalBatches,
		Generated:    generated,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if totalBatches > 0 {
		snap.Percentage = float64(currentBatch) / float64(totalBatches) * 100
	}
	s.cache.Add(key(generator, kind), snap)
	return snap
}

// Get returns the live snapshot for the pair, if any.
func (s *Store) Get(generator, kind string) (domain.Snapshot, bool) {
	return s.cache.Get(key(generator, kind))
}

// Delete drops the snapshot for the pair.
func (s *Store) Delete(generator, kind string) {
	s.cache.Remove(key(generator, kind))
}

// Purge drops every snapshot.
func (s *Store) Purge() {
	s.cache.Purge()
}
