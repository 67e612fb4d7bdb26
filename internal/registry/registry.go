// Package registry maps generator slugs to generator instances.
package registry

import (
	"context"
	"sort"
	"sync"

	"demopilot/internal/generator"
)

// Factory builds a generator. Discover calls each factory once.
type Factory func() (generator.Generator, error)

// Registry is constructed at start-up and passed to whoever needs lookups.
// The first registration of a slug wins.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]generator.Generator
	order      []string
}

func New() *Registry {
	return &Registry{generators: map[string]generator.Generator{}}
}

// Register adds g. It returns false when the slug is already taken.
func (r *Registry) Register(g generator.Generator) bool {
	if g == nil || g.Slug() == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	slug := g.Slug()
	if _, ok := r.generators[slug]; ok {
		return false
	}
	r.generators[slug] = g
	r.order = append(r.order, slug)
	return true
}

// Get returns the generator registered under slug.
func (r *Registry) Get(slug string) (generator.Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[slug]
	return g, ok
}

// IsRegistered reports whether slug is present.
func (r *Registry) IsRegistered(slug string) bool {
	_, ok := r.Get(slug)
	return ok
}

// Count returns the number of registered generators.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.generators)
}

// All returns the registered generators keyed by slug. With activeOnly set,
// each generator's IsActive is evaluated now.
func (r *Registry) All(ctx context.Context, activeOnly bool) map[string]generator.Generator {
	r.mu.RLock()
	out := make(map[string]generator.Generator, len(r.generators))
	for slug, g := range r.generators {
		out[slug] = g
	}
	r.mu.RUnlock()
	if !activeOnly {
		return out
	}
	for slug, g := range out {
		if !g.IsActive(ctx) {
			delete(out, slug)
		}
	}
	return out
}

// Slugs returns the registered slugs in registration order.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Discover instantiates every factory in the catalog whose name passes filter
// and registers the result. Factories are visited in name order. It returns
// the number of newly registered generators; factory errors are collected and
// the remaining factories still run.
func (r *Registry) Discover(catalog map[string]Factory, filter func(name string) bool) (int, []error) {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	var (
		count int
		errs  []error
	)
	for _, name := range names {
		if filter != nil && !filter(name) {
			continue
		}
		g, err := catalog[name]()
		if err != nil {
			errs = append(errs, &DiscoverError{Name: name, Err: err})
			continue
		}
		if r.Register(g) {
			count++
		}
	}
	return count, errs
}

// DiscoverError reports a factory that failed to build.
type DiscoverError struct {
	Name string
	Err  error
}

func (e *DiscoverError) Error() string { return "generator " + e.Name + ": " + e.Err.Error() }
func (e *DiscoverError) Unwrap() error { return e.Err }
