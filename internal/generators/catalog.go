// Package generators lists the built-in generators and their host schemas.
package generators

import (
	"context"
	"fmt"
	"sort"

	"demopilot/internal/config"
	"demopilot/internal/generator"
	"demopilot/internal/generators/hr"
	"demopilot/internal/generators/shop"
	"demopilot/internal/host"
	"demopilot/internal/registry"
)

// Options configure every built-in generator.
type Options struct {
	Store  *host.Store
	Config *config.Config
	Logger generator.Logger
	// Seed feeds the fakers; zero picks a random seed.
	Seed uint64
}

// Schemas maps generator slugs to the host tables they need.
var Schemas = map[string][]host.Table{
	shop.Slug: shop.Tables,
	hr.Slug:   hr.Tables,
}

// Slugs returns the built-in generator slugs in order.
func Slugs() []string {
	out := make([]string, 0, len(Schemas))
	for s := range Schemas {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func configure(b *generator.Base, opts Options) {
	b.Logger = opts.Logger
	if opts.Config == nil {
		return
	}
	b.SetBatchSize(opts.Config.Generation.BatchSize)
	b.Limits = generator.Limits{
		MaxUnlicensed: opts.Config.Generation.MaxUnlicensed,
		Licensed:      opts.Config.Generation.Licensed,
	}
}

// Catalog returns a factory per built-in generator for registry.Discover.
func Catalog(opts Options) map[string]registry.Factory {
	return map[string]registry.Factory{
		shop.Slug: func() (generator.Generator, error) {
			if opts.Store == nil {
				return nil, fmt.Errorf("no host store")
			}
			g := shop.New(opts.Store, opts.Seed)
			configure(&g.Base, opts)
			return g, nil
		},
		hr.Slug: func() (generator.Generator, error) {
			if opts.Store == nil {
				return nil, fmt.Errorf("no host store")
			}
			g := hr.New(opts.Store, opts.Seed)
			configure(&g.Base, opts)
			return g, nil
		},
	}
}

// Install creates the host tables of the given generators, or of every
// built-in generator when none are named.
func Install(ctx context.Context, store *host.Store, slugs ...string) error {
	if len(slugs) == 0 {
		slugs = Slugs()
	}
	for _, slug := range slugs {
		tables, ok := Schemas[slug]
		if !ok {
			return fmt.Errorf("unknown generator %q", slug)
		}
		if err := store.Install(ctx, tables...); err != nil {
			return fmt.Errorf("install %s: %w", slug, err)
		}
	}
	return nil
}
