// Package inspect runs MEV pattern detectors over a block's normalized
// action set. Detectors are mutually independent read-only passes; the
// framework only dispatches and aggregates.
package inspect

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/observability"
)

// Inspector detects one MEV strategy family in a block action set.
// Implementations must not mutate the set. A block that cannot be
// evaluated (missing metadata) yields an empty result, not an error.
type Inspector interface {
	// Name returns a stable identifier for logging and metrics.
	Name() string

	// Inspect returns zero or more detected bundles for the block.
	Inspect(ctx context.Context, set *domain.BlockActionSet) ([]*domain.Bundle, error)
}

// Runner dispatches every registered inspector against the same block and
// concatenates their outputs. No deduplication across detectors: one
// transaction sequence may legitimately be flagged by more than one.
type Runner struct {
	inspectors []Inspector
}

// NewRunner creates a dispatch runner over the given inspectors.
func NewRunner(inspectors ...Inspector) *Runner {
	return &Runner{inspectors: inspectors}
}

// DefaultInspectors returns the four canonical detectors.
func DefaultInspectors(cfg Config) []Inspector {
	return []Inspector{
		NewSandwichInspector(cfg.Grouper),
		NewCexDexInspector(cfg.CexDexThreshold),
		NewJitInspector(cfg.Grouper),
		NewBackrunInspector(),
	}
}

// Inspect validates the set's ordering invariant, then runs all
// inspectors concurrently. An invariant violation is fatal for the block;
// detector outputs are concatenated in registration order.
func (r *Runner) Inspect(ctx context.Context, set *domain.BlockActionSet) ([]*domain.Bundle, error) {
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("block %d action set: %w", set.BlockNumber, err)
	}

	results := make([][]*domain.Bundle, len(r.inspectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, ins := range r.inspectors {
		g.Go(func() error {
			start := time.Now()
			bundles, err := ins.Inspect(gctx, set)
			observability.RecordInspectLatency(ins.Name(), time.Since(start).Seconds())
			if err != nil {
				return fmt.Errorf("inspector %s: %w", ins.Name(), err)
			}
			results[i] = bundles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*domain.Bundle
	for _, bundles := range results {
		out = append(out, bundles...)
	}
	return out, nil
}
