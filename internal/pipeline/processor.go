// Package pipeline drives blocks through trace fetch, classification and
// inspection with bounded parallelism and per-block failure isolation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"evm-mev-lab/internal/classifier"
	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/inspect"
	"evm-mev-lab/internal/metadata"
	"evm-mev-lab/internal/observability"
	"evm-mev-lab/internal/tracesource"
)

// Default processor tuning.
const (
	DefaultTraceRetries    = 3
	DefaultTraceRetryDelay = 500 * time.Millisecond
)

// Processor turns one block number into classified actions and bundles.
type Processor struct {
	source     tracesource.Source
	meta       *metadata.Accessor
	classifier *classifier.Classifier
	inspectors *inspect.Runner

	traceRetries    int
	traceRetryDelay time.Duration
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Source     tracesource.Source
	Metadata   *metadata.Accessor
	Classifier *classifier.Classifier
	Inspectors *inspect.Runner

	// TraceRetries bounds retries on transient trace source errors.
	TraceRetries    int
	TraceRetryDelay time.Duration
}

// NewProcessor creates a Processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	p := &Processor{
		source:          opts.Source,
		meta:            opts.Metadata,
		classifier:      opts.Classifier,
		inspectors:      opts.Inspectors,
		traceRetries:    opts.TraceRetries,
		traceRetryDelay: opts.TraceRetryDelay,
	}
	if p.traceRetries <= 0 {
		p.traceRetries = DefaultTraceRetries
	}
	if p.traceRetryDelay <= 0 {
		p.traceRetryDelay = DefaultTraceRetryDelay
	}
	return p
}

// ProcessBlock fetches traces and metadata for the block and classifies
// them into an action set. Metadata missing after backfill surfaces
// metadata.ErrNotFound; a malformed trace surfaces
// domain.ErrMalformedTrace. Both are fatal for this block only.
func (p *Processor) ProcessBlock(ctx context.Context, blockNumber uint64) (*domain.BlockActionSet, *classifier.Stats, error) {
	meta, err := p.meta.Get(ctx, blockNumber, true)
	if err != nil {
		return nil, nil, fmt.Errorf("metadata for block %d: %w", blockNumber, err)
	}

	traces, err := p.fetchTraces(ctx, blockNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("traces for block %d: %w", blockNumber, err)
	}

	start := time.Now()
	set, stats, err := p.classifier.ClassifyBlock(blockNumber, traces, meta)
	if err != nil {
		return nil, nil, fmt.Errorf("classify block %d: %w", blockNumber, err)
	}
	observability.DefaultMetrics.ClassifyLatency.Observe(time.Since(start).Seconds())
	observability.RecordClassification(uint64(stats.FramesVisited), len(stats.DecodeFailures))
	for _, tx := range set.Transactions {
		for _, a := range tx.Actions {
			observability.RecordAction(string(a.Kind()))
		}
	}

	return set, stats, nil
}

// Inspect runs all detectors over the action set.
func (p *Processor) Inspect(ctx context.Context, set *domain.BlockActionSet) ([]*domain.Bundle, error) {
	bundles, err := p.inspectors.Inspect(ctx, set)
	if err != nil {
		return nil, err
	}
	for _, b := range bundles {
		var usd *float64
		if b.ProfitUSD != nil {
			v, _ := b.ProfitUSD.Float64()
			usd = &v
		}
		observability.RecordBundle(string(b.Kind), usd)
	}
	return bundles, nil
}

// fetchTraces retrieves block traces, retrying transient failures with a
// bounded backoff.
func (p *Processor) fetchTraces(ctx context.Context, blockNumber uint64) ([]*domain.TransactionTrace, error) {
	delay := p.traceRetryDelay
	var lastErr error

	for attempt := 0; attempt <= p.traceRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		start := time.Now()
		traces, err := p.source.BlockTraces(ctx, blockNumber)
		if err == nil {
			observability.DefaultMetrics.TraceFetchLatency.Observe(time.Since(start).Seconds())
			return traces, nil
		}
		if !errors.Is(err, tracesource.ErrUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
