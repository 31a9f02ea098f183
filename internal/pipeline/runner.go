package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/metadata"
	"evm-mev-lab/internal/observability"
)

// DefaultMaxTasks is the default bound on concurrently processed blocks.
const DefaultMaxTasks = 4

// BlockResult is the outcome of processing one block. A skipped result
// carries the error that caused the skip; the runner emits it in sequence
// so downstream consumers see every admitted block exactly once.
type BlockResult struct {
	BlockNumber uint64
	Bundles     []*domain.Bundle
	ActionCount int
	Skipped     bool
	Err         error
}

// Emitter consumes re-sequenced block results.
type Emitter interface {
	Emit(ctx context.Context, result *BlockResult) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, result *BlockResult) error

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, result *BlockResult) error {
	return f(ctx, result)
}

// Runner fans block numbers out to a bounded worker pool and emits
// results in ascending block number. A block that fails stays isolated:
// it is logged, counted and emitted as skipped, and the run continues.
type Runner struct {
	processor *Processor
	emitter   Emitter
	maxTasks  int
}

// NewRunner creates a Runner. maxTasks below 1 uses the default.
func NewRunner(processor *Processor, emitter Emitter, maxTasks int) *Runner {
	if maxTasks < 1 {
		maxTasks = DefaultMaxTasks
	}
	return &Runner{
		processor: processor,
		emitter:   emitter,
		maxTasks:  maxTasks,
	}
}

// Run processes block numbers from blocks until the channel closes or the
// context is cancelled. Shutdown is cooperative: in-flight blocks finish,
// no new block starts. Returns the first emitter error, if any.
func (r *Runner) Run(ctx context.Context, blocks <-chan uint64) error {
	reseq := newResequencer[*BlockResult](r.maxTasks)
	jobs := make(chan uint64)

	var wg sync.WaitGroup
	for i := 0; i < r.maxTasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				reseq.complete(n, r.processBlock(ctx, n))
				observability.DefaultMetrics.InflightBlocks.Dec()
			}
		}()
	}

	// Emitter goroutine preserves the re-sequenced order.
	var emitErr error
	emitDone := make(chan struct{})
	go func() {
		defer close(emitDone)
		for result := range reseq.out {
			if emitErr != nil {
				continue
			}
			if err := r.emitter.Emit(ctx, result); err != nil {
				emitErr = fmt.Errorf("emit block %d: %w", result.BlockNumber, err)
			}
		}
	}()

dispatch:
	for {
		select {
		case <-ctx.Done():
			break dispatch
		case n, ok := <-blocks:
			if !ok {
				break dispatch
			}
			reseq.admit(n)
			observability.DefaultMetrics.HighestBlock.Set(float64(n))
			observability.DefaultMetrics.InflightBlocks.Inc()
			select {
			case jobs <- n:
			case <-ctx.Done():
				// Admitted but never dispatched; complete as skipped so
				// the sequence drains.
				reseq.complete(n, &BlockResult{
					BlockNumber: n,
					Skipped:     true,
					Err:         ctx.Err(),
				})
				observability.DefaultMetrics.InflightBlocks.Dec()
				break dispatch
			}
		}
	}

	close(jobs)
	wg.Wait()
	reseq.close()
	<-emitDone

	return emitErr
}

// processBlock runs one block end to end, converting per-block failures
// into skipped results.
func (r *Runner) processBlock(ctx context.Context, blockNumber uint64) *BlockResult {
	set, stats, err := r.processor.ProcessBlock(ctx, blockNumber)
	if err != nil {
		reason := "process"
		switch {
		case errors.Is(err, metadata.ErrNotFound):
			reason = "metadata_missing"
		case errors.Is(err, domain.ErrMalformedTrace):
			reason = "malformed_trace"
		}
		log.Warn().
			Uint64("block", blockNumber).
			Str("reason", reason).
			Err(err).
			Msg("skipping block")
		observability.RecordBlockSkipped(reason)
		return &BlockResult{BlockNumber: blockNumber, Skipped: true, Err: err}
	}

	if len(stats.DecodeFailures) > 0 {
		log.Warn().
			Uint64("block", blockNumber).
			Int("failures", len(stats.DecodeFailures)).
			Msg("contained decode failures")
	}

	bundles, err := r.processor.Inspect(ctx, set)
	if err != nil {
		log.Warn().
			Uint64("block", blockNumber).
			Err(err).
			Msg("skipping block: inspection failed")
		observability.RecordBlockSkipped("inspect")
		return &BlockResult{BlockNumber: blockNumber, Skipped: true, Err: err}
	}

	observability.RecordBlockProcessed(float64(set.Metadata.BlockTimestampMs) / 1000)
	return &BlockResult{
		BlockNumber: blockNumber,
		Bundles:     bundles,
		ActionCount: set.ActionCount(),
	}
}
