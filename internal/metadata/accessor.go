package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"evm-mev-lab/internal/domain"
)

// DefaultFetchTimeout bounds one store round trip.
const DefaultFetchTimeout = 15 * time.Second

// Accessor wraps a Store with a per-call timeout and a single
// backfill-then-retry on missing metadata. A block whose metadata stays
// missing after the retry surfaces ErrNotFound; the caller decides
// whether that skips the block.
type Accessor struct {
	store   Store
	timeout time.Duration
}

// NewAccessor creates an Accessor. A zero timeout uses the default.
func NewAccessor(store Store, timeout time.Duration) *Accessor {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Accessor{store: store, timeout: timeout}
}

// Get retrieves metadata for the block, backfilling once on a miss.
func (a *Accessor) Get(ctx context.Context, blockNumber uint64, includePricing bool) (*domain.Metadata, error) {
	meta, err := a.get(ctx, blockNumber, includePricing)
	if err == nil {
		return meta, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	log.Warn().
		Uint64("block", blockNumber).
		Msg("metadata missing, backfilling")

	bctx, cancel := context.WithTimeout(ctx, a.timeout)
	err = a.store.Backfill(bctx, blockNumber, blockNumber)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("backfill block %d: %w", blockNumber, err)
	}

	meta, err = a.get(ctx, blockNumber, includePricing)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("block %d after backfill: %w", blockNumber, ErrNotFound)
		}
		return nil, err
	}
	return meta, nil
}

func (a *Accessor) get(ctx context.Context, blockNumber uint64, includePricing bool) (*domain.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.store.GetMetadata(ctx, blockNumber, includePricing)
}
