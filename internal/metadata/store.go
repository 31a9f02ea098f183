package metadata

import (
	"context"
	"errors"

	"evm-mev-lab/internal/domain"
)

// ErrNotFound is returned when no metadata exists for the block.
var ErrNotFound = errors.New("metadata: not found")

// Store provides per-block metadata. Implementations back onto the price
// and block tables; the memory store backs tests.
type Store interface {
	// GetMetadata retrieves metadata for a block. When includePricing is
	// false the reference price table may be omitted.
	GetMetadata(ctx context.Context, blockNumber uint64, includePricing bool) (*domain.Metadata, error)

	// Backfill fetches and persists metadata for the block range,
	// inclusive on both ends.
	Backfill(ctx context.Context, from, to uint64) error
}
