package tracesource

import (
	"context"
	"errors"

	"evm-mev-lab/internal/domain"
)

// ErrBlockNotFound is returned when the requested block does not exist on
// the node yet.
var ErrBlockNotFound = errors.New("tracesource: block not found")

// ErrUnavailable marks a transient source failure. Callers may retry.
var ErrUnavailable = errors.New("tracesource: unavailable")

// FrameFilter decides whether an address is of interest. A source given a
// filter may prune call subtrees that touch no interesting address.
type FrameFilter func(domain.Address) bool

// Source provides execution traces per block.
type Source interface {
	// BlockTraces retrieves the full call trees of every transaction in
	// the block, ordered by transaction index.
	BlockTraces(ctx context.Context, blockNumber uint64) ([]*domain.TransactionTrace, error)

	// LatestBlock retrieves the node's current head block number.
	LatestBlock(ctx context.Context) (uint64, error)
}

// Head is a new-head announcement.
type Head struct {
	Number      uint64
	TimestampMs int64
}

// HeadSource delivers new-head announcements.
type HeadSource interface {
	// SubscribeNewHeads subscribes to head announcements.
	SubscribeNewHeads(ctx context.Context) (<-chan Head, error)

	// Close closes the underlying connection.
	Close() error
}
