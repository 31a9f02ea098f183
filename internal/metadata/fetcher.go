package metadata

import (
	"context"
	"fmt"

	"evm-mev-lab/internal/domain"
)

// HeaderSource retrieves block context from the execution node.
type HeaderSource interface {
	BlockHeader(ctx context.Context, blockNumber uint64) (*domain.Metadata, error)
}

// PriceFeed retrieves reference prices from an external source.
type PriceFeed interface {
	Prices(ctx context.Context, startMs, endMs int64) ([]domain.PricePoint, error)
}

// PriceFeedFunc adapts a function to PriceFeed.
type PriceFeedFunc func(ctx context.Context, startMs, endMs int64) ([]domain.PricePoint, error)

func (f PriceFeedFunc) Prices(ctx context.Context, startMs, endMs int64) ([]domain.PricePoint, error) {
	return f(ctx, startMs, endMs)
}

// ChainFetcher implements Fetcher over an execution node header source and
// an optional price feed. Without a feed, backfilled blocks carry no
// reference prices and detectors fall back to gross profit reporting.
type ChainFetcher struct {
	headers HeaderSource
	feed    PriceFeed
}

// NewChainFetcher creates a fetcher. feed may be nil.
func NewChainFetcher(headers HeaderSource, feed PriceFeed) *ChainFetcher {
	return &ChainFetcher{headers: headers, feed: feed}
}

// Compile-time interface check.
var _ Fetcher = (*ChainFetcher)(nil)

// FetchBlocks implements Fetcher.
func (f *ChainFetcher) FetchBlocks(ctx context.Context, from, to uint64) ([]*domain.Metadata, error) {
	if from > to {
		return nil, fmt.Errorf("invalid block range [%d, %d]", from, to)
	}

	out := make([]*domain.Metadata, 0, to-from+1)
	for n := from; n <= to; n++ {
		meta, err := f.headers.BlockHeader(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("header for block %d: %w", n, err)
		}
		out = append(out, meta)
	}
	return out, nil
}

// FetchPrices implements Fetcher.
func (f *ChainFetcher) FetchPrices(ctx context.Context, startMs, endMs int64) ([]domain.PricePoint, error) {
	if f.feed == nil {
		return nil, nil
	}
	return f.feed.Prices(ctx, startMs, endMs)
}
