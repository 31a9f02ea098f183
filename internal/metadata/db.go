package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/observability"
	"evm-mev-lab/internal/storage"
)

// Fetcher pulls block context and reference prices from an upstream feed
// during backfill.
type Fetcher interface {
	// FetchBlocks retrieves block rows for [from, to] inclusive.
	FetchBlocks(ctx context.Context, from, to uint64) ([]*domain.Metadata, error)

	// FetchPrices retrieves reference price points covering [startMs, endMs].
	FetchPrices(ctx context.Context, startMs, endMs int64) ([]domain.PricePoint, error)
}

// DBStore implements Store over the Postgres block rows and the ClickHouse
// price timeseries. Backfill pulls missing data through a Fetcher.
type DBStore struct {
	blocks    storage.BlockStore
	prices    storage.PriceStore
	fetcher   Fetcher
	usdStable domain.Token
}

// NewDBStore creates a metadata store over persistent backends. fetcher may
// be nil, in which case Backfill fails for missing blocks.
func NewDBStore(blocks storage.BlockStore, prices storage.PriceStore, fetcher Fetcher, usdStable domain.Token) *DBStore {
	return &DBStore{
		blocks:    blocks,
		prices:    prices,
		fetcher:   fetcher,
		usdStable: usdStable,
	}
}

// Compile-time interface check.
var _ Store = (*DBStore)(nil)

// GetMetadata implements Store. The price table is loaded from the window
// ending at the block timestamp so every pair a detector can ask for is
// present.
func (s *DBStore) GetMetadata(ctx context.Context, blockNumber uint64, includePricing bool) (*domain.Metadata, error) {
	start := time.Now()
	meta, err := s.blocks.GetBlock(ctx, blockNumber)
	observability.RecordDBQuery("postgres", "get_block", time.Since(start).Seconds(), err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get block %d: %w", blockNumber, err)
	}
	meta.USDStable = s.usdStable

	if !includePricing {
		return meta, nil
	}

	start = time.Now()
	points, err := s.prices.GetWindow(ctx,
		meta.BlockTimestampMs-domain.RefPriceWindowMs, meta.BlockTimestampMs)
	observability.RecordDBQuery("clickhouse", "get_price_window", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get prices for block %d: %w", blockNumber, err)
	}
	meta.Prices = domain.NewPriceTable(points)
	return meta, nil
}

// Backfill implements Store. Fetched blocks and their price window are
// persisted; rows that already exist are left alone.
func (s *DBStore) Backfill(ctx context.Context, from, to uint64) error {
	if s.fetcher == nil {
		return fmt.Errorf("backfill [%d, %d]: no fetcher configured", from, to)
	}

	metas, err := s.fetcher.FetchBlocks(ctx, from, to)
	if err != nil {
		return fmt.Errorf("fetch blocks [%d, %d]: %w", from, to, err)
	}
	if len(metas) == 0 {
		return nil
	}

	startMs, endMs := metas[0].BlockTimestampMs, metas[0].BlockTimestampMs
	for _, m := range metas {
		if m.BlockTimestampMs < startMs {
			startMs = m.BlockTimestampMs
		}
		if m.BlockTimestampMs > endMs {
			endMs = m.BlockTimestampMs
		}
		if err := s.blocks.InsertBlock(ctx, m); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				continue
			}
			return fmt.Errorf("insert block %d: %w", m.BlockNumber, err)
		}
	}

	points, err := s.fetcher.FetchPrices(ctx, startMs-domain.RefPriceWindowMs, endMs)
	if err != nil {
		return fmt.Errorf("fetch prices [%d, %d]: %w", startMs, endMs, err)
	}
	if len(points) > 0 {
		start := time.Now()
		err := s.prices.InsertBulk(ctx, points)
		observability.RecordDBQuery("clickhouse", "insert_prices", time.Since(start).Seconds(), err)
		if err != nil {
			return fmt.Errorf("insert prices: %w", err)
		}
	}

	log.Info().
		Uint64("from", from).
		Uint64("to", to).
		Int("blocks", len(metas)).
		Int("prices", len(points)).
		Msg("metadata backfill complete")
	return nil
}
