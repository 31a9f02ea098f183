package postgres

import (
	"context"
	"fmt"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/storage"
)

// BlockStore implements storage.BlockStore using PostgreSQL. The rows carry
// block context only; reference prices live in the ClickHouse price store.
type BlockStore struct {
	pool *Pool
}

// NewBlockStore creates a new BlockStore.
func NewBlockStore(pool *Pool) *BlockStore {
	return &BlockStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BlockStore = (*BlockStore)(nil)

// InsertBlock adds a block row. Returns ErrDuplicateKey if the block exists.
func (s *BlockStore) InsertBlock(ctx context.Context, meta *domain.Metadata) error {
	if meta == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO block_meta (block_number, timestamp_ms, base_fee_wei, builder)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query,
		int64(meta.BlockNumber),
		meta.BlockTimestampMs,
		storage.EncodeRat(meta.BaseFeeWei),
		meta.Builder,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert block meta: %w", err)
	}
	return nil
}

// GetBlock retrieves a block row. Returns ErrNotFound if not exists.
func (s *BlockStore) GetBlock(ctx context.Context, blockNumber uint64) (*domain.Metadata, error) {
	query := `
		SELECT block_number, timestamp_ms, base_fee_wei, builder
		FROM block_meta
		WHERE block_number = $1
	`

	var (
		meta       domain.Metadata
		number     int64
		baseFeeTxt string
	)
	err := s.pool.QueryRow(ctx, query, int64(blockNumber)).Scan(
		&number,
		&meta.BlockTimestampMs,
		&baseFeeTxt,
		&meta.Builder,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get block meta: %w", err)
	}

	meta.BlockNumber = uint64(number)
	if meta.BaseFeeWei, err = storage.DecodeRat(baseFeeTxt); err != nil {
		return nil, fmt.Errorf("get block meta: %w", err)
	}
	return &meta, nil
}
