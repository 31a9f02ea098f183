package memory

import (
	"context"
	"math/big"
	"sync"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/storage"
)

// BlockStore is an in-memory implementation of storage.BlockStore.
type BlockStore struct {
	mu   sync.RWMutex
	data map[uint64]*domain.Metadata
}

// NewBlockStore creates a new in-memory block store.
func NewBlockStore() *BlockStore {
	return &BlockStore{
		data: make(map[uint64]*domain.Metadata),
	}
}

// InsertBlock adds a block row. Returns ErrDuplicateKey if the block exists.
func (s *BlockStore) InsertBlock(_ context.Context, meta *domain.Metadata) error {
	if meta == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[meta.BlockNumber]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[meta.BlockNumber] = cloneBlockMeta(meta)
	return nil
}

// GetBlock retrieves a block row. Returns ErrNotFound if not exists.
func (s *BlockStore) GetBlock(_ context.Context, blockNumber uint64) (*domain.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, exists := s.data[blockNumber]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneBlockMeta(meta), nil
}

// cloneBlockMeta copies the row fields only; price tables are not block rows
// and never pass through this store.
func cloneBlockMeta(m *domain.Metadata) *domain.Metadata {
	out := *m
	out.Prices = nil
	if m.BaseFeeWei != nil {
		out.BaseFeeWei = new(big.Rat).Set(m.BaseFeeWei)
	}
	return &out
}

// Compile-time interface check.
var _ storage.BlockStore = (*BlockStore)(nil)
