package metadata

import (
	"context"
	"sync"

	"evm-mev-lab/internal/domain"
)

// MemoryStore implements Store over an in-memory map. Used by tests and
// the stub wiring.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[uint64]*domain.Metadata

	// BackfillFunc, when set, is invoked by Backfill to materialize
	// blocks. A nil func makes Backfill a no-op.
	BackfillFunc func(ctx context.Context, from, to uint64) ([]*domain.Metadata, error)
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks: make(map[uint64]*domain.Metadata),
	}
}

// Put stores metadata for its block.
func (s *MemoryStore) Put(meta *domain.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[meta.BlockNumber] = meta
}

// GetMetadata implements Store.
func (s *MemoryStore) GetMetadata(_ context.Context, blockNumber uint64, includePricing bool) (*domain.Metadata, error) {
	s.mu.RLock()
	meta, ok := s.blocks[blockNumber]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !includePricing && meta.Prices != nil {
		stripped := *meta
		stripped.Prices = nil
		return &stripped, nil
	}
	return meta, nil
}

// Backfill implements Store.
func (s *MemoryStore) Backfill(ctx context.Context, from, to uint64) error {
	if s.BackfillFunc == nil {
		return nil
	}
	metas, err := s.BackfillFunc(ctx, from, to)
	if err != nil {
		return err
	}
	for _, m := range metas {
		s.Put(m)
	}
	return nil
}
