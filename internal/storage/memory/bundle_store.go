package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/storage"
)

// BundleStore is an in-memory implementation of storage.BundleStore.
type BundleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Bundle // keyed by bundle ID
}

// NewBundleStore creates a new in-memory bundle store.
func NewBundleStore() *BundleStore {
	return &BundleStore{
		data: make(map[string]*domain.Bundle),
	}
}

// Insert adds a new bundle. Returns ErrDuplicateKey if the bundle ID exists.
func (s *BundleStore) Insert(_ context.Context, b *domain.Bundle) error {
	if b == nil || b.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[b.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[b.ID] = cloneBundle(b)
	return nil
}

// InsertBulk adds multiple bundles atomically. Fails entire batch on any
// duplicate without inserting anything.
func (s *BundleStore) InsertBulk(_ context.Context, bundles []*domain.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bundles {
		if b == nil || b.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[b.ID]; exists {
			return storage.ErrDuplicateKey
		}
	}
	for _, b := range bundles {
		s.data[b.ID] = cloneBundle(b)
	}
	return nil
}

// GetByBlock retrieves all bundles for a block, ordered by kind then ID.
func (s *BundleStore) GetByBlock(_ context.Context, blockNumber uint64) ([]*domain.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bundle
	for _, b := range s.data {
		if b.BlockNumber == blockNumber {
			result = append(result, cloneBundle(b))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Kind != result[j].Kind {
			return result[i].Kind < result[j].Kind
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// GetByKind retrieves bundles of one kind, newest block first. A limit of 0
// means no limit.
func (s *BundleStore) GetByKind(_ context.Context, kind domain.BundleKind, limit int) ([]*domain.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bundle
	for _, b := range s.data {
		if b.Kind == kind {
			result = append(result, cloneBundle(b))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockNumber != result[j].BlockNumber {
			return result[i].BlockNumber > result[j].BlockNumber
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneBundle(b *domain.Bundle) *domain.Bundle {
	out := *b
	out.TxHashes = append([]string(nil), b.TxHashes...)
	out.Profit = b.Profit.Clone()
	if b.ProfitUSD != nil {
		out.ProfitUSD = new(big.Rat).Set(b.ProfitUSD)
	}
	return &out
}

// Compile-time interface check.
var _ storage.BundleStore = (*BundleStore)(nil)
