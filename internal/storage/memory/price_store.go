package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/storage"
)

// PriceStore is an in-memory implementation of storage.PriceStore.
type PriceStore struct {
	mu   sync.RWMutex
	data []domain.PricePoint // kept sorted by timestamp ASC
}

// NewPriceStore creates a new in-memory price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{}
}

// InsertBulk adds multiple price points.
func (s *PriceStore) InsertBulk(_ context.Context, points []domain.PricePoint) error {
	for _, p := range points {
		if p.Price == nil {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		s.data = append(s.data, clonePoint(p))
	}
	sort.SliceStable(s.data, func(i, j int) bool {
		return s.data[i].TimestampMs < s.data[j].TimestampMs
	})
	return nil
}

// GetAtOrBefore retrieves the pair's nearest point at-or-before tsMs within
// windowMs. Returns ErrNotFound when no such point exists.
func (s *PriceStore) GetAtOrBefore(_ context.Context, pair domain.Pair, tsMs, windowMs int64) (*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.PricePoint
	for i := range s.data {
		p := &s.data[i]
		if p.Pair != pair || p.TimestampMs > tsMs {
			continue
		}
		if tsMs-p.TimestampMs > windowMs {
			continue
		}
		if best == nil || p.TimestampMs > best.TimestampMs {
			best = p
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}

	out := clonePoint(*best)
	return &out, nil
}

// GetWindow retrieves all points across pairs within [startMs, endMs]
// (inclusive), ordered by timestamp ASC.
func (s *PriceStore) GetWindow(_ context.Context, startMs, endMs int64) ([]domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.PricePoint
	for _, p := range s.data {
		if p.TimestampMs >= startMs && p.TimestampMs <= endMs {
			result = append(result, clonePoint(p))
		}
	}
	return result, nil
}

func clonePoint(p domain.PricePoint) domain.PricePoint {
	out := p
	if p.Price != nil {
		out.Price = new(big.Rat).Set(p.Price)
	}
	return out
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)
