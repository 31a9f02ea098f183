package memory

import (
	"context"
	"sort"
	"sync"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/storage"
)

// RegistryStore is an in-memory implementation of storage.RegistryStore.
type RegistryStore struct {
	mu      sync.RWMutex
	entries map[domain.Address]domain.Protocol
	tokens  map[domain.Address]domain.Token
}

// NewRegistryStore creates a new in-memory registry store.
func NewRegistryStore() *RegistryStore {
	return &RegistryStore{
		entries: make(map[domain.Address]domain.Protocol),
		tokens:  make(map[domain.Address]domain.Token),
	}
}

// InsertEntries adds protocol bindings. Returns ErrDuplicateKey on a known
// address without inserting anything.
func (s *RegistryStore) InsertEntries(_ context.Context, entries []storage.ProtocolEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.Address == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.entries[e.Address]; exists {
			return storage.ErrDuplicateKey
		}
	}
	for _, e := range entries {
		s.entries[e.Address] = e.Protocol
	}
	return nil
}

// LoadEntries retrieves all protocol bindings, ordered by address.
func (s *RegistryStore) LoadEntries(_ context.Context) ([]storage.ProtocolEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.ProtocolEntry, 0, len(s.entries))
	for addr, proto := range s.entries {
		result = append(result, storage.ProtocolEntry{Address: addr, Protocol: proto})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result, nil
}

// InsertTokens adds token rows. Returns ErrDuplicateKey on a known address.
func (s *RegistryStore) InsertTokens(_ context.Context, tokens []domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tokens {
		if t.Address == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.tokens[t.Address]; exists {
			return storage.ErrDuplicateKey
		}
	}
	for _, t := range tokens {
		s.tokens[t.Address] = t
	}
	return nil
}

// LoadTokens retrieves all token rows keyed by address.
func (s *RegistryStore) LoadTokens(_ context.Context) (map[domain.Address]domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[domain.Address]domain.Token, len(s.tokens))
	for addr, t := range s.tokens {
		result[addr] = t
	}
	return result, nil
}

// Compile-time interface check.
var _ storage.RegistryStore = (*RegistryStore)(nil)
