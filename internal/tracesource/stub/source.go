package stub

import (
	"context"
	"sync"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/tracesource"
)

// Source implements tracesource.Source for testing. Blocks are served
// from an in-memory map; missing blocks return ErrBlockNotFound.
type Source struct {
	mu     sync.RWMutex
	blocks map[uint64][]*domain.TransactionTrace

	// Fail maps block numbers to errors returned before the stored
	// traces, decremented per call. Simulates transient source failures.
	fail map[uint64]failure
}

type failure struct {
	err   error
	count int
}

// NewSource creates an empty stub source.
func NewSource() *Source {
	return &Source{
		blocks: make(map[uint64][]*domain.TransactionTrace),
		fail:   make(map[uint64]failure),
	}
}

// AddBlock stores the traces served for a block.
func (s *Source) AddBlock(blockNumber uint64, traces []*domain.TransactionTrace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[blockNumber] = traces
}

// FailNext makes the next n BlockTraces calls for the block return err.
func (s *Source) FailNext(blockNumber uint64, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[blockNumber] = failure{err: err, count: n}
}

// BlockTraces implements tracesource.Source.
func (s *Source) BlockTraces(_ context.Context, blockNumber uint64) ([]*domain.TransactionTrace, error) {
	s.mu.Lock()
	if f, ok := s.fail[blockNumber]; ok && f.count > 0 {
		f.count--
		if f.count == 0 {
			delete(s.fail, blockNumber)
		} else {
			s.fail[blockNumber] = f
		}
		s.mu.Unlock()
		return nil, f.err
	}
	traces, ok := s.blocks[blockNumber]
	s.mu.Unlock()

	if !ok {
		return nil, tracesource.ErrBlockNotFound
	}
	return traces, nil
}

// LatestBlock implements tracesource.Source. Returns the highest stored
// block number.
func (s *Source) LatestBlock(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest uint64
	for n := range s.blocks {
		if n > latest {
			latest = n
		}
	}
	return latest, nil
}
