package pipeline

import (
	"sort"
	"sync"
)

// resequencer re-orders concurrently completed blocks so results leave
// the pipeline in ascending block number. A result is released once no
// lower-numbered block is still in flight.
type resequencer[T any] struct {
	mu       sync.Mutex
	inflight map[uint64]struct{}
	ready    map[uint64]T
	out      chan T
}

func newResequencer[T any](buffer int) *resequencer[T] {
	return &resequencer[T]{
		inflight: make(map[uint64]struct{}),
		ready:    make(map[uint64]T),
		out:      make(chan T, buffer),
	}
}

// admit registers a block as in flight. Must precede complete.
func (r *resequencer[T]) admit(blockNumber uint64) {
	r.mu.Lock()
	r.inflight[blockNumber] = struct{}{}
	r.mu.Unlock()
}

// complete hands in a finished block and releases every buffered result
// not blocked by a lower in-flight block. The sends happen under the
// lock so release batches from concurrent workers cannot interleave;
// the consumer never takes the lock, so a full channel only stalls
// other completions, not the drain.
func (r *resequencer[T]) complete(blockNumber uint64, result T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, blockNumber)
	r.ready[blockNumber] = result
	for _, res := range r.releasable() {
		r.out <- res
	}
}

// releasable pops ready results below the lowest in-flight block, in
// ascending order. Caller holds the lock.
func (r *resequencer[T]) releasable() []T {
	floor := ^uint64(0)
	for n := range r.inflight {
		if n < floor {
			floor = n
		}
	}

	var numbers []uint64
	for n := range r.ready {
		if n < floor {
			numbers = append(numbers, n)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	results := make([]T, 0, len(numbers))
	for _, n := range numbers {
		results = append(results, r.ready[n])
		delete(r.ready, n)
	}
	return results
}

// close flushes any stragglers and closes the output channel. Call after
// all admitted blocks completed.
func (r *resequencer[T]) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.releasable() {
		r.out <- res
	}
	close(r.out)
}
