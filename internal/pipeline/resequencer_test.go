package pipeline

import (
	"math/rand"
	"sync"
	"testing"
)

func drain(r *resequencer[uint64]) []uint64 {
	var out []uint64
	for {
		select {
		case v, ok := <-r.out:
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestResequencer_EmitsAscending(t *testing.T) {
	r := newResequencer[uint64](8)
	for _, n := range []uint64{5, 3, 4} {
		r.admit(n)
	}

	// Block 5 finishes first but 3 and 4 are still in flight.
	r.complete(5, 5)
	if got := drain(r); len(got) != 0 {
		t.Fatalf("early release: got %v", got)
	}

	// Block 3 unblocks itself only.
	r.complete(3, 3)
	if got := drain(r); len(got) != 1 || got[0] != 3 {
		t.Fatalf("after 3: got %v", got)
	}

	// Block 4 releases itself and the buffered 5.
	r.complete(4, 4)
	if got := drain(r); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Fatalf("after 4: got %v", got)
	}
}

func TestResequencer_ConcurrentCompletesEmitAscending(t *testing.T) {
	// Workers completing adjacent blocks race their release batches; a
	// small buffer forces sends to block so interleaving would surface
	// as out-of-order emission.
	const blocks = 512
	const workers = 8

	r := newResequencer[uint64](2)
	for n := uint64(0); n < blocks; n++ {
		r.admit(n)
	}

	order := rand.Perm(blocks)
	var next int
	var pick sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				pick.Lock()
				if next >= len(order) {
					pick.Unlock()
					return
				}
				n := uint64(order[next])
				next++
				pick.Unlock()
				r.complete(n, n)
			}
		}()
	}

	done := make(chan struct{})
	var out []uint64
	go func() {
		defer close(done)
		for v := range r.out {
			out = append(out, v)
		}
	}()

	wg.Wait()
	r.close()
	<-done

	if len(out) != blocks {
		t.Fatalf("emitted %d of %d blocks", len(out), blocks)
	}
	for i, v := range out {
		if v != uint64(i) {
			t.Fatalf("emitted out of order at %d: got %v", i, out[:i+1])
		}
	}
}

func TestResequencer_CloseFlushesStragglers(t *testing.T) {
	r := newResequencer[uint64](8)
	r.admit(7)
	r.admit(9)
	r.complete(9, 9)
	r.complete(7, 7)
	r.close()

	var out []uint64
	for v := range r.out {
		out = append(out, v)
	}
	if len(out) != 2 || out[0] != 7 || out[1] != 9 {
		t.Fatalf("flushed order: got %v", out)
	}
}
