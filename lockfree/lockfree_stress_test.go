// ============================================================================
// LOCK-FREE PRIMITIVES STRESS SUITE
// ============================================================================
//
// Multi-producer / multi-consumer runs validating, at quiescence:
//   - Counter: K concurrent Inc calls land exactly K
//   - Stack: popped multiset equals pushed multiset
//   - Queue: dequeued multiset equals enqueued multiset and every producer's
//     values come out in the order that producer enqueued them

package lockfree

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCounterConcurrentInc(t *testing.T) {
	const workers, per = 16, 20000
	c := NewCounter(5)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	if got := c.Get(); got != 5+workers*per {
		t.Fatalf("Get = %d, want %d", got, 5+workers*per)
	}
}

func TestStackConcurrentMultiset(t *testing.T) {
	const producers, consumers, per = 8, 8, 10000
	s := NewStack[int]()

	var seen [producers * per]atomic.Int32
	var popped atomic.Int64
	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				s.Push(p*per + i)
			}
		}(p)
	}
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for popped.Load() < producers*per {
				if v, ok := s.Pop(); ok {
					seen[v].Add(1)
					popped.Add(1)
				} else {
					runtime.Gosched()
				}
			}
		}()
	}
	wg.Wait()

	for v := range seen {
		if n := seen[v].Load(); n != 1 {
			t.Fatalf("value %d popped %d times", v, n)
		}
	}
	if !s.Empty() {
		t.Fatal("stack not empty at quiescence")
	}
}

func TestQueueConcurrentFIFOPerProducer(t *testing.T) {
	const producers, consumers, per = 6, 6, 20000
	q := NewQueue[uint64]()

	var seen [producers * per]atomic.Int32
	var taken atomic.Int64
	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p uint64) {
			defer wg.Done()
			for i := uint64(0); i < per; i++ {
				q.Enqueue(p<<32 | i)
			}
		}(uint64(p))
	}

	errs := make(chan string, consumers)
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := make([]int64, producers)
			for i := range last {
				last[i] = -1
			}
			for taken.Load() < producers*per {
				v, ok := q.Dequeue()
				if !ok {
					runtime.Gosched()
					continue
				}
				taken.Add(1)
				p, seq := int(v>>32), int64(v&0xffffffff)
				if seq <= last[p] {
					errs <- "per-producer order violated"
					return
				}
				last[p] = seq
				seen[p*per+int(seq)].Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatal(e)
	}

	for v := range seen {
		if n := seen[v].Load(); n != 1 {
			t.Fatalf("value %d dequeued %d times", v, n)
		}
	}
	if q.Len() != 0 || !q.Empty() {
		t.Fatalf("queue not empty at quiescence (len %d)", q.Len())
	}
}

func TestBoundedQueueConcurrentAccounting(t *testing.T) {
	const limit, producers, per = 64, 8, 5000
	q := NewBoundedQueue[int](limit)

	var accepted, drained atomic.Int64
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				if q.Enqueue(i) == nil {
					accepted.Add(1)
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, ok := q.Dequeue(); ok {
				drained.Add(1)
				continue
			}
			select {
			case <-stop:
				drained.Add(int64(q.Drain(func(int) {})))
				return
			default:
				runtime.Gosched()
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-done

	if accepted.Load() != drained.Load() {
		t.Fatalf("accepted %d, drained %d", accepted.Load(), drained.Load())
	}
}
