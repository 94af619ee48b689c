// ============================================================================
// SPSC REQUEST RING VALIDATION SUITE
// ============================================================================
//
// Constructor validation, FIFO order, full/empty boundaries, wraparound and
// a two-goroutine producer/consumer run that checks ordering end to end.

package ring

import (
	"runtime"
	"testing"
	"time"
	"unsafe"

	"coherency/protocol"
)

func entry(i uint64) *Entry {
	return &Entry{Addr: i * 64, Seq: i, Req: protocol.Request(i % 4)}
}

// ============================================================================
// CONSTRUCTION
// ============================================================================

func TestNewRejectsBadSizes(t *testing.T) {
	for _, n := range []int{0, -1, 3, 6, 100} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("New(%d) did not panic", n)
				}
			}()
			New(n)
		}()
	}
	if New(16).Cap() != 16 {
		t.Fatal("Cap mismatch")
	}
}

func TestLayout(t *testing.T) {
	if unsafe.Sizeof(Entry{}) != 24 {
		t.Fatalf("Entry size = %d, want 24", unsafe.Sizeof(Entry{}))
	}
	if unsafe.Sizeof(slot{}) != 32 {
		t.Fatalf("slot size = %d, want 32", unsafe.Sizeof(slot{}))
	}
	var r Ring
	if unsafe.Offsetof(r.tail)-unsafe.Offsetof(r.head) < 64 {
		t.Fatal("head and tail share a cache line")
	}
}

// ============================================================================
// BASIC OPERATIONS
// ============================================================================

func TestPushPopFIFO(t *testing.T) {
	r := New(8)
	for i := uint64(0); i < 5; i++ {
		if !r.Push(entry(i)) {
			t.Fatalf("push %d failed", i)
		}
	}
	for i := uint64(0); i < 5; i++ {
		e, ok := r.Pop()
		if !ok || e != *entry(i) {
			t.Fatalf("pop %d = %+v,%v", i, e, ok)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("pop on empty ring succeeded")
	}
}

func TestFullRing(t *testing.T) {
	r := New(4)
	for i := uint64(0); i < 4; i++ {
		if !r.Push(entry(i)) {
			t.Fatalf("push %d failed before full", i)
		}
	}
	if r.Push(entry(9)) {
		t.Fatal("push into full ring succeeded")
	}
	if e, _ := r.Pop(); e.Seq != 0 {
		t.Fatalf("oldest = %d", e.Seq)
	}
	if !r.Push(entry(4)) {
		t.Fatal("push after pop failed")
	}
}

func TestWraparound(t *testing.T) {
	r := New(4)
	for i := uint64(0); i < 1000; i++ {
		if !r.Push(entry(i)) {
			t.Fatalf("push %d failed", i)
		}
		e, ok := r.Pop()
		if !ok || e.Seq != i {
			t.Fatalf("round %d popped %+v", i, e)
		}
	}
}

func TestPopCopiesBeforeRecycle(t *testing.T) {
	r := New(2)
	r.Push(entry(1))
	e, _ := r.Pop()
	r.Push(entry(2))
	r.Push(entry(3)) // overwrites the slot e came from
	if e.Seq != 1 {
		t.Fatalf("popped entry changed to %d", e.Seq)
	}
}

// ============================================================================
// PRODUCER / CONSUMER
// ============================================================================

func TestSPSCOrdering(t *testing.T) {
	const n = 200_000
	r := New(64)
	done := make(chan error, 1)

	go func() {
		for i := uint64(0); i < n; i++ {
			e := r.PopWait()
			if e.Seq != i || e.Addr != i*64 {
				done <- errf("entry %d out of order: %+v", i, e)
				return
			}
		}
		done <- nil
	}()

	for i := uint64(0); i < n; i++ {
		r.PushWait(entry(i))
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

// TestSPSCSingleProcessor hands entries across a ring that is far smaller
// than the stream with only one P, so every full or empty ring forces the
// waiting side to give the processor back.
func TestSPSCSingleProcessor(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	const n = 50_000
	r := New(16)
	done := make(chan error, 1)
	start := time.Now()

	go func() {
		for i := uint64(0); i < n; i++ {
			if e := r.PopWait(); e.Seq != i {
				done <- errf("entry %d out of order: %+v", i, e)
				return
			}
		}
		done <- nil
	}()
	for i := uint64(0); i < n; i++ {
		r.PushWait(entry(i))
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if el := time.Since(start); el > 5*time.Second {
		t.Fatalf("%d hand-offs on one processor took %v", n, el)
	}
}

func BenchmarkPushPop(b *testing.B) {
	r := New(1024)
	e := entry(7)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.Push(e)
		r.Pop()
	}
}
