// ============================================================================
// MEMORY BARRIER VALIDATION SUITE
// ============================================================================
//
// Fences have no observable data effect, so the suite checks that every kind
// is callable on this build, that the accounting matches the calls, and that
// a release/acquire pair publishes data across goroutines.

package barrier

import (
	"sync"
	"sync/atomic"
	"testing"

	"coherency/constants"
)

// ============================================================================
// FENCE ENTRY POINTS
// ============================================================================

func TestFencesCallable(t *testing.T) {
	AcquireBarrier()
	ReleaseBarrier()
	FullBarrier()
	StoreStoreBarrier()
	LoadLoadBarrier()
	for _, k := range Types() {
		Fence(k)
	}
	Fence(Type(200)) // unknown kinds fall back to a full fence
}

func TestInstructionNames(t *testing.T) {
	for _, k := range Types() {
		if Instruction(k) == "" {
			t.Fatalf("no instruction for %v", k)
		}
	}
	if Instruction(Type(99)) != Instruction(Full) {
		t.Fatal("unknown kind should report the full-fence instruction")
	}
	if Selected().Arch == "" {
		t.Fatal("feature detection did not record an architecture")
	}
}

func TestTypeString(t *testing.T) {
	want := map[Type]string{Acquire: "acquire", Release: "release", Full: "full", StoreStore: "store-store", LoadLoad: "load-load"}
	for k, s := range want {
		if k.String() != s {
			t.Errorf("%d.String() = %q, want %q", k, k.String(), s)
		}
	}
	if Type(42).String() != "barrier(42)" {
		t.Errorf("unknown String = %q", Type(42).String())
	}
}

// ============================================================================
// ACCOUNTING
// ============================================================================

func TestTrackerRecord(t *testing.T) {
	tr := NewTracker(8)
	tr.Record(Acquire, 0)
	tr.Record(Release, 1)
	tr.Record(Full, 1)
	tr.Record(StoreStore, 2)
	tr.Record(LoadLoad, 3)

	s := tr.Stats()
	if s.TotalBarriers != 5 || s.Acquires != 1 || s.Releases != 1 || s.FullBarriers != 1 ||
		s.StoreStores != 1 || s.LoadLoads != 1 {
		t.Fatalf("stats = %+v", s)
	}
	if s.PerCPU[1] != 2 || tr.CPU(1) != 2 {
		t.Fatalf("cpu 1 count = %d", s.PerCPU[1])
	}
}

func TestTrackerFoldsCPU(t *testing.T) {
	tr := NewTracker(4)
	tr.Record(Full, 5)  // -> 1
	tr.Record(Full, -1) // -> 3
	if tr.CPU(1) != 1 || tr.CPU(3) != 1 {
		t.Fatalf("folded counts: cpu1=%d cpu3=%d", tr.CPU(1), tr.CPU(3))
	}
}

func TestTrackerDefaultSize(t *testing.T) {
	if NewTracker(0).CPUs() != constants.MaxCPUs {
		t.Fatal("default tracker not sized to MaxCPUs")
	}
}

func TestTrackerConcurrentIssue(t *testing.T) {
	const workers, per = 8, 5000
	tr := NewTracker(workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(cpu int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				tr.Issue(Types()[i%5], cpu)
			}
		}(w)
	}
	wg.Wait()

	s := tr.Stats()
	if s.TotalBarriers != workers*per {
		t.Fatalf("total = %d, want %d", s.TotalBarriers, workers*per)
	}
	sum := s.Acquires + s.Releases + s.FullBarriers + s.StoreStores + s.LoadLoads
	if sum != s.TotalBarriers {
		t.Fatalf("kind counters sum %d != total %d", sum, s.TotalBarriers)
	}
	for cpu := 0; cpu < workers; cpu++ {
		if s.PerCPU[cpu] != per {
			t.Fatalf("cpu %d = %d, want %d", cpu, s.PerCPU[cpu], per)
		}
	}
}

// ============================================================================
// PUBLICATION
// ============================================================================

// TestReleaseAcquirePublication hands a plain payload across goroutines with
// a release fence before the flag store and an acquire fence after the load.
func TestReleaseAcquirePublication(t *testing.T) {
	for round := 0; round < 200; round++ {
		var payload [4]uint64
		var flag atomic.Uint32
		done := make(chan [4]uint64)

		go func() {
			for flag.Load() == 0 {
			}
			AcquireBarrier()
			done <- payload
		}()

		for i := range payload {
			payload[i] = uint64(round*10 + i)
		}
		ReleaseBarrier()
		flag.Store(1)

		got := <-done
		for i := range got {
			if got[i] != uint64(round*10+i) {
				t.Fatalf("round %d: payload[%d] = %d", round, i, got[i])
			}
		}
	}
}

func BenchmarkFullBarrier(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		FullBarrier()
	}
}

func BenchmarkTrackerIssue(b *testing.B) {
	tr := NewTracker(64)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		tr.Issue(Acquire, i&63)
	}
}
