package monitor

import (
	"runtime"
	"sync/atomic"
	"time"

	"coherency/protocol"
)

// spinBudget is the number of failed acquisitions before a waiter yields.
const spinBudget = 128

// lineRecord is the mutable part of a slot. 40 bytes.
type lineRecord struct {
	address     uint64
	tag         uint64
	lastAccess  int64  // ns since the monitor's epoch
	accessCount uint64 // saturating
	writer      uint32 // last writer CPU + 1; 0 when never written
	state       protocol.State
	_           [3]byte
}

// Slot is one direct-mapped line-table entry: a spin lock and the line
// record, padded to exactly one cache line. The zero value is an unlocked
// Invalid line at address 0.
type Slot struct {
	mu   atomic.Uint32
	_    uint32
	line lineRecord
	_    [16]byte
}

// lock spins until the slot is held and returns the number of failed attempts.
func (s *Slot) lock() uint64 {
	var spins uint64
	for !s.mu.CompareAndSwap(0, 1) {
		spins++
		if spins%spinBudget == 0 {
			runtime.Gosched()
		}
	}
	return spins
}

func (s *Slot) unlock() {
	s.mu.Store(0)
}

// CacheLine is a copy of one slot's record.
type CacheLine struct {
	Address        uint64
	State          protocol.State
	Tag            uint64
	LastAccess     time.Duration // monotonic time since the monitor was built
	AccessCount    uint64
	LastModifiedBy int // -1 when the line was never written
}

func (r *lineRecord) view() CacheLine {
	return CacheLine{
		Address:        r.address,
		State:          r.state,
		Tag:            r.tag,
		LastAccess:     time.Duration(r.lastAccess),
		AccessCount:    r.accessCount,
		LastModifiedBy: int(r.writer) - 1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ALLOCATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// LineAllocator supplies the line table. AllocateLines must return exactly n
// zeroed slots.
type LineAllocator interface {
	AllocateLines(n int) ([]Slot, error)
}

// HeapAllocator allocates the line table on the Go heap.
type HeapAllocator struct{}

// AllocateLines implements LineAllocator.
func (HeapAllocator) AllocateLines(n int) ([]Slot, error) {
	return make([]Slot, n), nil
}
