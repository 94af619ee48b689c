// ============================================================================
// LOCK-FREE SPSC REQUEST RING
// ============================================================================
//
// Single-producer/single-consumer ring of coherency requests. The replay
// driver is the only producer for a ring and one CPU proxy the only consumer.
//
// Core capabilities:
//   - Fixed 24-byte Entry payload, 32-byte slots (two per cache line)
//   - Power-of-2 sizing with bit masking
//   - Head and tail cursors on separate cache lines
//   - Sequence-based slot availability signaling, no RMW operations
//
// Safety model:
//   - SPSC discipline required: one producer, one consumer
//   - Push returns false when full; the caller paces itself
//   - Pop copies the entry out before recycling its slot

package ring

import (
	"runtime"
	"sync/atomic"

	"coherency/align"
	"coherency/protocol"
)

// ============================================================================
// CORE DATA STRUCTURES
// ============================================================================

// Entry is one queued request. 24 bytes.
type Entry struct {
	Addr uint64
	Seq  uint64 // producer-assigned position in the source trace
	Req  protocol.Request
	_    [7]byte
}

// slot pairs a payload with its availability sequence.
//
//   - Producer: expects seq == position, publishes seq = position + 1
//   - Consumer: expects seq == position + 1, recycles seq = position + size
type slot struct {
	val Entry
	seq atomic.Uint64
}

// Ring is a cache-isolated SPSC ring buffer.
type Ring struct {
	_    align.Pad
	head uint64 // consumer cursor
	_    [56]byte
	tail uint64 // producer cursor
	_    [56]byte

	mask uint64
	step uint64
	buf  []slot
}

// ============================================================================
// CONSTRUCTOR
// ============================================================================

// New creates a ring with size slots. size must be a positive power of two.
func New(size int) *Ring {
	if size <= 0 || size&(size-1) != 0 {
		panic("ring: size must be >0 and power of two")
	}

	r := &Ring{
		mask: uint64(size - 1),
		step: uint64(size),
		buf:  make([]slot, size),
	}
	for i := range r.buf {
		r.buf[i].seq.Store(uint64(i))
	}
	return r
}

// Cap returns the number of slots.
func (r *Ring) Cap() int { return int(r.step) }

// ============================================================================
// PRODUCER OPERATIONS
// ============================================================================

// Push copies e into the ring. It returns false when the ring is full.
// Producer side only.
//
//go:nocheckptr
//go:nosplit
//go:inline
func (r *Ring) Push(e *Entry) bool {
	t := r.tail
	s := &r.buf[t&r.mask]

	if s.seq.Load() != t {
		return false
	}
	s.val = *e
	s.seq.Store(t + 1)

	r.tail = t + 1
	return true
}

// waitYield is how many relax hints a blocking wait issues before it yields
// the processor to the goroutine on the other end of the ring.
const waitYield = 32

// backoff relaxes once and yields every waitYield calls.
func backoff(spins *int) {
	cpuRelax()
	if *spins++; *spins >= waitYield {
		*spins = 0
		runtime.Gosched()
	}
}

// PushWait spins until e is queued, yielding periodically.
func (r *Ring) PushWait(e *Entry) {
	spins := 0
	for !r.Push(e) {
		backoff(&spins)
	}
}

// ============================================================================
// CONSUMER OPERATIONS
// ============================================================================

// Pop removes the oldest entry, reporting false when empty. The entry is
// copied out before the slot is handed back to the producer. Consumer side
// only.
//
//go:nocheckptr
//go:nosplit
//go:inline
func (r *Ring) Pop() (Entry, bool) {
	h := r.head
	s := &r.buf[h&r.mask]

	if s.seq.Load() != h+1 {
		return Entry{}, false
	}
	val := s.val
	s.seq.Store(h + r.step)

	r.head = h + 1
	return val, true
}

// PopWait spins until an entry is available, yielding periodically.
func (r *Ring) PopWait() Entry {
	spins := 0
	for {
		if e, ok := r.Pop(); ok {
			return e
		}
		backoff(&spins)
	}
}
