// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ LOCK-FREE PRIMITIVES
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Counter, Treiber Stack, Michael–Scott Queue
//
// Description:
//   Unbounded multi-producer / multi-consumer structures built on sync/atomic.
//
// Memory ordering:
//   Every sync/atomic operation is sequentially consistent, a superset of the
//   relaxed / acquire / release orderings the algorithms need. Each successful
//   publication CAS therefore happens-before the load that observes it, which
//   gives push→pop and enqueue→dequeue their happens-before edge.
//
// Reclamation:
//   Unlinked nodes are reclaimed by the garbage collector. A node cannot be
//   freed and reallocated at the same address while any goroutine still holds
//   a pointer to it, so pointer CAS is immune to ABA without tags, hazard
//   pointers or epochs, and there is no quiescence requirement on callers.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package lockfree

import (
	"errors"
	"sync/atomic"
)

// ErrAllocationExhausted is returned by Push / Enqueue on a bounded structure
// whose node budget is spent. The caller still owns the rejected value.
var ErrAllocationExhausted = errors.New("lockfree: node budget exhausted")

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// COUNTER
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Counter is a wait-free 64-bit counter. Dec below zero wraps to 2^64-1.
type Counter struct {
	v atomic.Uint64
}

// NewCounter returns a counter holding initial.
func NewCounter(initial uint64) *Counter {
	c := &Counter{}
	c.v.Store(initial)
	return c
}

// Inc adds one and returns the value before the increment.
//
//go:nosplit
//go:inline
func (c *Counter) Inc() uint64 {
	return c.v.Add(1) - 1
}

// Dec subtracts one and returns the value before the decrement.
//
//go:nosplit
//go:inline
func (c *Counter) Dec() uint64 {
	return c.v.Add(^uint64(0)) + 1
}

// Add adds delta and returns the value before the addition.
//
//go:nosplit
//go:inline
func (c *Counter) Add(delta uint64) uint64 {
	return c.v.Add(delta) - delta
}

// Get returns the current value.
//
//go:nosplit
//go:inline
func (c *Counter) Get() uint64 {
	return c.v.Load()
}

// Set overwrites the value.
//
//go:nosplit
//go:inline
func (c *Counter) Set(v uint64) {
	c.v.Store(v)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// NODE BUDGET
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// budget tracks live nodes against an optional limit; zero means unbounded.
type budget struct {
	live  Counter
	limit uint64
}

// take reserves one node, failing when the limit is reached.
func (b *budget) take() bool {
	if b.limit == 0 {
		b.live.Inc()
		return true
	}
	if b.live.Inc() >= b.limit {
		b.live.Dec()
		return false
	}
	return true
}

// give releases one node.
func (b *budget) give() { b.live.Dec() }
