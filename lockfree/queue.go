package lockfree

import (
	"sync/atomic"

	"coherency/align"
)

// qnode is a queue cell. next moves from nil to a successor exactly once.
type qnode[T any] struct {
	val  T
	next atomic.Pointer[qnode[T]]
}

// Queue is a Michael–Scott queue. head always points at a sentinel whose
// successor holds the oldest value; head and tail live on separate lines.
//
// The sentinel keeps the payload it carried when it was dequeued until the
// next dequeue retires it, so at most one delivered value stays reachable.
type Queue[T any] struct {
	_    align.Pad
	head atomic.Pointer[qnode[T]]
	_    align.Pad
	tail atomic.Pointer[qnode[T]]
	_    align.Pad
	b    budget
}

// NewQueue returns an unbounded queue.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	dummy := &qnode[T]{}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

// NewBoundedQueue returns a queue that holds at most limit values. Enqueue
// reports ErrAllocationExhausted once the limit is reached.
func NewBoundedQueue[T any](limit int) *Queue[T] {
	q := NewQueue[T]()
	if limit > 0 {
		q.b.limit = uint64(limit)
	}
	return q
}

// Enqueue appends v. It fails only on a bounded queue at its limit.
func (q *Queue[T]) Enqueue(v T) error {
	if !q.b.take() {
		return ErrAllocationExhausted
	}
	n := &qnode[T]{val: v}
	for {
		t := q.tail.Load()
		next := t.next.Load()
		if next == nil {
			if t.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(t, n) // best effort; others help
				return nil
			}
			continue
		}
		q.tail.CompareAndSwap(t, next) // help a lagging tail
	}
}

// Dequeue removes and returns the oldest value, or false when empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	for {
		h := q.head.Load()
		t := q.tail.Load()
		next := h.next.Load()

		if h == t {
			if next == nil {
				var zero T
				return zero, false
			}
			q.tail.CompareAndSwap(t, next)
			continue
		}
		if next == nil {
			continue // stale head; reload
		}

		v := next.val
		if q.head.CompareAndSwap(h, next) {
			q.b.give()
			return v, true
		}
	}
}

// Drain dequeues until empty, calling fn for each value in FIFO order, and
// returns how many values it delivered.
func (q *Queue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		v, ok := q.Dequeue()
		if !ok {
			return n
		}
		fn(v)
		n++
	}
}

// Empty reports whether the queue held no values at the moment of the load.
func (q *Queue[T]) Empty() bool {
	h := q.head.Load()
	return h.next.Load() == nil
}

// Len is the number of values enqueued and not yet dequeued. Concurrent
// operations make it approximate.
func (q *Queue[T]) Len() int {
	return int(q.b.live.Get())
}
