package lockfree

import (
	"sync/atomic"

	"coherency/align"
)

// snode is a stack cell. next is written once, before the node is published.
type snode[T any] struct {
	val  T
	next *snode[T]
}

// Stack is a Treiber stack.
type Stack[T any] struct {
	top atomic.Pointer[snode[T]]
	_   align.Pad
	b   budget
}

// NewStack returns an unbounded stack.
func NewStack[T any]() *Stack[T] {
	return &Stack[T]{}
}

// NewBoundedStack returns a stack that holds at most limit values. Push
// reports ErrAllocationExhausted once the limit is reached.
func NewBoundedStack[T any](limit int) *Stack[T] {
	s := &Stack[T]{}
	if limit > 0 {
		s.b.limit = uint64(limit)
	}
	return s
}

// Push adds v on top. It fails only on a bounded stack at its limit.
func (s *Stack[T]) Push(v T) error {
	if !s.b.take() {
		return ErrAllocationExhausted
	}
	n := &snode[T]{val: v}
	for {
		cur := s.top.Load()
		n.next = cur
		if s.top.CompareAndSwap(cur, n) {
			return nil
		}
	}
}

// Pop removes and returns the top value, or false when empty.
func (s *Stack[T]) Pop() (T, bool) {
	for {
		head := s.top.Load()
		if head == nil {
			var zero T
			return zero, false
		}
		if s.top.CompareAndSwap(head, head.next) {
			s.b.give()
			return head.val, true
		}
	}
}

// Peek returns the top value without removing it.
func (s *Stack[T]) Peek() (T, bool) {
	head := s.top.Load()
	if head == nil {
		var zero T
		return zero, false
	}
	return head.val, true
}

// Empty reports whether the stack held no values at the moment of the load.
func (s *Stack[T]) Empty() bool {
	return s.top.Load() == nil
}

// Len is the number of values pushed and not yet popped. Concurrent
// operations make it approximate.
func (s *Stack[T]) Len() int {
	return int(s.b.live.Get())
}
