package monitor

import (
	"strconv"
	"time"

	"coherency/protocol"

	"go.uber.org/zap"
)

// EventKind names a coherency side-effect.
type EventKind uint8

const (
	EventInvalidation EventKind = iota
	EventWriteback
)

func (k EventKind) String() string {
	switch k {
	case EventInvalidation:
		return "invalidation"
	case EventWriteback:
		return "writeback"
	}
	return "event(" + strconv.Itoa(int(k)) + ")"
}

// Event is a pending invalidation or writeback produced by a request.
type Event struct {
	Kind      EventKind
	CPU       int
	Address   uint64
	From, To  protocol.State
	LatencyNs uint64
	At        time.Duration // since the monitor was built
}

func kindOf(r protocol.Response) EventKind {
	if r.RequiresWriteback {
		return EventWriteback
	}
	return EventInvalidation
}

// push enqueues ev without blocking. A full queue drops the event and warns
// once per saturation episode.
func (m *Monitor) push(ev Event) {
	if err := m.events.Enqueue(ev); err != nil {
		m.counters.dropped.Add(1)
		if m.saturated.CompareAndSwap(false, true) {
			m.log.Warn("pending event queue saturated",
				zap.Stringer("kind", ev.Kind),
				zap.Uint64("address", ev.Address),
				zap.Error(err))
		}
	}
}

// DrainEvents hands every pending event to fn in FIFO order and returns how
// many were delivered. It clears the saturation warning latch.
func (m *Monitor) DrainEvents(fn func(Event)) int {
	n := m.events.Drain(fn)
	m.saturated.Store(false)
	return n
}

// PendingEvents returns the approximate number of queued events.
func (m *Monitor) PendingEvents() int {
	return m.events.Len()
}
