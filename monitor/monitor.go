// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ CACHE COHERENCY MONITOR
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Direct-Mapped Line Table & Request Hot Path
//
// Description:
//   Owns a fixed line table, the protocol engine, the false-sharing detector,
//   the statistics counters and a bounded queue of pending coherency events.
//   Every request runs on the caller's goroutine and never blocks: the only
//   wait is a short spin on the target slot's lock.
//
// Concurrency Model:
//   - Slot record: per-slot spin lock held only for the read-modify-write
//   - Statistics: independent padded atomics outside the slot lock
//   - Detector: lock-free trackers, RWMutex on the suspicious list
//   - Events: bounded lock-free queue, overflow counted and dropped
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package monitor

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"coherency/align"
	"coherency/barrier"
	"coherency/constants"
	"coherency/detector"
	"coherency/lockfree"
	"coherency/protocol"

	"go.uber.org/zap"
)

var (
	// ErrInvalidConfiguration rejects a cache size outside [one line, MaxCacheLines lines],
	// an unknown protocol, or out-of-range options.
	ErrInvalidConfiguration = errors.New("monitor: invalid configuration")

	// ErrInvalidState rejects a state the monitor's protocol does not use.
	ErrInvalidState = errors.New("monitor: state not allowed by protocol")
)

// Monitor simulates cache coherency over a direct-mapped line table.
type Monitor struct {
	engine  protocol.Engine
	slots   []Slot
	maxCPUs int
	epoch   time.Time
	now     func() time.Time
	log     *zap.Logger

	stats    protocolStats
	counters counters

	detector *detector.Detector
	barriers *barrier.Tracker

	events    *lockfree.Queue[Event]
	saturated atomic.Bool
}

// New builds a monitor for protocol p with a line table covering cacheSize
// bytes. The table never grows.
func New(p protocol.Protocol, cacheSize int, opts ...Option) (*Monitor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if !p.Valid() {
		return nil, fmt.Errorf("%w: unknown protocol %v", ErrInvalidConfiguration, p)
	}
	lines := cacheSize / constants.LineSize
	if lines < 1 || lines > constants.MaxCacheLines {
		return nil, fmt.Errorf("%w: cache size %d bytes gives %d lines, want 1..%d",
			ErrInvalidConfiguration, cacheSize, lines, constants.MaxCacheLines)
	}
	if o.maxCPUs <= 0 || o.maxCPUs > constants.MaxCPUs {
		return nil, fmt.Errorf("%w: max cpus %d, want 1..%d", ErrInvalidConfiguration, o.maxCPUs, constants.MaxCPUs)
	}
	if o.eventCapacity <= 0 {
		return nil, fmt.Errorf("%w: event capacity %d", ErrInvalidConfiguration, o.eventCapacity)
	}
	if o.alloc == nil || o.clock == nil {
		return nil, fmt.Errorf("%w: nil allocator or clock", ErrInvalidConfiguration)
	}

	slots, err := o.alloc.AllocateLines(lines)
	if err != nil {
		return nil, fmt.Errorf("monitor: allocate %d lines: %w", lines, err)
	}
	if len(slots) != lines {
		return nil, fmt.Errorf("%w: allocator returned %d lines, want %d", ErrInvalidConfiguration, len(slots), lines)
	}

	log := o.logger.Named("monitor")
	m := &Monitor{
		engine:  protocol.Engine{Protocol: p, Extensions: o.extensions},
		slots:   slots,
		maxCPUs: o.maxCPUs,
		epoch:   o.clock(),
		now:     o.clock,
		log:     log,
		detector: detector.New(detector.Config{
			Lines:         lines,
			Threshold:     o.threshold,
			Window:        o.window,
			MaxSuspicious: o.maxSuspicious,
			MaxCPUs:       o.maxCPUs,
			AutoCorrect:   o.autoCorrect,
			Clock:         o.clock,
			Logger:        o.logger,
		}),
		barriers: barrier.NewTracker(o.maxCPUs),
		events:   lockfree.NewBoundedQueue[Event](o.eventCapacity),
	}

	log.Debug("monitor constructed",
		zap.Stringer("protocol", p),
		zap.Int("lines", lines),
		zap.Int("max_cpus", o.maxCPUs),
		zap.Uint8("extensions", uint8(o.extensions)),
		zap.Bool("hardware_line_match", align.MatchesHardware()))
	return m, nil
}

// Protocol returns the monitor's protocol.
func (m *Monitor) Protocol() protocol.Protocol { return m.engine.Protocol }

// Lines returns the number of line slots.
func (m *Monitor) Lines() int { return len(m.slots) }

// MaxCPUs returns the CPU id folding modulus.
func (m *Monitor) MaxCPUs() int { return m.maxCPUs }

// Barriers exposes the monitor's fence accounting.
func (m *Monitor) Barriers() *barrier.Tracker { return m.barriers }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// HOT PATH
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// HandleCacheRequest applies req from cpu to the line holding addr and
// returns the protocol response. It never fails: addr is aligned down and
// cpu is folded modulo MaxCPUs.
//
// A request is a hit when the slot already holds addr's line in a valid
// state. Rebinding a slot to another line keeps the slot's state and access
// count, as a direct-mapped table without tags would.
func (m *Monitor) HandleCacheRequest(cpu int, addr uint64, req protocol.Request) protocol.Response {
	cpu = foldCPU(cpu, m.maxCPUs)
	lineAddr := align.AlignDown(addr)
	idx := align.LineIndex(lineAddr, len(m.slots))
	s := &m.slots[idx]
	now := m.now()
	stamp := now.Sub(m.epoch).Nanoseconds()

	spins := s.lock()
	r := &s.line
	hit := r.address == lineAddr && r.state != protocol.Invalid
	r.address = lineAddr
	old := r.state
	remote := r.writer != 0 && int(r.writer-1) != cpu
	next := m.engine.Next(old, req, remote)
	r.state = next
	r.lastAccess = stamp
	if r.accessCount != math.MaxUint64 {
		r.accessCount++
	}
	count := r.accessCount
	migrated := false
	if req.IsWrite() {
		migrated = r.writer != 0 && int(r.writer-1) != cpu
		r.writer = uint32(cpu) + 1
	}
	s.unlock()

	resp := protocol.Respond(old, next)
	m.stats.record(next, hit, resp)
	m.counters.record(resp.LatencyNs, hit, migrated, spins)

	if resp.RequiresInvalidation || resp.RequiresWriteback {
		m.barriers.Issue(barrier.Full, cpu)
		m.push(Event{
			CPU:       cpu,
			Address:   lineAddr,
			From:      old,
			To:        next,
			LatencyNs: resp.LatencyNs,
			At:        time.Duration(stamp),
			Kind:      kindOf(resp),
		})
	}

	m.detector.Observe(idx, lineAddr, align.WordOffset(addr), cpu, count, now)
	return resp
}

// foldCPU maps any CPU id, negative included, into [0, n).
//
//go:nosplit
//go:inline
func foldCPU(cpu, n int) int {
	i := cpu % n
	if i < 0 {
		i += n
	}
	return i
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// LINE ACCESS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (m *Monitor) slot(addr uint64) (*Slot, uint64) {
	lineAddr := align.AlignDown(addr)
	return &m.slots[align.LineIndex(lineAddr, len(m.slots))], lineAddr
}

// Line returns a copy of the slot addr maps to. The copy's Address may
// belong to another line sharing the slot.
func (m *Monitor) Line(addr uint64) CacheLine {
	s, _ := m.slot(addr)
	s.lock()
	v := s.line.view()
	s.unlock()
	return v
}

// SetLineState binds addr's slot to its line and forces state. It is the
// external update through which Owner and Forward are entered. The change is
// counted as a transition and published with a release fence.
func (m *Monitor) SetLineState(addr uint64, state protocol.State) error {
	if !m.engine.Protocol.Allows(state) {
		return fmt.Errorf("%w: %v under %v", ErrInvalidState, state, m.engine.Protocol)
	}
	s, lineAddr := m.slot(addr)
	s.lock()
	s.line.address = lineAddr
	s.line.state = state
	s.unlock()

	m.stats.transitions[state].Add(1)
	m.barriers.Issue(barrier.Release, 0)
	return nil
}

// SetLineTag assigns the opaque set-associativity tag of addr's slot.
func (m *Monitor) SetLineTag(addr, tag uint64) {
	s, _ := m.slot(addr)
	s.lock()
	s.line.tag = tag
	s.unlock()
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// FALSE SHARING
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Detections returns a snapshot of the suspicious lines.
func (m *Monitor) Detections() []detector.SuspiciousLine {
	return m.detector.Detections()
}

// Patterns classifies every suspicious line.
func (m *Monitor) Patterns() []detector.SharingPattern {
	return m.detector.Patterns()
}

// DetectorStats returns the detector's counters.
func (m *Monitor) DetectorStats() detector.Stats {
	return m.detector.Stats()
}

// SetAutoCorrection toggles ApplyFalseSharingCorrections.
func (m *Monitor) SetAutoCorrection(on bool) {
	m.detector.SetAutoCorrect(on)
}

// ApplyFalseSharingCorrections returns advisory recommendations for every
// suspicious line above the correction severity. Nothing is moved.
func (m *Monitor) ApplyFalseSharingCorrections() []detector.Recommendation {
	recs := m.detector.ApplyCorrections()
	if len(recs) > 0 {
		m.log.Info("false sharing corrections recommended", zap.Int("count", len(recs)))
	}
	return recs
}

// OptimizeCachePlacement recommends layout changes for the given addresses.
// Only addresses whose slot currently holds their line and whose access
// count passed constants.HotLineAccesses get a recommendation.
func (m *Monitor) OptimizeCachePlacement(addrs []uint64) []detector.Recommendation {
	var out []detector.Recommendation
	for _, addr := range addrs {
		lineAddr := align.AlignDown(addr)
		idx := align.LineIndex(lineAddr, len(m.slots))
		s := &m.slots[idx]

		s.lock()
		held, count := s.line.address == lineAddr, s.line.accessCount
		s.unlock()
		if !held {
			continue
		}
		if r, ok := m.detector.Advise(idx, addr, count); ok {
			out = append(out, r)
		}
	}
	return out
}
