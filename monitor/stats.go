package monitor

import (
	"coherency/align"
	"coherency/protocol"
)

// ProtocolStats is a plain-data snapshot. Each counter is read atomically;
// the set is not a consistent cut across counters.
type ProtocolStats struct {
	StateTransitions   [protocol.NumStates]uint64
	CacheMisses        uint64
	CacheHits          uint64
	CoherencyEvents    uint64
	Invalidations      uint64
	Writebacks         uint64
	ProtocolOverheadNs uint64
}

type protocolStats struct {
	transitions [protocol.NumStates]align.PaddedUint64
	misses      align.PaddedUint64
	hits        align.PaddedUint64
	events      align.PaddedUint64
	invalidates align.PaddedUint64
	writebacks  align.PaddedUint64
	overheadNs  align.PaddedUint64
}

func (s *protocolStats) record(next protocol.State, hit bool, r protocol.Response) {
	s.transitions[next].Add(1)
	s.events.Add(1)
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	if r.RequiresInvalidation {
		s.invalidates.Add(1)
	}
	if r.RequiresWriteback {
		s.writebacks.Add(1)
	}
	s.overheadNs.Add(r.LatencyNs)
}

// ProtocolStats snapshots the protocol counters.
func (m *Monitor) ProtocolStats() ProtocolStats {
	s := &m.stats
	var out ProtocolStats
	for i := range s.transitions {
		out.StateTransitions[i] = s.transitions[i].Load()
	}
	out.CacheMisses = s.misses.Load()
	out.CacheHits = s.hits.Load()
	out.CoherencyEvents = s.events.Load()
	out.Invalidations = s.invalidates.Load()
	out.Writebacks = s.writebacks.Load()
	out.ProtocolOverheadNs = s.overheadNs.Load()
	return out
}

// ───────────────────────────── Performance Counters ──────────────────────────────

// Counters is a snapshot of the monitor's performance counters.
type Counters struct {
	ProtocolOps      uint64
	AvgLatencyNs     uint64
	Efficiency       uint64 // hits per 10,000 operations
	Migrations       uint64 // writes by a CPU other than the line's last writer
	ContentionEvents uint64 // failed slot lock attempts
	DroppedEvents    uint64 // events lost to a full pending queue
}

type counters struct {
	ops        align.PaddedUint64
	latencyNs  align.PaddedUint64
	hits       align.PaddedUint64
	migrations align.PaddedUint64
	contention align.PaddedUint64
	dropped    align.PaddedUint64
}

func (c *counters) record(latency uint64, hit, migrated bool, spins uint64) {
	c.ops.Add(1)
	c.latencyNs.Add(latency)
	if hit {
		c.hits.Add(1)
	}
	if migrated {
		c.migrations.Add(1)
	}
	if spins != 0 {
		c.contention.Add(spins)
	}
}

// Counters snapshots the performance counters.
func (m *Monitor) Counters() Counters {
	c := &m.counters
	out := Counters{
		ProtocolOps:      c.ops.Load(),
		Migrations:       c.migrations.Load(),
		ContentionEvents: c.contention.Load(),
		DroppedEvents:    c.dropped.Load(),
	}
	if out.ProtocolOps != 0 {
		out.AvgLatencyNs = c.latencyNs.Load() / out.ProtocolOps
		out.Efficiency = c.hits.Load() * 10_000 / out.ProtocolOps
	}
	return out
}
