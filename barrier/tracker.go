package barrier

import (
	"sync/atomic"

	"coherency/align"
	"coherency/constants"
)

// Stats is a plain-data snapshot of a Tracker. Counters are read one at a
// time, so the snapshot is consistent per counter but not across counters.
type Stats struct {
	TotalBarriers uint64
	Acquires      uint64
	Releases      uint64
	FullBarriers  uint64
	StoreStores   uint64
	LoadLoads     uint64
	PerCPU        []uint64
}

// Tracker counts fences globally and per CPU. Counting is advisory: it never
// orders memory and never synchronises with the fence it describes.
type Tracker struct {
	total       atomic.Uint64
	_           align.Pad
	acquires    atomic.Uint64
	releases    atomic.Uint64
	full        atomic.Uint64
	storeStores atomic.Uint64
	loadLoads   atomic.Uint64
	_           align.Pad

	cpus []align.PaddedUint64 // one line per CPU, one writer per slot
}

// NewTracker sizes the per-CPU slots for maxCPUs. Values below one fall back
// to constants.MaxCPUs.
func NewTracker(maxCPUs int) *Tracker {
	if maxCPUs <= 0 {
		maxCPUs = constants.MaxCPUs
	}
	return &Tracker{cpus: make([]align.PaddedUint64, maxCPUs)}
}

// CPUs returns the number of per-CPU slots.
func (t *Tracker) CPUs() int { return len(t.cpus) }

// Record counts one fence of kind k issued by cpu. Out-of-range CPU ids fold
// modulo the slot count.
func (t *Tracker) Record(k Type, cpu int) {
	t.total.Add(1)
	t.cpus[foldCPU(cpu, len(t.cpus))].Add(1)

	switch k {
	case Acquire:
		t.acquires.Add(1)
	case Release:
		t.releases.Add(1)
	case StoreStore:
		t.storeStores.Add(1)
	case LoadLoad:
		t.loadLoads.Add(1)
	default:
		t.full.Add(1)
	}
}

// Issue fences then records.
func (t *Tracker) Issue(k Type, cpu int) {
	Fence(k)
	t.Record(k, cpu)
}

// CPU returns the fence count recorded for cpu.
func (t *Tracker) CPU(cpu int) uint64 {
	return t.cpus[foldCPU(cpu, len(t.cpus))].Load()
}

// Stats snapshots every counter.
func (t *Tracker) Stats() Stats {
	s := Stats{
		TotalBarriers: t.total.Load(),
		Acquires:      t.acquires.Load(),
		Releases:      t.releases.Load(),
		FullBarriers:  t.full.Load(),
		StoreStores:   t.storeStores.Load(),
		LoadLoads:     t.loadLoads.Load(),
		PerCPU:        make([]uint64, len(t.cpus)),
	}
	for i := range t.cpus {
		s.PerCPU[i] = t.cpus[i].Load()
	}
	return s
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
