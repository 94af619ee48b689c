package detector

import (
	"math/bits"
	"sync/atomic"

	"coherency/align"
	"coherency/constants"
)

// lineTracker records which CPUs and which words touched one line slot.
// Fields are independent atomics, so a reader may see a count without the
// matching CPU bit for a moment; classification tolerates that skew.
type lineTracker struct {
	addr  uint64
	total atomic.Uint64
	words [constants.WordsPerLine]atomic.Uint64
	cpus  []atomic.Uint64 // bitset, one bit per folded CPU id
}

func newLineTracker(addr uint64, maxCPUs int) *lineTracker {
	return &lineTracker{
		addr: addr,
		cpus: make([]atomic.Uint64, (maxCPUs+63)/64),
	}
}

func (t *lineTracker) record(cpu, word int) {
	t.total.Add(1)
	t.words[word].Add(1)

	w := &t.cpus[cpu>>6]
	bit := uint64(1) << (cpu & 63)
	if w.Load()&bit == 0 {
		w.Or(bit)
	}
}

func (t *lineTracker) threadCount() int {
	n := 0
	for i := range t.cpus {
		n += bits.OnesCount64(t.cpus[i].Load())
	}
	return n
}

func (t *lineTracker) threads() []int {
	var ids []int
	for i := range t.cpus {
		w := t.cpus[i].Load()
		for w != 0 {
			b := bits.TrailingZeros64(w)
			ids = append(ids, i*64+b)
			w &^= 1 << b
		}
	}
	return ids
}

// pattern classifies the line. With two or more CPUs, a single touched word
// is true sharing and several touched words are false sharing.
func (t *lineTracker) pattern() SharingPattern {
	p := SharingPattern{
		LineAddress:      t.addr,
		AccessingThreads: t.threads(),
		Frequency:        t.total.Load(),
		HotWords:         [2]int{-1, -1},
	}

	var top [2]uint64
	touched := 0
	for w := range t.words {
		c := t.words[w].Load()
		if c == 0 {
			continue
		}
		touched++
		switch {
		case c > top[0]:
			top[1], p.HotWords[1] = top[0], p.HotWords[0]
			top[0], p.HotWords[0] = c, w
		case c > top[1]:
			top[1], p.HotWords[1] = c, w
		}
	}

	switch {
	case len(p.AccessingThreads) <= 1:
		p.PatternType = NoSharing
	case touched <= 1:
		p.PatternType = TrueSharing
	default:
		p.PatternType = FalseSharing
	}

	if p.HotWords[1] >= 0 {
		a := t.addr + uint64(p.HotWords[0]*constants.WordSize)
		b := t.addr + uint64(p.HotWords[1]*constants.WordSize)
		if a > b {
			p.Distance = a - b
		} else {
			p.Distance = b - a
		}
		p.FalseSharingScore = align.FalseSharingScore(a, b)
	} else if p.HotWords[0] >= 0 {
		p.FalseSharingScore = 1
	}
	return p
}
