// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ FALSE-SHARING DETECTOR
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Suspicious Line Tracking & Sharing Classification
//
// Description:
//   Consumes (cpu, line, word, access count) events relayed by the monitor.
//   Per-slot trackers are created lazily with a CAS on an atomic pointer and
//   record the CPU set and word histogram of each line. Once a line's access
//   count passes the threshold it is appended to a bounded suspicious list;
//   on overflow the entry with the smallest severity × recency is evicted.
//
// Concurrency:
//   - Trackers: lock-free, many writers
//   - Suspicious list: RWMutex, readers never block on the hot fast path
//     because a line below threshold returns before touching it
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package detector

import (
	"sync"
	"sync/atomic"
	"time"

	"coherency/constants"

	"go.uber.org/zap"
)

const severityStep = 0.05

// Config sizes and tunes a Detector. Zero fields take the package defaults.
type Config struct {
	Lines         int // number of line slots to track
	Threshold     uint64
	Window        time.Duration
	MaxSuspicious int
	MaxCPUs       int
	AutoCorrect   bool
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Detector flags lines that many accesses hit and classifies their sharing.
type Detector struct {
	threshold   atomic.Uint64
	autoCorrect atomic.Bool

	window  time.Duration
	refresh time.Duration
	maxCPUs int
	limit   int
	now     func() time.Time
	log     *zap.Logger

	trackers []atomic.Pointer[lineTracker]

	mu      sync.RWMutex
	lines   []SuspiciousLine
	slots   []int          // tracker slot of lines[i]
	byAddr  map[uint64]int // address → position in lines
	evicted atomic.Uint64
	flagged atomic.Uint64
}

// New builds a detector for cfg.Lines slots.
func New(cfg Config) *Detector {
	if cfg.Lines <= 0 {
		cfg.Lines = 1
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = constants.DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = constants.DefaultDetectionWindow
	}
	if cfg.MaxSuspicious <= 0 {
		cfg.MaxSuspicious = constants.DefaultMaxSuspicious
	}
	if cfg.MaxCPUs <= 0 {
		cfg.MaxCPUs = constants.MaxCPUs
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	d := &Detector{
		window:   cfg.Window,
		refresh:  cfg.Window / 16,
		maxCPUs:  cfg.MaxCPUs,
		limit:    cfg.MaxSuspicious,
		now:      cfg.Clock,
		log:      cfg.Logger.Named("detector"),
		trackers: make([]atomic.Pointer[lineTracker], cfg.Lines),
		byAddr:   make(map[uint64]int),
	}
	d.threshold.Store(cfg.Threshold)
	d.autoCorrect.Store(cfg.AutoCorrect)
	return d
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TUNING
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Threshold returns the access count over which a line is flagged.
func (d *Detector) Threshold() uint64 { return d.threshold.Load() }

// SetThreshold replaces the threshold; zero restores the default.
func (d *Detector) SetThreshold(n uint64) {
	if n == 0 {
		n = constants.DefaultThreshold
	}
	d.threshold.Store(n)
}

// AutoCorrect reports whether ApplyCorrections acts.
func (d *Detector) AutoCorrect() bool { return d.autoCorrect.Load() }

// SetAutoCorrect toggles ApplyCorrections.
func (d *Detector) SetAutoCorrect(on bool) { d.autoCorrect.Store(on) }

// Window returns the recency decay window.
func (d *Detector) Window() time.Duration { return d.window }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// HOT PATH
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Observe records one access by cpu to word of the line at lineAddr held in
// slot, whose count after the increment is count. cpu must already be folded
// into [0, MaxCPUs). It reports whether the call added the line to the
// suspicious list.
func (d *Detector) Observe(slot int, lineAddr uint64, word, cpu int, count uint64, now time.Time) bool {
	t := d.tracker(slot, lineAddr)
	t.record(cpu%d.maxCPUs, word&(constants.WordsPerLine-1))

	if count <= d.threshold.Load() {
		return false
	}

	d.mu.RLock()
	i, seen := d.byAddr[lineAddr]
	stale := seen && d.stale(d.lines[i], count, now)
	d.mu.RUnlock()

	if seen && !stale {
		return false
	}
	return d.flag(slot, lineAddr, count, t.threadCount(), now)
}

// stale reports whether a listed line should be rewritten: its detection is
// older than the refresh interval, or its frequency severity has grown by at
// least severityStep or reached saturation.
func (d *Detector) stale(l SuspiciousLine, count uint64, now time.Time) bool {
	if now.Sub(l.LastDetection) >= d.refresh {
		return true
	}
	f := frequency(count)
	return f > l.Severity && (f == 1 || f-l.Severity >= severityStep)
}

// tracker returns slot's tracker, replacing it when the slot was rebound to
// a different line.
func (d *Detector) tracker(slot int, lineAddr uint64) *lineTracker {
	p := &d.trackers[slot%len(d.trackers)]
	for {
		t := p.Load()
		if t != nil && t.addr == lineAddr {
			return t
		}
		n := newLineTracker(lineAddr, d.maxCPUs)
		if p.CompareAndSwap(t, n) {
			return n
		}
	}
}

func (d *Detector) flag(slot int, addr, count uint64, threads int, now time.Time) bool {
	rec := SuspiciousLine{
		Address:       addr,
		AccessCount:   count,
		ThreadCount:   threads,
		LastDetection: now,
		Severity:      frequency(count),
	}

	d.mu.Lock()
	if i, ok := d.byAddr[addr]; ok {
		// Already listed: refresh so a hot line keeps its recency.
		d.lines[i] = rec
		d.slots[i] = slot
		d.mu.Unlock()
		return false
	}

	var victim *SuspiciousLine
	if len(d.lines) >= d.limit {
		i := d.weakest(now)
		old := d.lines[i]
		victim = &old
		delete(d.byAddr, old.Address)
		d.lines[i] = rec
		d.slots[i] = slot
		d.byAddr[addr] = i
	} else {
		d.byAddr[addr] = len(d.lines)
		d.lines = append(d.lines, rec)
		d.slots = append(d.slots, slot)
	}
	d.mu.Unlock()

	d.flagged.Add(1)
	d.log.Info("line flagged as suspicious",
		zap.Uint64("address", addr),
		zap.Uint64("access_count", count),
		zap.Int("thread_count", threads),
		zap.Float32("severity", rec.Severity))

	if victim != nil {
		d.evicted.Add(1)
		d.log.Warn("suspicious line evicted",
			zap.Uint64("address", victim.Address),
			zap.Float32("severity", victim.Severity),
			zap.Int("limit", d.limit))
	}
	return true
}

// weakest returns the position with the smallest severity × recency.
// Caller holds d.mu.
func (d *Detector) weakest(now time.Time) int {
	best, score := 0, float32(2)
	for i := range d.lines {
		s := d.lines[i].Severity * d.recency(now.Sub(d.lines[i].LastDetection))
		if s < score {
			best, score = i, s
		}
	}
	return best
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SEVERITY
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func frequency(count uint64) float32 {
	f := float32(float64(count) / constants.SeverityScale)
	if f > 1 {
		return 1
	}
	return f
}

// recency is 1 at age zero and falls linearly to 0 at one window.
func (d *Detector) recency(age time.Duration) float32 {
	if age <= 0 {
		return 1
	}
	if age >= d.window {
		return 0
	}
	return 1 - float32(age)/float32(d.window)
}

// EffectiveSeverity decays l's recorded severity to now.
func (d *Detector) EffectiveSeverity(l SuspiciousLine, now time.Time) float32 {
	return l.Severity * d.recency(now.Sub(l.LastDetection))
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SNAPSHOTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Detections returns a copy of the suspicious list in insertion order,
// evicted slots replaced in place.
func (d *Detector) Detections() []SuspiciousLine {
	d.mu.RLock()
	out := make([]SuspiciousLine, len(d.lines))
	copy(out, d.lines)
	d.mu.RUnlock()
	return out
}

// Patterns classifies every suspicious line.
func (d *Detector) Patterns() []SharingPattern {
	d.mu.RLock()
	type ref struct {
		slot int
		addr uint64
	}
	refs := make([]ref, len(d.lines))
	for i := range d.lines {
		refs[i] = ref{d.slots[i], d.lines[i].Address}
	}
	d.mu.RUnlock()

	out := make([]SharingPattern, 0, len(refs))
	for _, r := range refs {
		if p, ok := d.Pattern(r.slot, r.addr); ok {
			out = append(out, p)
		}
	}
	return out
}

// Pattern classifies the line at lineAddr tracked in slot. It reports false
// when the slot has no tracker for that line.
func (d *Detector) Pattern(slot int, lineAddr uint64) (SharingPattern, bool) {
	t := d.trackers[slot%len(d.trackers)].Load()
	if t == nil || t.addr != lineAddr {
		return SharingPattern{}, false
	}
	return t.pattern(), true
}

// Stats is a counter snapshot.
type Stats struct {
	Suspicious int
	Flagged    uint64
	Evicted    uint64
}

// Stats returns the list length plus lifetime flag and eviction counts.
func (d *Detector) Stats() Stats {
	d.mu.RLock()
	n := len(d.lines)
	d.mu.RUnlock()
	return Stats{Suspicious: n, Flagged: d.flagged.Load(), Evicted: d.evicted.Load()}
}
