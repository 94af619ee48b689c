// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go — Build-time tunables for the coherency core
//
// Purpose:
//   - Fixes the cache-line geometry every other package aligns against.
//   - Caps the line table, CPU fan-out and false-sharing bookkeeping.
//
// Notes:
//   - LineSize is configurable only at build time; the line table, padding
//     types and detector word histograms are all sized from it.
//   - Values that callers may tune per monitor are defaults only; the
//     monitor options override them at construction.
//
// ⚠️ No runtime logic here — all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

import "time"

// ───────────────────────────── Line Geometry ──────────────────────────────

const (
	// LineSize is the coherency unit in bytes. Must be a power of two.
	LineSize = 64

	// LineShift is log2(LineSize), used to turn addresses into line numbers.
	LineShift = 6

	// LineMask clears the in-line offset of an address.
	LineMask = ^uint64(LineSize - 1)

	// WordSize is the granularity the false-sharing detector tracks inside a line.
	WordSize = 8

	// WordsPerLine is the number of tracked words in one line.
	WordsPerLine = LineSize / WordSize
)

// ───────────────────────────── Table Limits ───────────────────────────────

const (
	// MaxCacheLines caps the number of line records one monitor pre-allocates.
	MaxCacheLines = 1_000_000

	// MaxCPUs sizes the per-CPU barrier slots and per-line CPU sets.
	// Out-of-range CPU ids are folded modulo this value.
	MaxCPUs = 1024
)

// ─────────────────────────── Detector Defaults ────────────────────────────

const (
	// DefaultThreshold is the access count above which a line becomes a
	// false-sharing candidate.
	DefaultThreshold = 1000

	// SeverityScale is the access count at which frequency severity saturates at 1.0.
	SeverityScale = 1000.0

	// DefaultDetectionWindow is the span of monotonic time over which the
	// recency factor decays linearly from 1 to 0.
	DefaultDetectionWindow = 10 * time.Second

	// DefaultMaxSuspicious bounds the suspicious-line list.
	DefaultMaxSuspicious = 4096

	// CorrectionSeverity is the severity above which auto-correction emits
	// a recommendation for a suspicious line.
	CorrectionSeverity = 0.7

	// HotLineAccesses is the access count over which OptimizeCachePlacement
	// recommends alignment for an address.
	HotLineAccesses = 1000
)

// ─────────────────────────── Monitor Defaults ─────────────────────────────

const (
	// DefaultEventCapacity bounds the pending invalidation / writeback queue.
	DefaultEventCapacity = 1 << 16
)
