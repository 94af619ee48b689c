// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ CACHE-LINE ALIGNMENT PRIMITIVES
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Line Geometry Helpers & Padding Types
//
// Description:
//   Address arithmetic against the build-time line size plus fixed padding types
//   that break false sharing between hot fields. The generic CacheAligned
//   container lives in aligned.go.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package align

import (
	"sync/atomic"
	"unsafe"

	"coherency/constants"

	"golang.org/x/sys/cpu"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PADDING TYPES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Pad is exactly one cache line of padding. Place it between fields written
// by different CPUs.
type Pad [constants.LineSize]byte

// PaddedUint64 is an atomic counter that owns a full cache line, so arrays of
// them give every slot its own line.
type PaddedUint64 struct {
	atomic.Uint64
	_ [constants.LineSize - 8]byte
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ADDRESS ARITHMETIC
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// AlignDown clears the in-line offset of addr.
//
//go:nosplit
//go:inline
func AlignDown(addr uint64) uint64 {
	return addr & constants.LineMask
}

// IsAligned reports whether addr sits on a line boundary.
//
//go:nosplit
//go:inline
func IsAligned(addr uint64) bool {
	return addr&(constants.LineSize-1) == 0
}

// AlignedSize rounds size up to the next multiple of the line size.
// A zero size still occupies one full line.
//
//go:nosplit
//go:inline
func AlignedSize(size uintptr) uintptr {
	if size == 0 {
		return constants.LineSize
	}
	return (size + constants.LineSize - 1) &^ (constants.LineSize - 1)
}

// LineNumber returns addr's line number in the flat physical space.
//
//go:nosplit
//go:inline
func LineNumber(addr uint64) uint64 {
	return addr >> constants.LineShift
}

// LineIndex maps addr onto a direct-mapped table of n lines.
//
//go:nosplit
//go:inline
func LineIndex(addr uint64, n int) int {
	return int(LineNumber(addr) % uint64(n))
}

// WordOffset returns the index of the 8-byte word addr touches inside its line.
//
//go:nosplit
//go:inline
func WordOffset(addr uint64) int {
	return int((addr & (constants.LineSize - 1)) / constants.WordSize)
}

// FalseSharingScore rates how likely two addresses are to contend on one line:
// 1 for the same byte, falling linearly to 0 at a full line apart.
func FalseSharingScore(a, b uint64) float32 {
	d := a - b
	if b > a {
		d = b - a
	}
	if d >= constants.LineSize {
		return 0
	}
	return 1 - float32(d)/float32(constants.LineSize)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// HARDWARE DETECTION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// HardwareLineSize reports the line size golang.org/x/sys/cpu assumes for the
// build target. It can exceed LineSize on targets such as ppc64 or s390x.
func HardwareLineSize() int {
	return int(unsafe.Sizeof(cpu.CacheLinePad{}))
}

// MatchesHardware reports whether the build-time LineSize agrees with the
// target's line size.
func MatchesHardware() bool {
	return HardwareLineSize() == constants.LineSize
}
