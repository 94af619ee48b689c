// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ MEMORY BARRIERS
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Architecture-Neutral Ordering Fences
//
// Description:
//   Five fences with a compile-time choice of instruction:
//
//     kind        amd64     arm64          fallback
//     Acquire     LFENCE    DMB ISHLD      full fence
//     Release     SFENCE    DMB ISH        full fence
//     Full        MFENCE    DMB SY         full fence
//     StoreStore  SFENCE    DMB ISHST      full fence
//     LoadLoad    LFENCE    DMB ISHLD      full fence
//
//   Each fence is an assembly routine. The Go compiler cannot move loads or
//   stores across a call into assembly, so every call is also a compiler
//   reordering fence in both directions. Builds tagged noasm and targets
//   without a routine here use the sequentially consistent sync/atomic
//   fallback in fence_generic.go for every kind.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package barrier

import "strconv"

// Type selects one of the fence kinds.
type Type uint8

const (
	Acquire Type = iota
	Release
	Full
	StoreStore
	LoadLoad

	numTypes
)

var typeNames = [numTypes]string{"acquire", "release", "full", "store-store", "load-load"}

func (t Type) String() string {
	if t < numTypes {
		return typeNames[t]
	}
	return "barrier(" + strconv.Itoa(int(t)) + ")"
}

// Types lists every fence kind in ordinal order.
func Types() []Type {
	return []Type{Acquire, Release, Full, StoreStore, LoadLoad}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// FENCES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// AcquireBarrier keeps later loads and stores from being hoisted above it.
//
//go:nosplit
func AcquireBarrier() { fenceAcquire() }

// ReleaseBarrier keeps earlier loads and stores from sinking below it.
//
//go:nosplit
func ReleaseBarrier() { fenceRelease() }

// FullBarrier orders every earlier access before every later one.
//
//go:nosplit
func FullBarrier() { fenceFull() }

// StoreStoreBarrier orders earlier stores before later stores.
//
//go:nosplit
func StoreStoreBarrier() { fenceStoreStore() }

// LoadLoadBarrier orders earlier loads before later loads.
//
//go:nosplit
func LoadLoadBarrier() { fenceLoadLoad() }

// Fence issues the fence of kind t. Unknown kinds get a full fence.
func Fence(t Type) {
	switch t {
	case Acquire:
		fenceAcquire()
	case Release:
		fenceRelease()
	case StoreStore:
		fenceStoreStore()
	case LoadLoad:
		fenceLoadLoad()
	default:
		fenceFull()
	}
}
