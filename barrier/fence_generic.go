//go:build (!amd64 && !arm64) || noasm

// fence_generic.go
//
// Portable fences for targets without a routine in this package or when
// assembly is disabled. A sync/atomic read-modify-write is sequentially
// consistent on every Go port, so each kind degrades to a full fence.

package barrier

import (
	"runtime"
	"sync/atomic"
)

var fenceWord atomic.Uint64

//go:noinline
func fenceFull() { fenceWord.Add(0) }

//go:noinline
func fenceAcquire() { fenceWord.Add(0) }

//go:noinline
func fenceRelease() { fenceWord.Add(0) }

//go:noinline
func fenceStoreStore() { fenceWord.Add(0) }

//go:noinline
func fenceLoadLoad() { fenceWord.Add(0) }

var instructions = [numTypes]string{"atomic", "atomic", "atomic", "atomic", "atomic"}

func detect() Features {
	return Features{Arch: runtime.GOARCH}
}
