//go:build arm64 && !noasm

package barrier

import "golang.org/x/sys/cpu"

// Implemented in fence_arm64.s.

func fenceAcquire()
func fenceRelease()
func fenceFull()
func fenceStoreStore()
func fenceLoadLoad()

var instructions = [numTypes]string{"DMB ISHLD", "DMB ISH", "DMB SY", "DMB ISHST", "DMB ISHLD"}

func detect() Features {
	return Features{
		Arch:     "arm64",
		Assembly: true,
		Distinct: true,
		LSE:      cpu.ARM64.HasATOMICS,
	}
}
