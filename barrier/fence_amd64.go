//go:build amd64 && !noasm

package barrier

import "golang.org/x/sys/cpu"

// Implemented in fence_amd64.s.

func fenceAcquire()
func fenceRelease()
func fenceFull()
func fenceStoreStore()
func fenceLoadLoad()

var instructions = [numTypes]string{"LFENCE", "SFENCE", "MFENCE", "SFENCE", "LFENCE"}

func detect() Features {
	return Features{
		Arch:     "amd64",
		Assembly: true,
		Distinct: cpu.X86.HasSSE2,
		LSE:      false,
	}
}
