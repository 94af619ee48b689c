// setaffinity_stub.go - no-op CPU affinity where sched_setaffinity(2) is
// unavailable.

//go:build !linux

package ring

func setAffinity(core int) bool { return false }

func currentAffinity() []int { return nil }
