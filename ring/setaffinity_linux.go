// setaffinity_linux.go - Linux CPU affinity via sched_setaffinity(2)

//go:build linux

package ring

import "golang.org/x/sys/unix"

// setAffinity pins the calling OS thread to core. It reports false when the
// core is out of range or the kernel refuses the mask (for example inside a
// restricted cpuset).
func setAffinity(core int) bool {
	if core < 0 || core >= 1024 {
		return false
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set) == nil
}

// currentAffinity reports the cores the calling thread may run on.
func currentAffinity() []int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil
	}
	var cores []int
	for c := 0; c < 1024; c++ {
		if set.IsSet(c) {
			cores = append(cores, c)
		}
	}
	return cores
}
