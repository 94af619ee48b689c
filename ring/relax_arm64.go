//go:build arm64 && !noasm

package ring

// cpuRelax executes YIELD as the spin-wait hint.
//
//go:noescape
func cpuRelax()
