// relax_stub.go — no-op cpuRelax for targets without a spin hint or with
// assembly disabled.

//go:build (!amd64 && !arm64) || noasm

package ring

//go:nosplit
//go:inline
func cpuRelax() {}
