//go:build amd64 && !noasm

package ring

// cpuRelax executes PAUSE, easing the pipeline and the sibling hyperthread
// during a spin wait.
//
//go:noescape
func cpuRelax()
