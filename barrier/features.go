package barrier

// Features describes how the fences are realised on this build.
type Features struct {
	Arch     string // GOARCH the fences were built for
	Assembly bool   // fences are hardware instructions, not the atomic fallback
	Distinct bool   // store-store / load-load have their own instructions
	LSE      bool   // arm64 large-system-extension atomics present
}

var features = detect()

// Selected returns the fence configuration selected for this build.
func Selected() Features { return features }

// Instruction names the instruction kind t compiles to on this build.
func Instruction(t Type) string {
	if t < numTypes {
		return instructions[t]
	}
	return instructions[Full]
}
