package trace

import (
	"fmt"
	"math/rand"

	"coherency/constants"
	"coherency/protocol"
)

// Pattern is a synthetic sharing workload.
type Pattern uint8

const (
	// PatternNone gives every CPU its own line.
	PatternNone Pattern = iota
	// PatternTrue has every CPU read and write the same word.
	PatternTrue
	// PatternFalse has every CPU write its own word of one shared line.
	PatternFalse
)

func (p Pattern) String() string {
	switch p {
	case PatternNone:
		return "none"
	case PatternTrue:
		return "true"
	case PatternFalse:
		return "false"
	}
	return fmt.Sprintf("pattern(%d)", uint8(p))
}

// ParsePattern resolves none, true or false.
func ParsePattern(s string) (Pattern, error) {
	switch s {
	case "none":
		return PatternNone, nil
	case "true":
		return PatternTrue, nil
	case "false":
		return PatternFalse, nil
	}
	return 0, fmt.Errorf("trace: unknown pattern %q (want none, true or false)", s)
}

// SynthConfig describes a synthetic trace.
type SynthConfig struct {
	Pattern Pattern
	CPUs    int
	Ops     int    // total accesses
	Base    uint64 // first line address, aligned down
	Seed    int64
	// WriteRatio is the share of writes in [0, 1]; the rest are reads.
	WriteRatio float64
}

// Synthesize builds a round-robin interleaving of CPUs following the pattern.
// Identical configs give identical traces.
func Synthesize(cfg SynthConfig) ([]Access, error) {
	if cfg.CPUs <= 0 || cfg.Ops < 0 {
		return nil, fmt.Errorf("trace: synth needs cpus > 0 and ops >= 0, got %d and %d", cfg.CPUs, cfg.Ops)
	}
	if cfg.WriteRatio < 0 || cfg.WriteRatio > 1 {
		return nil, fmt.Errorf("trace: write ratio %v outside [0,1]", cfg.WriteRatio)
	}
	base := cfg.Base &^ (constants.LineSize - 1)
	rng := rand.New(rand.NewSource(cfg.Seed))

	out := make([]Access, cfg.Ops)
	for i := range out {
		cpu := i % cfg.CPUs
		var addr uint64
		switch cfg.Pattern {
		case PatternFalse:
			addr = base + uint64(cpu%constants.WordsPerLine)*constants.WordSize
		case PatternTrue:
			addr = base
		default:
			addr = base + uint64(cpu)*constants.LineSize
		}

		req := protocol.Read
		if rng.Float64() < cfg.WriteRatio {
			req = protocol.Write
		}
		out[i] = Access{Seq: uint64(i), CPU: cpu, Addr: addr, Req: req}
	}
	return out, nil
}
