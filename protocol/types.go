// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ COHERENCY PROTOCOL TYPES
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: States, Protocols, Requests & Responses
//
// Description:
//   Closed enumerations for the coherency model. State ordinals are observable
//   through per-state statistics arrays and must never be renumbered.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// LINE STATES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// State is a line's coherency state.
type State uint8

const (
	Invalid   State = 0
	Shared    State = 1
	Exclusive State = 2
	Modified  State = 3
	Owner     State = 4 // MOESI
	Forward   State = 5 // MESIF

	// NumStates sizes per-state arrays.
	NumStates = 6
)

var stateNames = [NumStates]string{"Invalid", "Shared", "Exclusive", "Modified", "Owner", "Forward"}

func (s State) String() string {
	if s < NumStates {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Letter returns the one-letter protocol mnemonic (I, S, E, M, O, F).
func (s State) Letter() string {
	if s < NumStates {
		return stateNames[s][:1]
	}
	return "?"
}

// States lists every state in ordinal order.
func States() []State {
	return []State{Invalid, Shared, Exclusive, Modified, Owner, Forward}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PROTOCOLS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Protocol selects a transition table.
type Protocol uint8

const (
	MESI Protocol = iota
	MOESI
	MESIF
	Dragon  // reserved: every transition keeps the current state
	Firefly // reserved: every transition keeps the current state

	numProtocols
)

var protocolNames = [numProtocols]string{"MESI", "MOESI", "MESIF", "Dragon", "Firefly"}

func (p Protocol) String() string {
	if p < numProtocols {
		return protocolNames[p]
	}
	return "Protocol(" + strconv.Itoa(int(p)) + ")"
}

// Implemented reports whether p has a transition table.
func (p Protocol) Implemented() bool {
	return p == MESI || p == MOESI || p == MESIF
}

// Valid reports whether p names a known protocol, reserved ones included.
func (p Protocol) Valid() bool {
	return p < numProtocols
}

// Protocols lists every protocol, reserved ones included.
func Protocols() []Protocol {
	return []Protocol{MESI, MOESI, MESIF, Dragon, Firefly}
}

// ParseProtocol resolves a case-insensitive protocol name.
func ParseProtocol(name string) (Protocol, error) {
	for i, n := range protocolNames {
		if strings.EqualFold(n, name) {
			return Protocol(i), nil
		}
	}
	return 0, fmt.Errorf("protocol: unknown protocol %q", name)
}

// Allows reports whether state s belongs to protocol p. Reserved protocols
// allow the four MESI states.
func (p Protocol) Allows(s State) bool {
	switch s {
	case Invalid, Shared, Exclusive, Modified:
		return p.Valid()
	case Owner:
		return p == MOESI
	case Forward:
		return p == MESIF
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// REQUESTS & RESPONSES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Request is the access a CPU asks the coherency fabric for.
type Request uint8

const (
	Read Request = iota
	Write
	ReadExclusive
	Invalidate

	numRequests
)

var requestNames = [numRequests]string{"Read", "Write", "ReadExclusive", "Invalidate"}

func (r Request) String() string {
	if r < numRequests {
		return requestNames[r]
	}
	return "Request(" + strconv.Itoa(int(r)) + ")"
}

// IsWrite reports whether r updates the line's last writer.
func (r Request) IsWrite() bool { return r == Write }

// Requests lists every request in ordinal order.
func Requests() []Request {
	return []Request{Read, Write, ReadExclusive, Invalidate}
}

// ParseRequest resolves a case-insensitive request name; the short forms
// r, w, rx and inv are accepted as well.
func ParseRequest(name string) (Request, error) {
	switch strings.ToLower(name) {
	case "r", "read":
		return Read, nil
	case "w", "write":
		return Write, nil
	case "rx", "readexclusive", "read_exclusive":
		return ReadExclusive, nil
	case "inv", "invalidate":
		return Invalidate, nil
	}
	return 0, fmt.Errorf("protocol: unknown request %q", name)
}

// Response describes the outcome of one request.
type Response struct {
	State                State
	RequiresInvalidation bool
	RequiresWriteback    bool
	LatencyNs            uint64
}
