package protocol

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TRANSITION FUNCTION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// NextState is the normative transition table:
//
//	MESI   I+Read→S  I+ReadExclusive→E  I+Write→M  S+Write→M  E+Write→M  *+Invalidate→I
//	MOESI  as MESI; Owner is entered only through an external state update
//	MESIF  I+Read→F, otherwise as MESI
//
// Every other (state, request) pair keeps the current state. Dragon and
// Firefly are reserved and always keep the current state, Invalidate included.
// The function is total and deterministic.
func NextState(p Protocol, cur State, req Request) State {
	if !p.Implemented() {
		return cur
	}
	if req == Invalidate {
		return Invalid
	}

	switch cur {
	case Invalid:
		switch req {
		case Read:
			if p == MESIF {
				return Forward
			}
			return Shared
		case ReadExclusive:
			return Exclusive
		case Write:
			return Modified
		}
	case Shared, Exclusive:
		if req == Write {
			return Modified
		}
	}
	return cur
}

// Latency estimates the cost in nanoseconds of moving from one state to
// another. The figures are documentation-grade and carry no correctness weight.
func Latency(from, to State) uint64 {
	switch {
	case from == Modified && to == Shared:
		return 50 // writeback
	case from == Shared && to == Modified:
		return 30 // invalidate sharers
	case from == Invalid && to == Shared:
		return 10 // fill
	case from == Invalid && to == Exclusive:
		return 15 // exclusive fill
	case from == Invalid && to == Modified:
		return 5 // write-buffer bypass
	}
	return 20
}

// Respond builds the response for a transition from old to next.
func Respond(old, next State) Response {
	return Response{
		State:                next,
		RequiresInvalidation: old != Invalid && next == Invalid,
		RequiresWriteback:    old == Modified && next == Shared,
		LatencyNs:            Latency(old, next),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ENGINE WITH EXTENSIONS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Extension enables documented edges beyond the normative table.
type Extension uint8

const (
	// ExtRemoteRead downgrades a dirty or exclusive line when a CPU other than
	// its last writer reads it:
	//
	//	MESI   M|E + remote Read → S   (M→S carries a writeback)
	//	MOESI  M + remote Read → O,  E + remote Read → S
	//	MESIF  M|E + remote Read → F
	ExtRemoteRead Extension = 1 << iota

	// ExtOwnerUpgrade lets a MOESI Owner line take a local Write or
	// ReadExclusive straight to Modified.
	ExtOwnerUpgrade

	// ExtAll enables every extension.
	ExtAll = ExtRemoteRead | ExtOwnerUpgrade
)

// Engine applies a protocol's table plus any enabled extensions.
type Engine struct {
	Protocol   Protocol
	Extensions Extension
}

// Next returns the state after req. remote is true when the requester is not
// the line's last writer. With no extensions enabled Next equals NextState.
func (e Engine) Next(cur State, req Request, remote bool) State {
	p := e.Protocol
	if !p.Implemented() {
		return cur
	}

	if e.Extensions&ExtRemoteRead != 0 && remote && req == Read {
		switch {
		case p == MESI && (cur == Modified || cur == Exclusive):
			return Shared
		case p == MOESI && cur == Modified:
			return Owner
		case p == MOESI && cur == Exclusive:
			return Shared
		case p == MESIF && (cur == Modified || cur == Exclusive):
			return Forward
		}
	}

	if e.Extensions&ExtOwnerUpgrade != 0 && p == MOESI && cur == Owner &&
		(req == Write || req == ReadExclusive) {
		return Modified
	}

	return NextState(p, cur, req)
}

// Apply runs Next and builds the response.
func (e Engine) Apply(cur State, req Request, remote bool) Response {
	return Respond(cur, e.Next(cur, req, remote))
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TABLE DUMP
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Transition is one row of a protocol's table.
type Transition struct {
	From    State
	Request Request
	To      State
}

// Table lists every (state, request) pair of p's allowed states whose
// outcome differs from the current state.
func Table(p Protocol) []Transition {
	var rows []Transition
	for _, s := range States() {
		if !p.Allows(s) {
			continue
		}
		for _, r := range Requests() {
			if to := NextState(p, s, r); to != s {
				rows = append(rows, Transition{From: s, Request: r, To: to})
			}
		}
	}
	return rows
}
