// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: trace.go — JSON-lines access traces
//
// Purpose:
//   - Decodes and encodes one access per line: {"cpu":0,"addr":4096,"op":"write"}
//   - Streams large traces without holding them in memory
//
// Notes:
//   - Blank lines and lines starting with '#' are skipped.
//   - Line numbers in errors are 1-based.
// ─────────────────────────────────────────────────────────────────────────────

package trace

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"coherency/protocol"

	"github.com/sugawarayuuta/sonnet"
)

// ErrMalformed marks a line that is not a valid access record.
var ErrMalformed = errors.New("trace: malformed record")

// maxLine bounds one trace line.
const maxLine = 1 << 20

// Access is one decoded request. Seq is its position among decoded accesses.
type Access struct {
	Seq  uint64
	CPU  int
	Addr uint64
	Req  protocol.Request
}

// record is the wire form of an Access.
type record struct {
	CPU  *int    `json:"cpu"`
	Addr *uint64 `json:"addr"`
	Op   string  `json:"op"`
}

// Decode streams r, calling fn for each access in order. It stops at the first
// malformed line or the first error fn returns.
func Decode(r io.Reader, fn func(Access) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var seq uint64
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}

		var rec record
		if err := sonnet.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		if rec.CPU == nil || rec.Addr == nil {
			return fmt.Errorf("%w: line %d: cpu and addr are required", ErrMalformed, line)
		}
		req, err := protocol.ParseRequest(rec.Op)
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}

		if err := fn(Access{Seq: seq, CPU: *rec.CPU, Addr: *rec.Addr, Req: req}); err != nil {
			return err
		}
		seq++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("trace: read: %w", err)
	}
	return nil
}

// ReadAll decodes every access in r.
func ReadAll(r io.Reader) ([]Access, error) {
	var out []Access
	err := Decode(r, func(a Access) error {
		out = append(out, a)
		return nil
	})
	return out, err
}

// Write encodes accesses as JSON lines, one record per '\n'-terminated line.
func Write(w io.Writer, accesses []Access) error {
	bw := bufio.NewWriter(w)
	for i := range accesses {
		a := &accesses[i]
		cpu, addr := a.CPU, a.Addr
		b, err := sonnet.Marshal(record{CPU: &cpu, Addr: &addr, Op: opName(a.Req)})
		if err != nil {
			return fmt.Errorf("trace: encode access %d: %w", a.Seq, err)
		}
		bw.Write(b)
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("trace: write access %d: %w", a.Seq, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("trace: flush: %w", err)
	}
	return nil
}

func opName(r protocol.Request) string {
	switch r {
	case protocol.Read:
		return "read"
	case protocol.Write:
		return "write"
	case protocol.ReadExclusive:
		return "read_exclusive"
	}
	return "invalidate"
}

// CPUs returns the distinct CPU ids in accesses, ascending.
func CPUs(accesses []Access) []int {
	seen := make(map[int]struct{})
	for _, a := range accesses {
		seen[a.CPU] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}
