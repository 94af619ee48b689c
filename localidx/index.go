// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ ROBIN HOOD ID INDEX
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Fixed-Capacity Id → Position Map
//
// Description:
//   Maps sparse 32-bit ids onto dense positions, e.g. simulated CPU ids onto
//   the slice of proxies that serve them. Built once, then read on every
//   submitted request.
//
// Design Principles:
//   - Power-of-two table at twice the capacity, linear probing
//   - Robin Hood displacement bounds search length, lookups stop early on miss
//   - Ids are stored shifted by one so that id 0 is usable and 0 marks empty
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package localidx

import "math"

// MaxID is the largest storable id.
const MaxID = math.MaxUint32 - 1

// Index is a fixed-capacity Robin Hood map from id to position. It is not
// safe for concurrent writers; concurrent Gets after the last Put are fine.
type Index struct {
	keys []uint32 // id+1, 0 = empty
	vals []uint32
	mask uint32
	n    int
}

// New sizes the table for capacity ids. Inserting more than capacity ids
// degrades probing; inserting more than the table size never terminates.
func New(capacity int) *Index {
	sz := uint32(2)
	for sz < uint32(capacity)*2 {
		sz <<= 1
	}
	return &Index{
		keys: make([]uint32, sz),
		vals: make([]uint32, sz),
		mask: sz - 1,
	}
}

// Len returns the number of stored ids.
func (x *Index) Len() int { return x.n }

// distance is how far slot i sits from key's home slot.
//
//go:nosplit
//go:inline
func (x *Index) distance(key, i uint32) uint32 {
	return (i + x.mask + 1 - (key & x.mask)) & x.mask
}

// Put stores id → pos unless id is present. It returns the stored position,
// which is the earlier one when id was already there.
func (x *Index) Put(id, pos uint32) uint32 {
	key, stored := id+1, pos
	i := key & x.mask
	dist := uint32(0)

	for {
		k := x.keys[i]
		if k == 0 {
			x.keys[i], x.vals[i] = key, pos
			x.n++
			return stored
		}
		if k == key {
			return x.vals[i]
		}
		// Rich entry: swap and carry it forward.
		if kd := x.distance(k, i); kd < dist {
			key, x.keys[i] = x.keys[i], key
			pos, x.vals[i] = x.vals[i], pos
			dist = kd
		}
		i = (i + 1) & x.mask
		dist++
	}
}

// Get returns id's position.
//
//go:nosplit
//go:inline
func (x *Index) Get(id uint32) (uint32, bool) {
	key := id + 1
	i := key & x.mask
	dist := uint32(0)

	for {
		k := x.keys[i]
		if k == 0 {
			return 0, false
		}
		if k == key {
			return x.vals[i], true
		}
		if x.distance(k, i) < dist {
			return 0, false
		}
		i = (i + 1) & x.mask
		dist++
	}
}
