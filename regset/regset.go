// Package regset defines register sets, the unit in which block configuration
// is handed around.
package regset

import (
	"fmt"
	"sort"
)

// A Pair is a single register write.
type Pair struct {
	Addr  uint32
	Value uint32
}

func (p Pair) String() string {
	return fmt.Sprintf("%#06x=%#010x", p.Addr, p.Value)
}

// A Set is an ordered sequence of register writes. A set is always applied as
// a whole.
type Set []Pair

// Len returns the number of pairs in the set.
func (s Set) Len() int {
	return len(s)
}

// Clone returns a copy of the set that does not share storage.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}

	c := make(Set, len(s))
	copy(c, s)

	return c
}

// CopyInto copies the set into dst, reusing dst's backing array when its
// capacity is large enough, and returns the result.
func (s Set) CopyInto(dst Set) Set {
	if cap(dst) < len(s) {
		dst = make(Set, len(s))
	}

	dst = dst[:len(s)]
	copy(dst, s)

	return dst
}

// Sorted returns a copy of the set ordered by address. When an address
// appears more than once, the last write wins.
func (s Set) Sorted() Set {
	last := make(map[uint32]uint32, len(s))
	for _, p := range s {
		last[p.Addr] = p.Value
	}

	out := make(Set, 0, len(last))
	for addr, value := range last {
		out = append(out, Pair{Addr: addr, Value: value})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })

	return out
}

// Lookup returns the last value written to addr in the set.
func (s Set) Lookup(addr uint32) (uint32, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Addr == addr {
			return s[i].Value, true
		}
	}

	return 0, false
}
