package crdt

import (
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/roach88/lattice/internal/ir"
)

// Set maps element keys to presence registers. An element is a member when
// its register holds true. Removed elements keep a false register so a
// concurrent add with an older timestamp cannot bring them back.
type Set struct {
	elems map[ir.Segment]*Register
}

func (*Set) Kind() Kind { return KindSet }
func (*Set) crdtNode()  {}

// Element is one tracked key of a set with its presence register.
type Element struct {
	Key      ir.Segment
	Register *Register
}

// Present reports whether the element is currently a member.
func (e Element) Present() bool {
	b, ok := e.Register.Value.(ir.Bool)
	return ok && bool(b)
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{elems: make(map[ir.Segment]*Register)}
}

// Add marks elem present at ts.
func (s *Set) Add(elem ir.Segment, ts ir.Timestamp) bool {
	return s.Apply(elem, true, ts)
}

// Remove marks elem absent at ts. Removing an element never seen before
// records a tombstone.
func (s *Set) Remove(elem ir.Segment, ts ir.Timestamp) bool {
	return s.Apply(elem, false, ts)
}

// Apply writes the presence flag of elem at ts under LWW rules and reports
// whether the write was accepted.
func (s *Set) Apply(elem ir.Segment, present bool, ts ir.Timestamp) bool {
	if s.elems == nil {
		s.elems = make(map[ir.Segment]*Register)
	}
	reg, ok := s.elems[elem]
	if !ok {
		s.elems[elem] = NewRegister(ir.Bool(present), ts)
		return true
	}
	return reg.Apply(ir.Bool(present), ts)
}

// Has reports whether elem is a member.
func (s *Set) Has(elem ir.Segment) bool {
	reg, ok := s.elems[elem]
	if !ok {
		return false
	}
	return Element{Key: elem, Register: reg}.Present()
}

// Get returns the presence register of elem, tombstones included.
func (s *Set) Get(elem ir.Segment) (*Register, bool) {
	reg, ok := s.elems[elem]
	return reg, ok
}

// Members yields the keys currently present. Order is not significant.
func (s *Set) Members() iter.Seq[ir.Segment] {
	return func(yield func(ir.Segment) bool) {
		for key, reg := range s.elems {
			if !(Element{Key: key, Register: reg}).Present() {
				continue
			}
			if !yield(key) {
				return
			}
		}
	}
}

// Elements returns every tracked element, tombstones included, ordered by
// key.
func (s *Set) Elements() []Element {
	keys := slices.SortedFunc(maps.Keys(s.elems), ir.CompareSegments)
	out := make([]Element, len(keys))
	for i, k := range keys {
		out[i] = Element{Key: k, Register: s.elems[k]}
	}
	return out
}

// Len returns the number of tracked elements, tombstones included.
func (s *Set) Len() int {
	return len(s.elems)
}

// MergeSets returns the union of both sets with per-element register merge.
func MergeSets(a, b *Set) *Set {
	out := a.Clone()
	for key, reg := range b.elems {
		if cur, ok := out.elems[key]; ok {
			out.elems[key] = MergeRegisters(cur, reg)
		} else {
			out.elems[key] = reg.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of s.
func (s *Set) Clone() *Set {
	out := &Set{elems: make(map[ir.Segment]*Register, len(s.elems))}
	for key, reg := range s.elems {
		out.elems[key] = reg.Clone()
	}
	return out
}

// Equal reports whether both sets track the same elements with the same
// registers.
func (s *Set) Equal(other *Set) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.elems) != len(other.elems) {
		return false
	}
	for key, reg := range s.elems {
		o, ok := other.elems[key]
		if !ok || !reg.Equal(o) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a key-ordered list of [key, register]
// pairs.
func (s *Set) MarshalJSON() ([]byte, error) {
	elems := s.Elements()
	arr := make([]any, len(elems))
	for i, e := range elems {
		arr[i] = []any{e.Key, []any{e.Register.Value, e.Register.Timestamp}}
	}
	return ir.MarshalCanonical(arr)
}

// UnmarshalJSON decodes the list written by MarshalJSON. Element values
// must be booleans.
func (s *Set) UnmarshalJSON(data []byte) error {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	elems := make(map[ir.Segment]*Register, len(pairs))
	for i, pair := range pairs {
		var key ir.Segment
		if err := json.Unmarshal(pair[0], &key); err != nil {
			return fmt.Errorf("set element %d key: %w", i, err)
		}
		reg := &Register{}
		if err := json.Unmarshal(pair[1], reg); err != nil {
			return fmt.Errorf("set element %d: %w", i, err)
		}
		if _, ok := reg.Value.(ir.Bool); !ok {
			return fmt.Errorf("set element %d: presence must be boolean, got %s", i, ir.TypeName(reg.Value))
		}
		elems[key] = reg
	}
	s.elems = elems
	return nil
}
