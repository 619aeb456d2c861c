package crdt

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/lattice/internal/ir"
)

// ErrKindMismatch is returned when two nodes of different kinds are merged.
var ErrKindMismatch = errors.New("crdt: node kind mismatch")

// Kind identifies the variant of a Node.
type Kind int

const (
	KindRegister Kind = iota + 1
	KindSet
	KindRecord
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindSet:
		return "set"
	case KindRecord:
		return "record"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is a sealed interface over *Register, *Set and *Record.
type Node interface {
	Kind() Kind
	crdtNode()
}

// Merge combines two nodes of the same kind into a new node.
// Neither argument is modified.
func Merge(a, b Node) (Node, error) {
	switch x := a.(type) {
	case *Register:
		y, ok := b.(*Register)
		if !ok {
			return nil, fmt.Errorf("%w: register and %s", ErrKindMismatch, kindOf(b))
		}
		return MergeRegisters(x, y), nil
	case *Set:
		y, ok := b.(*Set)
		if !ok {
			return nil, fmt.Errorf("%w: set and %s", ErrKindMismatch, kindOf(b))
		}
		return MergeSets(x, y), nil
	case *Record:
		y, ok := b.(*Record)
		if !ok {
			return nil, fmt.Errorf("%w: record and %s", ErrKindMismatch, kindOf(b))
		}
		return MergeRecords(x, y)
	default:
		return nil, fmt.Errorf("crdt: unknown node type %T", a)
	}
}

// Equal reports whether two nodes hold the same state, timestamps included.
// Record field order is not significant.
func Equal(a, b Node) bool {
	switch x := a.(type) {
	case *Register:
		y, ok := b.(*Register)
		return ok && x.Equal(y)
	case *Set:
		y, ok := b.(*Set)
		return ok && x.Equal(y)
	case *Record:
		y, ok := b.(*Record)
		return ok && x.Equal(y)
	default:
		return a == nil && b == nil
	}
}

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	switch x := n.(type) {
	case *Register:
		return x.Clone()
	case *Set:
		return x.Clone()
	case *Record:
		return x.Clone()
	default:
		return nil
	}
}

// Plain projects a node onto plain Go values without timestamps:
// a register becomes its scalar (nil for null), a set the sorted list of
// its members and a record a map of its fields.
func Plain(n Node) any {
	switch x := n.(type) {
	case *Register:
		return ir.ToAny(x.Value)
	case *Set:
		members := slices.SortedFunc(x.Members(), ir.CompareSegments)
		out := make([]any, len(members))
		for i, m := range members {
			out[i] = ir.ToAny(m.Value())
		}
		return out
	case *Record:
		out := make(map[string]any, x.Len())
		for name, child := range x.Fields() {
			out[name] = Plain(child)
		}
		return out
	default:
		return nil
	}
}

func kindOf(n Node) string {
	if n == nil {
		return "nil"
	}
	return n.Kind().String()
}
