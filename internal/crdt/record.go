package crdt

import (
	"bytes"
	"fmt"
	"iter"
	"slices"

	"github.com/roach88/lattice/internal/ir"
)

// Record is an ordered mapping from field name to node.
// Field order follows insertion unless reordered with Order.
type Record struct {
	keys   []string
	fields map[string]Node
}

func (*Record) Kind() Kind { return KindRecord }
func (*Record) crdtNode()  {}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{fields: make(map[string]Node)}
}

// Get returns the node stored under name.
func (r *Record) Get(name string) (Node, bool) {
	n, ok := r.fields[name]
	return n, ok
}

// Put stores n under name, appending name if it is new.
func (r *Record) Put(name string, n Node) {
	if r.fields == nil {
		r.fields = make(map[string]Node)
	}
	if _, ok := r.fields[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.fields[name] = n
}

// Order moves the named fields to the front in the given order. Fields not
// named keep their relative order after them.
func (r *Record) Order(names []string) {
	keys := make([]string, 0, len(r.keys))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.fields[name]; ok && !seen[name] {
			keys = append(keys, name)
			seen[name] = true
		}
	}
	for _, k := range r.keys {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	r.keys = keys
}

// Keys returns the field names in order.
func (r *Record) Keys() []string {
	return slices.Clone(r.keys)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Fields yields fields in order.
func (r *Record) Fields() iter.Seq2[string, Node] {
	return func(yield func(string, Node) bool) {
		for _, k := range r.keys {
			if !yield(k, r.fields[k]) {
				return
			}
		}
	}
}

// MergeRecords merges field by field. Fields of a come first, then fields
// only b has. Fields of different kinds cannot merge.
func MergeRecords(a, b *Record) (*Record, error) {
	out := a.Clone()
	for name, bn := range b.Fields() {
		an, ok := out.fields[name]
		if !ok {
			out.Put(name, Clone(bn))
			continue
		}
		merged, err := Merge(an, bn)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out.fields[name] = merged
	}
	return out, nil
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	out := &Record{
		keys:   slices.Clone(r.keys),
		fields: make(map[string]Node, len(r.fields)),
	}
	for k, n := range r.fields {
		out.fields[k] = Clone(n)
	}
	return out
}

// Equal reports structural equality. Field order is ignored.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if len(r.fields) != len(other.fields) {
		return false
	}
	for k, n := range r.fields {
		o, ok := other.fields[k]
		if !ok || !Equal(n, o) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the record as an object in field order. Nested
// registers and sets use their own wire forms.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := ir.MarshalCanonical(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		var vb []byte
		switch n := r.fields[k].(type) {
		case *Register:
			vb, err = n.MarshalJSON()
		case *Set:
			vb, err = n.MarshalJSON()
		case *Record:
			vb, err = n.MarshalJSON()
		default:
			err = fmt.Errorf("unknown node type %T", n)
		}
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
