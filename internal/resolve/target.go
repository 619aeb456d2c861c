package resolve

import (
	"fmt"

	"github.com/roach88/lattice/internal/crdt"
	"github.com/roach88/lattice/internal/ir"
	"github.com/roach88/lattice/internal/schema"
)

type step struct {
	rt   *schema.RecordType
	name string
}

// Target is a validated write location inside one entity record: either a
// register or a single set element.
type Target struct {
	cfg     schema.Config
	rec     *crdt.Record
	path    ir.Attribute
	steps   []step
	leaf    schema.DataType
	element ir.Segment
	isElem  bool
}

// Locate validates attr against root and against the shapes already stored
// in rec. Nothing is modified; the returned Target performs the write.
func Locate(cfg schema.Config, root *schema.RecordType, rec *crdt.Record, attr ir.Attribute) (*Target, error) {
	if len(attr) == 0 {
		return nil, schema.NewInvalidPathError(attr, "empty attribute path")
	}

	t := &Target{cfg: cfg, rec: rec, path: attr}
	var cur schema.DataType = root
	var node crdt.Node = rec
	for i, seg := range attr {
		at := attr[:i+1]
		switch ct := cur.(type) {
		case *schema.RecordType:
			name := seg.Text()
			ft, ok := ct.Field(name)
			if !ok {
				return nil, schema.NewPathDoesNotExistError(at, name)
			}
			t.steps = append(t.steps, step{rt: ct, name: name})
			cur = ft
			node = childOf(node, name)
			if node != nil && node.Kind() != kindOf(ft) {
				return nil, schema.NewInvalidPathError(at, "stored %s does not match declared %s", node.Kind(), ft.Tag())
			}
		case *schema.SetType:
			elem, ok := schema.ElementSegment(ct, seg)
			if !ok {
				return nil, schema.NewInvalidPathError(at, "%s is not a valid %s element", seg, ct.Elem)
			}
			if i != len(attr)-1 {
				return nil, schema.NewInvalidPathError(attr[:i+2], "path continues past a set element")
			}
			t.element = elem
			t.isElem = true
		case *schema.RegisterType:
			return nil, schema.NewInvalidPathError(at, "path continues past a %s register", ct.Scalar)
		default:
			return nil, schema.NewInvalidPathError(at, "unknown data type %T", cur)
		}
	}

	switch cur.(type) {
	case *schema.SetType:
		if !t.isElem {
			return nil, schema.NewInvalidPathError(attr, "a set is written one element at a time")
		}
	case *schema.RecordType:
		return nil, schema.NewInvalidPathError(attr, "a record is not a write target")
	}
	t.leaf = cur
	return t, nil
}

// Path returns the attribute path of the target with set elements in
// their canonical form.
func (t *Target) Path() ir.Attribute {
	if !t.isElem {
		return t.path
	}
	out := t.path.Append()
	out[len(out)-1] = t.element
	return out
}

// IsElement reports whether the target is a set element.
func (t *Target) IsElement() bool {
	return t.isElem
}

// Coerce converts v into the value the target stores without writing.
func (t *Target) Coerce(v any) (ir.Value, error) {
	if t.isElem {
		switch b := v.(type) {
		case bool:
			return ir.Bool(b), nil
		case ir.Bool:
			return b, nil
		}
		return nil, schema.NewError(schema.CodeInvalidValue, t.path, "set membership must be a boolean")
	}
	rt, ok := t.leaf.(*schema.RegisterType)
	if !ok {
		return nil, fmt.Errorf("resolve: target %s is not a register", t.path)
	}
	return schema.CoerceValue(t.cfg, rt, t.path, v)
}

// Apply coerces v and writes it at ts under LWW rules, creating missing
// records and sets along the path. It reports whether the write was
// accepted. A value that fails coercion leaves the record untouched.
func (t *Target) Apply(v any, ts ir.Timestamp) (bool, error) {
	val, err := t.Coerce(v)
	if err != nil {
		return false, err
	}

	rec := t.rec
	for _, s := range t.steps[:len(t.steps)-1] {
		child, ok := rec.Get(s.name)
		if !ok {
			child = crdt.NewRecord()
			rec.Put(s.name, child)
			rec.Order(s.rt.FieldNames())
		}
		rec = child.(*crdt.Record)
	}

	last := t.steps[len(t.steps)-1]
	existing, ok := rec.Get(last.name)
	if t.isElem {
		set, _ := existing.(*crdt.Set)
		if !ok {
			set = crdt.NewSet()
			rec.Put(last.name, set)
			rec.Order(last.rt.FieldNames())
		}
		return set.Apply(t.element, bool(val.(ir.Bool)), ts), nil
	}

	if !ok {
		rec.Put(last.name, crdt.NewRegister(val, ts))
		rec.Order(last.rt.FieldNames())
		return true, nil
	}
	return existing.(*crdt.Register).Apply(val, ts), nil
}

func childOf(n crdt.Node, name string) crdt.Node {
	rec, ok := n.(*crdt.Record)
	if !ok {
		return nil
	}
	child, ok := rec.Get(name)
	if !ok {
		return nil
	}
	return child
}

func kindOf(dt schema.DataType) crdt.Kind {
	switch dt.(type) {
	case *schema.SetType:
		return crdt.KindSet
	case *schema.RecordType:
		return crdt.KindRecord
	default:
		return crdt.KindRegister
	}
}
