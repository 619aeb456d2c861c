// Package resolve walks schemas and entity trees by attribute path.
//
// Record segments must name a declared field. Set segments match by
// pattern: any key of the declared element type addresses that element's
// presence register. Anything past a register is an invalid path.
package resolve

import (
	"github.com/roach88/lattice/internal/crdt"
	"github.com/roach88/lattice/internal/ir"
	"github.com/roach88/lattice/internal/schema"
)

// Presence is the type a path resolves to when it addresses a set element.
var Presence = &schema.RegisterType{Scalar: schema.TagBoolean}

// Type returns the data type at attr under root. An empty path returns
// root itself.
func Type(root *schema.RecordType, attr ir.Attribute) (schema.DataType, error) {
	var cur schema.DataType = root
	for i, seg := range attr {
		at := attr[:i+1]
		switch t := cur.(type) {
		case *schema.RecordType:
			ft, ok := t.Field(seg.Text())
			if !ok {
				return nil, schema.NewPathDoesNotExistError(at, seg.Text())
			}
			cur = ft
		case *schema.SetType:
			if _, ok := schema.ElementSegment(t, seg); !ok {
				return nil, schema.NewInvalidPathError(at, "%s is not a valid %s element", seg, t.Elem)
			}
			cur = Presence
		case *schema.RegisterType:
			return nil, schema.NewInvalidPathError(at, "path continues past a %s register", t.Scalar)
		default:
			return nil, schema.NewInvalidPathError(at, "unknown data type %T", cur)
		}
	}
	return cur, nil
}

// Lookup navigates an entity record without a schema. A set segment yields
// the element's presence register. It returns false when nothing is stored
// at attr or the stored shape does not allow the path.
func Lookup(rec *crdt.Record, attr ir.Attribute) (crdt.Node, bool) {
	var cur crdt.Node = rec
	for _, seg := range attr {
		switch n := cur.(type) {
		case *crdt.Record:
			child, ok := n.Get(seg.Text())
			if !ok {
				return nil, false
			}
			cur = child
		case *crdt.Set:
			reg, ok := n.Get(seg)
			if !ok {
				return nil, false
			}
			cur = reg
		default:
			return nil, false
		}
	}
	return cur, true
}
