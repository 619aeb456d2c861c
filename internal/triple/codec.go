package triple

import (
	"fmt"
	"slices"

	"github.com/roach88/lattice/internal/crdt"
	"github.com/roach88/lattice/internal/ir"
	"github.com/roach88/lattice/internal/resolve"
	"github.com/roach88/lattice/internal/schema"
)

// DeletedAttribute is the attribute of an entity's delete marker.
var DeletedAttribute = ir.Attribute{ir.Str(crdt.DeletedField)}

// Flatten emits the triples of e depth first in record field order. A
// register yields one triple; a set yields one triple per tracked element,
// tombstones included, ordered by element key. The delete marker comes
// last.
func Flatten(e *crdt.Entity) []ir.Triple {
	var out []ir.Triple
	out = flattenRecord(out, e.ID, nil, e.Data)
	if e.Deleted != nil {
		out = append(out, ir.NewTriple(e.ID, DeletedAttribute.Append(), e.Deleted.Value, e.Deleted.Timestamp))
	}
	return out
}

func flattenRecord(out []ir.Triple, id string, path ir.Attribute, rec *crdt.Record) []ir.Triple {
	for name, node := range rec.Fields() {
		fieldPath := path.Append(ir.Str(name))
		switch n := node.(type) {
		case *crdt.Register:
			out = append(out, ir.NewTriple(id, fieldPath, n.Value, n.Timestamp))
		case *crdt.Set:
			for _, elem := range n.Elements() {
				out = append(out, ir.NewTriple(id, fieldPath.Append(elem.Key), elem.Register.Value, elem.Register.Timestamp))
			}
		case *crdt.Record:
			out = flattenRecord(out, id, fieldPath, n)
		}
	}
	return out
}

// Apply merges one triple into e. It reports whether the write was
// accepted; a stale write returns false without error. A triple without a
// value is not a write. On error e is unchanged.
func Apply(cfg schema.Config, root *schema.RecordType, e *crdt.Entity, tr ir.Triple) (bool, error) {
	if tr.EntityID != e.ID {
		return false, fmt.Errorf("triple for %q applied to entity %q", tr.EntityID, e.ID)
	}
	if tr.Value == nil {
		return false, nil
	}
	if tr.Attribute.Equal(DeletedAttribute) {
		b, ok := tr.Value.(ir.Bool)
		if !ok {
			return false, schema.NewError(schema.CodeInvalidValue, tr.Attribute, "delete marker must be a boolean")
		}
		return e.MarkDeleted(bool(b), tr.Timestamp), nil
	}

	target, err := resolve.Locate(cfg, root, e.Data, tr.Attribute)
	if err != nil {
		return false, err
	}
	return target.Apply(tr.Value, tr.Timestamp)
}

// HydrateEntity rebuilds one entity from its triples.
func HydrateEntity(cfg schema.Config, root *schema.RecordType, id string, triples []ir.Triple) (*crdt.Entity, error) {
	e := crdt.NewEntity(id)
	for _, tr := range triples {
		if _, err := Apply(cfg, root, e, tr); err != nil {
			return nil, fmt.Errorf("hydrate %s: %w", id, err)
		}
	}
	return e, nil
}

// Hydrate groups triples by entity id and rebuilds each entity.
func Hydrate(cfg schema.Config, root *schema.RecordType, triples []ir.Triple) (map[string]*crdt.Entity, error) {
	groups := make(map[string][]ir.Triple)
	for _, tr := range triples {
		groups[tr.EntityID] = append(groups[tr.EntityID], tr)
	}

	out := make(map[string]*crdt.Entity, len(groups))
	for id, group := range groups {
		e, err := HydrateEntity(cfg, root, id, group)
		if err != nil {
			return nil, err
		}
		out[id] = e
	}
	return out, nil
}

// EntityIDs returns the distinct entity ids of triples in sorted order.
func EntityIDs(triples []ir.Triple) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, tr := range triples {
		if !seen[tr.EntityID] {
			seen[tr.EntityID] = true
			ids = append(ids, tr.EntityID)
		}
	}
	slices.Sort(ids)
	return ids
}
