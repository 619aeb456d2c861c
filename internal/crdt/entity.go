package crdt

import (
	"fmt"

	"github.com/roach88/lattice/internal/ir"
)

// DeletedField is the reserved register carrying an entity's soft delete.
// It is the only attribute an entity may hold outside its schema.
const DeletedField = "_deleted"

// Entity is one instance of a collection. The id is assigned once and is
// not timestamp tracked.
type Entity struct {
	ID      string
	Data    *Record
	Deleted *Register
}

// NewEntity creates an entity with an empty record.
func NewEntity(id string) *Entity {
	return &Entity{ID: id, Data: NewRecord()}
}

// IsDeleted reports whether the latest delete marker holds true.
func (e *Entity) IsDeleted() bool {
	if e.Deleted == nil {
		return false
	}
	b, ok := e.Deleted.Value.(ir.Bool)
	return ok && bool(b)
}

// MarkDeleted writes the delete marker at ts under LWW rules.
func (e *Entity) MarkDeleted(deleted bool, ts ir.Timestamp) bool {
	if e.Deleted == nil {
		e.Deleted = NewRegister(ir.Bool(deleted), ts)
		return true
	}
	return e.Deleted.Apply(ir.Bool(deleted), ts)
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	out := &Entity{ID: e.ID, Data: e.Data.Clone()}
	if e.Deleted != nil {
		out.Deleted = e.Deleted.Clone()
	}
	return out
}

// Equal reports whether both entities have the same id, data and delete
// marker.
func (e *Entity) Equal(other *Entity) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.ID == other.ID && e.Data.Equal(other.Data) && e.Deleted.Equal(other.Deleted)
}

// Plain returns the untimestamped record with the id under "id".
func (e *Entity) Plain() map[string]any {
	out, _ := Plain(e.Data).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	out["id"] = e.ID
	return out
}

// MergeEntities merges two replicas of the same entity.
func MergeEntities(a, b *Entity) (*Entity, error) {
	if a.ID != b.ID {
		return nil, fmt.Errorf("crdt: cannot merge entity %q with %q", a.ID, b.ID)
	}
	data, err := MergeRecords(a.Data, b.Data)
	if err != nil {
		return nil, fmt.Errorf("entity %q: %w", a.ID, err)
	}
	out := &Entity{ID: a.ID, Data: data}
	switch {
	case a.Deleted != nil && b.Deleted != nil:
		out.Deleted = MergeRegisters(a.Deleted, b.Deleted)
	case a.Deleted != nil:
		out.Deleted = a.Deleted.Clone()
	case b.Deleted != nil:
		out.Deleted = b.Deleted.Clone()
	}
	return out, nil
}
