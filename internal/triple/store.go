// Package triple converts entities to and from flat triples, the unit of
// storage and sync.
//
// Hydration from storage and the merge of a live remote write go through
// the same Apply function, so both follow one conflict rule.
package triple

import (
	"context"

	"github.com/roach88/lattice/internal/ir"
)

// Reader returns every stored triple of an entity, tombstones included.
// Implementations must return fields exactly as written.
type Reader interface {
	ReadTriples(ctx context.Context, entityID string) ([]ir.Triple, error)
}

// Writer persists triples. Writing a triple already stored is a no-op.
type Writer interface {
	WriteTriples(ctx context.Context, triples []ir.Triple) error
}

// Store is a triple store.
type Store interface {
	Reader
	Writer
}
