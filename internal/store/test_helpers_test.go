package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/lattice/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTriple creates a triple with a register-style attribute.
func createTestTriple(entityID string, value ir.Value, seq int64, origin string, path ...any) ir.Triple {
	return ir.NewTriple(entityID, ir.MustPath(path...), value, ir.NewTimestamp(seq, origin))
}
