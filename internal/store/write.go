package store

import (
	"context"
	"fmt"

	"github.com/roach88/lattice/internal/ir"
)

// WriteTriples inserts triples in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a triple already stored
// (same entity, attribute and timestamp) is silently ignored.
func (s *Store) WriteTriples(ctx context.Context, triples []ir.Triple) error {
	if len(triples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write triples: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO triples
		(id, entity_id, attribute, value, ts_seq, ts_origin)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write triples: prepare: %w", err)
	}
	defer stmt.Close()

	for _, tr := range triples {
		id, err := ir.TripleID(tr)
		if err != nil {
			return fmt.Errorf("write triple %s: %w", tr, err)
		}
		attr, err := marshalAttribute(tr.Attribute)
		if err != nil {
			return fmt.Errorf("write triple %s: %w", tr, err)
		}
		value, err := marshalValue(tr.Value)
		if err != nil {
			return fmt.Errorf("write triple %s: %w", tr, err)
		}

		if _, err := stmt.ExecContext(ctx,
			id,
			tr.EntityID,
			attr,
			value,
			tr.Timestamp.Seq,
			tr.Timestamp.Origin,
		); err != nil {
			return fmt.Errorf("write triple %s: %w", tr, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write triples: commit: %w", err)
	}
	return nil
}
