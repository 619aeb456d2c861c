package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lattice/internal/ir"
)

const tripleColumns = `entity_id, attribute, value, ts_seq, ts_origin`

const tripleOrder = `ORDER BY ts_seq ASC, ts_origin COLLATE BINARY ASC, attribute COLLATE BINARY ASC`

// ReadTriples returns every triple of an entity, tombstones included,
// ordered by timestamp then attribute.
//
// Returns an empty slice (not nil) if the entity has no triples.
func (s *Store) ReadTriples(ctx context.Context, entityID string) ([]ir.Triple, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tripleColumns+`
		FROM triples
		WHERE entity_id = ?
		`+tripleOrder, entityID)
	if err != nil {
		return nil, fmt.Errorf("query triples: %w", err)
	}
	return scanTriples(rows)
}

// ReadTriplesAfter returns triples with a timestamp strictly greater than
// after. Passing the greatest timestamp previously received gives an
// incremental sync cursor.
func (s *Store) ReadTriplesAfter(ctx context.Context, after ir.Timestamp) ([]ir.Triple, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tripleColumns+`
		FROM triples
		WHERE ts_seq > ? OR (ts_seq = ? AND ts_origin > ?)
		`+tripleOrder, after.Seq, after.Seq, after.Origin)
	if err != nil {
		return nil, fmt.Errorf("query triples after %s: %w", after, err)
	}
	return scanTriples(rows)
}

// EntityIDs returns the distinct entity ids with the given prefix in
// binary order. An empty prefix matches every entity.
func (s *Store) EntityIDs(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT entity_id
		FROM triples
		WHERE substr(entity_id, 1, length(?)) = ?
		ORDER BY entity_id COLLATE BINARY ASC
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("query entity ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity ids: %w", err)
	}
	return ids, nil
}

// MaxTimestamp returns the greatest stored timestamp, or the zero
// timestamp for an empty store.
func (s *Store) MaxTimestamp(ctx context.Context) (ir.Timestamp, error) {
	var ts ir.Timestamp
	err := s.db.QueryRowContext(ctx, `
		SELECT ts_seq, ts_origin
		FROM triples
		ORDER BY ts_seq DESC, ts_origin COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&ts.Seq, &ts.Origin)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Timestamp{}, nil
	}
	if err != nil {
		return ir.Timestamp{}, fmt.Errorf("query max timestamp: %w", err)
	}
	return ts, nil
}

func scanTriples(rows *sql.Rows) ([]ir.Triple, error) {
	defer rows.Close()

	triples := []ir.Triple{}
	for rows.Next() {
		var (
			tr        ir.Triple
			attr, val string
		)
		if err := rows.Scan(&tr.EntityID, &attr, &val, &tr.Timestamp.Seq, &tr.Timestamp.Origin); err != nil {
			return nil, fmt.Errorf("scan triple: %w", err)
		}

		var err error
		if tr.Attribute, err = unmarshalAttribute(attr); err != nil {
			return nil, err
		}
		if tr.Value, err = unmarshalValue(val); err != nil {
			return nil, err
		}
		triples = append(triples, tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triples: %w", err)
	}
	return triples, nil
}
