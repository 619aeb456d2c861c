// Package boltdb provides a bbolt-backed triple store for embedded replicas.
//
// Each entity gets a nested bucket under the triples bucket; keys are
// triple IDs and values are canonical JSON triples. Reads return triples in
// the same order as the SQLite store.
package boltdb

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"go.etcd.io/bbolt"

	"github.com/roach88/lattice/internal/ir"
)

// ErrStorageClosed is returned by operations on a closed storage.
var ErrStorageClosed = errors.New("storage is closed")

var bucketTriples = []byte("triples")

// Storage is a bbolt triple store.
type Storage struct {
	db *bbolt.DB
}

// New opens or creates a bbolt database at dbPath.
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTriples); err != nil {
			return fmt.Errorf("failed to create triples bucket: %w", err)
		}
		return nil
	})
}

// WriteTriples stores triples in one transaction. A triple already stored
// under the same ID is left as is.
func (s *Storage) WriteTriples(ctx context.Context, triples []ir.Triple) error {
	if s.db == nil {
		return ErrStorageClosed
	}
	if len(triples) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketTriples)
		for _, tr := range triples {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := ir.TripleID(tr)
			if err != nil {
				return fmt.Errorf("triple %s: %w", tr, err)
			}
			if tr.Value == nil {
				return fmt.Errorf("triple %s: no value", tr)
			}
			data, err := json.Marshal(tr)
			if err != nil {
				return fmt.Errorf("failed to marshal triple: %w", err)
			}

			bucket, err := root.CreateBucketIfNotExists([]byte(tr.EntityID))
			if err != nil {
				return fmt.Errorf("failed to create entity bucket: %w", err)
			}
			if bucket.Get([]byte(id)) != nil {
				continue
			}
			if err := bucket.Put([]byte(id), data); err != nil {
				return fmt.Errorf("failed to save triple: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write triples: %w", err)
	}
	return nil
}

// ReadTriples returns every triple of an entity ordered by timestamp then
// attribute. Returns an empty slice when the entity has none.
func (s *Storage) ReadTriples(ctx context.Context, entityID string) ([]ir.Triple, error) {
	if s.db == nil {
		return nil, ErrStorageClosed
	}

	triples := []ir.Triple{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketTriples).Bucket([]byte(entityID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			tr, err := decodeTriple(v)
			if err != nil {
				return err
			}
			triples = append(triples, tr)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read triples: %w", err)
	}
	sortTriples(triples)
	return triples, nil
}

// Count returns the number of stored triples.
func (s *Storage) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrStorageClosed
	}

	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketTriples)
		return root.ForEachBucket(func(name []byte) error {
			n += root.Bucket(name).Stats().KeyN
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("count triples: %w", err)
	}
	return n, nil
}

// ReadTriplesAfter returns triples with a timestamp strictly greater than
// after.
func (s *Storage) ReadTriplesAfter(ctx context.Context, after ir.Timestamp) ([]ir.Triple, error) {
	if s.db == nil {
		return nil, ErrStorageClosed
	}

	triples := []ir.Triple{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketTriples)
		return root.ForEachBucket(func(name []byte) error {
			return root.Bucket(name).ForEach(func(_, v []byte) error {
				tr, err := decodeTriple(v)
				if err != nil {
					return err
				}
				if tr.Timestamp.After(after) {
					triples = append(triples, tr)
				}
				return nil
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read triples after %s: %w", after, err)
	}
	sortTriples(triples)
	return triples, nil
}

// EntityIDs returns the entity ids with the given prefix in byte order.
func (s *Storage) EntityIDs(ctx context.Context, prefix string) ([]string, error) {
	if s.db == nil {
		return nil, ErrStorageClosed
	}

	ids := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTriples).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			ids = append(ids, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("entity ids: %w", err)
	}
	return ids, nil
}

// MaxTimestamp returns the greatest stored timestamp, or the zero
// timestamp for an empty store.
func (s *Storage) MaxTimestamp(ctx context.Context) (ir.Timestamp, error) {
	if s.db == nil {
		return ir.Timestamp{}, ErrStorageClosed
	}

	var latest ir.Timestamp
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketTriples)
		return root.ForEachBucket(func(name []byte) error {
			return root.Bucket(name).ForEach(func(_, v []byte) error {
				tr, err := decodeTriple(v)
				if err != nil {
					return err
				}
				if tr.Timestamp.After(latest) {
					latest = tr.Timestamp
				}
				return nil
			})
		})
	})
	if err != nil {
		return ir.Timestamp{}, fmt.Errorf("max timestamp: %w", err)
	}
	return latest, nil
}

func decodeTriple(data []byte) (ir.Triple, error) {
	var tr ir.Triple
	if err := json.Unmarshal(data, &tr); err != nil {
		return ir.Triple{}, fmt.Errorf("failed to unmarshal triple: %w", err)
	}
	return tr, nil
}

// sortTriples orders like the SQLite store: timestamp, then attribute
// text, then entity id.
func sortTriples(triples []ir.Triple) {
	slices.SortFunc(triples, func(a, b ir.Triple) int {
		if c := ir.CompareTimestamps(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Attribute.Key(), b.Attribute.Key()); c != 0 {
			return c
		}
		return cmp.Compare(a.EntityID, b.EntityID)
	})
}
