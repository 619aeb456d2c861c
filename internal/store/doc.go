// Package store provides SQLite-backed durable storage for triples.
//
// The store is an append-only triple log:
//   - Triples: (entity, attribute, value, timestamp) writes, keyed by
//     their content-addressed ID
//
// # Patterns
//
// Idempotent writes
//   - id is ir.TripleID: entity, attribute and timestamp
//   - INSERT ... ON CONFLICT(id) DO NOTHING, so re-delivered writes are no-ops
//
// Exact round trip
//   - attribute and value are stored as RFC 8785 canonical JSON
//   - timestamps are stored as (ts_seq, ts_origin) and never coerced
//
// Deterministic reads
//   - All queries order by ts_seq, ts_origin COLLATE BINARY, attribute
//     COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
