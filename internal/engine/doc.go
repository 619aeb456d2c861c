// Package engine implements a synchronous replica over a triple store.
//
// The engine owns the in-memory entity cache of one replica. Every local
// write is stamped by the replica's Lamport clock, turned into triples,
// applied to the cached entity and persisted. Remote triples go through
// the same triple.Apply path, so local and remote writes follow one
// conflict rule.
//
// Write Flow:
//  1. Resolve the collection in the current schema
//  2. Load the entity (cache, else hydrate from the store)
//  3. Stamp the write with Clock.Next
//  4. Apply the triples to a clone of the entity
//  5. Persist the triples, then publish the clone to the cache
//
// A failed validation or a failed store write leaves the cache untouched.
//
// The schema itself is stored as triples of the reserved "_schema" entity
// and travels with ordinary sync. A remote schema whose version is lower
// than the installed one is refused.
//
// Mutations are serialized by a mutex. The engine is designed for
// determinism, not throughput.
package engine
