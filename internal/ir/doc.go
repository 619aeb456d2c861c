// Package ir provides the canonical wire-level types for lattice.
//
// This package contains the leaf types every other package builds on:
// scalar values, logical timestamps, attribute paths and triples. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Values are a sealed set: Null, String, Number, Bool. No composite values;
//     structure lives in the CRDT tree, never inside a triple.
//   - Ordering is by logical timestamp only, never wall-clock time.
//   - Canonical encoding is RFC 8785 JSON with NFC-normalized strings, so
//     identical triples produce identical bytes on every replica.
//   - All JSON tags use snake_case.
package ir
