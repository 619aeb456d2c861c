// Package harness runs convergence scenarios against several replica
// engines.
//
// A scenario is a YAML file naming a CUE schema, a list of replicas and a
// flow of steps. Each replica is an engine.Engine over its own fresh store
// (in-memory SQLite, or bbolt in a temporary directory). Steps perform
// local writes on one replica or exchange triples between replicas:
//
//	name: concurrent_update
//	schema: ../schema.cue
//	replicas: [alpha, beta]
//	flow:
//	  - {replica: alpha, op: insert, collection: users, id: u1, doc: {name: Ada}}
//	  - {replica: beta, op: sync, from: alpha}
//	  - {replica: alpha, op: update, collection: users, id: u1, path: [name], value: Alan}
//	  - {replica: beta, op: update, collection: users, id: u1, path: [name], value: Bea}
//	  - {op: sync_all}
//	assertions:
//	  - {type: converged, collection: users}
//	  - {type: entity, collection: users, id: u1, expect: {name: Bea}}
//
// A sync is a full-state exchange: the target applies every triple the
// source holds. sync_all has every replica pull from every other, twice.
//
// Runs are deterministic. Replica clocks start at zero, the schema is
// installed at the first tick of every replica, "now" defaults read a
// testutil.DeterministicClock and generated ids are "<replica>-N". The
// trace and final state can therefore be compared byte for byte against
// golden files (see RunWithGolden).
package harness
