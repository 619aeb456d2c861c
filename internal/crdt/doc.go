// Package crdt implements the conflict-free value types that make up an
// entity: last-writer-wins Registers, Sets of presence Registers and
// Records nesting both.
//
// Every node is one of *Register, *Set or *Record. Traversals switch on the
// concrete type and treat any other value as a programming error.
//
// All merge functions are commutative, associative and idempotent. A write
// whose timestamp does not strictly exceed the current one is discarded
// without error.
package crdt
