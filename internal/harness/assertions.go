package harness

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/lattice/internal/crdt"
	"github.com/roach88/lattice/internal/engine"
	"github.com/roach88/lattice/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Replica  string // Replica the assertion failed on, if any
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Replica != "" {
		fmt.Fprintf(&buf, " on %s", e.Replica)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// AssertionContext provides the replicas assertions are evaluated on.
type AssertionContext struct {
	Ctx      context.Context
	Replicas map[string]*engine.Engine
	// Order lists replica names in scenario order.
	Order []string
}

func (actx *AssertionContext) targets(a Assertion) []string {
	if a.Replica != "" {
		return []string{a.Replica}
	}
	return actx.Order
}

// EvaluateAssertions evaluates all assertions and returns a message for
// every failed one.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertConverged:
			err = assertConverged(actx, assertion)
		case AssertEntity:
			err = forEachReplica(actx, assertion, assertEntity)
		case AssertMembers:
			err = forEachReplica(actx, assertion, assertMembers)
		case AssertDeleted:
			err = forEachReplica(actx, assertion, assertDeleted)
		case AssertCount:
			err = forEachReplica(actx, assertion, assertCount)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

type replicaCheck func(ctx context.Context, name string, eng *engine.Engine, a Assertion) error

func forEachReplica(actx *AssertionContext, a Assertion, check replicaCheck) error {
	for _, name := range actx.targets(a) {
		eng, ok := actx.Replicas[name]
		if !ok {
			return fmt.Errorf("unknown replica %q", name)
		}
		if err := check(actx.Ctx, name, eng, a); err != nil {
			return err
		}
	}
	return nil
}

// assertConverged checks that every replica holds the join of all replica
// states, timestamps included: the union of stored ids, or just a.ID.
func assertConverged(actx *AssertionContext, a Assertion) error {
	names := actx.targets(a)

	ids := []string{a.ID}
	if a.ID == "" {
		ids = nil
		for _, name := range names {
			got, err := actx.Replicas[name].EntityIDs(actx.Ctx, a.Collection)
			if err != nil {
				return err
			}
			ids = append(ids, got...)
		}
		slices.Sort(ids)
		ids = slices.Compact(ids)
	}

	for _, id := range ids {
		states := make([]*crdt.Entity, len(names))
		var joined *crdt.Entity
		for i, name := range names {
			ent, err := actx.Replicas[name].Entity(actx.Ctx, a.Collection, id)
			if err != nil {
				return &AssertionError{
					Type:     AssertConverged,
					Replica:  name,
					Expected: fmt.Sprintf("entity %s", ir.EntityKey(a.Collection, id)),
					Actual:   err.Error(),
				}
			}
			states[i] = ent
			if joined == nil {
				joined = ent
				continue
			}
			if joined, err = crdt.MergeEntities(joined, ent); err != nil {
				return err
			}
		}

		for i, name := range names {
			if !states[i].Equal(joined) {
				return &AssertionError{
					Type:     AssertConverged,
					Replica:  name,
					Expected: fmt.Sprintf("%s merged from every replica: %v", joined.ID, joined.Plain()),
					Actual:   fmt.Sprintf("%v", states[i].Plain()),
				}
			}
		}
	}
	return nil
}

// assertEntity checks the plain document contains the expected fields
// (subset match). Sets compare as their sorted member lists.
func assertEntity(ctx context.Context, name string, eng *engine.Engine, a Assertion) error {
	doc, err := eng.Fetch(ctx, a.Collection, a.ID)
	if err != nil {
		return &AssertionError{
			Type:     AssertEntity,
			Replica:  name,
			Expected: fmt.Sprintf("live entity %s", ir.EntityKey(a.Collection, a.ID)),
			Actual:   err.Error(),
		}
	}
	for key, expected := range a.Expect {
		actual, exists := doc[key]
		if !exists {
			return &AssertionError{
				Type:     AssertEntity,
				Replica:  name,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %v", key, doc),
			}
		}
		if !valuesEqual(actual, convertValue(expected)) {
			return &AssertionError{
				Type:     AssertEntity,
				Replica:  name,
				Expected: fmt.Sprintf("field %q = %v", key, expected),
				Actual:   fmt.Sprintf("field %q = %v", key, actual),
			}
		}
	}
	return nil
}

// assertMembers checks the set at a.Path holds exactly a.Members.
func assertMembers(ctx context.Context, name string, eng *engine.Engine, a Assertion) error {
	doc, err := eng.Fetch(ctx, a.Collection, a.ID)
	if err != nil {
		return &AssertionError{
			Type:     AssertMembers,
			Replica:  name,
			Expected: fmt.Sprintf("live entity %s", ir.EntityKey(a.Collection, a.ID)),
			Actual:   err.Error(),
		}
	}

	var node any = doc
	for _, seg := range a.Path {
		m, ok := node.(map[string]any)
		key, isString := seg.(string)
		if !ok || !isString {
			node = nil
			break
		}
		node = m[key]
	}
	actual, ok := node.([]any)
	if !ok {
		return &AssertionError{
			Type:     AssertMembers,
			Replica:  name,
			Expected: fmt.Sprintf("set at %v", a.Path),
			Actual:   fmt.Sprintf("%v", node),
		}
	}

	expected := make([]any, len(a.Members))
	for i, m := range a.Members {
		expected[i] = convertValue(m)
	}
	if !sameMembers(actual, expected) {
		return &AssertionError{
			Type:     AssertMembers,
			Replica:  name,
			Expected: fmt.Sprintf("members %v", a.Members),
			Actual:   fmt.Sprintf("members %v", actual),
		}
	}
	return nil
}

// assertDeleted checks the entity exists and is soft-deleted.
func assertDeleted(ctx context.Context, name string, eng *engine.Engine, a Assertion) error {
	ent, err := eng.Entity(ctx, a.Collection, a.ID)
	if err != nil {
		return &AssertionError{
			Type:     AssertDeleted,
			Replica:  name,
			Expected: fmt.Sprintf("deleted entity %s", ir.EntityKey(a.Collection, a.ID)),
			Actual:   err.Error(),
		}
	}
	if !ent.IsDeleted() {
		return &AssertionError{
			Type:     AssertDeleted,
			Replica:  name,
			Expected: fmt.Sprintf("%s deleted", ent.ID),
			Actual:   "entity is live",
		}
	}
	return nil
}

// assertCount checks the number of live entities in the collection.
func assertCount(ctx context.Context, name string, eng *engine.Engine, a Assertion) error {
	docs, err := eng.FetchAll(ctx, a.Collection)
	if err != nil {
		return err
	}
	if len(docs) != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Replica:  name,
			Expected: fmt.Sprintf("%d live entities in %s", a.Count, a.Collection),
			Actual:   fmt.Sprintf("%d", len(docs)),
		}
	}
	return nil
}

// sameMembers compares two member lists ignoring order.
func sameMembers(actual, expected []any) bool {
	if len(actual) != len(expected) {
		return false
	}
	used := make([]bool, len(actual))
	for _, want := range expected {
		found := false
		for i, got := range actual {
			if !used[i] && valuesEqual(got, want) {
				used[i], found = true, true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// valuesEqual compares plain values. Handles nested maps and slices.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	return reflect.DeepEqual(actual, expected)
}
