package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// divergedFlow leaves beta without alpha's later write.
func divergedFlow() []Step {
	return []Step{
		{Replica: "alpha", Op: OpInsert, Collection: "users", ID: "u1", Doc: map[string]any{"name": "Ada", "tags": []any{"x"}}},
		{Replica: "beta", Op: OpSync, From: "alpha"},
		{Replica: "alpha", Op: OpUpdate, Collection: "users", ID: "u1", Path: []any{"name"}, Value: "Alan"},
		{Replica: "alpha", Op: OpInsert, Collection: "users", ID: "u2", Doc: map[string]any{"name": "Grace"}},
		{Replica: "alpha", Op: OpDelete, Collection: "users", ID: "u2"},
	}
}

func runAssertion(t *testing.T, a Assertion) *Result {
	t.Helper()
	result, err := Run(newScenario(divergedFlow(), a))
	require.NoError(t, err)
	return result
}

func TestAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "converged fails on diverged register",
			assertion: Assertion{Type: AssertConverged, Collection: "users", ID: "u1"},
			wantErr:   "Assertion failed: converged on beta",
		},
		{
			name:      "converged reports the merged state",
			assertion: Assertion{Type: AssertConverged, Collection: "users", ID: "u1"},
			wantErr:   "users#u1 merged from every replica",
		},
		{
			name:      "converged fails on missing entity",
			assertion: Assertion{Type: AssertConverged, Collection: "users", ID: "u2"},
			wantErr:   "ENTITY_NOT_FOUND",
		},
		{
			name:      "converged on a single replica",
			assertion: Assertion{Type: AssertConverged, Replica: "alpha", Collection: "users"},
		},
		{
			name:      "entity subset match",
			assertion: Assertion{Type: AssertEntity, Replica: "alpha", Collection: "users", ID: "u1", Expect: map[string]any{"name": "Alan"}},
		},
		{
			name:      "entity field mismatch",
			assertion: Assertion{Type: AssertEntity, Collection: "users", ID: "u1", Expect: map[string]any{"name": "Alan"}},
			wantErr:   `field "name" = Ada`,
		},
		{
			name:      "entity missing field",
			assertion: Assertion{Type: AssertEntity, Replica: "alpha", Collection: "users", ID: "u1", Expect: map[string]any{"age": 3}},
			wantErr:   `field "age" to exist`,
		},
		{
			name:      "entity deleted",
			assertion: Assertion{Type: AssertEntity, Replica: "alpha", Collection: "users", ID: "u2", Expect: map[string]any{"name": "Grace"}},
			wantErr:   "live entity users#u2",
		},
		{
			name:      "members match",
			assertion: Assertion{Type: AssertMembers, Collection: "users", ID: "u1", Path: []any{"tags"}, Members: []any{"x"}},
		},
		{
			name:      "members mismatch",
			assertion: Assertion{Type: AssertMembers, Collection: "users", ID: "u1", Path: []any{"tags"}, Members: []any{"x", "y"}},
			wantErr:   "members [x y]",
		},
		{
			name:      "members on a register",
			assertion: Assertion{Type: AssertMembers, Collection: "users", ID: "u1", Path: []any{"name"}, Members: []any{"x"}},
			wantErr:   "set at [name]",
		},
		{
			name:      "deleted",
			assertion: Assertion{Type: AssertDeleted, Replica: "alpha", Collection: "users", ID: "u2"},
		},
		{
			name:      "deleted on live entity",
			assertion: Assertion{Type: AssertDeleted, Collection: "users", ID: "u1"},
			wantErr:   "entity is live",
		},
		{
			name:      "deleted on unknown entity",
			assertion: Assertion{Type: AssertDeleted, Replica: "beta", Collection: "users", ID: "u2"},
			wantErr:   "ENTITY_NOT_FOUND",
		},
		{
			name:      "count",
			assertion: Assertion{Type: AssertCount, Collection: "users", Count: 1},
		},
		{
			name:      "count mismatch",
			assertion: Assertion{Type: AssertCount, Replica: "beta", Collection: "users", Count: 2},
			wantErr:   "2 live entities in users",
		},
		{
			name:      "unknown collection",
			assertion: Assertion{Type: AssertCount, Collection: "posts"},
			wantErr:   "UNKNOWN_COLLECTION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runAssertion(t, tt.assertion)
			if tt.wantErr == "" {
				assert.True(t, result.Pass, "errors: %v", result.Errors)
				return
			}
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.wantErr)
		})
	}
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions([]Assertion{{Type: "trace_order", Collection: "users"}}, &AssertionContext{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "trace_order"`)
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: AssertCount, Replica: "beta", Expected: "2", Actual: "1"}
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "Assertion failed: count on beta\n"))
	assert.Contains(t, msg, "  Expected: 2\n")
	assert.Contains(t, msg, "  Actual: 1\n")
}

func TestSameMembers(t *testing.T) {
	assert.True(t, sameMembers([]any{"a", "b"}, []any{"b", "a"}))
	assert.True(t, sameMembers([]any{}, []any{}))
	assert.True(t, sameMembers([]any{1.0, "1"}, []any{"1", 1.0}))
	assert.False(t, sameMembers([]any{"a", "a"}, []any{"a", "b"}))
	assert.False(t, sameMembers([]any{"a"}, []any{"a", "b"}))
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(nil, nil))
	assert.False(t, valuesEqual(nil, "x"))
	assert.False(t, valuesEqual(3.0, 3))
	assert.True(t, valuesEqual(map[string]any{"city": "Paris"}, map[string]any{"city": "Paris"}))
	assert.True(t, valuesEqual(3.0, convertValue(3)))
}
