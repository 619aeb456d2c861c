package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// To regenerate golden files after an intended change:
//
//	go test ./internal/harness -run TestGolden -update
func TestGolden_Scenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.AddTrace(TraceEvent{Step: 0, Replica: "alpha", Op: OpInsert, Target: "users#u1", Clock: "2@alpha"})
	result.AddTrace(TraceEvent{Step: 1, Replica: "beta", Op: OpSync, Target: "alpha", Clock: "2@beta"})
	result.AddTrace(TraceEvent{Step: 2, Replica: "beta", Op: OpDelete, Target: "users#u9", Clock: "2@beta", Error: "ENTITY_NOT_FOUND"})
	result.State = State{
		"alpha": {"users": {{"id": "u1", "name": "Ada", "nick": nil, "tags": []any{"x"}}}},
		"beta":  {"users": {}},
	}

	data, err := NewSnapshot("snap", result).MarshalCanonical()
	require.NoError(t, err)

	want := `{"scenario":"snap",` +
		`"state":{"alpha":{"users":[{"id":"u1","name":"Ada","nick":null,"tags":["x"]}]},"beta":{"users":[]}},` +
		`"trace":[` +
		`{"clock":"2@alpha","op":"insert","replica":"alpha","step":0,"target":"users#u1"},` +
		`{"applied":0,"clock":"2@beta","op":"sync","replica":"beta","step":1,"target":"alpha"},` +
		`{"clock":"2@beta","error":"ENTITY_NOT_FOUND","op":"delete","replica":"beta","step":2,"target":"users#u9"}]}`
	assert.Equal(t, want, string(data))
}

func TestAssertGolden_ExistingResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/concurrent_update.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, scenario.Name, result))
}
