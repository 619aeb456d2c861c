package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/lattice/internal/ir"
)

// Snapshot captures the trace and final state of a scenario execution.
// It is serialized as canonical JSON for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	State        State
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(scenarioName string, result *Result) Snapshot {
	return Snapshot{ScenarioName: scenarioName, Trace: result.Trace, State: result.State}
}

// toCanonicalMap converts the snapshot to plain maps and slices, the
// shapes ir.MarshalCanonical handles.
func (s Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"step":    ev.Step,
			"replica": ev.Replica,
			"op":      ev.Op,
		}
		if ev.Target != "" {
			m["target"] = ev.Target
		}
		if ev.Clock != "" {
			m["clock"] = ev.Clock
		}
		if ev.Op == OpSync || ev.Op == OpSyncAll {
			m["applied"] = ev.Applied
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		trace[i] = m
	}

	state := make(map[string]any, len(s.State))
	for replica, collections := range s.State {
		cols := make(map[string]any, len(collections))
		for name, docs := range collections {
			list := make([]any, len(docs))
			for i, doc := range docs {
				list[i] = doc
			}
			cols[name] = list
		}
		state[replica] = cols
	}

	return map[string]any{
		"scenario": s.ScenarioName,
		"trace":    trace,
		"state":    state,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot run. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
