package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestSchema writes a minimal CUE schema into dir.
func writeTestSchema(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "schema.cue")
	src := `version: 1
collection: users: attributes: {
	name: {type: "string"}
	tags: {type: "set_string"}
}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	writeTestSchema(t, dir)
	scenarioPath := filepath.Join(dir, "test.yaml")

	content := `
name: test_scenario
description: "Test scenario for validation"
schema: schema.cue
replicas: [alpha, beta]
flow:
  - replica: alpha
    op: insert
    collection: users
    id: u1
    doc: {name: Ada, tags: [x, y]}
  - replica: beta
    op: sync
    from: alpha
  - op: sync_all
assertions:
  - type: converged
    collection: users
`
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	scenario, err := LoadScenario(scenarioPath)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "schema.cue"), scenario.Schema, "schema path resolves against the scenario dir")
	assert.Equal(t, StoreSQLite, scenario.Store, "store defaults to sqlite")
	assert.Equal(t, []string{"alpha", "beta"}, scenario.Replicas)
	require.Len(t, scenario.Flow, 3)
	assert.Equal(t, OpInsert, scenario.Flow[0].Op)
	assert.Equal(t, "Ada", scenario.Flow[0].Doc["name"])
	assert.Equal(t, []any{"x", "y"}, scenario.Flow[0].Doc["tags"])
	assert.Equal(t, "alpha", scenario.Flow[1].From)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, AssertConverged, scenario.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	dir := t.TempDir()
	writeTestSchema(t, dir)

	content := `
name: typo
schema: schema.cue
replicas: [alpha]
flow:
  - {replica: alpha, op: insert, collection: users, doc: {name: Ada}}
assertion:
  - {type: count, collection: users, count: 1}
`
	_, err := ParseScenario([]byte(content), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeTestSchema(t, dir)

	const header = "name: bad\nschema: schema.cue\n"
	const okFlow = "flow:\n  - {replica: alpha, op: delete, collection: users, id: u1}\n"
	const okAssert = "assertions:\n  - {type: count, collection: users}\n"

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "schema: schema.cue\nreplicas: [alpha]\n" + okFlow + okAssert,
			wantErr: "name is required",
		},
		{
			name:    "missing schema",
			content: "name: bad\nreplicas: [alpha]\n" + okFlow + okAssert,
			wantErr: "schema is required",
		},
		{
			name:    "schema not found",
			content: "name: bad\nschema: nope.cue\nreplicas: [alpha]\n" + okFlow + okAssert,
			wantErr: "schema not found",
		},
		{
			name:    "unknown store",
			content: header + "store: redis\nreplicas: [alpha]\n" + okFlow + okAssert,
			wantErr: `unknown store "redis"`,
		},
		{
			name:    "no replicas",
			content: header + okFlow + okAssert,
			wantErr: "replicas list is required",
		},
		{
			name:    "duplicate replica",
			content: header + "replicas: [alpha, alpha]\n" + okFlow + okAssert,
			wantErr: `duplicate replica "alpha"`,
		},
		{
			name:    "empty flow",
			content: header + "replicas: [alpha]\n" + okAssert,
			wantErr: "flow list is required",
		},
		{
			name:    "unknown step replica",
			content: header + "replicas: [alpha]\nflow:\n  - {replica: beta, op: delete, collection: users, id: u1}\n" + okAssert,
			wantErr: `flow[0]: unknown replica "beta"`,
		},
		{
			name:    "unknown op",
			content: header + "replicas: [alpha]\nflow:\n  - {replica: alpha, op: upsert}\n" + okAssert,
			wantErr: `flow[0]: unknown op "upsert"`,
		},
		{
			name:    "insert without doc",
			content: header + "replicas: [alpha]\nflow:\n  - {replica: alpha, op: insert, collection: users}\n" + okAssert,
			wantErr: "doc is required for insert",
		},
		{
			name:    "update without path",
			content: header + "replicas: [alpha]\nflow:\n  - {replica: alpha, op: update, collection: users, id: u1, value: x}\n" + okAssert,
			wantErr: "path is required for update",
		},
		{
			name:    "schema step without schema",
			content: header + "replicas: [alpha]\nflow:\n  - {replica: alpha, op: schema}\n" + okAssert,
			wantErr: "schema is required for schema",
		},
		{
			name:    "schema step file not found",
			content: header + "replicas: [alpha]\nflow:\n  - {replica: alpha, op: schema, schema: v9.cue}\n" + okAssert,
			wantErr: "flow[0]: schema not found",
		},
		{
			name:    "sync from self",
			content: header + "replicas: [alpha, beta]\nflow:\n  - {replica: alpha, op: sync, from: alpha}\n" + okAssert,
			wantErr: "cannot sync from itself",
		},
		{
			name:    "sync from unknown",
			content: header + "replicas: [alpha]\nflow:\n  - {replica: alpha, op: sync, from: gamma}\n" + okAssert,
			wantErr: `unknown sync source "gamma"`,
		},
		{
			name:    "no assertions",
			content: header + "replicas: [alpha]\n" + okFlow,
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown assertion",
			content: header + "replicas: [alpha]\n" + okFlow + "assertions:\n  - {type: trace_order, collection: users}\n",
			wantErr: `unknown assertion type "trace_order"`,
		},
		{
			name:    "entity without expect",
			content: header + "replicas: [alpha]\n" + okFlow + "assertions:\n  - {type: entity, collection: users, id: u1}\n",
			wantErr: "expect is required for entity",
		},
		{
			name:    "members without path",
			content: header + "replicas: [alpha]\n" + okFlow + "assertions:\n  - {type: members, collection: users, id: u1}\n",
			wantErr: "id and path are required for members",
		},
		{
			name:    "assertion on unknown replica",
			content: header + "replicas: [alpha]\n" + okFlow + "assertions:\n  - {type: count, replica: beta, collection: users}\n",
			wantErr: `assertions[0]: unknown replica "beta"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_ResolvesSchemaStepPath(t *testing.T) {
	dir := t.TempDir()
	writeTestSchema(t, dir)

	content := "name: upgrade\nschema: schema.cue\nreplicas: [alpha]\n" +
		"flow:\n  - {replica: alpha, op: schema, schema: schema.cue}\n" +
		"assertions:\n  - {type: count, collection: users}\n"
	scenario, err := ParseScenario([]byte(content), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "schema.cue"), scenario.Flow[0].Schema)
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join("testdata", "schema.cue"), scenario.Schema)
		})
	}
}
