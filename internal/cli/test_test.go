package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGolden    = "../harness/testdata/golden"
)

const mergeScenario = `name: merge
schema: ../schema.cue
replicas: [alpha, beta]
flow:
  - {replica: alpha, op: insert, collection: notes, id: n1, doc: {title: Draft}}
  - {replica: beta, op: sync, from: alpha}
  - {replica: beta, op: update, collection: notes, id: n1, path: [done], value: true}
  - op: sync_all
assertions:
  - {type: converged, collection: notes}
  - {type: entity, collection: notes, id: n1, expect: {title: Draft, done: true}}
`

// scenarioWorkspace lays out root/schema.cue and root/scenarios/merge.yaml.
func scenarioWorkspace(t *testing.T, scenario string) string {
	t.Helper()
	root := t.TempDir()
	schemaSrc, err := os.ReadFile(testSchemaPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "schema.cue"), schemaSrc, 0644))

	dir := filepath.Join(root, "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "merge.yaml"), []byte(scenario), 0644))
	return dir
}

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios path not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	output, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, output, "No scenarios found.")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	output, err := runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
	assert.NotNil(t, resp.Data.Scenarios)
}

func TestTestCommandHarnessScenariosMatchGolden(t *testing.T) {
	output, err := runTestCommand(t, "text", harnessScenarios, "--golden-dir", harnessGolden)
	require.NoError(t, err, output)

	assert.Contains(t, output, "✓ concurrent_update")
	assert.Contains(t, output, "✓ delete_then_revive")
	assert.Contains(t, output, "✓ nested_records_bolt")
	assert.Contains(t, output, "Test Summary: 3 passed, 0 failed, 3 total")
}

func TestTestCommandFilter(t *testing.T) {
	output, err := runTestCommand(t, "json", harnessScenarios, "--golden-dir", harnessGolden, "--filter", "delete_*")
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "delete_then_revive", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestTestCommandSingleFile(t *testing.T) {
	dir := scenarioWorkspace(t, mergeScenario)

	output, err := runTestCommand(t, "text", filepath.Join(dir, "merge.yaml"))
	require.NoError(t, err, output)
	assert.Contains(t, output, "✓ merge")
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := scenarioWorkspace(t, mergeScenario)
	goldenPath := filepath.Join(dir, "golden", "merge.golden")

	output, err := runTestCommand(t, "text", dir, "--update")
	require.NoError(t, err, output)
	assert.Contains(t, output, "✓ merge (golden updated)")

	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario":"merge"`)

	output, err = runTestCommand(t, "text", dir)
	require.NoError(t, err, output)
	assert.Contains(t, output, "✓ merge")

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario":"merge"}`), 0644))
	output, err = runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "snapshot does not match golden file")
}

func TestTestCommandFailingAssertion(t *testing.T) {
	failing := mergeScenario + "  - {type: count, collection: notes, count: 2}\n"
	dir := scenarioWorkspace(t, failing)

	output, err := runTestCommand(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommandLoadError(t *testing.T) {
	dir := scenarioWorkspace(t, "name: broken\n")

	output, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, output, "✗ merge.yaml")
	assert.Contains(t, output, "failed to load scenario")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "nested"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "golden"), 0755))

	for _, name := range []string{"merge.yaml", "delete.yml", "nested/revive.yaml", "golden/old.yaml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, name), []byte(""), 0644))
	}

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(tmpDir, "merge.yaml"),
		filepath.Join(tmpDir, "delete.yml"),
		filepath.Join(tmpDir, "nested", "revive.yaml"),
	}, files)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"sync-one.yaml", "sync-two.yaml", "delete.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, name), []byte(""), 0644))
	}

	files, err := findScenarioFiles(tmpDir, "sync-*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = findScenarioFiles(tmpDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
