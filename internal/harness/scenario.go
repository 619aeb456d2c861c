package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines a convergence test scenario.
// A scenario runs a flow of local writes and syncs across several
// replicas sharing one schema, then asserts on their final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the path to the CUE schema (file or directory).
	// Relative paths are resolved against the scenario file location.
	Schema string `yaml:"schema"`

	// Store selects the triple store backing each replica: "sqlite"
	// (default) or "bolt".
	Store string `yaml:"store,omitempty"`

	// Replicas lists replica origins. Origins order timestamp ties.
	Replicas []string `yaml:"replicas"`

	// Flow contains the steps, executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation on one replica.
type Step struct {
	// Replica executing the step. Ignored by sync_all.
	Replica string `yaml:"replica,omitempty"`

	// Op is one of insert, update, add, remove, delete, schema, sync,
	// sync_all.
	Op string `yaml:"op"`

	Collection string `yaml:"collection,omitempty"`
	ID         string `yaml:"id,omitempty"`

	// Doc is the plain document of an insert.
	Doc map[string]any `yaml:"doc,omitempty"`

	// Path addresses the register (update) or set (add, remove).
	Path []any `yaml:"path,omitempty"`

	// Value is the new register value or the set element.
	Value any `yaml:"value,omitempty"`

	// From is the source replica of a sync.
	From string `yaml:"from,omitempty"`

	// Schema is the CUE schema a schema step installs. Relative paths are
	// resolved against the scenario file location.
	Schema string `yaml:"schema,omitempty"`

	// ExpectError is the error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpInsert  = "insert"
	OpUpdate  = "update"
	OpAdd     = "add"
	OpRemove  = "remove"
	OpDelete  = "delete"
	OpSchema  = "schema"
	OpSync    = "sync"
	OpSyncAll = "sync_all"
)

// Store kinds.
const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
)

// Assertion validates the final state of one or all replicas.
type Assertion struct {
	// Type specifies the assertion type:
	// - "converged": every replica holds equal entities (timestamps included)
	// - "entity": the plain document contains the expected fields
	// - "members": the set at path holds exactly the given members
	// - "deleted": the entity exists and is soft-deleted
	// - "count": the collection holds count live entities
	Type string `yaml:"type"`

	// Replica restricts the assertion to one replica. Empty means every
	// replica.
	Replica string `yaml:"replica,omitempty"`

	Collection string `yaml:"collection"`

	// ID selects the entity. Optional for converged and count.
	ID string `yaml:"id,omitempty"`

	// Expect contains expected fields (entity). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Path addresses the set (members).
	Path []any `yaml:"path,omitempty"`

	// Members lists the expected set members in any order (members).
	Members []any `yaml:"members,omitempty"`

	// Count is the expected number of live entities (count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged = "converged"
	AssertEntity    = "entity"
	AssertMembers   = "members"
	AssertDeleted   = "deleted"
	AssertCount     = "count"
)

// LoadScenario reads and parses a scenario YAML file.
// The schema path is resolved relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving a relative schema path
// against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.Schema = resolvePath(scenario.Schema, baseDir)
	for i := range scenario.Flow {
		scenario.Flow[i].Schema = resolvePath(scenario.Flow[i].Schema, baseDir)
	}
	if scenario.Store == "" {
		scenario.Store = StoreSQLite
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolvePath(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// validateScenario checks required fields and references between steps
// and replicas.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema not found: %s", s.Schema)
	}
	if s.Store != StoreSQLite && s.Store != StoreBolt {
		return fmt.Errorf("unknown store %q (want %s or %s)", s.Store, StoreSQLite, StoreBolt)
	}

	if len(s.Replicas) == 0 {
		return fmt.Errorf("replicas list is required and must be non-empty")
	}
	seen := make(map[string]bool, len(s.Replicas))
	for i, r := range s.Replicas {
		if r == "" {
			return fmt.Errorf("replicas[%d]: name is required", i)
		}
		if seen[r] {
			return fmt.Errorf("replicas[%d]: duplicate replica %q", i, r)
		}
		seen[r] = true
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	for i, step := range s.Flow {
		if err := validateStep(i, &step, s.Replicas); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, s.Replicas); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step, replicas []string) error {
	if step.Op == OpSyncAll {
		return nil
	}
	if !slices.Contains(replicas, step.Replica) {
		return fmt.Errorf("flow[%d]: unknown replica %q", index, step.Replica)
	}

	switch step.Op {
	case OpInsert:
		if step.Collection == "" {
			return fmt.Errorf("flow[%d]: collection is required for insert", index)
		}
		if step.Doc == nil {
			return fmt.Errorf("flow[%d]: doc is required for insert", index)
		}
	case OpUpdate, OpAdd, OpRemove:
		if step.Collection == "" || step.ID == "" {
			return fmt.Errorf("flow[%d]: collection and id are required for %s", index, step.Op)
		}
		if len(step.Path) == 0 {
			return fmt.Errorf("flow[%d]: path is required for %s", index, step.Op)
		}
	case OpDelete:
		if step.Collection == "" || step.ID == "" {
			return fmt.Errorf("flow[%d]: collection and id are required for delete", index)
		}
	case OpSchema:
		if step.Schema == "" {
			return fmt.Errorf("flow[%d]: schema is required for schema", index)
		}
		if _, err := os.Stat(step.Schema); os.IsNotExist(err) {
			return fmt.Errorf("flow[%d]: schema not found: %s", index, step.Schema)
		}
	case OpSync:
		if !slices.Contains(replicas, step.From) {
			return fmt.Errorf("flow[%d]: unknown sync source %q", index, step.From)
		}
		if step.From == step.Replica {
			return fmt.Errorf("flow[%d]: replica %q cannot sync from itself", index, step.From)
		}
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", index, step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, replicas []string) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Replica != "" && !slices.Contains(replicas, a.Replica) {
		return fmt.Errorf("assertions[%d]: unknown replica %q", index, a.Replica)
	}
	if a.Collection == "" {
		return fmt.Errorf("assertions[%d]: collection is required", index)
	}

	switch a.Type {
	case AssertConverged:
	case AssertEntity:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for entity", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for entity", index)
		}
	case AssertMembers:
		if a.ID == "" || len(a.Path) == 0 {
			return fmt.Errorf("assertions[%d]: id and path are required for members", index)
		}
	case AssertDeleted:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for deleted", index)
		}
	case AssertCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
