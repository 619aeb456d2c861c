package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/lattice/internal/compiler"
	"github.com/roach88/lattice/internal/engine"
	"github.com/roach88/lattice/internal/ir"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/store/boltdb"
	"github.com/roach88/lattice/internal/testutil"
)

// AllReplicas is the replica name recorded for sync_all steps.
const AllReplicas = "*"

// replica is one engine with the store it owns.
type replica struct {
	name   string
	engine *engine.Engine
	store  io.Closer
}

// Harness is the scenario execution engine. Every replica runs over a
// fresh store with a deterministic clock for "now" defaults and
// sequential ids for inserts without one.
type Harness struct {
	scenario *Scenario
	def      *schema.Definition
	replicas map[string]*replica
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
	tmpDir   string
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger sets the logger handed to every replica engine.
// Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Compile the CUE schema
// 2. Open one engine per replica and install the schema on each
// 3. Execute flow steps, checking expected errors
// 4. Capture the plain state of every replica
// 5. Evaluate assertions
//
// A step that fails without expect_error aborts the run with an error;
// unmet expectations and failed assertions are reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	ctx := context.Background()

	def, err := compiler.LoadDefinition(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		def:      def,
		replicas: make(map[string]*replica, len(scenario.Replicas)),
		clock:    testutil.NewDeterministicClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	defer h.close()

	for _, name := range scenario.Replicas {
		if err := h.openReplica(ctx, name); err != nil {
			return nil, err
		}
	}

	result := NewResult()
	if err := h.executeFlow(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	state, err := h.captureState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture state: %w", err)
	}
	result.State = state

	actx := &AssertionContext{Ctx: ctx, Replicas: h.engines(), Order: scenario.Replicas}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) openReplica(ctx context.Context, name string) error {
	var (
		st  engine.Store
		cl  io.Closer
		err error
	)
	switch h.scenario.Store {
	case StoreBolt:
		if h.tmpDir == "" {
			if h.tmpDir, err = os.MkdirTemp("", "lattice-harness-"); err != nil {
				return fmt.Errorf("replica %s: %w", name, err)
			}
		}
		bs, err := boltdb.New(ctx, filepath.Join(h.tmpDir, name+".db"))
		if err != nil {
			return fmt.Errorf("replica %s: %w", name, err)
		}
		st, cl = bs, bs
	default:
		ss, err := store.Open(":memory:")
		if err != nil {
			return fmt.Errorf("replica %s: failed to create in-memory store: %w", name, err)
		}
		st, cl = ss, ss
	}

	eng, err := engine.Open(ctx, st, name,
		engine.WithLogger(h.logger.With("replica", name)),
		engine.WithConfig(h.clock.Config()),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator(name)),
	)
	if err != nil {
		cl.Close()
		return fmt.Errorf("replica %s: %w", name, err)
	}
	h.replicas[name] = &replica{name: name, engine: eng, store: cl}

	if err := eng.UpdateSchema(ctx, h.def); err != nil {
		return fmt.Errorf("replica %s: install schema: %w", name, err)
	}
	return nil
}

func (h *Harness) close() {
	for _, r := range h.replicas {
		if err := r.store.Close(); err != nil {
			h.logger.Warn("failed to close replica store", "replica", r.name, "error", err)
		}
	}
	if h.tmpDir != "" {
		os.RemoveAll(h.tmpDir)
	}
}

func (h *Harness) engines() map[string]*engine.Engine {
	out := make(map[string]*engine.Engine, len(h.replicas))
	for name, r := range h.replicas {
		out[name] = r.engine
	}
	return out
}

// executeFlow runs all steps in order.
//
// Each step:
// 1. Runs the operation on its replica
// 2. Compares the outcome against expect_error
// 3. Appends a trace event with the replica clock after the step
func (h *Harness) executeFlow(ctx context.Context, result *Result) error {
	for i, step := range h.scenario.Flow {
		ev := TraceEvent{Step: i, Replica: step.Replica, Op: step.Op}

		var err error
		switch step.Op {
		case OpSyncAll:
			ev.Replica = AllReplicas
			ev.Applied, err = h.syncAll(ctx)
		case OpSync:
			ev.Target = step.From
			ev.Applied, err = h.sync(ctx, step.Replica, step.From)
		case OpSchema:
			ev.Target, err = h.installSchema(ctx, step)
		default:
			ev.Target, err = h.write(ctx, step)
		}

		code := ErrorCode(err)
		switch {
		case err != nil && step.ExpectError == "":
			return fmt.Errorf("flow[%d] %s on %s: %w", i, step.Op, ev.Replica, err)
		case err != nil && code != step.ExpectError:
			result.AddError(fmt.Sprintf("flow[%d]: expected error %s, got %v", i, step.ExpectError, err))
		case err == nil && step.ExpectError != "":
			result.AddError(fmt.Sprintf("flow[%d]: expected error %s, step succeeded", i, step.ExpectError))
		}
		if err != nil {
			ev.Error = code
		}
		if step.Op != OpSyncAll {
			ev.Clock = h.replicas[step.Replica].engine.Clock().Current().String()
		}
		result.AddTrace(ev)

		h.logger.Info("flow step completed",
			"step", i,
			"op", step.Op,
			"replica", ev.Replica,
			"target", ev.Target,
			"error", ev.Error,
		)
	}
	return nil
}

// write runs a local write and returns the storage id it targeted.
func (h *Harness) write(ctx context.Context, step Step) (string, error) {
	eng := h.replicas[step.Replica].engine
	id := step.ID

	var path ir.Attribute
	if len(step.Path) > 0 {
		p, err := ir.ParsePath(step.Path...)
		if err != nil {
			return ir.EntityKey(step.Collection, id), err
		}
		path = p
	}

	var err error
	switch step.Op {
	case OpInsert:
		doc := convertDoc(step.Doc)
		if id != "" {
			doc["id"] = id
		}
		id, err = eng.Insert(ctx, step.Collection, doc)
		if err != nil {
			// The id is unknown when generation fails.
			if raw, ok := doc["id"].(string); ok {
				id = raw
			}
		}
	case OpUpdate:
		err = eng.Update(ctx, step.Collection, id, path, convertValue(step.Value))
	case OpAdd:
		err = eng.SetAdd(ctx, step.Collection, id, path, convertValue(step.Value))
	case OpRemove:
		err = eng.SetRemove(ctx, step.Collection, id, path, convertValue(step.Value))
	case OpDelete:
		err = eng.Delete(ctx, step.Collection, id)
	default:
		err = fmt.Errorf("unknown op %q", step.Op)
	}
	return ir.EntityKey(step.Collection, id), err
}

// installSchema compiles a step's schema and installs it on its replica.
// The trace target is the installed version.
func (h *Harness) installSchema(ctx context.Context, step Step) (string, error) {
	def, err := compiler.LoadDefinition(step.Schema)
	if err != nil {
		return "", fmt.Errorf("failed to load schema: %w", err)
	}
	target := fmt.Sprintf("v%d", def.Version)
	return target, h.replicas[step.Replica].engine.UpdateSchema(ctx, def)
}

// sync pulls every triple of from into to and returns how many entity
// triples changed state on to.
func (h *Harness) sync(ctx context.Context, to, from string) (int, error) {
	triples, err := h.replicas[from].engine.TriplesAfter(ctx, ir.Timestamp{})
	if err != nil {
		return 0, err
	}
	return h.replicas[to].engine.ApplyRemote(ctx, triples)
}

// syncAll has every replica pull from every other, twice in replica
// order, so each replica ends with the union of all writes.
func (h *Harness) syncAll(ctx context.Context) (int, error) {
	total := 0
	for range 2 {
		for _, to := range h.scenario.Replicas {
			for _, from := range h.scenario.Replicas {
				if to == from {
					continue
				}
				n, err := h.sync(ctx, to, from)
				if err != nil {
					return total, fmt.Errorf("sync %s <- %s: %w", to, from, err)
				}
				total += n
			}
		}
	}
	return total, nil
}

// captureState reads the live documents of every collection on every
// replica.
func (h *Harness) captureState(ctx context.Context) (State, error) {
	state := make(State, len(h.replicas))
	for name, r := range h.replicas {
		collections := make(map[string][]map[string]any)
		for _, col := range r.engine.Schema().CollectionNames() {
			docs, err := r.engine.FetchAll(ctx, col)
			if err != nil {
				return nil, fmt.Errorf("replica %s: %w", name, err)
			}
			collections[col] = docs
		}
		state[name] = collections
	}
	return state, nil
}

// ErrorCode returns the code carried by an engine or schema error, or the
// empty string for nil and uncoded errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var rt *engine.RuntimeError
	if errors.As(err, &rt) {
		return string(rt.Code)
	}
	return string(schema.CodeOf(err))
}

// convertDoc copies a YAML-decoded document, converting nested values.
func convertDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = convertValue(v)
	}
	return out
}

// convertValue normalizes YAML-decoded values: integers become float64.
func convertValue(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = convertValue(elem)
		}
		return out
	case map[string]any:
		return convertDoc(val)
	default:
		return v
	}
}
