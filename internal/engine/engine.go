package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/lattice/internal/crdt"
	"github.com/roach88/lattice/internal/ir"
	"github.com/roach88/lattice/internal/resolve"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/schemacodec"
	"github.com/roach88/lattice/internal/triple"
)

// Store is the triple store an engine persists to. Both the SQLite store
// and the bbolt storage implement it.
type Store interface {
	triple.Store

	// ReadTriplesAfter returns triples with a timestamp strictly greater
	// than after, ordered by timestamp.
	ReadTriplesAfter(ctx context.Context, after ir.Timestamp) ([]ir.Triple, error)

	// EntityIDs returns stored entity ids with the given prefix in sorted
	// order.
	EntityIDs(ctx context.Context, prefix string) ([]string, error)

	// MaxTimestamp returns the greatest stored timestamp.
	MaxTimestamp(ctx context.Context) (ir.Timestamp, error)
}

// Engine is one replica: a schema, a Lamport clock and a cache of
// hydrated entities over a triple store.
//
// Thread-safety: all exported methods are safe for concurrent use;
// mutations are serialized by an internal mutex.
type Engine struct {
	mu     sync.Mutex
	store  Store
	clock  *Clock
	def    *schema.Definition
	cfg    schema.Config
	ids    IDGenerator
	logger *slog.Logger

	// Entities keyed by storage id. Entries are replaced, never mutated in
	// place, so a failed write leaves them untouched.
	cache map[string]*crdt.Entity
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the clock. Its origin must match the engine origin.
func WithClock(clock *Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithConfig sets the schema config (date format and default providers).
// Default: schema.DefaultConfig().
func WithConfig(cfg schema.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithIDGenerator sets the generator used for inserts without an id.
// Default: UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(e *Engine) {
		e.ids = ids
	}
}

// Open creates the replica origin over st. The installed schema is read
// back from the store and the clock resumes after the latest stored
// timestamp.
func Open(ctx context.Context, st Store, origin string, opts ...Option) (*Engine, error) {
	if origin == "" {
		return nil, errors.New("engine: origin must not be empty")
	}

	e := &Engine{
		store:  st,
		cfg:    schema.DefaultConfig(),
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
		cache:  make(map[string]*crdt.Entity),
	}
	for _, opt := range opts {
		opt(e)
	}

	latest, err := st.MaxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	if e.clock == nil {
		e.clock = NewClock(origin)
	}
	if e.clock.Origin() != origin {
		return nil, fmt.Errorf("engine: clock origin %q does not match %q", e.clock.Origin(), origin)
	}
	e.clock.Observe(latest)

	stored, err := st.ReadTriples(ctx, schemacodec.SchemaEntityID)
	if err != nil {
		return nil, fmt.Errorf("open engine: read schema: %w", err)
	}
	def, err := schemacodec.FromTriples(stored)
	if err != nil {
		return nil, fmt.Errorf("open engine: decode schema: %w", err)
	}
	e.def = def

	e.logger.Info("engine opened",
		"origin", origin,
		"seq", e.clock.Current().Seq,
		"schema_version", e.schemaVersion())
	return e, nil
}

// Origin returns the replica id.
func (e *Engine) Origin() string {
	return e.clock.Origin()
}

// Clock returns the replica clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Schema returns the installed definition, or nil before one is installed.
func (e *Engine) Schema() *schema.Definition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.def
}

func (e *Engine) schemaVersion() int64 {
	if e.def == nil {
		return -1
	}
	return e.def.Version
}

// UpdateSchema installs def. A definition older than the installed one
// fails with schema.ErrSchemaVersionRegressed; installing an equal
// definition is a no-op.
func (e *Engine) UpdateSchema(ctx context.Context, def *schema.Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := def.Validate(); err != nil {
		return fmt.Errorf("update schema: %w", err)
	}
	if err := schema.CheckUpgrade(e.def, def); err != nil {
		return fmt.Errorf("update schema: %w", err)
	}
	if e.def.Equal(def) {
		return nil
	}

	triples, err := schemacodec.ToTriples(def, e.clock.Next())
	if err != nil {
		return fmt.Errorf("update schema: %w", err)
	}
	if err := e.store.WriteTriples(ctx, triples); err != nil {
		return fmt.Errorf("update schema: %w", err)
	}
	e.installSchema(def)
	return nil
}

func (e *Engine) installSchema(def *schema.Definition) {
	e.logger.Info("schema installed",
		"origin", e.clock.Origin(),
		"from_version", e.schemaVersion(),
		"to_version", def.Version)
	e.def = def
	// Cached entities were hydrated against the old schema.
	clear(e.cache)
}

func (e *Engine) collection(name string) (*schema.Collection, error) {
	if e.def == nil {
		return nil, &RuntimeError{Code: ErrCodeNoSchema, Message: "no schema installed", Collection: name}
	}
	col, ok := e.def.Collection(name)
	if !ok {
		return nil, NewUnknownCollectionError(name)
	}
	return col, nil
}

// Insert creates an entity from a plain document and returns its id. The
// id is taken from doc["id"] when present, else generated. Inserting over
// an existing or deleted entity merges the new values into it and revives
// it.
func (e *Engine) Insert(ctx context.Context, collection string, doc map[string]any) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	col, err := e.collection(collection)
	if err != nil {
		return "", err
	}

	input := maps.Clone(doc)
	id, err := e.takeID(collection, input)
	if err != nil {
		return "", err
	}
	key := ir.EntityKey(collection, id)

	ts := e.clock.Next()
	data, err := schema.Initialize(e.cfg, col.Schema, input, ts)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", key, err)
	}
	fresh := &crdt.Entity{ID: key, Data: data, Deleted: crdt.NewRegister(ir.Bool(false), ts)}

	current, err := e.load(ctx, col, key)
	if err != nil {
		return "", err
	}
	if _, err := e.commit(ctx, col, current, triple.Flatten(fresh)); err != nil {
		return "", fmt.Errorf("insert %s: %w", key, err)
	}

	e.logger.Debug("entity inserted", "collection", collection, "id", id, "ts", ts.String())
	return id, nil
}

func (e *Engine) takeID(collection string, input map[string]any) (string, error) {
	raw, ok := input["id"]
	if !ok {
		return e.ids.Generate(), nil
	}
	delete(input, "id")
	id, isString := raw.(string)
	if !isString || id == "" {
		return "", &RuntimeError{
			Code:       ErrCodeInvalidID,
			Message:    fmt.Sprintf("id must be a non-empty string, got %T", raw),
			Collection: collection,
		}
	}
	return id, nil
}

// Update writes value at the register (or set element) addressed by path.
func (e *Engine) Update(ctx context.Context, collection, id string, path ir.Attribute, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	col, ent, err := e.live(ctx, collection, id)
	if err != nil {
		return err
	}
	target, err := resolve.Locate(e.cfg, col.Schema, ent.Data, path)
	if err != nil {
		return fmt.Errorf("update %s: %w", ent.ID, err)
	}
	return e.write(ctx, col, ent, target, value)
}

// SetAdd adds elem to the set at path.
func (e *Engine) SetAdd(ctx context.Context, collection, id string, path ir.Attribute, elem any) error {
	return e.setMembership(ctx, collection, id, path, elem, true)
}

// SetRemove removes elem from the set at path. Removing an element never
// added records a tombstone.
func (e *Engine) SetRemove(ctx context.Context, collection, id string, path ir.Attribute, elem any) error {
	return e.setMembership(ctx, collection, id, path, elem, false)
}

func (e *Engine) setMembership(ctx context.Context, collection, id string, path ir.Attribute, elem any, present bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	col, ent, err := e.live(ctx, collection, id)
	if err != nil {
		return err
	}
	seg, err := ir.ParsePath(elem)
	if err != nil {
		return fmt.Errorf("set element of %s: %w", ent.ID, err)
	}
	target, err := resolve.Locate(e.cfg, col.Schema, ent.Data, path.Append(seg...))
	if err != nil {
		return fmt.Errorf("set element of %s: %w", ent.ID, err)
	}
	if !target.IsElement() {
		return fmt.Errorf("set element of %s: %w", ent.ID, schema.NewInvalidPathError(path, "not a set"))
	}
	return e.write(ctx, col, ent, target, present)
}

func (e *Engine) write(ctx context.Context, col *schema.Collection, ent *crdt.Entity, target *resolve.Target, value any) error {
	v, err := target.Coerce(value)
	if err != nil {
		return fmt.Errorf("write %s: %w", ent.ID, err)
	}
	ts := e.clock.Next()
	tr := ir.NewTriple(ent.ID, target.Path(), v, ts)
	if _, err := e.commit(ctx, col, ent, []ir.Triple{tr}); err != nil {
		return fmt.Errorf("write %s: %w", ent.ID, err)
	}
	e.logger.Debug("entity updated", "entity", ent.ID, "attribute", tr.Attribute.String(), "ts", ts.String())
	return nil
}

// Delete soft-deletes an entity. Its triples are kept so the delete
// merges with concurrent writes.
func (e *Engine) Delete(ctx context.Context, collection, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	col, ent, err := e.live(ctx, collection, id)
	if err != nil {
		return err
	}
	ts := e.clock.Next()
	tr := ir.NewTriple(ent.ID, triple.DeletedAttribute, ir.Bool(true), ts)
	if _, err := e.commit(ctx, col, ent, []ir.Triple{tr}); err != nil {
		return fmt.Errorf("delete %s: %w", ent.ID, err)
	}
	e.logger.Debug("entity deleted", "entity", ent.ID, "ts", ts.String())
	return nil
}

// Fetch returns the plain form of a live entity, with its id under "id".
func (e *Engine) Fetch(ctx context.Context, collection, id string) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	col, ent, err := e.live(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	return plain(col, id, ent), nil
}

// FetchAll returns the plain form of every live entity of a collection in
// id order.
func (e *Engine) FetchAll(ctx context.Context, collection string) ([]map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	col, err := e.collection(collection)
	if err != nil {
		return nil, err
	}
	keys, err := e.store.EntityIDs(ctx, collection+ir.EntityKeySeparator)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", collection, err)
	}

	out := []map[string]any{}
	for _, key := range keys {
		ent, err := e.load(ctx, col, key)
		if err != nil {
			return nil, err
		}
		if !exists(ent) || ent.IsDeleted() {
			continue
		}
		_, id, _ := ir.SplitEntityKey(key)
		out = append(out, plain(col, id, ent))
	}
	return out, nil
}

// Entity returns a copy of the stored entity, deleted or not. Used to
// compare replica state.
func (e *Engine) Entity(ctx context.Context, collection, id string) (*crdt.Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	col, err := e.collection(collection)
	if err != nil {
		return nil, err
	}
	ent, err := e.load(ctx, col, ir.EntityKey(collection, id))
	if err != nil {
		return nil, err
	}
	if !exists(ent) {
		return nil, NewNotFoundError(collection, id)
	}
	return ent.Clone(), nil
}

// EntityIDs returns the plain ids of every stored entity of a collection,
// deleted ones included, in sorted order.
func (e *Engine) EntityIDs(ctx context.Context, collection string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.collection(collection); err != nil {
		return nil, err
	}
	keys, err := e.store.EntityIDs(ctx, collection+ir.EntityKeySeparator)
	if err != nil {
		return nil, fmt.Errorf("entity ids of %s: %w", collection, err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		_, id, _ := ir.SplitEntityKey(key)
		ids = append(ids, id)
	}
	return ids, nil
}

func plain(col *schema.Collection, id string, ent *crdt.Entity) map[string]any {
	out := schema.Plain(col.Schema, ent.Data)
	out["id"] = id
	return out
}

func exists(ent *crdt.Entity) bool {
	return ent.Deleted != nil || ent.Data.Len() > 0
}

func (e *Engine) live(ctx context.Context, collection, id string) (*schema.Collection, *crdt.Entity, error) {
	col, err := e.collection(collection)
	if err != nil {
		return nil, nil, err
	}
	ent, err := e.load(ctx, col, ir.EntityKey(collection, id))
	if err != nil {
		return nil, nil, err
	}
	if !exists(ent) || ent.IsDeleted() {
		return nil, nil, NewNotFoundError(collection, id)
	}
	return col, ent, nil
}

// load returns the cached entity or hydrates it from the store.
func (e *Engine) load(ctx context.Context, col *schema.Collection, key string) (*crdt.Entity, error) {
	if ent, ok := e.cache[key]; ok {
		return ent, nil
	}
	ent, err := e.hydrate(ctx, col, key)
	if err != nil {
		return nil, err
	}
	e.cache[key] = ent
	return ent, nil
}

// hydrate rebuilds an entity from its stored triples. Triples that do not
// fit col are dormant and skipped.
func (e *Engine) hydrate(ctx context.Context, col *schema.Collection, key string) (*crdt.Entity, error) {
	triples, err := e.store.ReadTriples(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	ent := crdt.NewEntity(key)
	for _, tr := range triples {
		if _, err := triple.Apply(e.cfg, col.Schema, ent, tr); err != nil {
			if dormant(err) {
				e.logger.Debug("skipping dormant triple", "entity", key, "attribute", tr.Attribute.String(), "reason", err)
				continue
			}
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
	}
	return ent, nil
}

// dormant reports whether a triple failed only because the installed
// schema no longer accepts it: its field was dropped, or its value no
// longer fits a narrowed type. Such triples stay stored and synced.
func dormant(err error) bool {
	return schema.IsPathError(err) || errors.Is(err, schema.ErrInvalidValue)
}

// commit applies triples to a copy of current, persists them and
// publishes the copy. It returns how many triples changed state.
func (e *Engine) commit(ctx context.Context, col *schema.Collection, current *crdt.Entity, triples []ir.Triple) (int, error) {
	next := current.Clone()
	changed := 0
	for _, tr := range triples {
		ok, err := triple.Apply(e.cfg, col.Schema, next, tr)
		if err != nil {
			return 0, err
		}
		if ok {
			changed++
		}
	}
	if err := e.store.WriteTriples(ctx, triples); err != nil {
		return 0, err
	}
	e.cache[next.ID] = next
	return changed, nil
}

// ApplyRemote merges triples received from another replica and returns the
// number of entity triples that changed local state.
//
// Schema triples are merged first and the merged definition is used for
// the entity triples. Entity triples the merged schema does not accept
// (a dropped collection or field, a value outside a narrowed type) are
// stored but stay dormant, as on hydration. Any other error rejects the
// whole batch, schema triples included.
func (e *Engine) ApplyRemote(ctx context.Context, triples []ir.Triple) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var schemaTriples []ir.Triple
	groups := make(map[string][]ir.Triple)
	for _, tr := range triples {
		if schemacodec.IsSchemaTriple(tr) {
			schemaTriples = append(schemaTriples, tr)
			continue
		}
		groups[tr.EntityID] = append(groups[tr.EntityID], tr)
	}

	def := e.def
	if len(schemaTriples) > 0 {
		merged, err := e.mergeSchema(ctx, schemaTriples)
		if err != nil {
			return 0, fmt.Errorf("apply remote: %w", err)
		}
		def = merged
	}
	schemaChanged := !def.Equal(e.def)
	if def == nil && len(groups) > 0 {
		return 0, fmt.Errorf("apply remote: %w", &RuntimeError{Code: ErrCodeNoSchema, Message: "no schema installed"})
	}

	staged := make(map[string]*crdt.Entity, len(groups))
	data := slices.Clone(schemaTriples)
	changed, dormantCount := 0, 0
	for _, key := range slices.Sorted(maps.Keys(groups)) {
		name, _, ok := ir.SplitEntityKey(key)
		if !ok {
			return 0, &RuntimeError{Code: ErrCodeInvalidID, Message: fmt.Sprintf("entity key %q has no collection", key)}
		}
		data = append(data, groups[key]...)

		col, ok := def.Collection(name)
		if !ok {
			dormantCount += len(groups[key])
			e.logger.Debug("storing triples of undeclared collection", "entity", key, "count", len(groups[key]))
			continue
		}

		// Cached entities were hydrated against the installed schema.
		var current *crdt.Entity
		var err error
		if schemaChanged {
			current, err = e.hydrate(ctx, col, key)
		} else {
			current, err = e.load(ctx, col, key)
		}
		if err != nil {
			return 0, fmt.Errorf("apply remote: %w", err)
		}
		next := current.Clone()
		for _, tr := range groups[key] {
			ok, err := triple.Apply(e.cfg, col.Schema, next, tr)
			if err != nil {
				if dormant(err) {
					dormantCount++
					e.logger.Debug("storing dormant triple", "entity", key, "attribute", tr.Attribute.String(), "reason", err)
					continue
				}
				return 0, fmt.Errorf("apply remote %s: %w", tr, err)
			}
			if ok {
				changed++
			}
		}
		staged[key] = next
	}

	if err := e.store.WriteTriples(ctx, data); err != nil {
		return 0, fmt.Errorf("apply remote: %w", err)
	}
	for _, tr := range triples {
		e.clock.Observe(tr.Timestamp)
	}
	if schemaChanged {
		e.installSchema(def)
	}
	maps.Copy(e.cache, staged)

	e.logger.Debug("remote triples applied",
		"origin", e.clock.Origin(),
		"received", len(triples),
		"changed", changed,
		"dormant", dormantCount)
	return changed, nil
}

// mergeSchema decodes the stored schema triples together with incoming
// and returns the merged definition without writing anything. A merge
// that would lower the installed version is refused.
func (e *Engine) mergeSchema(ctx context.Context, incoming []ir.Triple) (*schema.Definition, error) {
	stored, err := e.store.ReadTriples(ctx, schemacodec.SchemaEntityID)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	def, err := schemacodec.FromTriples(append(stored, incoming...))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := schema.CheckUpgrade(e.def, def); err != nil {
		e.logger.Warn("remote schema refused",
			"origin", e.clock.Origin(),
			"installed_version", e.schemaVersion(),
			"remote_version", def.Version)
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("remote schema: %w", err)
	}
	return def, nil
}

// TriplesAfter returns every stored triple, schema included, with a
// timestamp strictly greater than after. Pass the zero timestamp for a
// full sync.
func (e *Engine) TriplesAfter(ctx context.Context, after ir.Timestamp) ([]ir.Triple, error) {
	triples, err := e.store.ReadTriplesAfter(ctx, after)
	if err != nil {
		return nil, fmt.Errorf("triples after %s: %w", after, err)
	}
	return triples, nil
}
