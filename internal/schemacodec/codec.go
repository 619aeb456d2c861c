// Package schemacodec stores a schema definition as the triples of a
// reserved pseudo-entity, so schema changes are written, merged and synced
// like any other data.
//
// Layout, all under entity SchemaEntityID:
//
//	["version"]                                            number
//	["collections", C, "name"]                             string
//	["collections", C, "rules"]                            canonical JSON string
//	["collections", C, "attributes", F, "type"]            type tag
//	["collections", C, "attributes", F, "order"]           number
//	["collections", C, "attributes", F, "options", "optional"|"nullable"]  true
//	["collections", C, "attributes", F, "options", "default", "value"|"func"]
//	["collections", C, "attributes", F, "options", "enum", i]  string
//	["collections", C, "attributes", F, "properties", G, ...]  nested fields
//
// A definition is written as one batch sharing a timestamp. Decoding keeps
// only the batch with the highest version, the later timestamp breaking a
// tie, so fields and options dropped by a newer definition disappear and
// concurrent version bumps converge on the highest one.
package schemacodec

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/lattice/internal/ir"
	"github.com/roach88/lattice/internal/schema"
)

// SchemaEntityID is the reserved entity id holding the definition.
const SchemaEntityID = "_schema"

const (
	segVersion     = "version"
	segCollections = "collections"
	segName        = "name"
	segRules       = "rules"
	segAttributes  = "attributes"
	segType        = "type"
	segOrder       = "order"
	segOptions     = "options"
	segOptional    = "optional"
	segNullable    = "nullable"
	segDefault     = "default"
	segValue       = "value"
	segFunc        = "func"
	segEnum        = "enum"
	segProperties  = "properties"
)

// IsSchemaTriple reports whether tr belongs to the schema pseudo-entity.
func IsSchemaTriple(tr ir.Triple) bool {
	return tr.EntityID == SchemaEntityID
}

// ToTriples encodes def as triples written at ts, in a deterministic order.
func ToTriples(def *schema.Definition, ts ir.Timestamp) ([]ir.Triple, error) {
	w := &writer{ts: ts}
	w.emit(ir.Number(float64(def.Version)), ir.Str(segVersion))

	for _, name := range def.CollectionNames() {
		c := def.Collections[name]
		base := ir.Attribute{ir.Str(segCollections), ir.Str(name)}
		w.emit(ir.String(name), base.Append(ir.Str(segName))...)
		if len(c.Rules) > 0 {
			var rules any
			if err := json.Unmarshal(c.Rules, &rules); err != nil {
				return nil, fmt.Errorf("collection %q rules: %w", name, err)
			}
			canonical, err := ir.MarshalCanonical(rules)
			if err != nil {
				return nil, fmt.Errorf("collection %q rules: %w", name, err)
			}
			w.emit(ir.String(canonical), base.Append(ir.Str(segRules))...)
		}
		if c.Schema != nil {
			w.fields(base.Append(ir.Str(segAttributes)), c.Schema)
		}
	}
	return w.out, nil
}

type writer struct {
	ts  ir.Timestamp
	out []ir.Triple
}

func (w *writer) emit(v ir.Value, path ...ir.Segment) {
	w.out = append(w.out, ir.NewTriple(SchemaEntityID, ir.Attribute(path).Append(), v, w.ts))
}

func (w *writer) fields(base ir.Attribute, rt *schema.RecordType) {
	for i, f := range rt.Fields {
		fp := base.Append(ir.Str(f.Name))
		w.emit(ir.String(f.Type.Tag()), fp.Append(ir.Str(segType))...)
		w.emit(ir.Number(float64(i)), fp.Append(ir.Str(segOrder))...)

		opts := f.Type.Options()
		op := fp.Append(ir.Str(segOptions))
		if opts.Optional {
			w.emit(ir.Bool(true), op.Append(ir.Str(segOptional))...)
		}
		if opts.Nullable {
			w.emit(ir.Bool(true), op.Append(ir.Str(segNullable))...)
		}
		if d := opts.Default; d != nil {
			if d.IsFunc() {
				w.emit(ir.String(d.Func), op.Append(ir.Str(segDefault), ir.Str(segFunc))...)
			} else {
				w.emit(d.Value, op.Append(ir.Str(segDefault), ir.Str(segValue))...)
			}
		}
		for j, v := range opts.Enum {
			w.emit(ir.String(v), op.Append(ir.Str(segEnum), ir.Num(float64(j)))...)
		}

		if nested, ok := f.Type.(*schema.RecordType); ok {
			w.fields(fp.Append(ir.Str(segProperties)), nested)
		}
	}
}
