package schema

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/lattice/internal/crdt"
	"github.com/roach88/lattice/internal/ir"
)

// Initialize builds the record of a new entity from plain input, applying
// declared defaults. Every register is written at ts.
//
// Sets without elements and records without fields are left out: a
// container exists only once something has been written into it, which
// keeps a created entity identical to one hydrated from its triples.
func Initialize(cfg Config, rt *RecordType, input map[string]any, ts ir.Timestamp) (*crdt.Record, error) {
	return initRecord(cfg, rt, nil, input, ts)
}

func initRecord(cfg Config, rt *RecordType, path ir.Attribute, input map[string]any, ts ir.Timestamp) (*crdt.Record, error) {
	for _, key := range slices.Sorted(maps.Keys(input)) {
		if _, ok := rt.Field(key); !ok {
			return nil, NewPathDoesNotExistError(path.Append(ir.Str(key)), key)
		}
	}

	rec := crdt.NewRecord()
	for _, f := range rt.Fields {
		fieldPath := path.Append(ir.Str(f.Name))
		raw, given := input[f.Name]
		if !given && f.Type.Options().Default != nil {
			v, err := resolveDefault(cfg, fieldPath, f.Type.Options().Default)
			if err != nil {
				return nil, err
			}
			raw, given = v, true
		}

		switch ft := f.Type.(type) {
		case *RegisterType:
			if !given {
				if ft.Opts.Optional {
					continue
				}
				return nil, NewError(CodeMissingValue, fieldPath, "required field %q has no value", f.Name)
			}
			v, err := CoerceValue(cfg, ft, fieldPath, raw)
			if err != nil {
				return nil, err
			}
			rec.Put(f.Name, crdt.NewRegister(v, ts))
		case *SetType:
			if !given || raw == nil {
				continue
			}
			elems, err := CoerceElements(ft, fieldPath, raw)
			if err != nil {
				return nil, err
			}
			if len(elems) == 0 {
				continue
			}
			set := crdt.NewSet()
			for _, e := range elems {
				set.Add(e, ts)
			}
			rec.Put(f.Name, set)
		case *RecordType:
			var nested map[string]any
			if given && raw != nil {
				m, ok := raw.(map[string]any)
				if !ok {
					return nil, NewError(CodeInvalidValue, fieldPath, "expected an object, got %T", raw)
				}
				nested = m
			}
			if nested == nil && ft.Opts.Optional {
				continue
			}
			child, err := initRecord(cfg, ft, fieldPath, nested, ts)
			if err != nil {
				return nil, err
			}
			if child.Len() > 0 {
				rec.Put(f.Name, child)
			}
		default:
			return nil, fmt.Errorf("field %q: unknown data type %T", f.Name, f.Type)
		}
	}
	return rec, nil
}

func resolveDefault(cfg Config, path ir.Attribute, d *Default) (any, error) {
	if !d.IsFunc() {
		return d.Value, nil
	}
	p, ok := cfg.Defaults.Lookup(d.Func)
	if !ok {
		return nil, NewError(CodeUnknownDefault, path, "no default provider named %q", d.Func)
	}
	v, err := p.DefaultValue()
	if err != nil {
		return nil, fmt.Errorf("default %q at %s: %w", d.Func, path, err)
	}
	return v, nil
}

// Plain projects an entity record onto plain values, filling declared sets
// that have no elements with empty lists.
func Plain(rt *RecordType, rec *crdt.Record) map[string]any {
	out := make(map[string]any, len(rt.Fields))
	for _, f := range rt.Fields {
		node, ok := rec.Get(f.Name)
		switch ft := f.Type.(type) {
		case *SetType:
			if !ok {
				if !ft.Opts.Optional {
					out[f.Name] = []any{}
				}
				continue
			}
			out[f.Name] = crdt.Plain(node)
		case *RecordType:
			child, isRecord := node.(*crdt.Record)
			if !isRecord {
				if ft.Opts.Optional {
					continue
				}
				child = crdt.NewRecord()
			}
			out[f.Name] = Plain(ft, child)
		default:
			if ok {
				out[f.Name] = crdt.Plain(node)
			}
		}
	}
	return out
}
