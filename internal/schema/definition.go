package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/lattice/internal/crdt"
	"github.com/roach88/lattice/internal/ir"
)

// Collection pairs a schema with its access rules. Rules are carried
// opaquely.
type Collection struct {
	Name   string
	Schema *RecordType
	Rules  json.RawMessage
}

// Definition is the versioned set of collections of one database.
type Definition struct {
	Version     int64
	Collections map[string]*Collection
}

// NewDefinition creates a definition holding collections.
func NewDefinition(version int64, collections ...*Collection) *Definition {
	def := &Definition{Version: version, Collections: make(map[string]*Collection, len(collections))}
	for _, c := range collections {
		def.Collections[c.Name] = c
	}
	return def
}

// Collection returns the named collection.
func (d *Definition) Collection(name string) (*Collection, bool) {
	if d == nil {
		return nil, false
	}
	c, ok := d.Collections[name]
	return c, ok
}

// CollectionNames returns collection names in sorted order.
func (d *Definition) CollectionNames() []string {
	return slices.Sorted(maps.Keys(d.Collections))
}

// MaxVersion is the largest schema version. Versions travel as JSON
// numbers, which hold integers exactly only up to 2^53.
const MaxVersion = 1 << 53

// Validate checks the structural rules every definition must satisfy.
func (d *Definition) Validate() error {
	if d.Version < 0 || d.Version > MaxVersion {
		return NewError(CodeInvalidDefinition, nil, "version %d is outside [0, %d]", d.Version, int64(MaxVersion))
	}
	for _, name := range d.CollectionNames() {
		c := d.Collections[name]
		path := ir.Attribute{ir.Str(name)}
		if name == "" || strings.Contains(name, ir.EntityKeySeparator) {
			return NewError(CodeInvalidDefinition, path, "invalid collection name %q", name)
		}
		if c.Name != name {
			return NewError(CodeInvalidDefinition, path, "collection registered as %q is named %q", name, c.Name)
		}
		if c.Schema == nil {
			return NewError(CodeInvalidDefinition, path, "collection has no schema")
		}
		if !c.Schema.Opts.IsZero() {
			return NewError(CodeInvalidDefinition, path, "collection schema takes no options")
		}
		if len(c.Rules) > 0 && !json.Valid(c.Rules) {
			return NewError(CodeInvalidDefinition, path, "rules are not valid JSON")
		}
		if err := ValidateRecord(c.Schema, path); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRecord checks field names, option placement and defaults of rt.
func ValidateRecord(rt *RecordType, path ir.Attribute) error {
	seen := make(map[string]bool, len(rt.Fields))
	for _, f := range rt.Fields {
		fieldPath := path.Append(ir.Str(f.Name))
		switch {
		case f.Name == "":
			return NewError(CodeInvalidDefinition, fieldPath, "empty field name")
		case f.Name == crdt.DeletedField || (len(path) == 1 && f.Name == "id"):
			return NewError(CodeInvalidDefinition, fieldPath, "field name %q is reserved", f.Name)
		case seen[f.Name]:
			return NewError(CodeInvalidDefinition, fieldPath, "duplicate field %q", f.Name)
		case f.Type == nil:
			return NewError(CodeInvalidDefinition, fieldPath, "field %q has no type", f.Name)
		}
		seen[f.Name] = true

		opts := f.Type.Options()
		if d := opts.Default; d != nil {
			if d.Func == "" && d.Value == nil {
				return NewError(CodeInvalidDefinition, fieldPath, "default is not a scalar")
			}
			if _, ok := f.Type.(*RegisterType); !ok {
				return NewError(CodeInvalidDefinition, fieldPath, "defaults apply to registers only")
			}
		}

		switch ft := f.Type.(type) {
		case *RegisterType:
			if _, err := ParseTypeTag(string(ft.Scalar)); err != nil || ft.Scalar == TagSetString || ft.Scalar == TagSetNumber || ft.Scalar == TagRecord {
				return NewInvalidTypeError(fieldPath, string(ft.Scalar))
			}
			if len(opts.Enum) > 0 && ft.Scalar != TagString {
				return NewError(CodeInvalidDefinition, fieldPath, "enum applies to string fields only")
			}
			if d := opts.Default; d != nil && !d.IsFunc() {
				if err := validateStaticDefault(ft, fieldPath, d.Value); err != nil {
					return fmt.Errorf("default: %w", err)
				}
			}
		case *SetType:
			if ft.Elem != TagString && ft.Elem != TagNumber {
				return &Error{Code: CodeInvalidSetType, Message: "set elements must be string or number", Path: fieldPath, Type: string(ft.Elem)}
			}
			if len(opts.Enum) > 0 || opts.Nullable {
				return NewError(CodeInvalidDefinition, fieldPath, "sets accept only the optional option")
			}
		case *RecordType:
			if len(opts.Enum) > 0 || opts.Nullable {
				return NewError(CodeInvalidDefinition, fieldPath, "records accept only the optional option")
			}
			if err := ValidateRecord(ft, fieldPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateStaticDefault checks a static default against the field type.
// Date defaults are checked for kind only since the layout comes from the
// Config in effect at creation.
func validateStaticDefault(rt *RegisterType, path ir.Attribute, v ir.Value) error {
	if rt.Scalar != TagDate {
		_, err := CoerceValue(Config{}, rt, path, v)
		return err
	}
	switch v.(type) {
	case ir.String:
		return nil
	case ir.Null:
		if rt.Opts.Nullable {
			return nil
		}
	}
	return invalidValue(path, rt.Scalar, v)
}

// CheckUpgrade reports ErrSchemaVersionRegressed when next is older than
// current. A nil current accepts any definition.
func CheckUpgrade(current, next *Definition) error {
	if current == nil {
		return nil
	}
	if next.Version < current.Version {
		return NewError(CodeSchemaVersionRegressed, nil,
			"version %d is older than stored version %d", next.Version, current.Version)
	}
	return nil
}

// Hash returns the content hash of the definition's wire form. Object keys
// are canonicalized, so field order does not affect the hash.
func (d *Definition) Hash() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	return ir.ContentHash(ir.DomainSchema, doc)
}

// Equal reports whether two definitions declare the same version,
// collections, schemas and rules.
func (d *Definition) Equal(other *Definition) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.Version != other.Version || len(d.Collections) != len(other.Collections) {
		return false
	}
	for name, c := range d.Collections {
		o, ok := other.Collections[name]
		if !ok || c.Name != o.Name || !EqualTypes(c.Schema, o.Schema) {
			return false
		}
		if !equalRules(c.Rules, o.Rules) {
			return false
		}
	}
	return true
}

// EqualTypes compares two data types structurally, field order included.
func EqualTypes(a, b DataType) bool {
	switch x := a.(type) {
	case *RegisterType:
		y, ok := b.(*RegisterType)
		return ok && x.Scalar == y.Scalar && x.Opts.Equal(y.Opts)
	case *SetType:
		y, ok := b.(*SetType)
		return ok && x.Elem == y.Elem && x.Opts.Equal(y.Opts)
	case *RecordType:
		y, ok := b.(*RecordType)
		if !ok || len(x.Fields) != len(y.Fields) || !x.Opts.Equal(y.Opts) {
			return false
		}
		for i := range x.Fields {
			if x.Fields[i].Name != y.Fields[i].Name || !EqualTypes(x.Fields[i].Type, y.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

func equalRules(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == 0 && len(b) == 0
	}
	var x, y any
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return false
	}
	ca, errA := ir.MarshalCanonical(x)
	cb, errB := ir.MarshalCanonical(y)
	return errA == nil && errB == nil && string(ca) == string(cb)
}
