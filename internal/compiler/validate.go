package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/lattice/internal/crdt"
	"github.com/roach88/lattice/internal/ir"
	"github.com/roach88/lattice/internal/schema"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported type for validation

	// Definition errors (E101-E103)
	ErrNegativeVersion       = "E101" // version must be in [0, schema.MaxVersion]
	ErrInvalidCollectionName = "E102" // empty or contains the entity key separator
	ErrMissingSchema         = "E103" // collection has no attributes

	// Attribute errors (E104-E111)
	ErrInvalidFieldType   = "E104" // unknown type or set element type
	ErrDuplicateName      = "E105" // duplicate attribute name
	ErrReservedName       = "E106" // attribute name is reserved
	ErrOptionNotAllowed   = "E107" // option does not apply to the attribute kind
	ErrInvalidDefault     = "E108" // static default does not fit the type
	ErrInvalidRules       = "E109" // rules are not valid JSON
	ErrUnknownDefaultFunc = "E110" // default_func names no provider
	ErrEmptyName          = "E111" // attribute name is empty
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled definition or collection against the
// schema rules, using the default providers of schema.DefaultConfig.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	return ValidateWith(schema.DefaultConfig(), v)
}

// ValidateWith is Validate with the default providers of cfg.
func ValidateWith(cfg schema.Config, v any) []ValidationError {
	switch def := v.(type) {
	case *schema.Definition:
		return validateDefinition(cfg, def)
	case schema.Definition:
		return validateDefinition(cfg, &def)
	case *schema.Collection:
		return validateCollection(cfg, def)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateDefinition(cfg schema.Config, def *schema.Definition) []ValidationError {
	var errs []ValidationError

	// E101: version must fit a JSON number exactly
	if def.Version < 0 || def.Version > schema.MaxVersion {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("version %d is outside [0, %d]", def.Version, int64(schema.MaxVersion)),
			Code:    ErrNegativeVersion,
		})
	}

	for _, name := range def.CollectionNames() {
		col := def.Collections[name]
		if col.Name != name {
			errs = append(errs, ValidationError{
				Field:   "collection." + name,
				Message: fmt.Sprintf("collection registered as %q is named %q", name, col.Name),
				Code:    ErrInvalidCollectionName,
			})
		}
		errs = append(errs, validateCollection(cfg, col)...)
	}
	return errs
}

func validateCollection(cfg schema.Config, col *schema.Collection) []ValidationError {
	var errs []ValidationError
	field := "collection." + col.Name

	// E102: name must be usable in an entity key
	if col.Name == "" || strings.Contains(col.Name, ir.EntityKeySeparator) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid collection name %q", col.Name),
			Code:    ErrInvalidCollectionName,
		})
	}

	// E109: rules are opaque but must be JSON
	if len(col.Rules) > 0 && !json.Valid(col.Rules) {
		errs = append(errs, ValidationError{
			Field:   field + ".rules",
			Message: "rules are not valid JSON",
			Code:    ErrInvalidRules,
		})
	}

	// E103: schema required
	if col.Schema == nil {
		errs = append(errs, ValidationError{
			Field:   field + ".attributes",
			Message: "collection has no attributes",
			Code:    ErrMissingSchema,
		})
		return errs
	}

	return append(errs, validateRecord(cfg, col.Schema, field+".attributes", true)...)
}

func validateRecord(cfg schema.Config, rt *schema.RecordType, field string, top bool) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(rt.Fields))

	for i, f := range rt.Fields {
		fieldPath := field + "." + f.Name

		// E111: empty name
		if f.Name == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "attribute name is empty",
				Code:    ErrEmptyName,
			})
			continue
		}

		// E106: reserved names
		if f.Name == crdt.DeletedField || (top && f.Name == "id") {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("attribute name %q is reserved", f.Name),
				Code:    ErrReservedName,
			})
		}

		// E105: duplicate names
		if seen[f.Name] {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("duplicate attribute name: %q", f.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[f.Name] = true

		errs = append(errs, validateType(cfg, f.Type, fieldPath)...)
	}
	return errs
}

func validateType(cfg schema.Config, dt schema.DataType, field string) []ValidationError {
	if dt == nil {
		return []ValidationError{{Field: field, Message: "attribute has no type", Code: ErrInvalidFieldType}}
	}

	var errs []ValidationError
	opts := dt.Options()
	notAllowed := func(option string) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s does not apply to %s attributes", option, dt.Tag()),
			Code:    ErrOptionNotAllowed,
		})
	}

	switch t := dt.(type) {
	case *schema.RegisterType:
		switch t.Scalar {
		case schema.TagString, schema.TagNumber, schema.TagBoolean, schema.TagDate:
		default:
			// E104: registers hold scalars only
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid register type %q", t.Scalar),
				Code:    ErrInvalidFieldType,
			})
			return errs
		}
		if len(opts.Enum) > 0 && t.Scalar != schema.TagString {
			notAllowed("enum")
		}
		errs = append(errs, validateDefault(cfg, t, field)...)
	case *schema.SetType:
		if t.Elem != schema.TagString && t.Elem != schema.TagNumber {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("set elements must be string or number, got %q", t.Elem),
				Code:    ErrInvalidFieldType,
			})
		}
		if opts.Nullable {
			notAllowed("nullable")
		}
		if len(opts.Enum) > 0 {
			notAllowed("enum")
		}
		if opts.Default != nil {
			notAllowed("default")
		}
	case *schema.RecordType:
		if opts.Nullable {
			notAllowed("nullable")
		}
		if len(opts.Enum) > 0 {
			notAllowed("enum")
		}
		if opts.Default != nil {
			notAllowed("default")
		}
		errs = append(errs, validateRecord(cfg, t, field+".properties", false)...)
	default:
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("unsupported data type %T", dt),
			Code:    ErrInvalidFieldType,
		})
	}
	return errs
}

func validateDefault(cfg schema.Config, rt *schema.RegisterType, field string) []ValidationError {
	d := rt.Opts.Default
	if d == nil {
		return nil
	}

	// E110: generator must be registered
	if d.IsFunc() {
		if _, ok := cfg.Defaults.Lookup(d.Func); !ok {
			return []ValidationError{{
				Field:   field + ".default_func",
				Message: fmt.Sprintf("no default provider named %q", d.Func),
				Code:    ErrUnknownDefaultFunc,
			}}
		}
		return nil
	}

	// E108: static default must fit the type
	var err error
	switch {
	case d.Value == nil:
		err = fmt.Errorf("default is not a scalar")
	case rt.Scalar == schema.TagDate:
		switch d.Value.(type) {
		case ir.String:
		case ir.Null:
			if !rt.Opts.Nullable {
				err = fmt.Errorf("null is not allowed")
			}
		default:
			err = fmt.Errorf("date default must be a string")
		}
	default:
		_, err = schema.CoerceValue(cfg, rt, nil, d.Value)
	}
	if err != nil {
		return []ValidationError{{
			Field:   field + ".default",
			Message: err.Error(),
			Code:    ErrInvalidDefault,
		}}
	}
	return nil
}
