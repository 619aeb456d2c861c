package compiler

import (
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/lattice/internal/schema"
)

// Keys accepted in an attribute declaration.
const (
	keyType        = "type"
	keyOptional    = "optional"
	keyNullable    = "nullable"
	keyDefault     = "default"
	keyDefaultFunc = "default_func"
	keyEnum        = "enum"
	keyProperties  = "properties"
)

// CompileDefinition parses a CUE value into a schema definition.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value holds a version and the collections:
//
//	version: 2
//	collection: users: {
//		attributes: {
//			name: {type: "string"}
//			tags: {type: "set_string"}
//		}
//		rules: read: {filter: [["id", "=", "$SESSION_USER_ID"]]}
//	}
//
// Attributes keep their declaration order.
func CompileDefinition(v cue.Value) (*schema.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	version, err := CompileVersion(v)
	if err != nil {
		return nil, err
	}
	def := schema.NewDefinition(version)

	colsVal := v.LookupPath(cue.ParsePath("collection"))
	if !colsVal.Exists() {
		return def, nil
	}
	iter, err := colsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		col, err := CompileCollection(iter.Value())
		if err != nil {
			return nil, err
		}
		def.Collections[col.Name] = col
	}
	return def, nil
}

// CompileVersion reads the required integer version field.
func CompileVersion(v cue.Value) (int64, error) {
	versionVal := v.LookupPath(cue.ParsePath("version"))
	if !versionVal.Exists() {
		return 0, &CompileError{
			Field:   "version",
			Message: "version is required",
			Pos:     v.Pos(),
		}
	}
	version, err := versionVal.Int64()
	if err != nil {
		return 0, &CompileError{
			Field:   "version",
			Message: "version must be an integer",
			Pos:     versionVal.Pos(),
		}
	}
	return version, nil
}

// CompileCollection parses one collection. The name is the struct label.
func CompileCollection(v cue.Value) (*schema.Collection, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	col := &schema.Collection{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		col.Name = labels[len(labels)-1].String()
	}

	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrsVal.Exists() {
		return nil, &CompileError{
			Field:   "collection." + col.Name + ".attributes",
			Message: "attributes are required",
			Pos:     v.Pos(),
		}
	}
	fields, err := compileFields(attrsVal, "collection."+col.Name+".attributes")
	if err != nil {
		return nil, err
	}
	col.Schema = schema.Record(fields...)

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if rulesVal.Exists() {
		data, err := rulesVal.MarshalJSON()
		if err != nil {
			return nil, formatCUEError(err)
		}
		col.Rules = json.RawMessage(data)
	}
	return col, nil
}

func compileFields(v cue.Value, field string) ([]schema.Field, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []schema.Field
	for iter.Next() {
		name := iter.Label()
		dt, err := compileType(iter.Value(), field+"."+name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, schema.F(name, dt))
	}
	return fields, nil
}

func compileType(v cue.Value, field string) (schema.DataType, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "attribute must be a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		switch iter.Label() {
		case keyType, keyOptional, keyNullable, keyDefault, keyDefaultFunc, keyEnum, keyProperties:
		default:
			return nil, &CompileError{
				Field:   field + "." + iter.Label(),
				Message: "unknown attribute key",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	typeVal := v.LookupPath(cue.ParsePath(keyType))
	if !typeVal.Exists() {
		return nil, &CompileError{Field: field + ".type", Message: "type is required", Pos: v.Pos()}
	}
	typeName, err := typeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	tag, err := schema.ParseTypeTag(typeName)
	if err != nil {
		return nil, &CompileError{
			Field:   field + ".type",
			Message: fmt.Sprintf("unknown type %q", typeName),
			Pos:     typeVal.Pos(),
		}
	}

	opts, err := compileOptions(v, field)
	if err != nil {
		return nil, err
	}

	if tag == schema.TagRecord {
		propsVal := v.LookupPath(cue.ParsePath(keyProperties))
		if !propsVal.Exists() {
			return nil, &CompileError{Field: field + ".properties", Message: "record attributes need properties", Pos: v.Pos()}
		}
		fields, err := compileFields(propsVal, field+".properties")
		if err != nil {
			return nil, err
		}
		return schema.Record(fields...).With(opts...), nil
	}
	if v.LookupPath(cue.ParsePath(keyProperties)).Exists() {
		return nil, &CompileError{Field: field + ".properties", Message: "properties apply to records only", Pos: v.Pos()}
	}

	var o schema.Options
	for _, opt := range opts {
		opt(&o)
	}
	dt, err := schema.TypeFromTag(tag, o)
	if err != nil {
		return nil, err
	}
	return dt, nil
}

func compileOptions(v cue.Value, field string) ([]schema.Option, error) {
	var opts []schema.Option

	for _, key := range []string{keyOptional, keyNullable} {
		val := v.LookupPath(cue.ParsePath(key))
		if !val.Exists() {
			continue
		}
		b, err := val.Bool()
		if err != nil {
			return nil, &CompileError{Field: field + "." + key, Message: "must be a boolean", Pos: val.Pos()}
		}
		if !b {
			continue
		}
		if key == keyOptional {
			opts = append(opts, schema.Optional())
		} else {
			opts = append(opts, schema.Nullable())
		}
	}

	defVal := v.LookupPath(cue.ParsePath(keyDefault))
	funcVal := v.LookupPath(cue.ParsePath(keyDefaultFunc))
	if defVal.Exists() && funcVal.Exists() {
		return nil, &CompileError{
			Field:   field + ".default",
			Message: "default and default_func are mutually exclusive",
			Pos:     defVal.Pos(),
		}
	}
	if defVal.Exists() {
		d, err := scalar(defVal)
		if err != nil {
			return nil, &CompileError{Field: field + ".default", Message: err.Error(), Pos: defVal.Pos()}
		}
		opts = append(opts, schema.WithDefault(d))
	}
	if funcVal.Exists() {
		name, err := funcVal.String()
		if err != nil {
			return nil, &CompileError{Field: field + ".default_func", Message: "must be a string", Pos: funcVal.Pos()}
		}
		opts = append(opts, schema.WithDefaultFunc(name))
	}

	enumVal := v.LookupPath(cue.ParsePath(keyEnum))
	if enumVal.Exists() {
		iter, err := enumVal.List()
		if err != nil {
			return nil, &CompileError{Field: field + ".enum", Message: "must be a list of strings", Pos: enumVal.Pos()}
		}
		var values []string
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{Field: field + ".enum", Message: "must be a list of strings", Pos: iter.Value().Pos()}
			}
			values = append(values, s)
		}
		opts = append(opts, schema.WithEnum(values...))
	}
	return opts, nil
}

// scalar converts a concrete CUE scalar into a plain Go value.
func scalar(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.StringKind:
		return v.String()
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return float64(n), nil
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	default:
		return nil, fmt.Errorf("default must be a concrete scalar, got %v", v.IncompleteKind())
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
