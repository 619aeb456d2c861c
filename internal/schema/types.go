package schema

import (
	"math"
	"slices"

	"github.com/roach88/lattice/internal/ir"
)

// TypeTag is the serialized name of a data type.
type TypeTag string

const (
	TagString    TypeTag = "string"
	TagNumber    TypeTag = "number"
	TagBoolean   TypeTag = "boolean"
	TagDate      TypeTag = "date"
	TagSetString TypeTag = "set_string"
	TagSetNumber TypeTag = "set_number"
	TagRecord    TypeTag = "record"
)

// ParseTypeTag validates a serialized type tag.
func ParseTypeTag(s string) (TypeTag, error) {
	switch tag := TypeTag(s); tag {
	case TagString, TagNumber, TagBoolean, TagDate, TagSetString, TagSetNumber, TagRecord:
		return tag, nil
	default:
		return "", NewInvalidTypeError(nil, s)
	}
}

// DataType is a sealed interface over *RegisterType, *SetType and
// *RecordType.
type DataType interface {
	Tag() TypeTag
	Options() Options
	dataType()
}

// RegisterType declares a scalar field: string, number, boolean or date.
type RegisterType struct {
	Scalar TypeTag
	Opts   Options
}

func (t *RegisterType) Tag() TypeTag     { return t.Scalar }
func (t *RegisterType) Options() Options { return t.Opts }
func (*RegisterType) dataType()          {}

// SetType declares a set of string or number elements.
type SetType struct {
	Elem TypeTag
	Opts Options
}

// Tag returns set_string or set_number.
func (t *SetType) Tag() TypeTag {
	if t.Elem == TagNumber {
		return TagSetNumber
	}
	return TagSetString
}
func (t *SetType) Options() Options { return t.Opts }
func (*SetType) dataType()          {}

// Field is one named entry of a record type.
type Field struct {
	Name string
	Type DataType
}

// RecordType declares an ordered list of named fields.
type RecordType struct {
	Fields []Field
	Opts   Options
}

func (*RecordType) Tag() TypeTag        { return TagRecord }
func (t *RecordType) Options() Options { return t.Opts }
func (*RecordType) dataType()          {}

// Field returns the type of the named field.
func (t *RecordType) Field(name string) (DataType, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// FieldNames returns field names in declaration order.
func (t *RecordType) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// String declares a string register.
func String(opts ...Option) *RegisterType {
	return &RegisterType{Scalar: TagString, Opts: buildOptions(opts)}
}

// Number declares a number register.
func Number(opts ...Option) *RegisterType {
	return &RegisterType{Scalar: TagNumber, Opts: buildOptions(opts)}
}

// Boolean declares a boolean register.
func Boolean(opts ...Option) *RegisterType {
	return &RegisterType{Scalar: TagBoolean, Opts: buildOptions(opts)}
}

// Date declares a date register stored as a formatted string.
func Date(opts ...Option) *RegisterType {
	return &RegisterType{Scalar: TagDate, Opts: buildOptions(opts)}
}

// Set declares a set over elem, which must be TagString or TagNumber.
func Set(elem TypeTag, opts ...Option) (*SetType, error) {
	if elem != TagString && elem != TagNumber {
		return nil, &Error{
			Code:    CodeInvalidSetType,
			Message: "set elements must be string or number, got " + string(elem),
			Type:    string(elem),
		}
	}
	return &SetType{Elem: elem, Opts: buildOptions(opts)}, nil
}

// MustSet is like Set but panics on error.
func MustSet(elem TypeTag, opts ...Option) *SetType {
	st, err := Set(elem, opts...)
	if err != nil {
		panic(err)
	}
	return st
}

// Record declares a record type with the given fields.
func Record(fields ...Field) *RecordType {
	return &RecordType{Fields: fields}
}

// With returns a copy of t with opts applied.
func (t *RecordType) With(opts ...Option) *RecordType {
	out := &RecordType{Fields: slices.Clone(t.Fields), Opts: t.Opts}
	for _, opt := range opts {
		opt(&out.Opts)
	}
	return out
}

// F pairs a field name with its type.
func F(name string, t DataType) Field {
	return Field{Name: name, Type: t}
}

// TypeFromTag builds an option-less type for a register or set tag.
// Record tags return an empty record type.
func TypeFromTag(tag TypeTag, opts Options) (DataType, error) {
	switch tag {
	case TagString, TagNumber, TagBoolean, TagDate:
		return &RegisterType{Scalar: tag, Opts: opts}, nil
	case TagSetString:
		return &SetType{Elem: TagString, Opts: opts}, nil
	case TagSetNumber:
		return &SetType{Elem: TagNumber, Opts: opts}, nil
	case TagRecord:
		return &RecordType{Opts: opts}, nil
	default:
		return nil, NewInvalidTypeError(nil, string(tag))
	}
}

// ElementSegment checks that seg is a valid element key of st. Number sets
// accept number segments and decimal strings, which are converted.
func ElementSegment(st *SetType, seg ir.Segment) (ir.Segment, bool) {
	if st.Elem == TagString {
		if seg.IsNumber() {
			return ir.Str(seg.Text()), true
		}
		return seg, true
	}
	if seg.IsNumber() {
		return seg, true
	}
	f, ok := seg.Float()
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return ir.Segment{}, false
	}
	return ir.Num(f), true
}
