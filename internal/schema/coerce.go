package schema

import (
	"slices"
	"time"

	"github.com/roach88/lattice/internal/ir"
)

// CoerceValue converts a plain input into the value stored by a register of
// type t. Malformed input fails with ErrInvalidValue; nothing is dropped.
func CoerceValue(cfg Config, t *RegisterType, path ir.Attribute, v any) (ir.Value, error) {
	if v == nil || ir.IsNull(asValue(v)) {
		if !t.Opts.Nullable {
			return nil, NewError(CodeInvalidValue, path, "null is not allowed")
		}
		return ir.Null{}, nil
	}

	switch t.Scalar {
	case TagString:
		s, ok := asString(v)
		if !ok {
			return nil, invalidValue(path, t.Scalar, v)
		}
		if len(t.Opts.Enum) > 0 && !slices.Contains(t.Opts.Enum, s) {
			return nil, NewError(CodeInvalidValue, path, "%q is not one of %v", s, t.Opts.Enum)
		}
		return ir.String(s), nil
	case TagNumber:
		if _, ok := asString(v); ok {
			return nil, invalidValue(path, t.Scalar, v)
		}
		val, err := ir.FromAny(v)
		if err != nil {
			return nil, NewError(CodeInvalidValue, path, "%v", err)
		}
		n, ok := val.(ir.Number)
		if !ok {
			return nil, invalidValue(path, t.Scalar, v)
		}
		return n, nil
	case TagBoolean:
		switch b := v.(type) {
		case bool:
			return ir.Bool(b), nil
		case ir.Bool:
			return b, nil
		}
		return nil, invalidValue(path, t.Scalar, v)
	case TagDate:
		if tm, ok := v.(time.Time); ok {
			return ir.String(tm.Format(cfg.dateFormat())), nil
		}
		s, ok := asString(v)
		if !ok {
			return nil, invalidValue(path, t.Scalar, v)
		}
		if _, err := time.Parse(cfg.dateFormat(), s); err != nil {
			return nil, NewError(CodeInvalidValue, path, "date %q does not match layout %q", s, cfg.dateFormat())
		}
		return ir.String(s), nil
	default:
		return nil, NewInvalidTypeError(path, string(t.Scalar))
	}
}

// CoerceElement converts a plain input into an element key of st.
func CoerceElement(st *SetType, path ir.Attribute, v any) (ir.Segment, error) {
	if seg, ok := v.(ir.Segment); ok {
		key, ok := ElementSegment(st, seg)
		if !ok {
			return ir.Segment{}, NewError(CodeInvalidValue, path, "%s is not a valid %s element", seg, st.Elem)
		}
		return key, nil
	}

	val, err := ir.FromAny(v)
	if err != nil {
		return ir.Segment{}, NewError(CodeInvalidValue, path, "%v", err)
	}
	switch val.(type) {
	case ir.String:
		if st.Elem != TagString {
			return ir.Segment{}, invalidValue(path, st.Elem, v)
		}
	case ir.Number:
		if st.Elem != TagNumber {
			return ir.Segment{}, invalidValue(path, st.Elem, v)
		}
	default:
		return ir.Segment{}, invalidValue(path, st.Elem, v)
	}
	seg, err := ir.SegmentFromValue(val)
	if err != nil {
		return ir.Segment{}, NewError(CodeInvalidValue, path, "%v", err)
	}
	return seg, nil
}

// CoerceElements converts a list input into element keys of st.
func CoerceElements(st *SetType, path ir.Attribute, v any) ([]ir.Segment, error) {
	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		items = toAnySlice(list)
	case []float64:
		items = toAnySlice(list)
	case []int:
		items = toAnySlice(list)
	case []ir.Segment:
		items = toAnySlice(list)
	default:
		return nil, NewError(CodeInvalidValue, path, "expected a list for %s, got %T", st.Tag(), v)
	}

	out := make([]ir.Segment, 0, len(items))
	for _, item := range items {
		seg, err := CoerceElement(st, path, item)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, nil
}

func toAnySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func asValue(v any) ir.Value {
	val, _ := v.(ir.Value)
	return val
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case ir.String:
		return string(s), true
	}
	return "", false
}

func invalidValue(path ir.Attribute, want TypeTag, got any) *Error {
	typeName := "undefined"
	if val, err := ir.FromAny(got); err == nil {
		typeName = ir.TypeName(val)
	}
	return NewError(CodeInvalidValue, path, "expected %s, got %s", want, typeName)
}
