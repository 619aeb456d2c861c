package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a sealed interface representing the scalar payload of a triple.
// Only Null, String, Number and Bool implement it. Dates travel as formatted
// Strings; sets and records are never values, they are CRDT structure.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null is an explicit null, distinct from a field that was never written.
type Null struct{}

func (Null) irValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string value.
type String string

func (String) irValue() {}

// Number is a numeric value. NaN and infinities cannot be encoded.
type Number float64

func (Number) irValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) irValue() {}

// TypeName returns the wire type name of v: "null", "string", "number" or "boolean".
func TypeName(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "boolean"
	case nil:
		return "undefined"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// IsNull reports whether v is an explicit null.
func IsNull(v Value) bool {
	_, ok := v.(Null)
	return ok
}

// EqualValues reports whether a and b hold the same type and payload.
func EqualValues(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

// FromAny converts a plain Go scalar into a Value.
// Accepts nil, string, bool, signed/unsigned integers, float32/float64,
// json.Number and existing Values. Composite types are rejected.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Number(val), nil
	case int8:
		return Number(val), nil
	case int16:
		return Number(val), nil
	case int32:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case uint:
		return Number(val), nil
	case uint8:
		return Number(val), nil
	case uint16:
		return Number(val), nil
	case uint32:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case float32:
		return checkedNumber(float64(val))
	case float64:
		return checkedNumber(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return checkedNumber(f)
	default:
		return nil, fmt.Errorf("unsupported scalar type: %T", v)
	}
}

func checkedNumber(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("number %v cannot be encoded", f)
	}
	return Number(f), nil
}

// ToAny converts a Value back into a plain Go scalar (nil, string, float64, bool).
func ToAny(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}

// MarshalValue marshals a Value to JSON bytes.
// Uses type-switch dispatch; numbers use the canonical number format.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case String:
		return marshalCanonicalString(string(val))
	case Number:
		s, err := formatNumber(float64(val))
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case Bool:
		return strconv.AppendBool(nil, bool(val)), nil
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalValue decodes a JSON scalar into a Value.
// Arrays and objects are rejected: composite structure never lives in a triple.
func UnmarshalValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		if string(data) != "null" {
			return nil, fmt.Errorf("invalid JSON value: %s", data)
		}
		return Null{}, nil

	case '[', '{':
		return nil, fmt.Errorf("composite values are not allowed in a triple: %s", data)

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return FromAny(n)
	}
}

// formatNumber renders a float64 the way RFC 8785 (ECMAScript Number.toString) does
// for the ranges lattice uses: plain notation in [1e-6, 1e21), exponent otherwise.
func formatNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("number %v cannot be encoded", f)
	}
	if f == 0 {
		return "0", nil // also folds -0
	}

	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}

	// Go renders "1e-07"; ECMAScript renders "1e-7".
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits, nil
}
