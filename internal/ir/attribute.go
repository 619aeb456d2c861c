package ir

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of an attribute path: either a string (record field
// name or string-set element) or a number (number-set element).
//
// Segment is comparable and may be used as a map key.
type Segment struct {
	str   string
	num   float64
	isNum bool
}

// Str creates a string segment.
func Str(s string) Segment {
	return Segment{str: s}
}

// Num creates a number segment.
func Num(n float64) Segment {
	return Segment{num: n, isNum: true}
}

// SegmentFromValue converts a String or Number value into a segment.
func SegmentFromValue(v Value) (Segment, error) {
	switch val := v.(type) {
	case String:
		return Str(string(val)), nil
	case Number:
		if _, err := formatNumber(float64(val)); err != nil {
			return Segment{}, err
		}
		return Num(float64(val)), nil
	default:
		return Segment{}, fmt.Errorf("segment must be a string or number, got %s", TypeName(v))
	}
}

// IsNumber reports whether s is a number segment.
func (s Segment) IsNumber() bool {
	return s.isNum
}

// Float returns the numeric payload and true for number segments.
// String segments holding a decimal number are parsed as well.
func (s Segment) Float() (float64, bool) {
	if s.isNum {
		return s.num, true
	}
	f, err := strconv.ParseFloat(s.str, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Text returns the string form of s. Numbers use the canonical number format.
func (s Segment) Text() string {
	if !s.isNum {
		return s.str
	}
	txt, err := formatNumber(s.num)
	if err != nil {
		return strconv.FormatFloat(s.num, 'g', -1, 64)
	}
	return txt
}

// String implements fmt.Stringer.
func (s Segment) String() string {
	return s.Text()
}

// Value returns s as a String or Number value.
func (s Segment) Value() Value {
	if s.isNum {
		return Number(s.num)
	}
	return String(s.str)
}

// CompareSegments orders number segments before string segments, numbers
// numerically and strings byte-wise.
func CompareSegments(a, b Segment) int {
	switch {
	case a.isNum && b.isNum:
		return cmp.Compare(a.num, b.num)
	case a.isNum:
		return -1
	case b.isNum:
		return 1
	default:
		return strings.Compare(a.str, b.str)
	}
}

// MarshalJSON encodes s as a JSON string or number.
func (s Segment) MarshalJSON() ([]byte, error) {
	return MarshalValue(s.Value())
}

// UnmarshalJSON decodes a JSON string or number.
func (s *Segment) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return fmt.Errorf("segment: %w", err)
	}
	seg, err := SegmentFromValue(v)
	if err != nil {
		return err
	}
	*s = seg
	return nil
}

// Attribute is an ordered attribute path inside an entity.
type Attribute []Segment

// ParsePath builds an Attribute from strings, Segments and Go numbers.
func ParsePath(parts ...any) (Attribute, error) {
	attr := make(Attribute, 0, len(parts))
	for i, p := range parts {
		switch val := p.(type) {
		case Segment:
			attr = append(attr, val)
		case string:
			attr = append(attr, Str(val))
		default:
			v, err := FromAny(p)
			if err != nil {
				return nil, fmt.Errorf("path[%d]: %w", i, err)
			}
			seg, err := SegmentFromValue(v)
			if err != nil {
				return nil, fmt.Errorf("path[%d]: %w", i, err)
			}
			attr = append(attr, seg)
		}
	}
	return attr, nil
}

// MustPath is like ParsePath but panics on error.
// Use only in tests or with literal paths.
func MustPath(parts ...any) Attribute {
	attr, err := ParsePath(parts...)
	if err != nil {
		panic(err)
	}
	return attr
}

// Append returns a new Attribute with segs appended. The receiver is never aliased.
func (a Attribute) Append(segs ...Segment) Attribute {
	out := make(Attribute, 0, len(a)+len(segs))
	out = append(out, a...)
	return append(out, segs...)
}

// Equal reports whether a and b hold the same segments.
func (a Attribute) Equal(b Attribute) bool {
	return CompareAttributes(a, b) == 0
}

// HasPrefix reports whether a starts with prefix.
func (a Attribute) HasPrefix(prefix Attribute) bool {
	if len(prefix) > len(a) {
		return false
	}
	return CompareAttributes(a[:len(prefix)], prefix) == 0
}

// String renders a as a dotted path, e.g. "address.zip".
func (a Attribute) String() string {
	parts := make([]string, len(a))
	for i, s := range a {
		parts[i] = s.Text()
	}
	return strings.Join(parts, ".")
}

// Key returns the canonical JSON encoding of a, suitable as a map key.
// Unlike String it distinguishes "1" from 1.
func (a Attribute) Key() string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, s := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := s.MarshalJSON()
		if err != nil {
			b = []byte(strconv.Quote(s.Text()))
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.String()
}

// CompareAttributes orders attributes segment by segment; a proper prefix sorts first.
func CompareAttributes(a, b Attribute) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := CompareSegments(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// UnmarshalJSON decodes a JSON array of strings and numbers.
func (a *Attribute) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("attribute: %w", err)
	}
	attr := make(Attribute, len(raw))
	for i, r := range raw {
		if err := attr[i].UnmarshalJSON(r); err != nil {
			return fmt.Errorf("attribute[%d]: %w", i, err)
		}
	}
	*a = attr
	return nil
}

// EntityKeySeparator joins a collection name and an entity id in storage keys.
const EntityKeySeparator = "#"

// EntityKey returns the storage entity id for an entity of a collection.
func EntityKey(collection, id string) string {
	return collection + EntityKeySeparator + id
}

// SplitEntityKey splits a storage entity id into collection and entity id.
// Returns ok=false for keys without a collection prefix (e.g. reserved entities).
func SplitEntityKey(key string) (collection, id string, ok bool) {
	return strings.Cut(key, EntityKeySeparator)
}

// MarshalJSON encodes a as a JSON array; a nil Attribute encodes as [].
func (a Attribute) MarshalJSON() ([]byte, error) {
	for _, s := range a {
		if _, err := s.MarshalJSON(); err != nil {
			return nil, err
		}
	}
	return []byte(a.Key()), nil
}
