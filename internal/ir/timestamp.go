package ir

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"strings"
)

// Timestamp identifies a single write. It is created once per logical
// operation by the issuing replica and never mutated.
//
// Timestamps are totally ordered: by Seq first, then by Origin
// (byte-wise lexicographic) as a tie-break. The order depends only on the
// two pairs being compared, so every replica resolves conflicts identically
// regardless of arrival order.
type Timestamp struct {
	Seq    int64
	Origin string
}

// NewTimestamp creates a Timestamp.
func NewTimestamp(seq int64, origin string) Timestamp {
	return Timestamp{Seq: seq, Origin: origin}
}

// CompareTimestamps returns -1, 0 or +1 as a is less than, equal to or greater than b.
func CompareTimestamps(a, b Timestamp) int {
	if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
		return c
	}
	return strings.Compare(a.Origin, b.Origin)
}

// Compare compares t with other. See CompareTimestamps.
func (t Timestamp) Compare(other Timestamp) int {
	return CompareTimestamps(t, other)
}

// After reports whether t is strictly greater than other.
func (t Timestamp) After(other Timestamp) bool {
	return CompareTimestamps(t, other) > 0
}

// IsZero reports whether t is the zero Timestamp.
func (t Timestamp) IsZero() bool {
	return t.Seq == 0 && t.Origin == ""
}

// String renders t as "seq@origin".
func (t Timestamp) String() string {
	return fmt.Sprintf("%d@%s", t.Seq, t.Origin)
}

// MaxTimestamp returns the greatest of the given timestamps (zero if none).
func MaxTimestamp(ts ...Timestamp) Timestamp {
	var best Timestamp
	for _, t := range ts {
		if t.After(best) {
			best = t
		}
	}
	return best
}

// MarshalJSON encodes t as the ordered pair [seq, "origin"].
func (t Timestamp) MarshalJSON() ([]byte, error) {
	origin, err := marshalCanonicalString(t.Origin)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[%d,", t.Seq)
	buf.Write(origin)
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the ordered pair [seq, "origin"].
// The sequence number must be an integer.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("timestamp: expected [seq, origin], got %d elements", len(raw))
	}

	var seq json.Number
	if err := json.Unmarshal(raw[0], &seq); err != nil {
		return fmt.Errorf("timestamp seq: %w", err)
	}
	n, err := seq.Int64()
	if err != nil {
		return fmt.Errorf("timestamp seq must be an integer: %s", seq)
	}

	var origin string
	if err := json.Unmarshal(raw[1], &origin); err != nil {
		return fmt.Errorf("timestamp origin: %w", err)
	}

	*t = Timestamp{Seq: n, Origin: origin}
	return nil
}
