package crdt

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/lattice/internal/ir"
)

// Register is a last-writer-wins cell holding one scalar value.
// A Null value is an explicit null, distinct from a field that was never
// written.
type Register struct {
	Value     ir.Value
	Timestamp ir.Timestamp
}

func (*Register) Kind() Kind { return KindRegister }
func (*Register) crdtNode()  {}

// NewRegister creates a register holding v written at ts.
// A nil value is stored as Null.
func NewRegister(v ir.Value, ts ir.Timestamp) *Register {
	if v == nil {
		v = ir.Null{}
	}
	return &Register{Value: v, Timestamp: ts}
}

// Apply writes v at ts if ts is strictly greater than the current timestamp.
// It reports whether the write was accepted; a stale or duplicate write is
// a no-op.
func (r *Register) Apply(v ir.Value, ts ir.Timestamp) bool {
	if ir.CompareTimestamps(ts, r.Timestamp) <= 0 {
		return false
	}
	if v == nil {
		v = ir.Null{}
	}
	r.Value = v
	r.Timestamp = ts
	return true
}

// MergeRegisters returns a copy of whichever register has the greater
// timestamp. Equal timestamps denote the same write, so a is returned.
func MergeRegisters(a, b *Register) *Register {
	if ir.CompareTimestamps(b.Timestamp, a.Timestamp) > 0 {
		return b.Clone()
	}
	return a.Clone()
}

// Clone returns a copy of r.
func (r *Register) Clone() *Register {
	c := *r
	return &c
}

// Equal reports whether both registers hold the same value and timestamp.
func (r *Register) Equal(other *Register) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Timestamp == other.Timestamp && ir.EqualValues(r.Value, other.Value)
}

// String renders the register for logs and test output.
func (r *Register) String() string {
	v, err := ir.MarshalValue(r.Value)
	if err != nil {
		return fmt.Sprintf("(%s, %s)", ir.TypeName(r.Value), r.Timestamp)
	}
	return fmt.Sprintf("(%s, %s)", v, r.Timestamp)
}

// MarshalJSON encodes the register as [value, [seq, origin]].
func (r *Register) MarshalJSON() ([]byte, error) {
	return ir.MarshalCanonical([]any{r.Value, r.Timestamp})
}

// UnmarshalJSON decodes the [value, [seq, origin]] pair.
func (r *Register) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("register: expected [value, timestamp], got %d elements", len(pair))
	}
	v, err := ir.UnmarshalValue(pair[0])
	if err != nil {
		return fmt.Errorf("register value: %w", err)
	}
	var ts ir.Timestamp
	if err := json.Unmarshal(pair[1], &ts); err != nil {
		return fmt.Errorf("register timestamp: %w", err)
	}
	r.Value = v
	r.Timestamp = ts
	return nil
}
