package ir

import (
	"encoding/json"
	"fmt"
)

// Triple is the canonical storage and sync unit: one timestamped scalar at
// one attribute path of one entity.
//
// A register triple's attribute ends in the field name; a set membership
// triple's attribute ends in the element key and carries a Bool value.
type Triple struct {
	EntityID  string    `json:"entity_id"`
	Attribute Attribute `json:"attribute"`
	Value     Value     `json:"value"`
	Timestamp Timestamp `json:"timestamp"`
}

// NewTriple creates a Triple.
func NewTriple(entityID string, attr Attribute, value Value, ts Timestamp) Triple {
	return Triple{EntityID: entityID, Attribute: attr, Value: value, Timestamp: ts}
}

// String renders t for logs and test failures.
func (t Triple) String() string {
	val, err := MarshalValue(t.Value)
	if err != nil {
		val = []byte(TypeName(t.Value))
	}
	return fmt.Sprintf("(%s, %s, %s, %s)", t.EntityID, t.Attribute.Key(), val, t.Timestamp)
}

// MarshalJSON implements json.Marshaler using the canonical encoding.
func (t Triple) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(t)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Triple) UnmarshalJSON(data []byte) error {
	var raw struct {
		EntityID  string          `json:"entity_id"`
		Attribute Attribute       `json:"attribute"`
		Value     json.RawMessage `json:"value"`
		Timestamp Timestamp       `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("triple: %w", err)
	}
	if len(raw.Value) == 0 {
		return fmt.Errorf("triple %s %s: missing value", raw.EntityID, raw.Attribute.Key())
	}
	val, err := UnmarshalValue(raw.Value)
	if err != nil {
		return fmt.Errorf("triple %s %s: %w", raw.EntityID, raw.Attribute.Key(), err)
	}
	*t = Triple{
		EntityID:  raw.EntityID,
		Attribute: raw.Attribute,
		Value:     val,
		Timestamp: raw.Timestamp,
	}
	return nil
}
