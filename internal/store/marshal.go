package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/lattice/internal/ir"
)

// marshalAttribute converts an attribute path to canonical JSON TEXT.
func marshalAttribute(attr ir.Attribute) (string, error) {
	data, err := ir.MarshalCanonical(attr)
	if err != nil {
		return "", fmt.Errorf("marshal attribute: %w", err)
	}
	return string(data), nil
}

// marshalValue converts a triple value to canonical JSON TEXT.
func marshalValue(v ir.Value) (string, error) {
	if v == nil {
		return "", fmt.Errorf("marshal value: triple has no value")
	}
	data, err := ir.MarshalValue(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalAttribute parses canonical JSON TEXT to an attribute path.
func unmarshalAttribute(data string) (ir.Attribute, error) {
	var attr ir.Attribute
	if err := json.Unmarshal([]byte(data), &attr); err != nil {
		return nil, fmt.Errorf("unmarshal attribute: %w", err)
	}
	return attr, nil
}

// unmarshalValue parses canonical JSON TEXT to a triple value.
func unmarshalValue(data string) (ir.Value, error) {
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}
