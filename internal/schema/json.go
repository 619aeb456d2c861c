package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/lattice/internal/ir"
)

// MarshalJSON writes the definition wire form:
//
//	{"version":1,"collections":{"users":{"attributes":{"name":{"type":"string"}},"rules":{}}}}
//
// Attributes keep declaration order; collections are sorted by name.
func (d *Definition) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"version":%d,"collections":{`, d.Version)
	for i, name := range d.CollectionNames() {
		c := d.Collections[name]
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, name); err != nil {
			return nil, err
		}
		buf.WriteString(`{"attributes":`)
		if err := writeFields(&buf, c.Schema); err != nil {
			return nil, fmt.Errorf("collection %q: %w", name, err)
		}
		if len(c.Rules) > 0 {
			var rules any
			if err := json.Unmarshal(c.Rules, &rules); err != nil {
				return nil, fmt.Errorf("collection %q rules: %w", name, err)
			}
			rb, err := ir.MarshalCanonical(rules)
			if err != nil {
				return nil, fmt.Errorf("collection %q rules: %w", name, err)
			}
			buf.WriteString(`,"rules":`)
			buf.Write(rb)
		}
		buf.WriteByte('}')
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	kb, err := ir.MarshalCanonical(key)
	if err != nil {
		return err
	}
	buf.Write(kb)
	buf.WriteByte(':')
	return nil
}

func writeFields(buf *bytes.Buffer, rt *RecordType) error {
	buf.WriteByte('{')
	if rt != nil {
		for i, f := range rt.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(buf, f.Name); err != nil {
				return err
			}
			fmt.Fprintf(buf, `{"type":%q`, f.Type.Tag())
			if opts := f.Type.Options(); !opts.IsZero() {
				ob, err := ir.MarshalCanonical(optionsDoc(opts))
				if err != nil {
					return fmt.Errorf("field %q options: %w", f.Name, err)
				}
				buf.WriteString(`,"options":`)
				buf.Write(ob)
			}
			if nested, ok := f.Type.(*RecordType); ok {
				buf.WriteString(`,"properties":`)
				if err := writeFields(buf, nested); err != nil {
					return fmt.Errorf("field %q: %w", f.Name, err)
				}
			}
			buf.WriteByte('}')
		}
	}
	buf.WriteByte('}')
	return nil
}

func optionsDoc(o Options) map[string]any {
	doc := map[string]any{}
	if o.Optional {
		doc["optional"] = true
	}
	if o.Nullable {
		doc["nullable"] = true
	}
	if o.Default != nil {
		if o.Default.IsFunc() {
			doc["default"] = map[string]any{"func": o.Default.Func}
		} else {
			doc["default"] = map[string]any{"value": o.Default.Value}
		}
	}
	if len(o.Enum) > 0 {
		doc["enum"] = o.Enum
	}
	return doc
}

type wireCollection struct {
	Attributes json.RawMessage `json:"attributes"`
	Rules      json.RawMessage `json:"rules,omitempty"`
}

type wireDefinition struct {
	Version     *int64                    `json:"version"`
	Collections map[string]wireCollection `json:"collections"`
}

type wireDefault struct {
	Value json.RawMessage `json:"value,omitempty"`
	Func  string          `json:"func,omitempty"`
}

type wireOptions struct {
	Optional bool         `json:"optional,omitempty"`
	Nullable bool         `json:"nullable,omitempty"`
	Default  *wireDefault `json:"default,omitempty"`
	Enum     []string     `json:"enum,omitempty"`
}

type wireField struct {
	Type       string          `json:"type"`
	Options    *wireOptions    `json:"options,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// UnmarshalJSON reads the wire form written by MarshalJSON.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var wire wireDefinition
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("schema definition: %w", err)
	}
	if wire.Version == nil {
		return NewError(CodeInvalidDefinition, nil, "missing version")
	}

	def := NewDefinition(*wire.Version)
	for name, wc := range wire.Collections {
		path := ir.Attribute{ir.Str(name)}
		fields, err := decodeFields(wc.Attributes, path)
		if err != nil {
			return err
		}
		c := &Collection{Name: name, Schema: Record(fields...)}
		if len(wc.Rules) > 0 && !bytes.Equal(wc.Rules, []byte("null")) {
			c.Rules = append(json.RawMessage(nil), wc.Rules...)
		}
		def.Collections[name] = c
	}
	*d = *def
	return nil
}

// decodeFields decodes an attributes object keeping key order.
func decodeFields(data json.RawMessage, path ir.Attribute) ([]Field, error) {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("attributes at %s: %w", path, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, NewError(CodeInvalidDefinition, path, "attributes must be an object")
	}

	var fields []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("attributes at %s: %w", path, err)
		}
		name, _ := tok.(string)
		fieldPath := path.Append(ir.Str(name))

		var wf wireField
		if err := dec.Decode(&wf); err != nil {
			return nil, fmt.Errorf("attribute %s: %w", fieldPath, err)
		}
		dt, err := wf.dataType(fieldPath)
		if err != nil {
			return nil, err
		}
		fields = append(fields, F(name, dt))
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("attributes at %s: %w", path, err)
	}
	return fields, nil
}

func (wf wireField) dataType(path ir.Attribute) (DataType, error) {
	tag, err := ParseTypeTag(wf.Type)
	if err != nil {
		return nil, NewInvalidTypeError(path, wf.Type)
	}
	opts, err := wf.Options.options(path)
	if err != nil {
		return nil, err
	}
	dt, err := TypeFromTag(tag, opts)
	if err != nil {
		return nil, err
	}
	if rt, ok := dt.(*RecordType); ok {
		fields, err := decodeFields(wf.Properties, path)
		if err != nil {
			return nil, err
		}
		rt.Fields = fields
	}
	return dt, nil
}

func (wo *wireOptions) options(path ir.Attribute) (Options, error) {
	if wo == nil {
		return Options{}, nil
	}
	opts := Options{Optional: wo.Optional, Nullable: wo.Nullable, Enum: wo.Enum}
	if wo.Default != nil {
		switch {
		case wo.Default.Func != "":
			opts.Default = &Default{Func: wo.Default.Func}
		case len(wo.Default.Value) > 0:
			v, err := ir.UnmarshalValue(wo.Default.Value)
			if err != nil {
				return Options{}, NewError(CodeInvalidDefinition, path, "default: %v", err)
			}
			opts.Default = &Default{Value: v}
		default:
			return Options{}, NewError(CodeInvalidDefinition, path, "default needs a value or a func")
		}
	}
	return opts, nil
}
