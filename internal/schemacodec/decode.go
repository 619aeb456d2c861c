package schemacodec

import (
	"cmp"
	"encoding/json"
	"maps"
	"math"
	"slices"

	"github.com/roach88/lattice/internal/ir"
	"github.com/roach88/lattice/internal/schema"
)

type fieldNode struct {
	name     string
	tag      string
	hasTag   bool
	order    float64
	opts     schema.Options
	enum     map[float64]string
	children map[string]*fieldNode
}

func newFieldNode(name string) *fieldNode {
	return &fieldNode{name: name, enum: map[float64]string{}, children: map[string]*fieldNode{}}
}

type collectionNode struct {
	named  bool
	rules  json.RawMessage
	fields map[string]*fieldNode
}

// FromTriples decodes a definition from schema triples. Each definition
// is a batch of triples sharing one timestamp; the batch with the highest
// version wins, ties broken by the later timestamp. The result does not
// depend on triple order, and a merge never lowers the version. It returns
// nil without error when triples hold no schema.
func FromTriples(triples []ir.Triple) (*schema.Definition, error) {
	versionAttr := ir.Attribute{ir.Str(segVersion)}

	var (
		versionTriple ir.Triple
		version       int64
		found         bool
	)
	for _, tr := range triples {
		if !IsSchemaTriple(tr) {
			return nil, schema.NewError(schema.CodeInvalidDefinition, tr.Attribute,
				"triple of entity %q is not a schema triple", tr.EntityID)
		}
		if !tr.Attribute.Equal(versionAttr) {
			continue
		}
		v, err := decodeVersion(tr)
		if err != nil {
			return nil, err
		}
		if !found || v > version || (v == version && tr.Timestamp.After(versionTriple.Timestamp)) {
			versionTriple, version, found = tr, v, true
		}
	}
	if !found {
		if len(triples) == 0 {
			return nil, nil
		}
		return nil, schema.NewError(schema.CodeInvalidDefinition, nil, "schema triples have no version")
	}

	batch := make(map[string]ir.Triple)
	for _, tr := range triples {
		if tr.Timestamp != versionTriple.Timestamp || tr.Attribute.Equal(versionAttr) {
			continue
		}
		key := tr.Attribute.Key()
		if cur, ok := batch[key]; ok && !ir.EqualValues(cur.Value, tr.Value) {
			return nil, schema.NewError(schema.CodeInvalidDefinition, tr.Attribute,
				"conflicting values at %s", tr.Timestamp)
		}
		batch[key] = tr
	}

	collections := make(map[string]*collectionNode)
	for _, key := range slices.Sorted(maps.Keys(batch)) {
		if err := decodeCollectionTriple(collections, batch[key]); err != nil {
			return nil, err
		}
	}

	def := schema.NewDefinition(version)
	for name, cn := range collections {
		path := ir.Attribute{ir.Str(segCollections), ir.Str(name)}
		if !cn.named {
			return nil, schema.NewError(schema.CodeInvalidDefinition, path, "collection %q has no name entry", name)
		}
		fields, err := buildFields(path.Append(ir.Str(segAttributes)), cn.fields)
		if err != nil {
			return nil, err
		}
		def.Collections[name] = &schema.Collection{Name: name, Schema: schema.Record(fields...), Rules: cn.rules}
	}
	return def, nil
}

func decodeVersion(tr ir.Triple) (int64, error) {
	n, ok := tr.Value.(ir.Number)
	f := float64(n)
	if !ok || f != math.Trunc(f) || f < 0 || f > schema.MaxVersion {
		return 0, schema.NewError(schema.CodeInvalidDefinition, tr.Attribute, "version must be an integer in [0, %d]", int64(schema.MaxVersion))
	}
	return int64(f), nil
}

func decodeCollectionTriple(collections map[string]*collectionNode, tr ir.Triple) error {
	attr := tr.Attribute
	if len(attr) < 3 || attr[0] != ir.Str(segCollections) || attr[1].IsNumber() {
		return unknownAttribute(attr)
	}
	name := attr[1].Text()
	cn, ok := collections[name]
	if !ok {
		cn = &collectionNode{fields: map[string]*fieldNode{}}
		collections[name] = cn
	}

	switch attr[2] {
	case ir.Str(segName):
		if len(attr) != 3 || tr.Value != ir.String(name) {
			return unknownAttribute(attr)
		}
		cn.named = true
	case ir.Str(segRules):
		s, ok := tr.Value.(ir.String)
		if len(attr) != 3 || !ok || !json.Valid([]byte(s)) {
			return schema.NewError(schema.CodeInvalidDefinition, attr, "rules must be a JSON string")
		}
		cn.rules = json.RawMessage(s)
	case ir.Str(segAttributes):
		return decodeFieldTriple(cn.fields, attr, attr[3:], tr.Value)
	default:
		return unknownAttribute(attr)
	}
	return nil
}

// decodeFieldTriple applies one triple whose remaining path rest starts at
// a field name.
func decodeFieldTriple(fields map[string]*fieldNode, attr, rest ir.Attribute, v ir.Value) error {
	if len(rest) < 2 || rest[0].IsNumber() {
		return unknownAttribute(attr)
	}
	name := rest[0].Text()
	fn, ok := fields[name]
	if !ok {
		fn = newFieldNode(name)
		fields[name] = fn
	}

	switch rest[1] {
	case ir.Str(segType):
		s, ok := v.(ir.String)
		if len(rest) != 2 || !ok {
			return schema.NewError(schema.CodeInvalidDefinition, attr, "type must be a string")
		}
		fn.tag, fn.hasTag = string(s), true
	case ir.Str(segOrder):
		n, ok := v.(ir.Number)
		if len(rest) != 2 || !ok {
			return schema.NewError(schema.CodeInvalidDefinition, attr, "order must be a number")
		}
		fn.order = float64(n)
	case ir.Str(segOptions):
		return decodeOption(fn, attr, rest[2:], v)
	case ir.Str(segProperties):
		return decodeFieldTriple(fn.children, attr, rest[2:], v)
	default:
		return unknownAttribute(attr)
	}
	return nil
}

func decodeOption(fn *fieldNode, attr, rest ir.Attribute, v ir.Value) error {
	if len(rest) == 0 {
		return unknownAttribute(attr)
	}
	switch rest[0] {
	case ir.Str(segOptional), ir.Str(segNullable):
		b, ok := v.(ir.Bool)
		if len(rest) != 1 || !ok {
			return schema.NewError(schema.CodeInvalidDefinition, attr, "flag must be a boolean")
		}
		if rest[0] == ir.Str(segOptional) {
			fn.opts.Optional = bool(b)
		} else {
			fn.opts.Nullable = bool(b)
		}
	case ir.Str(segDefault):
		if len(rest) != 2 {
			return unknownAttribute(attr)
		}
		switch rest[1] {
		case ir.Str(segValue):
			fn.opts.Default = &schema.Default{Value: v}
		case ir.Str(segFunc):
			s, ok := v.(ir.String)
			if !ok {
				return schema.NewError(schema.CodeInvalidDefinition, attr, "default func must be a string")
			}
			fn.opts.Default = &schema.Default{Func: string(s)}
		default:
			return unknownAttribute(attr)
		}
	case ir.Str(segEnum):
		s, ok := v.(ir.String)
		if len(rest) != 2 || !rest[1].IsNumber() || !ok {
			return schema.NewError(schema.CodeInvalidDefinition, attr, "enum entries must be strings at numeric positions")
		}
		i, _ := rest[1].Float()
		fn.enum[i] = string(s)
	default:
		return unknownAttribute(attr)
	}
	return nil
}

func buildFields(path ir.Attribute, nodes map[string]*fieldNode) ([]schema.Field, error) {
	ordered := slices.SortedFunc(maps.Values(nodes), func(a, b *fieldNode) int {
		if c := cmp.Compare(a.order, b.order); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})

	fields := make([]schema.Field, 0, len(ordered))
	for _, fn := range ordered {
		fp := path.Append(ir.Str(fn.name))
		if !fn.hasTag {
			return nil, schema.NewError(schema.CodeInvalidDefinition, fp, "field %q has no type", fn.name)
		}
		tag, err := schema.ParseTypeTag(fn.tag)
		if err != nil {
			return nil, schema.NewInvalidTypeError(fp, fn.tag)
		}

		opts := fn.opts
		for _, i := range slices.Sorted(maps.Keys(fn.enum)) {
			opts.Enum = append(opts.Enum, fn.enum[i])
		}

		dt, err := schema.TypeFromTag(tag, opts)
		if err != nil {
			return nil, err
		}
		if rt, ok := dt.(*schema.RecordType); ok {
			children, err := buildFields(fp.Append(ir.Str(segProperties)), fn.children)
			if err != nil {
				return nil, err
			}
			rt.Fields = children
		} else if len(fn.children) > 0 {
			return nil, schema.NewError(schema.CodeInvalidDefinition, fp, "%s field %q has properties", tag, fn.name)
		}
		fields = append(fields, schema.F(fn.name, dt))
	}
	return fields, nil
}

func unknownAttribute(attr ir.Attribute) error {
	return schema.NewError(schema.CodeInvalidDefinition, attr, "unknown schema attribute")
}
