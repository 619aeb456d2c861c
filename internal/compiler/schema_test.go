package compiler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/schema"
)

func compileString(t *testing.T, src string) cue.Value {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cuecontext.Filename("schema.cue"))
	require.NoError(t, v.Err())
	return v
}

const usersCUE = `
version: 2

collection: users: {
	attributes: {
		name: {type: "string"}
		role: {type: "string", enum: ["admin", "member"], default: "member"}
		handle: {type: "string", default_func: "uuid"}
		age: {type: "number", optional: true}
		nick: {type: "string", nullable: true, optional: true, default: null}
		tags: {type: "set_string"}
		address: {
			type:     "record"
			optional: true
			properties: {
				city: {type: "string"}
				zip: {type: "number", default: 75001}
			}
		}
	}
	rules: read: filter: [["id", "=", "$SESSION_USER_ID"]]
}

collection: todos: attributes: {}
`

func TestCompileDefinition(t *testing.T) {
	def, err := CompileDefinition(compileString(t, usersCUE))
	require.NoError(t, err)

	want := schema.NewDefinition(2,
		&schema.Collection{
			Name: "users",
			Schema: schema.Record(
				schema.F("name", schema.String()),
				schema.F("role", schema.String(schema.WithEnum("admin", "member"), schema.WithDefault("member"))),
				schema.F("handle", schema.String(schema.WithDefaultFunc(schema.DefaultFuncUUID))),
				schema.F("age", schema.Number(schema.Optional())),
				schema.F("nick", schema.String(schema.Optional(), schema.Nullable(), schema.WithDefault(nil))),
				schema.F("tags", schema.MustSet(schema.TagString)),
				schema.F("address", schema.Record(
					schema.F("city", schema.String()),
					schema.F("zip", schema.Number(schema.WithDefault(75001))),
				).With(schema.Optional())),
			),
			Rules: json.RawMessage(`{"read":{"filter":[["id","=","$SESSION_USER_ID"]]}}`),
		},
		&schema.Collection{Name: "todos", Schema: schema.Record()},
	)
	assert.True(t, want.Equal(def), "compiled definition differs")

	users, ok := def.Collection("users")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "role", "handle", "age", "nick", "tags", "address"}, users.Schema.FieldNames(),
		"attributes keep declaration order")

	require.NoError(t, def.Validate())
	assert.Empty(t, Validate(def))
}

func TestCompileDefinition_NoCollections(t *testing.T) {
	def, err := CompileDefinition(compileString(t, `version: 0`))
	require.NoError(t, err)
	assert.Equal(t, int64(0), def.Version)
	assert.Empty(t, def.Collections)
}

func TestCompileDefinition_Errors(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		wantField string
		wantMsg   string
	}{
		{
			name:      "missing version",
			src:       `collection: a: attributes: {}`,
			wantField: "version",
			wantMsg:   "required",
		},
		{
			name:      "non-integer version",
			src:       `version: "one"`,
			wantField: "version",
			wantMsg:   "integer",
		},
		{
			name:      "missing attributes",
			src:       "version: 1\ncollection: a: rules: {}",
			wantField: "collection.a.attributes",
			wantMsg:   "required",
		},
		{
			name:      "unknown type",
			src:       "version: 1\ncollection: a: attributes: x: {type: \"float\"}",
			wantField: "collection.a.attributes.x.type",
			wantMsg:   `unknown type "float"`,
		},
		{
			name:      "missing type",
			src:       "version: 1\ncollection: a: attributes: x: {optional: true}",
			wantField: "collection.a.attributes.x.type",
			wantMsg:   "required",
		},
		{
			name:      "unknown key",
			src:       "version: 1\ncollection: a: attributes: x: {type: \"string\", required: true}",
			wantField: "collection.a.attributes.x.required",
			wantMsg:   "unknown attribute key",
		},
		{
			name:      "record without properties",
			src:       "version: 1\ncollection: a: attributes: x: {type: \"record\"}",
			wantField: "collection.a.attributes.x.properties",
			wantMsg:   "need properties",
		},
		{
			name:      "properties on register",
			src:       "version: 1\ncollection: a: attributes: x: {type: \"string\", properties: {}}",
			wantField: "collection.a.attributes.x.properties",
			wantMsg:   "records only",
		},
		{
			name:      "default and default_func",
			src:       "version: 1\ncollection: a: attributes: x: {type: \"string\", default: \"a\", default_func: \"uuid\"}",
			wantField: "collection.a.attributes.x.default",
			wantMsg:   "mutually exclusive",
		},
		{
			name:      "enum not a list",
			src:       "version: 1\ncollection: a: attributes: x: {type: \"string\", enum: \"a\"}",
			wantField: "collection.a.attributes.x.enum",
			wantMsg:   "list of strings",
		},
		{
			name:      "optional not a boolean",
			src:       "version: 1\ncollection: a: attributes: x: {type: \"string\", optional: \"yes\"}",
			wantField: "collection.a.attributes.x.optional",
			wantMsg:   "boolean",
		},
		{
			name:      "nested error",
			src:       "version: 1\ncollection: a: attributes: r: {type: \"record\", properties: y: {type: \"list\"}}",
			wantField: "collection.a.attributes.r.properties.y.type",
			wantMsg:   "unknown type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileDefinition(compileString(t, tt.src))
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantField, ce.Field)
			assert.Contains(t, ce.Message, tt.wantMsg)
		})
	}
}

func TestCompileError_Position(t *testing.T) {
	_, err := CompileDefinition(compileString(t, "version: 1\ncollection: a: attributes: x: {type: \"float\"}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema.cue:2:")
}

func TestCompileError_NoPosition(t *testing.T) {
	err := &CompileError{Field: "version", Message: "version is required"}
	assert.Equal(t, "version: version is required", err.Error())
}

func TestCompileCollection_Rules(t *testing.T) {
	v := compileString(t, `
version: 1
collection: notes: {
	attributes: body: {type: "string"}
	rules: {write: true, limit: 3}
}`)

	col, err := CompileCollection(v.LookupPath(cue.ParsePath("collection.notes")))
	require.NoError(t, err)
	assert.Equal(t, "notes", col.Name)
	assert.JSONEq(t, `{"write":true,"limit":3}`, string(col.Rules))
}

func TestLoadDefinition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.cue")
	require.NoError(t, os.WriteFile(path, []byte(usersCUE), 0644))

	fromFile, err := LoadDefinition(path)
	require.NoError(t, err)
	fromDir, err := LoadDefinition(dir)
	require.NoError(t, err)

	assert.True(t, fromFile.Equal(fromDir))
	assert.Equal(t, int64(2), fromFile.Version)

	_, err = LoadDefinition(filepath.Join(dir, "missing.cue"))
	assert.Error(t, err)
}
