package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDefinition() *Definition {
	return NewDefinition(2,
		&Collection{Name: "users", Schema: usersSchema(), Rules: json.RawMessage(`{"read":{"filter":[["id","=","$SESSION_USER_ID"]]}}`)},
		&Collection{Name: "todos", Schema: Record(
			F("text", String()),
			F("done", Boolean(WithDefault(false))),
			F("due", Date(Nullable(), WithDefault(nil))),
		)},
	)
}

func TestDefinitionJSON(t *testing.T) {
	def := NewDefinition(1, &Collection{Name: "users", Schema: Record(
		F("name", String()),
		F("tags", MustSet(TagString, Optional())),
		F("address", Record(F("zip", String(WithEnum("02139"))))),
	)})

	data, err := json.Marshal(def)
	require.NoError(t, err)
	assert.Equal(t,
		`{"version":1,"collections":{"users":{"attributes":{"name":{"type":"string"},"tags":{"type":"set_string","options":{"optional":true}},"address":{"type":"record","properties":{"zip":{"type":"string","options":{"enum":["02139"]}}}}}}}}`,
		string(data))
}

func TestDefinitionJSONRoundTrip(t *testing.T) {
	def := sampleDefinition()

	data, err := json.Marshal(def)
	require.NoError(t, err)

	var decoded Definition
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, def.Equal(&decoded), "decoded: %s", data)
	assert.Equal(t, def.Collections["users"].Schema.FieldNames(), decoded.Collections["users"].Schema.FieldNames())
}

func TestDefinitionJSONErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"missing version", `{"collections":{}}`, ErrInvalidDefinition},
		{"unknown type", `{"version":1,"collections":{"c":{"attributes":{"f":{"type":"map"}}}}}`, ErrInvalidSchemaType},
		{"empty default", `{"version":1,"collections":{"c":{"attributes":{"f":{"type":"string","options":{"default":{}}}}}}}`, ErrInvalidDefinition},
		{"attributes not object", `{"version":1,"collections":{"c":{"attributes":[1]}}}`, ErrInvalidDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var def Definition
			err := json.Unmarshal([]byte(tt.input), &def)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDefinitionValidate(t *testing.T) {
	require.NoError(t, sampleDefinition().Validate())
	require.NoError(t, NewDefinition(MaxVersion).Validate())

	tests := []struct {
		name string
		def  *Definition
		want error
	}{
		{"separator in name", NewDefinition(1, &Collection{Name: "a#b", Schema: Record()}), ErrInvalidDefinition},
		{"no schema", NewDefinition(1, &Collection{Name: "a"}), ErrInvalidDefinition},
		{"reserved id", NewDefinition(1, &Collection{Name: "a", Schema: Record(F("id", String()))}), ErrInvalidDefinition},
		{"reserved deleted", NewDefinition(1, &Collection{Name: "a", Schema: Record(F("_deleted", Boolean()))}), ErrInvalidDefinition},
		{"duplicate field", NewDefinition(1, &Collection{Name: "a", Schema: Record(F("x", String()), F("x", Number()))}), ErrInvalidDefinition},
		{"enum on number", NewDefinition(1, &Collection{Name: "a", Schema: Record(F("x", Number(WithEnum("1"))))}), ErrInvalidDefinition},
		{"bad default", NewDefinition(1, &Collection{Name: "a", Schema: Record(F("x", Number(WithDefault("one"))))}), ErrInvalidValue},
		{"default on set", NewDefinition(1, &Collection{Name: "a", Schema: Record(F("x", &SetType{Elem: TagString, Opts: Options{Default: &Default{Value: nil, Func: "uuid"}}}))}), ErrInvalidDefinition},
		{"bad set element", NewDefinition(1, &Collection{Name: "a", Schema: Record(F("x", &SetType{Elem: TagBoolean}))}), ErrInvalidSetType},
		{"register with set tag", NewDefinition(1, &Collection{Name: "a", Schema: Record(F("x", &RegisterType{Scalar: TagSetString}))}), ErrInvalidSchemaType},
		{"bad rules", NewDefinition(1, &Collection{Name: "a", Schema: Record(), Rules: json.RawMessage(`{`)}), ErrInvalidDefinition},
		{"negative version", NewDefinition(-1), ErrInvalidDefinition},
		{"version beyond exact JSON integers", NewDefinition(MaxVersion + 1), ErrInvalidDefinition},
		{"options on collection root", NewDefinition(1, &Collection{Name: "a", Schema: Record(F("x", String())).With(Optional())}), ErrInvalidDefinition},
		{"nested id allowed but nullable record not", NewDefinition(1, &Collection{Name: "a", Schema: Record(F("r", Record(F("id", String())).With(Nullable())))}), ErrInvalidDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCheckUpgrade(t *testing.T) {
	v1 := NewDefinition(1)
	v2 := NewDefinition(2)

	assert.NoError(t, CheckUpgrade(nil, v1))
	assert.NoError(t, CheckUpgrade(v1, v2))
	assert.NoError(t, CheckUpgrade(v2, v2))
	assert.ErrorIs(t, CheckUpgrade(v2, v1), ErrSchemaVersionRegressed)
}

func TestDefinitionHash(t *testing.T) {
	h1, err := sampleDefinition().Hash()
	require.NoError(t, err)
	h2, err := sampleDefinition().Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	changed := sampleDefinition()
	changed.Version = 3
	h3, err := changed.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestDefinitionEqual(t *testing.T) {
	a := sampleDefinition()
	b := sampleDefinition()
	assert.True(t, a.Equal(b))

	b.Collections["users"].Rules = json.RawMessage(`{"read": {"filter": [["id", "=", "$SESSION_USER_ID"]]}}`)
	assert.True(t, a.Equal(b), "rules compare semantically")

	b.Collections["todos"].Schema = Record(F("done", Boolean(WithDefault(false))), F("text", String()))
	assert.False(t, a.Equal(b), "field order is significant")
}
