package ir

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegments(t *testing.T) {
	s := Str("name")
	n := Num(3)

	assert.False(t, s.IsNumber())
	assert.True(t, n.IsNumber())
	assert.Equal(t, "name", s.Text())
	assert.Equal(t, "3", n.Text())
	assert.Equal(t, String("name"), s.Value())
	assert.Equal(t, Number(3), n.Value())

	f, ok := Str("2.5").Float()
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)
	_, ok = Str("x").Float()
	assert.False(t, ok)
}

func TestSegmentsAreMapKeys(t *testing.T) {
	m := map[Segment]int{Str("1"): 1, Num(1): 2}
	assert.Len(t, m, 2, "string and number segments are distinct keys")
	assert.Equal(t, 2, m[Num(1)])
}

func TestCompareSegments(t *testing.T) {
	segs := []Segment{Str("b"), Num(10), Str("a"), Num(2)}
	slices.SortFunc(segs, CompareSegments)
	assert.Equal(t, []Segment{Num(2), Num(10), Str("a"), Str("b")}, segs)
}

func TestParsePath(t *testing.T) {
	attr, err := ParsePath("tags", 3, Str("x"), 1.5)
	require.NoError(t, err)
	assert.Equal(t, Attribute{Str("tags"), Num(3), Str("x"), Num(1.5)}, attr)

	_, err = ParsePath("a", true)
	assert.Error(t, err, "booleans are not segments")

	assert.Panics(t, func() { MustPath([]int{1}) })
}

func TestAttributeHelpers(t *testing.T) {
	base := MustPath("address")
	full := base.Append(Str("zip"))

	assert.Equal(t, MustPath("address"), base, "Append must not alias")
	assert.True(t, full.HasPrefix(base))
	assert.False(t, base.HasPrefix(full))
	assert.True(t, full.Equal(MustPath("address", "zip")))
	assert.Equal(t, "address.zip", full.String())
	assert.Equal(t, `["address","zip"]`, full.Key())
	assert.NotEqual(t, MustPath("tags", "1").Key(), MustPath("tags", 1).Key())
}

func TestCompareAttributes(t *testing.T) {
	assert.Equal(t, -1, CompareAttributes(MustPath("a"), MustPath("a", "b")))
	assert.Equal(t, 1, CompareAttributes(MustPath("b"), MustPath("a", "b")))
	assert.Equal(t, 0, CompareAttributes(MustPath("a", 1), MustPath("a", 1)))
}

func TestAttributeJSON(t *testing.T) {
	attr := MustPath("tags", 4, "x")

	data, err := json.Marshal(attr)
	require.NoError(t, err)
	assert.Equal(t, `["tags",4,"x"]`, string(data))

	var decoded Attribute
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, attr, decoded)

	empty, err := json.Marshal(Attribute(nil))
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(empty))

	assert.Error(t, json.Unmarshal([]byte(`["a",true]`), &decoded))
}

func TestEntityKey(t *testing.T) {
	key := EntityKey("users", "u1")
	assert.Equal(t, "users#u1", key)

	collection, id, ok := SplitEntityKey(key)
	assert.True(t, ok)
	assert.Equal(t, "users", collection)
	assert.Equal(t, "u1", id)

	_, _, ok = SplitEntityKey("_schema")
	assert.False(t, ok)
}
