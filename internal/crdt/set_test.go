package crdt

import (
	"encoding/json"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/ir"
)

func members(s *Set) []ir.Segment {
	return slices.SortedFunc(s.Members(), ir.CompareSegments)
}

func TestSetAddRemove(t *testing.T) {
	s := NewSet()

	assert.True(t, s.Add(ir.Str("x"), ts(1, "A")))
	assert.True(t, s.Has(ir.Str("x")))

	assert.True(t, s.Remove(ir.Str("x"), ts(2, "A")))
	assert.False(t, s.Has(ir.Str("x")))
	assert.Equal(t, 1, s.Len(), "tombstone is retained")

	assert.False(t, s.Add(ir.Str("x"), ts(1, "B")), "older add cannot resurrect")
	assert.False(t, s.Has(ir.Str("x")))
}

func TestSetRemoveUnseenCreatesTombstone(t *testing.T) {
	s := NewSet()
	s.Remove(ir.Str("ghost"), ts(5, "A"))

	reg, ok := s.Get(ir.Str("ghost"))
	require.True(t, ok)
	assert.Equal(t, ir.Bool(false), reg.Value)

	s.Add(ir.Str("ghost"), ts(3, "B"))
	assert.False(t, s.Has(ir.Str("ghost")))
}

func TestSetMembersAndElements(t *testing.T) {
	s := NewSet()
	s.Add(ir.Str("b"), ts(1, "A"))
	s.Add(ir.Str("a"), ts(2, "A"))
	s.Remove(ir.Str("c"), ts(3, "A"))

	assert.Equal(t, []ir.Segment{ir.Str("a"), ir.Str("b")}, members(s))

	elems := s.Elements()
	require.Len(t, elems, 3)
	assert.Equal(t, ir.Str("a"), elems[0].Key)
	assert.Equal(t, ir.Str("c"), elems[2].Key)
	assert.False(t, elems[2].Present())
}

func TestSetMembersStopsEarly(t *testing.T) {
	s := NewSet()
	for i := range 10 {
		s.Add(ir.Num(float64(i)), ts(int64(i+1), "A"))
	}

	count := 0
	for range s.Members() {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestSetMergeRemoveWins(t *testing.T) {
	replica1 := NewSet()
	replica1.Add(ir.Str("x"), ts(1, "A"))
	replica1.Remove(ir.Str("x"), ts(2, "A"))

	replica2 := NewSet()
	replica2.Add(ir.Str("x"), ts(1, "A"))

	assert.False(t, MergeSets(replica1, replica2).Has(ir.Str("x")))
	assert.False(t, MergeSets(replica2, replica1).Has(ir.Str("x")))
}

func TestSetMergeUnion(t *testing.T) {
	a := NewSet()
	a.Add(ir.Num(1), ts(1, "A"))
	b := NewSet()
	b.Add(ir.Num(2), ts(1, "B"))

	merged := MergeSets(a, b)
	assert.Equal(t, []ir.Segment{ir.Num(1), ir.Num(2)}, members(merged))
	assert.Equal(t, 1, a.Len(), "inputs are not modified")
}

type setOp struct {
	elem    ir.Segment
	present bool
	ts      ir.Timestamp
}

// Two replicas receive disjoint, interleaved halves of one operation log.
// Merging them must equal replaying the whole log in timestamp order.
func TestSetMergeMatchesReplay(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	elements := []ir.Segment{ir.Str("a"), ir.Str("b"), ir.Str("c"), ir.Num(1), ir.Num(2)}

	for round := range 200 {
		n := int64(rng.IntN(30) + 1)
		var ops []setOp
		for seq := int64(1); seq <= n; seq++ {
			ops = append(ops, setOp{
				elem:    elements[rng.IntN(len(elements))],
				present: rng.IntN(2) == 0,
				ts:      ts(seq, []string{"A", "B"}[rng.IntN(2)]),
			})
		}

		left, right := NewSet(), NewSet()
		for _, op := range ops {
			if rng.IntN(2) == 0 {
				left.Apply(op.elem, op.present, op.ts)
			} else {
				right.Apply(op.elem, op.present, op.ts)
			}
		}

		replay := NewSet()
		for _, op := range ops {
			replay.Apply(op.elem, op.present, op.ts)
		}

		mergedLR := MergeSets(left, right)
		mergedRL := MergeSets(right, left)
		assert.Equal(t, members(replay), members(mergedLR), "round %d", round)
		assert.True(t, mergedLR.Equal(mergedRL), "round %d: merge must commute", round)
		assert.True(t, MergeSets(mergedLR, mergedLR).Equal(mergedLR), "round %d: merge must be idempotent", round)
	}
}

func TestSetMergeAssociative(t *testing.T) {
	a, b, c := NewSet(), NewSet(), NewSet()
	a.Add(ir.Str("x"), ts(1, "A"))
	b.Remove(ir.Str("x"), ts(2, "B"))
	c.Add(ir.Str("x"), ts(2, "C"))
	c.Add(ir.Str("y"), ts(1, "C"))

	left := MergeSets(MergeSets(a, b), c)
	right := MergeSets(a, MergeSets(b, c))
	assert.True(t, left.Equal(right))
	assert.True(t, left.Has(ir.Str("x")))
}

func TestSetJSON(t *testing.T) {
	s := NewSet()
	s.Add(ir.Str("a"), ts(1, "A"))
	s.Remove(ir.Str("b"), ts(2, "A"))

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `[["a",[true,[1,"A"]]],["b",[false,[2,"A"]]]]`, string(data))

	decoded := NewSet()
	require.NoError(t, json.Unmarshal(data, decoded))
	assert.True(t, s.Equal(decoded))

	assert.Error(t, json.Unmarshal([]byte(`[["a",["yes",[1,"A"]]]]`), decoded))
}
