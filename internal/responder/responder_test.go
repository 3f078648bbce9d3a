package responder

import (
	"Go2Mgen/internal/mgenerr"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeNodes() *Responder {
	r := New(5522)
	r.Add("a", "10.0.0.1", 1)
	r.Add("b", "10.0.0.2", 2)
	r.Add("c", "10.0.0.3", 1)
	return r
}

func TestSelect_KnownSequence(t *testing.T) {
	r := threeNodes()
	cases := []struct {
		prev string
		want []string
	}{
		{"", []string{"b", "b", "a", "c", "c", "b", "c", "b"}},
		{"b", []string{"c", "c", "c", "a", "a", "a", "a", "c"}},
		{"a", []string{"b", "b", "b", "c", "b", "c", "c", "b"}},
	}
	for _, tc := range cases {
		var got []string
		for msg := uint32(1); msg <= 8; msg++ {
			id, err := r.SelectID(1, msg, tc.prev)
			require.NoError(t, err)
			got = append(got, id)
		}
		assert.Equal(t, tc.want, got, "prev %q", tc.prev)
	}
}

func TestSelect_Deterministic(t *testing.T) {
	r1, r2 := threeNodes(), threeNodes()
	for msg := uint32(1); msg < 200; msg++ {
		a, err := r1.Select(7, msg, "c")
		require.NoError(t, err)
		b, err := r2.Select(7, msg, "c")
		require.NoError(t, err)
		again, err := r1.Select(7, msg, "c")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, a, again)
	}
}

func TestSelect_ExcludesPrevious(t *testing.T) {
	r := threeNodes()
	for _, prev := range []string{"a", "b", "c"} {
		for msg := uint32(1); msg <= 500; msg++ {
			id, err := r.SelectID(3, msg, prev)
			require.NoError(t, err)
			require.NotEqual(t, prev, id, "msg %d", msg)
		}
	}
}

func TestSelect_ProportionalToWeight(t *testing.T) {
	r := New(5)
	r.Add("A", "", 1)
	r.Add("B", "", 3)

	counts := map[string]int{}
	const n = 40000
	for msg := uint32(1); msg <= n; msg++ {
		id, err := r.SelectID(1, msg, "")
		require.NoError(t, err)
		counts[id]++
	}
	ratio := float64(counts["B"]) / float64(counts["A"])
	assert.InDelta(t, 3.0, ratio, 0.25, "counts %v", counts)
}

func TestSelect_Errors(t *testing.T) {
	_, err := New(1).Select(1, 1, "")
	assert.True(t, errors.Is(err, mgenerr.ErrNoRespondent))

	_, err = threeNodes().Select(1, 1, "zz")
	assert.True(t, errors.Is(err, mgenerr.ErrUnknownRespondent))
}

func TestSelect_SingleRespondentAnswersItself(t *testing.T) {
	r := New(9)
	r.Add("solo", "10.1.1.1", 4)
	id, err := r.SelectID(1, 2, "solo")
	require.NoError(t, err)
	assert.Equal(t, "solo", id)

	addr, err := r.SelectAddr(1, 2, "solo")
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1", addr)
}

func TestAdd_RebuildsAndClampsWeight(t *testing.T) {
	r := New(1)
	r.Add("x", "", 0)
	r.Add("y", "", -3)
	_, err := r.Select(1, 1, "")
	require.NoError(t, err)

	// Adding after a selection rebuilds the pick array.
	r.Add("z", "", 2)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []Respondent{
		{ID: "x", Weight: 1},
		{ID: "y", Weight: 1},
		{ID: "z", Weight: 2},
	}, r.Respondents())

	seen := map[string]bool{}
	for msg := uint32(1); msg <= 200; msg++ {
		id, err := r.SelectID(1, msg, "")
		require.NoError(t, err)
		seen[id] = true
	}
	assert.Len(t, seen, 3)
}
