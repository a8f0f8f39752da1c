package hnsw

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/vecdb/pkg/vector"
)

func normalized(vals ...float32) []float32 {
	return vector.New(vals).Normalize().Data
}

func TestInsertAndSearchBasic(t *testing.T) {
	idx := New(3)
	for i := 1; i <= 9; i++ {
		v := float32(i)
		idx.Insert(fmt.Sprintf("p%d", i), normalized(v, v, v))
	}

	results := idx.Search(normalized(5, 5, 5), 3, 0)
	require.Len(t, results, 3)

	ids := map[string]bool{}
	for _, r := range results {
		ids[r.ID] = true
		assert.InDelta(t, 1.0, r.Similarity, 1e-5)
	}
	assert.True(t, ids["p5"])
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := New(4)
	results := idx.Search(normalized(1, 0, 0, 0), 5, 0)
	assert.Empty(t, results)
}

func TestSearchReturnsExactlyK(t *testing.T) {
	idx := New(2)
	for i := 0; i < 50; i++ {
		v := float32(i + 1)
		idx.Insert(fmt.Sprintf("id-%d", i), normalized(v, v*2))
	}
	results := idx.Search(normalized(25, 50), 10, 0)
	assert.Len(t, results, 10)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestRemoveThenSearch(t *testing.T) {
	idx := New(2)
	idx.Insert("a", normalized(1, 0))
	idx.Insert("b", normalized(0, 1))
	idx.Insert("c", normalized(1, 1))

	assert.True(t, idx.Remove("b"))
	assert.False(t, idx.Contains("b"))
	assert.Equal(t, 2, idx.Len())

	results := idx.Search(normalized(1, 0), 2, 0)
	for _, r := range results {
		assert.NotEqual(t, "b", r.ID)
	}
}

func TestRemoveMissingReturnsFalse(t *testing.T) {
	idx := New(2)
	idx.Insert("a", normalized(1, 0))
	assert.False(t, idx.Remove("does-not-exist"))
}

func TestRemoveEntryPointReindexes(t *testing.T) {
	idx := New(2)
	idx.Insert("a", normalized(1, 0))
	idx.Insert("b", normalized(0, 1))
	idx.Insert("c", normalized(-1, 0))

	assert.True(t, idx.Remove("a"))
	assert.Equal(t, 2, idx.Len())
	results := idx.Search(normalized(0, 1), 2, 0)
	require.NotEmpty(t, results)
}

func TestLargeGraphUsesIndexedPath(t *testing.T) {
	idx := New(8)
	for i := 0; i < 1500; i++ {
		vec := make([]float32, 8)
		for d := range vec {
			vec[d] = float32((i + d) % 17)
		}
		idx.Insert(fmt.Sprintf("n%d", i), vector.New(vec).Normalize().Data)
	}
	query := vector.New([]float32{3, 4, 5, 6, 7, 8, 9, 10}).Normalize().Data
	results := idx.Search(query, 5, 0)
	assert.Len(t, results, 5)
}

func TestVisitedSetWraparound(t *testing.T) {
	v := newVisitedSet()
	v.insert(5)
	assert.True(t, v.contains(5))

	v.clear()
	assert.False(t, v.contains(5))

	// force the generation counter through a full wrap
	v.current = ^uint32(0)
	v.insert(7)
	assert.True(t, v.contains(7))
	v.clear() // wraps current back to 0, then resets to 1 and zeroes storage
	assert.False(t, v.contains(7))
	assert.Equal(t, uint32(1), v.current)
}
