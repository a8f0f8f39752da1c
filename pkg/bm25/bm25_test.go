package bm25

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndSearchBasic(t *testing.T) {
	idx := New()
	for i := 0; i < 10; i++ {
		idx.Insert(fmt.Sprintf("doc-%d", i), fmt.Sprintf("this document covers topic number %d in depth", i))
	}
	idx.Insert("off-topic", "completely unrelated content about gardening")

	results := idx.Search("topic", 5)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.NotEqual(t, "off-topic", r.DocID)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := New()
	assert.Empty(t, idx.Search("anything", 5))
}

func TestSearchEmptyQuery(t *testing.T) {
	idx := New()
	idx.Insert("a", "some content")
	assert.Empty(t, idx.Search("   ", 5))
}

func TestDeleteRemovesDocument(t *testing.T) {
	idx := New()
	idx.Insert("a", "apples and oranges")
	idx.Insert("b", "apples only")
	idx.Delete("a")

	assert.Equal(t, 1, idx.Count())
	results := idx.Search("apples", 5)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].DocID)
}

func TestReinsertReplacesPriorContent(t *testing.T) {
	idx := New()
	idx.Insert("a", "alpha beta")
	idx.Insert("a", "gamma delta")

	assert.Empty(t, idx.Search("alpha", 5))
	results := idx.Search("gamma", 5)
	require.Len(t, results, 1)
}

// TestScoreMonotoneInTermFrequency checks BM25's core monotonicity property:
// holding document length roughly fixed, more occurrences of the query term
// score at least as high.
func TestScoreMonotoneInTermFrequency(t *testing.T) {
	idx := New()
	idx.Insert("low", "signal noise noise noise noise noise noise noise noise noise")
	idx.Insert("high", "signal signal signal signal noise noise noise noise noise noise")
	// Filler docs without the query term keep its idf above the zero clamp
	// (with only the two docs above, df == N and idf would be 0).
	idx.Insert("filler1", "unrelated words only here")
	idx.Insert("filler2", "more unrelated words here")
	idx.Insert("filler3", "still nothing relevant here")

	results := idx.Search("signal", 2)
	require.Len(t, results, 2)

	scoreByID := map[string]float64{}
	for _, r := range results {
		scoreByID[r.DocID] = r.Score
	}
	assert.Greater(t, scoreByID["high"], scoreByID["low"])
}

func TestTokenizeDropsShortAndPunctuation(t *testing.T) {
	toks := tokenize("A cat, sat: on-the mat! It's 42 fine.")
	for _, tok := range toks {
		assert.GreaterOrEqual(t, len([]rune(tok)), 2)
	}
	assert.Contains(t, toks, "cat")
	assert.Contains(t, toks, "42")
	assert.NotContains(t, toks, "a")
}

func TestSearchRespectsK(t *testing.T) {
	idx := New()
	for i := 0; i < 20; i++ {
		idx.Insert(fmt.Sprintf("d%d", i), "repeated keyword appears here")
	}
	results := idx.Search("keyword", 3)
	assert.Len(t, results, 3)
}
