// Package bm25 implements an Okapi BM25 full-text index: tokenizer,
// inverted index, per-document lengths, and scoring.
package bm25

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Scoring constants fixed by spec §3/§4.3.
const (
	k1 = 1.5
	b  = 0.75
)

// Result is one scored document.
type Result struct {
	DocID string
	Score float64
}

// Index is an Okapi BM25 inverted index over plain-text documents.
type Index struct {
	mu sync.RWMutex

	// term -> docID -> term frequency
	postings map[string]map[string]int
	// term -> document frequency (number of docs containing the term)
	docFreq map[string]int
	// docID -> token count
	docLengths map[string]int
	totalDocs  int
	totalLen   int64
}

// New creates an empty BM25 index.
func New() *Index {
	return &Index{
		postings:   make(map[string]map[string]int),
		docFreq:    make(map[string]int),
		docLengths: make(map[string]int),
	}
}

// Insert indexes text under docID, replacing any prior entry for that id.
func (idx *Index) Insert(docID, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteLocked(docID)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return
	}

	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	for term, freq := range tf {
		docs, ok := idx.postings[term]
		if !ok {
			docs = make(map[string]int)
			idx.postings[term] = docs
		}
		docs[docID] = freq
		idx.docFreq[term]++
	}

	idx.docLengths[docID] = len(tokens)
	idx.totalDocs++
	idx.totalLen += int64(len(tokens))
}

// Delete removes docID from the index, if present.
func (idx *Index) Delete(docID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteLocked(docID)
}

func (idx *Index) deleteLocked(docID string) {
	length, ok := idx.docLengths[docID]
	if !ok {
		return
	}
	for term, docs := range idx.postings {
		if _, present := docs[docID]; present {
			delete(docs, docID)
			if idx.docFreq[term] > 0 {
				idx.docFreq[term]--
			}
			if idx.docFreq[term] == 0 {
				delete(idx.docFreq, term)
			}
			if len(docs) == 0 {
				delete(idx.postings, term)
			}
		}
	}
	delete(idx.docLengths, docID)
	idx.totalDocs--
	idx.totalLen -= int64(length)
}

// Count returns the number of indexed documents.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.totalDocs
}

// Search tokenises query and returns the top k documents by BM25 score.
// An empty index or empty query yields an empty result.
func (idx *Index) Search(query string, k int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.totalDocs == 0 {
		return nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	avgdl := float64(idx.totalLen) / float64(idx.totalDocs)
	n := float64(idx.totalDocs)

	scores := make(map[string]float64)
	order := make([]string, 0)
	for _, term := range terms {
		docs, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := float64(idx.docFreq[term])
		idf := math.Log((n - df + 0.5) / (df + 0.5))
		if idf < 0 {
			idf = 0
		}
		for doc, tf := range docs {
			if _, seen := scores[doc]; !seen {
				order = append(order, doc)
			}
			dl := float64(idx.docLengths[doc])
			t := float64(tf)
			denom := t + k1*(1-b+b*(dl/avgdl))
			scores[doc] += idf * (t * (k1 + 1) / denom)
		}
	}

	results := make([]Result, 0, len(order))
	for _, doc := range order {
		results = append(results, Result{DocID: doc, Score: scores[doc]})
	}
	// equal scores are ordered by DocID so ties come out the same on every call.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// tokenize lowercases text, splits on whitespace/ASCII punctuation, trims
// non-alphanumeric edges, and drops empty tokens or tokens shorter than 2
// runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(f)) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}
