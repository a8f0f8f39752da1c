// Package multivector implements ColBERT-style late-interaction scoring
// over ordered groups of equal-dimension sub-vectors ("MultiVector"s).
package multivector

import (
	"errors"
	"math"

	"github.com/orneryd/vecdb/pkg/vector"
)

// ErrEmpty is returned when constructing a MultiVector from zero rows.
var ErrEmpty = errors.New("multivector: must have at least one row")

// ErrRagged is returned when constructing a MultiVector whose rows are not
// all the same dimension.
var ErrRagged = errors.New("multivector: rows must share one dimension")

// MultiVector is an ordered, non-empty group of dense sub-vectors of equal
// dimension.
type MultiVector struct {
	Rows []vector.Vector
	Dim  int
}

// New validates rows and builds a MultiVector. Rejects empty or ragged input.
func New(rows [][]float32) (MultiVector, error) {
	if len(rows) == 0 {
		return MultiVector{}, ErrEmpty
	}
	dim := len(rows[0])
	vecs := make([]vector.Vector, len(rows))
	for i, r := range rows {
		if len(r) != dim {
			return MultiVector{}, ErrRagged
		}
		vecs[i] = vector.New(r)
	}
	return MultiVector{Rows: vecs, Dim: dim}, nil
}

// FromSingle wraps a single dense vector as a 1-row MultiVector, keeping the
// scoring API uniform for documents that have no real multivector field.
func FromSingle(v []float32) MultiVector {
	return MultiVector{Rows: []vector.Vector{vector.New(v)}, Dim: len(v)}
}

// MaxSim computes the dot-product MaxSim score between a query and a
// document MultiVector: for each query row, take the max dot product over
// document rows, and sum the maxima. A query row with no finite maximum
// (e.g. an empty document) contributes zero.
func MaxSim(query, doc MultiVector) float64 {
	var total float64
	for _, q := range query.Rows {
		best := math.Inf(-1)
		for _, d := range doc.Rows {
			s := float64(vector.Dot(q.Data, d.Data))
			if s > best {
				best = s
			}
		}
		if !math.IsInf(best, -1) {
			total += best
		}
	}
	return total
}

// MaxSimCosine is MaxSim using cosine similarity per pair. Zero-norm rows
// are skipped (treated as absent from that query row's max search).
func MaxSimCosine(query, doc MultiVector) float64 {
	var total float64
	for _, q := range query.Rows {
		qn := vector.Norm(q.Data)
		if qn == 0 {
			continue
		}
		best := math.Inf(-1)
		found := false
		for _, d := range doc.Rows {
			dn := vector.Norm(d.Data)
			if dn == 0 {
				continue
			}
			s := float64(vector.Dot(q.Data, d.Data)) / (float64(qn) * float64(dn))
			if s > best {
				best = s
			}
			found = true
		}
		if found {
			total += best
		}
	}
	return total
}

// MaxSimL2 computes a MaxSim variant for Euclidean-configured collections:
// for each query row, take the min L2 distance over document rows, and
// report the negated sum of minima so that higher is still better.
func MaxSimL2(query, doc MultiVector) float64 {
	var totalMin float64
	for _, q := range query.Rows {
		best := math.Inf(1)
		for _, d := range doc.Rows {
			dist := q.L2Distance(d)
			if dist < best {
				best = dist
			}
		}
		if !math.IsInf(best, 1) {
			totalMin += best
		}
	}
	return -totalMin
}
