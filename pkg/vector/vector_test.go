package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
		epsilon  float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0, 1e-6},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0, 1e-6},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0, 1e-6},
		{"similar", []float32{1, 2, 3}, []float32{4, 5, 6}, 0.9746318461970762, 1e-4},
		{"mismatched dims", []float32{1, 2}, []float32{1, 2, 3}, 0, 1e-9},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0, 1e-9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.a).Cosine(New(tt.b))
			assert.InDelta(t, tt.expected, got, tt.epsilon)
		})
	}
}

func TestCosineSelfIsOne(t *testing.T) {
	v := New([]float32{3, -1, 4, 1, 5, 9, 2, 6})
	assert.InDelta(t, 1.0, v.Cosine(v), 1e-6)
}

func TestCosineBounded(t *testing.T) {
	a := New([]float32{1, 2, 3, 4, 5})
	b := New([]float32{5, -4, 3, -2, 1})
	sim := a.Cosine(b)
	assert.LessOrEqual(t, math.Abs(sim), 1.0+1e-9)
}

func TestNormalize(t *testing.T) {
	v := New([]float32{3, 4})
	n := v.Normalize()
	assert.InDelta(t, 0.6, n.Data[0], 1e-6)
	assert.InDelta(t, 0.8, n.Data[1], 1e-6)
	assert.InDelta(t, 1.0, float64(Norm(n.Data)), 1e-6)
}

func TestNormalizeZeroVector(t *testing.T) {
	v := New([]float32{0, 0, 0})
	n := v.Normalize()
	assert.Equal(t, []float32{0, 0, 0}, n.Data)
}

func TestNormalizeInPlace(t *testing.T) {
	v := New([]float32{3, 4})
	v.NormalizeInPlace()
	assert.InDelta(t, 0.6, v.Data[0], 1e-6)
	assert.InDelta(t, 0.8, v.Data[1], 1e-6)
}

func TestDotMismatchedLengthsReturnsZero(t *testing.T) {
	assert.Equal(t, float32(0), Dot([]float32{1, 2}, []float32{1, 2, 3}))
}

func TestL2MismatchedLengthsReturnsInf(t *testing.T) {
	assert.True(t, math.IsInf(float64(L2([]float32{1, 2}, []float32{1, 2, 3})), 1))
}

func TestKernelTiersAgree(t *testing.T) {
	a := make([]float32, 130)
	b := make([]float32, 130)
	for i := range a {
		a[i] = float32(i%7) - 3
		b[i] = float32((i*3)%11) - 5
	}
	wantDot := dotScalar(a, b)
	assert.InDelta(t, wantDot, dotSSE(a, b), 1e-2)
	assert.InDelta(t, wantDot, dotNEON(a, b), 1e-2)
	assert.InDelta(t, wantDot, dotAVX2(a, b), 1e-2)

	wantL2 := l2Scalar(a, b)
	assert.InDelta(t, wantL2, l2SSE(a, b), 1e-1)
	assert.InDelta(t, wantL2, l2NEON(a, b), 1e-1)
	assert.InDelta(t, wantL2, l2AVX2(a, b), 1e-1)
}

func TestL2DistanceIdentity(t *testing.T) {
	v := New([]float32{1, 2, 3})
	assert.InDelta(t, 0.0, v.L2Distance(v), 1e-9)
}
