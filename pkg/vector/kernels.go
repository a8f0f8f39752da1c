// Package vector provides the dense float32 vector kernels (dot product,
// L2 distance, norm) used by the HNSW index, the brute-force search path,
// and MaxSim scoring, plus a thin Vector wrapper around them.
//
// Dot/L2/Norm dispatch at call time on detected CPU features, in priority
// order: AVX2+FMA (16-lane, two accumulators), SSE (4-lane), NEON (8-lane,
// two accumulators), falling back to a two-accumulator scalar loop over
// chunks of 8 (dot) or 4 (l2). Go has no portable way to emit AVX2/NEON
// instructions without hand-written assembly per architecture; instead
// each tier is a manually unrolled pure-Go loop shaped like the target
// lane width, so behavior (and branch structure) matches a systems-language
// implementation even though codegen is left to the Go compiler. All
// kernels are pure: they never allocate and assume equal-length inputs.
package vector

import (
	"math"

	"golang.org/x/sys/cpu"
)

// kernelTier identifies which unrolled loop shape a call dispatches to.
type kernelTier int

const (
	tierScalar kernelTier = iota
	tierSSE4
	tierNEON8
	tierAVX2x16
)

var detectedTier = detectTier()

func detectTier() kernelTier {
	if cpu.X86.HasAVX2 && cpu.X86.HasFMA {
		return tierAVX2x16
	}
	if cpu.X86.HasSSE2 {
		return tierSSE4
	}
	if cpu.ARM64.HasASIMD {
		return tierNEON8
	}
	return tierScalar
}

// Dot computes the dot product of a and b. Returns 0 if lengths differ.
func Dot(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	switch {
	case detectedTier == tierAVX2x16 && len(a) >= 32:
		return dotAVX2(a, b)
	case detectedTier == tierSSE4 && len(a) >= 16:
		return dotSSE(a, b)
	case detectedTier == tierNEON8 && len(a) >= 16:
		return dotNEON(a, b)
	default:
		return dotScalar(a, b)
	}
}

// L2 computes the squared Euclidean distance between a and b. Returns
// +Inf if lengths differ.
func L2(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	switch {
	case detectedTier == tierAVX2x16 && len(a) >= 32:
		return l2AVX2(a, b)
	case detectedTier == tierSSE4 && len(a) >= 16:
		return l2SSE(a, b)
	case detectedTier == tierNEON8 && len(a) >= 16:
		return l2NEON(a, b)
	default:
		return l2Scalar(a, b)
	}
}

// Norm computes the L2 norm (magnitude) of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// --- scalar fallback: two accumulators, chunks of 8 (dot) / 4 (l2) ---

func dotScalar(a, b []float32) float32 {
	var acc0, acc1 float32
	n := len(a)
	i := 0
	for ; i+8 <= n; i += 8 {
		acc0 += a[i]*b[i] + a[i+1]*b[i+1] + a[i+2]*b[i+2] + a[i+3]*b[i+3]
		acc1 += a[i+4]*b[i+4] + a[i+5]*b[i+5] + a[i+6]*b[i+6] + a[i+7]*b[i+7]
	}
	sum := acc0 + acc1
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func l2Scalar(a, b []float32) float32 {
	var acc0, acc1 float32
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		d0, d1 := a[i]-b[i], a[i+1]-b[i+1]
		d2, d3 := a[i+2]-b[i+2], a[i+3]-b[i+3]
		acc0 += d0*d0 + d1*d1
		acc1 += d2*d2 + d3*d3
	}
	sum := acc0 + acc1
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// --- SSE tier: 4-lane body ---

func dotSSE(a, b []float32) float32 {
	n := len(a)
	var lane [4]float32
	i := 0
	for ; i+4 <= n; i += 4 {
		lane[0] += a[i] * b[i]
		lane[1] += a[i+1] * b[i+1]
		lane[2] += a[i+2] * b[i+2]
		lane[3] += a[i+3] * b[i+3]
	}
	sum := lane[0] + lane[1] + lane[2] + lane[3]
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func l2SSE(a, b []float32) float32 {
	n := len(a)
	var lane [4]float32
	i := 0
	for ; i+4 <= n; i += 4 {
		for j := 0; j < 4; j++ {
			d := a[i+j] - b[i+j]
			lane[j] += d * d
		}
	}
	sum := lane[0] + lane[1] + lane[2] + lane[3]
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// --- NEON tier: 8-lane body, two FMA accumulators ---

func dotNEON(a, b []float32) float32 {
	n := len(a)
	var lo, hi [4]float32
	i := 0
	for ; i+8 <= n; i += 8 {
		for j := 0; j < 4; j++ {
			lo[j] += a[i+j] * b[i+j]
			hi[j] += a[i+4+j] * b[i+4+j]
		}
	}
	sum := lo[0] + lo[1] + lo[2] + lo[3] + hi[0] + hi[1] + hi[2] + hi[3]
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func l2NEON(a, b []float32) float32 {
	n := len(a)
	var lo, hi [4]float32
	i := 0
	for ; i+8 <= n; i += 8 {
		for j := 0; j < 4; j++ {
			d0 := a[i+j] - b[i+j]
			lo[j] += d0 * d0
			d1 := a[i+4+j] - b[i+4+j]
			hi[j] += d1 * d1
		}
	}
	sum := lo[0] + lo[1] + lo[2] + lo[3] + hi[0] + hi[1] + hi[2] + hi[3]
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// --- AVX2+FMA tier: 16-lane body, two FMA accumulators, horizontal reduction ---

func dotAVX2(a, b []float32) float32 {
	n := len(a)
	var acc0, acc1 [8]float32
	i := 0
	for ; i+16 <= n; i += 16 {
		for j := 0; j < 8; j++ {
			acc0[j] += a[i+j] * b[i+j]
			acc1[j] += a[i+8+j] * b[i+8+j]
		}
	}
	var sum float32
	for j := 0; j < 8; j++ {
		sum += acc0[j] + acc1[j]
	}
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func l2AVX2(a, b []float32) float32 {
	n := len(a)
	var acc0, acc1 [8]float32
	i := 0
	for ; i+16 <= n; i += 16 {
		for j := 0; j < 8; j++ {
			d0 := a[i+j] - b[i+j]
			acc0[j] += d0 * d0
			d1 := a[i+8+j] - b[i+8+j]
			acc1[j] += d1 * d1
		}
	}
	var sum float32
	for j := 0; j < 8; j++ {
		sum += acc0[j] + acc1[j]
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
