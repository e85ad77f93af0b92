// Package kernel implements the sparse BLAS-style building blocks spec.md
// §4.6's permutation application and §4.5's generated pattern inner loops
// are assembled from: gather, scatter, and a strided dot/axpy pair. These
// mirror the level-1/level-2 sparse kernels of a conventional sparse BLAS
// (Dusga/Dusgz/Dussc/Dusdot/Dusaxpy), adapted here to the one-based, pattern-
// aware element stream internal/ir and internal/codegen produce instead of a
// plain (indices, values) sparse vector.
package kernel

// Gather copies y[idx[i]*stride] into dst[i] for every i, the permutation
// half of spec.md §4.6's "permute x and y into scratch buffers before the
// kernel". idx holds 0-based indices.
func Gather(dst, y []float64, idx []int, stride int) {
	for i, ix := range idx {
		dst[i] = y[ix*stride]
	}
}

// Scatter copies src[i] into y[idx[i]*stride] for every i, the inverse of
// Gather: spec.md §4.6's "inverse-permute the result back into y".
func Scatter(y []float64, src []float64, idx []int, stride int) {
	for i, ix := range idx {
		y[ix*stride] = src[i]
	}
}

// GatherZero behaves as Gather but also zeroes each copied source entry,
// generalizing the teacher's Dusgz (gather-and-zero); nothing in this
// module calls it, it is kept for symmetry with Gather/Scatter and for
// callers that need to consume a dense vector exactly once.
func GatherZero(dst, y []float64, idx []int, stride int) {
	for i, ix := range idx {
		dst[i] = y[ix*stride]
		y[ix*stride] = 0
	}
}

// AxpyAt computes y[idx[i]*stride] += alpha*x[i] for every i: the inner
// accumulation step of internal/codegen's vertical template, which scatters
// into multiple output rows.
func AxpyAt(alpha float64, x []float64, idx []int, y []float64, stride int) {
	if alpha == 0 {
		return
	}
	for i, ix := range idx {
		y[ix*stride] += alpha * x[i]
	}
}

// DotAt computes sum(x[i]*y[idx[i]*stride]) for every i: the inner
// accumulation step of internal/codegen's horizontal and delta-run
// templates, which reduce multiple input columns into a single output row.
func DotAt(x []float64, idx []int, y []float64, stride int) float64 {
	var dot float64
	for i, ix := range idx {
		dot += x[i] * y[ix*stride]
	}
	return dot
}

// Permutation is an opaque row/column reordering (spec.md §4.6: "If the
// tuned matrix carries a permutation vector p (from RCM)...", accepted here
// already materialised per SPEC_FULL.md §5's non-goals). Forward maps
// original index -> permuted index; Inverse is its exact inverse.
type Permutation struct {
	Forward []int
	Inverse []int
}

// NewPermutation builds a Permutation from a forward mapping, deriving the
// inverse. It panics if forward is not a bijection on [0,len(forward)) -
// a malformed permutation is a construction-time programmer error, not a
// runtime input the executor must validate per call.
func NewPermutation(forward []int) *Permutation {
	inverse := make([]int, len(forward))
	seen := make([]bool, len(forward))
	for i, f := range forward {
		if f < 0 || f >= len(forward) || seen[f] {
			panic("kernel: forward is not a permutation")
		}
		seen[f] = true
		inverse[f] = i
	}
	return &Permutation{Forward: forward, Inverse: inverse}
}

// Apply permutes src into dst, dst = P(src): position j of the permuted
// vector holds the original entry at index p.Inverse[j] (the entry whose
// forward image is j), so this is a gather over Inverse.
func (p *Permutation) Apply(dst, src []float64) {
	Gather(dst, src, p.Inverse, 1)
}

// ApplyInverse permutes src into dst, dst = P⁻¹(src): original index i's
// value sits at permuted position p.Forward[i], so this is a gather over
// Forward.
func (p *Permutation) ApplyInverse(dst, src []float64) {
	Gather(dst, src, p.Forward, 1)
}
