package csx

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CSRInput is an already-materialised, 0-based CSR matrix handed to Tune.
// Matrix-Market parsing and any reordering (e.g. RCM) happen upstream of
// this package (SPEC_FULL §5 Non-goals); CSRInput only validates and wraps
// three parallel arrays. It implements gonum.org/v1/gonum/mat.Matrix the
// way the teacher's CSR does, so callers can build or compare it against
// any other gonum/mat type directly.
type CSRInput struct {
	nrows, ncols int
	rowptr       []int
	colind       []int
	data         []float64
}

var _ mat.Matrix = (*CSRInput)(nil)

// NewCSRInput validates and wraps a CSR triple. rowptr must have length
// nrows+1 and be non-decreasing; colind/data must be at least
// rowptr[nrows] long and every column index must lie in [0,ncols). This
// mirrors spec.md §7's "fatal input error" taxonomy: a malformed input is
// rejected here, before any partition is ever created.
func NewCSRInput(nrows, ncols int, rowptr, colind []int, data []float64) (*CSRInput, error) {
	if nrows < 0 || ncols < 0 {
		return nil, newError(InputMatrixInvalid, "negative dimensions (%d, %d)", nrows, ncols)
	}
	if len(rowptr) != nrows+1 {
		return nil, newError(InputMatrixInvalid, "rowptr has length %d, want %d", len(rowptr), nrows+1)
	}
	for i := 0; i < nrows; i++ {
		if rowptr[i+1] < rowptr[i] {
			return nil, newError(InputMatrixInvalid, "rowptr is not non-decreasing at row %d", i)
		}
	}
	nnz := rowptr[nrows]
	if nnz < 0 || len(colind) < nnz || len(data) < nnz {
		return nil, newError(InputMatrixInvalid, "colind/data shorter than rowptr[nrows]=%d", nnz)
	}
	for _, c := range colind[:nnz] {
		if c < 0 || c >= ncols {
			return nil, newError(InputMatrixInvalid, "column index %d out of range [0,%d)", c, ncols)
		}
	}
	return &CSRInput{nrows: nrows, ncols: ncols, rowptr: rowptr, colind: colind, data: data}, nil
}

// Dims implements mat.Matrix.
func (m *CSRInput) Dims() (r, c int) { return m.nrows, m.ncols }

// At implements mat.Matrix. It scans the requested row's stored entries
// linearly; CSRInput is an ingress type, not a hot-path one, so this
// favours simplicity over the bounded op scan TunedMatrix.At uses against
// a built CSX image.
func (m *CSRInput) At(i, j int) float64 {
	if i < 0 || i >= m.nrows {
		panic(fmt.Sprintf("csx: row index %d out of range [0,%d)", i, m.nrows))
	}
	if j < 0 || j >= m.ncols {
		panic(fmt.Sprintf("csx: column index %d out of range [0,%d)", j, m.ncols))
	}
	for k := m.rowptr[i]; k < m.rowptr[i+1]; k++ {
		if m.colind[k] == j {
			return m.data[k]
		}
	}
	return 0
}

// T implements mat.Matrix's transpose; CSRInput has no transposed storage
// of its own, so it returns a dense transpose view the way gonum's own
// mat.Matrix implementations fall back to when no cheaper view exists.
func (m *CSRInput) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// NNZ returns the number of stored non-zeros.
func (m *CSRInput) NNZ() int { return m.rowptr[m.nrows] }

// RawCSR exposes the three backing arrays read-only, for callers (notably
// Tune) that need direct CSR access without going through At's per-row
// linear scan.
func (m *CSRInput) RawCSR() (rowptr, colind []int, data []float64) {
	return m.rowptr, m.colind, m.data
}
