// Package ir implements the internal coordinate form of spec.md §3/§4.2/§4.3:
// the per-partition workspace the statistics engine scans and the encoder
// rewrites. An ir.Partition is a row-indexed sequence of elements, each
// carrying a mutable pattern slot, plus a row pointer. It can be reordered
// in place along any of the coordinate maps of spec.md §4.2 and reordered
// back. Folding runs into pattern records is done by internal/encode.
//
// The coordinate map formulas below are ported directly from the teacher
// specification's origin (cslab-ntua/sparsex, csx/spm.cc's pnt_map_*/
// pnt_rmap_* family) rather than re-derived from spec.md §4.2's prose,
// because that prose's block-row formula carries a stray "· r" factor not
// present in the original source; see DESIGN.md.
package ir

import (
	"fmt"
	"sort"

	"github.com/jbowman-csx/csx/internal/types"
)

// Element is a single non-zero in one-based logical coordinates (spec.md
// §3). Pattern is nil for an ordinary scalar element; when non-nil, Row/Col
// is the pattern's anchor (its first element's coordinate in the current
// iteration order) and Vals holds the pattern's payload, len(Vals) ==
// Pattern.Size.
//
// Deltas is populated only for a TypeDeltaRun pattern: every regular pattern
// type's successive column strides are implicit in (Type, Size, Delta,
// OtherDim) and need not be stored, but a delta-run's whole point is to
// carry elements with no shared stride, so its len(Size)-1 successive
// column deltas (spec.md §4.4, "deltas are the per-element strides after
// the first") are recorded explicitly at fold time, before the original
// per-element columns are discarded.
type Element struct {
	Row, Col int
	Val      float64

	Pattern *types.Pattern
	Vals    []float64
	Deltas  []int64
}

// Size returns how many original non-zeros this element accounts for: 1 for
// a scalar element, Pattern.Size for a pattern record.
func (e Element) Size() int {
	if e.Pattern != nil {
		return e.Pattern.Size
	}
	return 1
}

// Partition is the mutable IR workspace for one row-contiguous slice of the
// matrix (spec.md §3, "Partition"). RowStart is the global row offset of
// the partition's horizontal (row-order) form; rows are addressed locally
// (0-based) via RowPtr. OrigNRows/OrigNCols record the horizontal-form
// dimensions so a transformed partition can always be restored exactly,
// regardless of how many intermediate transforms it has been through.
type Partition struct {
	RowStart int
	NRows    int
	NCols    int
	Type     types.EncodingType // current iteration order; TypeHorizontal is row order

	OrigNRows int
	OrigNCols int

	Elems  []Element
	RowPtr []int // len NRows+1

	// window marks a non-owning view created by Window: its elements'
	// Vals/Deltas payloads alias a parent partition's storage, so it must
	// never be mutated in place (spec.md §3, "Partition").
	window bool
}

// New builds a row-ordered partition from a row-indexed element slice and
// row pointer. It does not sort or validate; callers building from raw CSR
// data should use FromCSR instead.
func New(rowStart, nrows, ncols int, elems []Element, rowptr []int) *Partition {
	return &Partition{
		RowStart:  rowStart,
		NRows:     nrows,
		NCols:     ncols,
		Type:      types.TypeHorizontal,
		OrigNRows: nrows,
		OrigNCols: ncols,
		Elems:     elems,
		RowPtr:    rowptr,
	}
}

// FromCSR builds a row-ordered IR partition from a 0-based CSR row slice:
// rowptr has length nrows+1 and indexes into colind/data, whose values are
// 0-based column indices. Coordinates are stored one-based internally
// (spec.md §3).
func FromCSR(rowStart, nrows, ncols int, rowptr []int, colind []int, data []float64) (*Partition, error) {
	if len(rowptr) != nrows+1 {
		return nil, fmt.Errorf("ir: rowptr has length %d, want %d", len(rowptr), nrows+1)
	}
	nnz := rowptr[nrows]
	if len(colind) < nnz || len(data) < nnz {
		return nil, fmt.Errorf("ir: colind/data shorter than rowptr[nrows]=%d", nnz)
	}
	for i := 0; i < nrows; i++ {
		if rowptr[i+1] < rowptr[i] {
			return nil, fmt.Errorf("ir: non-monotone rowptr at row %d", i)
		}
	}
	elems := make([]Element, nnz)
	rp := make([]int, nrows+1)
	for i := 0; i < nrows; i++ {
		rp[i] = rowptr[i]
		for k := rowptr[i]; k < rowptr[i+1]; k++ {
			if colind[k] < 0 || colind[k] >= ncols {
				return nil, fmt.Errorf("ir: column index %d out of range [0,%d)", colind[k], ncols)
			}
			elems[k] = Element{Row: i + 1, Col: colind[k] + 1, Val: data[k]}
		}
	}
	rp[nrows] = rowptr[nrows]
	return New(rowStart, nrows, ncols, elems, rp), nil
}

// NNZ returns the number of stored non-zeros accounted for in the
// partition, counting every element inside a pattern record
// (Σ pattern.size + unpatterned == nnz, spec.md §3 invariant).
func (p *Partition) NNZ() int {
	n := 0
	for _, e := range p.Elems {
		n += e.Size()
	}
	return n
}

// Row returns the slice of elements belonging to local row i in the current
// iteration order.
func (p *Partition) Row(i int) []Element {
	return p.Elems[p.RowPtr[i]:p.RowPtr[i+1]]
}

// Clone returns a deep, owning copy of the partition. The statistics engine
// clones before transforming so analysis never mutates the encoder's
// workspace (spec.md §4.2, "Transform model").
func (p *Partition) Clone() *Partition {
	elems := make([]Element, len(p.Elems))
	for i, e := range p.Elems {
		ce := e
		if e.Vals != nil {
			ce.Vals = append([]float64(nil), e.Vals...)
		}
		if e.Deltas != nil {
			ce.Deltas = append([]int64(nil), e.Deltas...)
		}
		elems[i] = ce
	}
	rowptr := append([]int(nil), p.RowPtr...)
	return &Partition{
		RowStart:  p.RowStart,
		NRows:     p.NRows,
		NCols:     p.NCols,
		Type:      p.Type,
		OrigNRows: p.OrigNRows,
		OrigNCols: p.OrigNCols,
		Elems:     elems,
		RowPtr:    rowptr,
	}
}

// Window returns a non-owning view over local rows [rs, rs+length),
// renumbered so the window's own row 0 is rs: the element headers are
// copied with their Row shifted down by rs, while their Vals/Deltas
// payloads still alias the parent's. Windows are used for
// statistics sampling only and are never transformed or rewritten in place
// (spec.md §4.2, "Sampling"); callers that need to scan a window transform
// a Clone of it instead.
func (p *Partition) Window(rs, length int) *Partition {
	if rs+length > p.NRows {
		length = p.NRows - rs
	}
	es, ee := p.RowPtr[rs], p.RowPtr[rs+length]
	rowptr := make([]int, length+1)
	for i := range rowptr {
		rowptr[i] = p.RowPtr[rs+i] - es
	}
	elems := append([]Element(nil), p.Elems[es:ee]...)
	for i := range elems {
		elems[i].Row -= rs
	}
	return &Partition{
		RowStart:  p.RowStart + rs,
		NRows:     length,
		NCols:     p.NCols,
		Type:      p.Type,
		OrigNRows: length,
		OrigNCols: p.NCols,
		Elems:     elems,
		RowPtr:    rowptr,
		window:    true,
	}
}

// IsWindow reports whether the partition is a non-owning sampling window.
func (p *Partition) IsWindow() bool { return p.window }

// coordMap maps a one-based (row, col) pair under one iteration order to a
// one-based (row, col) pair under another.
type coordMap func(row, col int) (int, int)

// forwardMap returns the spec.md §4.2 map f_T that turns T-patterns into
// horizontal runs, f_T(row, col) -> (row', col'). blockDim is the row-group
// size r for TypeBlockRow/TypeBlockCol and is ignored otherwise.
func forwardMap(t types.EncodingType, nrows, ncols, blockDim int) coordMap {
	switch t {
	case types.TypeHorizontal:
		return func(r, c int) (int, int) { return r, c }
	case types.TypeVertical:
		return vertical
	case types.TypeDiagonal:
		return func(r, c int) (int, int) { return diagonalFwd(r, c, nrows) }
	case types.TypeAntiDiagonal:
		return func(r, c int) (int, int) { return antiDiagonalFwd(r, c, ncols) }
	case types.TypeBlockRow:
		return func(r, c int) (int, int) { return blockRowFwd(r, c, blockDim) }
	case types.TypeBlockCol:
		// Block-col is vertical composed with block-row (spec.md §4.2).
		return func(r, c int) (int, int) {
			vr, vc := vertical(r, c)
			return blockRowFwd(vr, vc, blockDim)
		}
	default:
		panic(fmt.Sprintf("ir: unsupported encoding type %v", t))
	}
}

// inverseMap returns f_T⁻¹, the exact inverse of forwardMap(t, ...).
func inverseMap(t types.EncodingType, nrows, ncols, blockDim int) coordMap {
	switch t {
	case types.TypeHorizontal:
		return func(r, c int) (int, int) { return r, c }
	case types.TypeVertical:
		return vertical // self-inverse
	case types.TypeDiagonal:
		return func(r, c int) (int, int) { return diagonalRev(r, c, nrows) }
	case types.TypeAntiDiagonal:
		return func(r, c int) (int, int) { return antiDiagonalRev(r, c, ncols) }
	case types.TypeBlockRow:
		return func(r, c int) (int, int) { return blockRowRev(r, c, blockDim) }
	case types.TypeBlockCol:
		return func(r, c int) (int, int) {
			br, bc := blockRowRev(r, c, blockDim)
			return vertical(br, bc)
		}
	default:
		panic(fmt.Sprintf("ir: unsupported encoding type %v", t))
	}
}

func vertical(r, c int) (int, int) { return c, r }

// diagonalFwd/diagonalRev implement pnt_map_D/pnt_rmap_D: nrows is the
// *horizontal-form* row count, always.
func diagonalFwd(r, c, nrows int) (int, int) {
	row := nrows + c - r
	col := r
	if c < r {
		col = c
	}
	return row, col
}

func diagonalRev(row, col, nrows int) (int, int) {
	if row < nrows {
		return nrows + col - row, col
	}
	return col, row + col - nrows
}

// antiDiagonalFwd/antiDiagonalRev implement pnt_map_rD/pnt_rmap_rD: ncols
// is the horizontal-form column count, always.
func antiDiagonalFwd(r, c, ncols int) (int, int) {
	dstRow := r + c - 1
	var dstCol int
	if dstRow <= ncols {
		dstCol = r
	} else {
		dstCol = ncols + 1 - c
	}
	return dstRow, dstCol
}

func antiDiagonalRev(row, col, ncols int) (int, int) {
	if row <= ncols {
		return col, row + 1 - col
	}
	return col + row - ncols, ncols + 1 - col
}

// blockRowFwd/blockRowRev implement pnt_map_bR<r>/pnt_rmap_bR<r> for a
// general row-group size r.
func blockRowFwd(row, col, r int) (int, int) {
	newRow := (row-1)/r + 1
	newCol := (row-1)%r + r*(col-1) + 1
	return newRow, newCol
}

func blockRowRev(row, col, r int) (int, int) {
	origRow := r*(row-1) + (col-1)%r + 1
	origCol := (col-1)/r + 1
	return origRow, origCol
}

// transformedDims returns the (nrows, ncols) of the partition once
// transformed to iteration order t from its horizontal form (origNRows,
// origNCols).
func transformedDims(t types.EncodingType, origNRows, origNCols, blockDim int) (int, int) {
	switch t {
	case types.TypeHorizontal:
		return origNRows, origNCols
	case types.TypeVertical:
		return origNCols, origNRows
	case types.TypeDiagonal, types.TypeAntiDiagonal:
		return origNRows + origNCols - 1, maxInt(origNRows, origNCols)
	case types.TypeBlockRow:
		return (origNRows + blockDim - 1) / blockDim, origNCols * blockDim
	case types.TypeBlockCol:
		return (origNCols + blockDim - 1) / blockDim, origNRows * blockDim
	default:
		panic(fmt.Sprintf("ir: unsupported encoding type %v", t))
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// TransformTo reorders the partition's elements in place to iteration order
// t, rebuilding RowPtr for the new row count. blockDim is the row-group
// size for block types and is ignored otherwise. The partition must
// currently be in horizontal (row) order; call TransformToHorizontal first
// if not. Patterns already present are carried by their anchor coordinate;
// their payload order is untouched (spec.md §4.3, "Rewriting a row":
// "patterns already present... are preserved").
func (p *Partition) TransformTo(t types.EncodingType, blockDim int) error {
	if p.window {
		return fmt.Errorf("ir: cannot transform a non-owning window")
	}
	if p.Type != types.TypeHorizontal {
		return fmt.Errorf("ir: TransformTo requires horizontal order, have %v", p.Type)
	}
	if t == types.TypeHorizontal {
		return nil
	}
	fwd := forwardMap(t, p.OrigNRows, p.OrigNCols, blockDim)
	for i := range p.Elems {
		p.Elems[i].Row, p.Elems[i].Col = fwd(p.Elems[i].Row, p.Elems[i].Col)
	}
	p.sortByCoord()
	newNRows, newNCols := transformedDims(t, p.OrigNRows, p.OrigNCols, blockDim)
	p.NRows, p.NCols = newNRows, newNCols
	p.Type = t
	p.rebuildRowPtr(newNRows)
	return nil
}

// TransformToHorizontal applies the inverse of the partition's current
// Type and restores row order and the original dimensions. blockDim must
// match whatever was used to move away from horizontal.
func (p *Partition) TransformToHorizontal(blockDim int) error {
	if p.window {
		return fmt.Errorf("ir: cannot transform a non-owning window")
	}
	if p.Type == types.TypeHorizontal {
		return nil
	}
	rev := inverseMap(p.Type, p.OrigNRows, p.OrigNCols, blockDim)
	for i := range p.Elems {
		p.Elems[i].Row, p.Elems[i].Col = rev(p.Elems[i].Row, p.Elems[i].Col)
	}
	p.sortByCoord()
	p.NRows, p.NCols = p.OrigNRows, p.OrigNCols
	p.Type = types.TypeHorizontal
	p.rebuildRowPtr(p.OrigNRows)
	return nil
}

// sortByCoord canonicalises element order to ascending (row, col), the
// condition the rewriter and the CSX builder both require; it is also how
// SparseUtil.h's elem_t comparison helper is grounded here (SPEC_FULL.md
// §4).
func (p *Partition) sortByCoord() {
	sort.SliceStable(p.Elems, func(i, j int) bool {
		if p.Elems[i].Row != p.Elems[j].Row {
			return p.Elems[i].Row < p.Elems[j].Row
		}
		return p.Elems[i].Col < p.Elems[j].Col
	})
}

// rebuildRowPtr recomputes RowPtr for newNRows rows from the (sorted by
// row) Elems slice.
func (p *Partition) rebuildRowPtr(newNRows int) {
	rowptr := make([]int, newNRows+1)
	idx := 0
	for i := 0; i < newNRows; i++ {
		rowptr[i] = idx
		for idx < len(p.Elems) && p.Elems[idx].Row == i+1 {
			idx++
		}
	}
	rowptr[newNRows] = idx
	p.RowPtr = rowptr
}
