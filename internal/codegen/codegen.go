// Package codegen implements the code generator of spec.md §4.5: given a
// built CSX image, it produces a specialised y <- alpha*A*x + beta*y
// function for that partition. Generation here is just-in-time in the
// narrow Go sense spec.md §4.5 allows for: the ctl byte stream is decoded
// once into a flat op list (so the hot path never re-parses ctl's
// variable-width grammar), and the returned Program is the "in-memory
// function" the executor calls once per SpMV.
package codegen

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/cpu"

	"github.com/jbowman-csx/csx/internal/build"
	"github.com/jbowman-csx/csx/internal/kernel"
	"github.com/jbowman-csx/csx/internal/types"
)

// unroll4 selects a 4-wide unrolled variant of the horizontal/delta-run
// dot-product template over kernel.DotAt's plain loop (spec.md §4.5 allows
// either template-based or JIT code generation; this is the template-side
// "pick a variant per target" half of that choice, without an intrinsics
// layer - see DESIGN.md). cpu.X86.HasAVX2 is a proxy for "the target can
// retire four float64 multiply-adds cheaply per iteration"; it is false and
// harmless on any non-x86 build, where the plain loop is used throughout.
var unroll4 = cpu.X86.HasAVX2

// op is one decoded ctl record, resolved to absolute (0-based) row/col and
// a slice into the partition's values array. Dispatch on Type during Run is
// the "switch over the pattern flag" of spec.md §4.5, collapsed here to a
// Go type switch instead of a flag-indexed jump table — idiomatic in place
// of literal machine-code generation, and just as single-pass.
type op struct {
	typ      types.EncodingType
	row      int // 0-based local row
	col      int // 0-based local column anchor
	otherDim int
	deltas   []int64 // absolute per-element columns for TypeDeltaRun only
	vals     []float64
}

// Program is one partition's compiled SpMV kernel.
type Program struct {
	ops   []op
	nrows int
}

// Compile decodes img's ctl stream into a Program. It is the "ahead of the
// hot path" half of code generation: every variable-width decode (ULEB128
// row-jumps, mixed-width deltas, the two col_index modes) happens once
// here, never inside Run.
func Compile(img *build.Image, nrows int) (*Program, error) {
	idOf := make([]int64, 0, len(img.IDMap))
	for _, id := range img.IDMap {
		if id == -1 {
			break
		}
		idOf = append(idOf, id)
	}

	p := &Program{nrows: nrows}
	buf := img.Ctl
	pos := 0
	row := -1
	col := 0
	valPos := 0

	for pos < len(buf) {
		flag := buf[pos]
		size := int(buf[pos+1])
		pos += 2

		if flag&0x80 != 0 { // NR
			if flag&0x40 != 0 { // RJMP
				jump, n := binary.Uvarint(buf[pos:])
				if n <= 0 {
					return nil, fmt.Errorf("codegen: malformed row-jump varint at %d", pos)
				}
				pos += n
				row += int(jump)
			} else {
				row++
			}
			col = 0
		}

		switch img.ColIndexMode {
		case build.ColIndexFull32:
			col = int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
			pos += 4
		default:
			zz, n := binary.Uvarint(buf[pos:])
			if n <= 0 {
				return nil, fmt.Errorf("codegen: malformed col_index varint at %d", pos)
			}
			pos += n
			col += int(unzigzag(zz))
		}

		flagIdx := int(flag & 0x3F)
		if flagIdx >= len(idOf) {
			return nil, fmt.Errorf("codegen: pattern flag %d has no id-map entry", flagIdx)
		}
		typ, param := types.SplitPatternID(idOf[flagIdx])

		var deltas []int64
		if typ == types.TypeDeltaRun && size > 1 {
			// param is the byte width the encoder committed to for this
			// record's deltas (internal/encode.deltaWidth), carried through
			// the pattern id itself rather than a separate ctl field.
			deltas = make([]int64, size-1)
			cur := col
			for i := 0; i < size-1; i++ {
				d, n := decodeDelta(buf[pos:], param)
				if n <= 0 {
					return nil, fmt.Errorf("codegen: malformed delta-run payload at %d", pos)
				}
				pos += n
				cur += int(d)
				deltas[i] = int64(cur)
			}
		}

		p.ops = append(p.ops, op{
			typ:      typ,
			row:      row,
			col:      col,
			otherDim: int(param),
			deltas:   deltas,
			vals:     img.Values[valPos : valPos+size],
		})
		valPos += size
	}
	return p, nil
}

// decodeDelta reads one delta-run stride at the byte width its pattern id
// already commits to (width, recovered by the caller via SplitPatternID —
// internal/encode.deltaWidth is the single source of truth the writer and
// this reader both defer to). Deltas are always strictly positive (internal
// /ir keeps a row's elements sorted by ascending column), so no sign
// extension is needed; width is one of {1,2,4,8} by construction.
func decodeDelta(buf []byte, width int64) (int64, int) {
	switch width {
	case 1:
		if len(buf) < 1 {
			return 0, 0
		}
		return int64(buf[0]), 1
	case 2:
		if len(buf) < 2 {
			return 0, 0
		}
		return int64(binary.LittleEndian.Uint16(buf)), 2
	case 4:
		if len(buf) < 4 {
			return 0, 0
		}
		return int64(binary.LittleEndian.Uint32(buf)), 4
	default:
		if len(buf) < 8 {
			return 0, 0
		}
		return int64(binary.LittleEndian.Uint64(buf)), 8
	}
}

func unzigzag(x uint64) int64 {
	return int64(x>>1) ^ -int64(x&1)
}

// Run executes the program: y <- alpha*A*x + beta*y over the partition's
// local rows (spec.md §4.5, "Contract"). x and y are sized to the
// partition's local column/row space; the executor is responsible for any
// global offset.
func (p *Program) Run(x []float64, alpha float64, y []float64, beta float64) {
	if beta == 0 {
		for i := range y {
			y[i] = 0
		}
	} else if beta != 1 {
		for i := range y {
			y[i] *= beta
		}
	}
	if alpha == 0 {
		return
	}

	for _, o := range p.ops {
		switch o.typ {
		case types.TypeHorizontal, types.TypeDeltaRun:
			idx := columnsOf(o)
			y[o.row] += alpha * dotAt(o.vals, idx, x)
		case types.TypeVertical:
			idx := rowsOf(o.row, len(o.vals), 1)
			kernel.AxpyAt(alpha*x[o.col], scale(o.vals, 1), idx, y, 1)
		case types.TypeDiagonal:
			for k, v := range o.vals {
				y[o.row+k] += alpha * v * x[o.col+k]
			}
		case types.TypeAntiDiagonal:
			for k, v := range o.vals {
				y[o.row+k] += alpha * v * x[o.col-k]
			}
		case types.TypeBlockRow:
			r := len(o.vals) / o.otherDim
			for k, v := range o.vals {
				subRow := k % r
				colOff := k / r
				y[o.row+subRow] += alpha * v * x[o.col+colOff]
			}
		case types.TypeBlockCol:
			c := len(o.vals) / o.otherDim
			for k, v := range o.vals {
				rowOff := k / c
				colOff := k % c
				y[o.row+rowOff] += alpha * v * x[o.col+colOff]
			}
		}
	}
}

// At returns the stored value at local (row, col), or 0 if no pattern
// covers that coordinate. It walks p.ops in the ctl stream's own row order
// and stops as soon as an op's anchor row passes the requested row, which
// keeps the scan bounded to the records that can possibly reach row without
// a second index over rows_info: the CsxGetSet.h "no full expansion" rule,
// expressed against the already-decoded op list rather than re-parsing ctl.
func (p *Program) At(row, col int) float64 {
	for _, o := range p.ops {
		if o.row > row {
			break
		}
		if v, ok := o.at(row, col); ok {
			return v
		}
	}
	return 0
}

func (o op) at(row, col int) (float64, bool) {
	switch o.typ {
	case types.TypeHorizontal, types.TypeDeltaRun:
		if row != o.row {
			return 0, false
		}
		for k, c := range columnsOf(o) {
			if c == col {
				return o.vals[k], true
			}
		}
		return 0, false
	case types.TypeVertical:
		k := row - o.row
		if k < 0 || k >= len(o.vals) || col != o.col {
			return 0, false
		}
		return o.vals[k], true
	case types.TypeDiagonal:
		k := row - o.row
		if k < 0 || k >= len(o.vals) || col != o.col+k {
			return 0, false
		}
		return o.vals[k], true
	case types.TypeAntiDiagonal:
		k := row - o.row
		if k < 0 || k >= len(o.vals) || col != o.col-k {
			return 0, false
		}
		return o.vals[k], true
	case types.TypeBlockRow:
		r := len(o.vals) / o.otherDim
		subRow := row - o.row
		if subRow < 0 || subRow >= r {
			return 0, false
		}
		colOff := col - o.col
		if colOff < 0 || colOff >= o.otherDim {
			return 0, false
		}
		return o.vals[colOff*r+subRow], true
	case types.TypeBlockCol:
		c := len(o.vals) / o.otherDim
		rowOff := row - o.row
		if rowOff < 0 || rowOff >= o.otherDim {
			return 0, false
		}
		colOff := col - o.col
		if colOff < 0 || colOff >= c {
			return 0, false
		}
		return o.vals[rowOff*c+colOff], true
	}
	return 0, false
}

// dotAt dispatches to a 4-wide unrolled accumulation when unroll4 is set
// and there are enough elements to amortise it, falling back to
// kernel.DotAt otherwise. Both compute the identical sum; the unrolled form
// only changes the accumulation order (four independent partial sums
// merged at the end), which keeps floating-point results close enough for
// this package's tests but is not bit-for-bit identical to the scalar
// loop - documented here rather than silently assumed.
func dotAt(vals []float64, idx []int, x []float64) float64 {
	if !unroll4 || len(vals) < 4 {
		return kernel.DotAt(vals, idx, x, 1)
	}
	var s0, s1, s2, s3 float64
	n := len(vals)
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += vals[i] * x[idx[i]]
		s1 += vals[i+1] * x[idx[i+1]]
		s2 += vals[i+2] * x[idx[i+2]]
		s3 += vals[i+3] * x[idx[i+3]]
	}
	sum := s0 + s1 + s2 + s3
	for ; i < n; i++ {
		sum += vals[i] * x[idx[i]]
	}
	return sum
}

// columnsOf returns the absolute column of every element in a horizontal
// or delta-run record: the first is o.col, the rest are o.deltas
// (already absolute for delta-run) or o.col+k*delta for horizontal, which
// the decoder represents identically to a delta-run whose deltas are all
// equal (constructed in columnsOf rather than stored, since a regular
// horizontal pattern's stride is implicit in its id, not its payload).
func columnsOf(o op) []int {
	if o.typ == types.TypeDeltaRun {
		out := make([]int, len(o.vals))
		out[0] = o.col
		copy(out[1:], int64SliceToInt(o.deltas))
		return out
	}
	out := make([]int, len(o.vals))
	for k := range out {
		out[k] = o.col + k*o.otherDim
	}
	return out
}

func int64SliceToInt(s []int64) []int {
	out := make([]int, len(s))
	for i, v := range s {
		out[i] = int(v)
	}
	return out
}

func rowsOf(row, n, step int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = row + i*step
	}
	return out
}

func scale(vals []float64, factor float64) []float64 {
	if factor == 1 {
		return vals
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = v * factor
	}
	return out
}
