// Package build implements the CSX control-stream writer of spec.md §4.4:
// given a partition whose elements have already been folded into pattern
// records by internal/encode, it emits the three arrays a generated SpMV
// streams in lock-step — the mixed-width ctl byte stream, the values array,
// and the per-row rows_info triples — plus the pattern-id map the ctl
// stream's flags index into.
package build

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/jbowman-csx/csx/internal/ir"
	"github.com/jbowman-csx/csx/internal/types"
)

// ColIndexMode selects how a record's col_index field is written (spec.md
// §4.4: "One mode is chosen per CSX image and recorded in the header").
type ColIndexMode int

const (
	// ColIndexDelta stores col_index as a ULEB128 delta from the last
	// emitted column (the compact mode).
	ColIndexDelta ColIndexMode = iota
	// ColIndexFull32 stores col_index as an absolute, little-endian
	// 32-bit column (the NUMA-friendly mode).
	ColIndexFull32
)

// Flag bits packed into ctl's flag_byte (spec.md §4.4): low 6 bits carry the
// pattern flag (0..63; 64 pattern ids is ample headroom for any one
// partition's encoding and leaves the top two bits free), the top two carry
// NR (new-row) and RJMP (row-jump).
const (
	flagPatternMask = 0x3F
	flagNR          = 0x80
	flagRJMP        = 0x40
	maxPatternFlags = flagPatternMask + 1
)

// RowInfo is one rows_info entry (spec.md §4.4, "Rows-info array").
type RowInfo struct {
	CtlOffset    int
	ValuesOffset int
	Span         int
}

// Image is the built CSX representation of one partition.
type Image struct {
	Ctl          []byte
	Values       []float64
	RowsInfo     []RowInfo
	IDMap        []int64 // flag -> pattern id, terminated by a trailing -1
	ColIndexMode ColIndexMode
}

// Build emits the CSX image for part, which must be in horizontal order
// with every element already either a scalar (Pattern == nil) or a pattern
// record produced by internal/encode. Pattern ids are assigned flags in the
// order they are first encountered while walking the partition in row
// order, which is deterministic given a deterministic encode pass.
func Build(part *ir.Partition, mode ColIndexMode) (*Image, error) {
	if part.Type != types.TypeHorizontal {
		return nil, fmt.Errorf("build: partition must be in horizontal order, have %v", part.Type)
	}

	img := &Image{ColIndexMode: mode}
	flagOf := map[int64]int{}

	for i := 0; i < part.NRows; i++ {
		for _, e := range part.Row(i) {
			id := patternID(e)
			if _, ok := flagOf[id]; !ok {
				if len(flagOf) >= maxPatternFlags {
					return nil, fmt.Errorf("build: partition uses more than %d distinct pattern ids", maxPatternFlags)
				}
				flagOf[id] = len(flagOf)
				img.IDMap = append(img.IDMap, id)
			}
		}
	}
	img.IDMap = append(img.IDMap, -1)

	w := &writer{flagOf: flagOf, lastRow: -1}
	img.RowsInfo = make([]RowInfo, part.NRows)
	for i := 0; i < part.NRows; i++ {
		img.RowsInfo[i] = RowInfo{CtlOffset: len(w.ctl), ValuesOffset: len(w.values)}
		rowSpan := 0
		for _, e := range part.Row(i) {
			w.emit(e, i, mode)
			if s := rowSpanOf(e); s > rowSpan {
				rowSpan = s
			}
		}
		img.RowsInfo[i].Span = rowSpan
	}

	img.Ctl = w.ctl
	img.Values = w.values
	return img, nil
}

// patternID returns the CSX pattern id for an element: a scalar element
// (Pattern == nil) is a size-1 delta-run by construction, matching
// spec.md §3's closed descriptor set.
func patternID(e ir.Element) int64 {
	if e.Pattern == nil {
		return types.PatternID(types.TypeDeltaRun, 0)
	}
	return e.Pattern.ID()
}

// rowSpanOf returns the maximum row distance reached by e relative to its
// anchor row, from its pattern descriptor alone (spec.md §4.4, "span_i is
// the maximum row distance reached by any pattern anchored at row i").
// Horizontal, delta-run and scalar elements never leave their anchor row.
// Vertical/diagonal/anti-diagonal patterns touch exactly Size rows: one
// pattern instance advances one row per element. Block-row groups r =
// Size/OtherDim original rows (OtherDim is the column count per group);
// block-col groups OtherDim original rows directly (OtherDim is defined as
// the row count there, the column count being the implicit factor) — see
// DESIGN.md for the derivation of this asymmetry from the coordinate maps.
func rowSpanOf(e ir.Element) int {
	if e.Pattern == nil {
		return 0
	}
	p := e.Pattern
	switch p.Type {
	case types.TypeHorizontal, types.TypeDeltaRun:
		return 0
	case types.TypeVertical, types.TypeDiagonal, types.TypeAntiDiagonal:
		return p.Size - 1
	case types.TypeBlockRow:
		if p.OtherDim == 0 {
			return 0
		}
		return p.Size/p.OtherDim - 1
	case types.TypeBlockCol:
		return p.OtherDim - 1
	default:
		return 0
	}
}

// writer accumulates the ctl byte stream and the values array for one
// partition.
type writer struct {
	ctl     []byte
	values  []float64
	flagOf  map[int64]int
	lastRow int // row index of the last-emitted record, -1 before the first
	lastCol int // column of the previous record within the current row
}

func (w *writer) emit(e ir.Element, row int, mode ColIndexMode) {
	flag := byte(w.flagOf[patternID(e)])

	newRow := row != w.lastRow
	if newRow {
		flag |= flagNR
		w.lastCol = 0
	}

	rowJump := row - w.lastRow
	needsJump := newRow && rowJump != 1
	if needsJump {
		flag |= flagRJMP
	}

	size := e.Size()
	w.ctl = append(w.ctl, flag, byte(size))
	if needsJump {
		w.putUvarint(uint64(rowJump))
	}
	// e.Col is one-based (spec.md §3); ctl and the values/x/y arrays it
	// indexes are all 0-based, so the anchor column is converted here, the
	// one place a record's column ever crosses that boundary.
	col := e.Col - 1
	w.putColIndex(col, mode)
	w.lastCol = col
	w.lastRow = row

	if e.Pattern != nil && e.Pattern.Type == types.TypeDeltaRun {
		w.putDeltas(e.Pattern.Delta, e.Deltas)
	}

	if e.Pattern != nil {
		w.values = append(w.values, e.Vals...)
	} else {
		w.values = append(w.values, e.Val)
	}
}

func (w *writer) putColIndex(col int, mode ColIndexMode) {
	switch mode {
	case ColIndexFull32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(col))
		w.ctl = append(w.ctl, b[:]...)
	default:
		delta := int64(col - w.lastCol)
		w.putUvarint(zigzag(delta))
	}
}

// putDeltas writes a delta-run record's size-1 successive column strides at
// the width its pattern id already commits to (spec.md §4.4: "width is
// chosen per record from {u8, u16, u32, u64} based on the maximum delta";
// here that choice was made once, at encode time, and is carried in the
// pattern's Delta field precisely so the writer and internal/codegen's
// reader derive the same width from the id alone — see
// internal/encode.deltaWidth). A record with no recorded deltas (size==1)
// writes nothing.
func (w *writer) putDeltas(width int64, deltas []int64) {
	if len(deltas) == 0 {
		return
	}
	switch width {
	case 1:
		for _, d := range deltas {
			w.ctl = append(w.ctl, byte(d))
		}
	case 2:
		for _, d := range deltas {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(d))
			w.ctl = append(w.ctl, b[:]...)
		}
	case 4:
		for _, d := range deltas {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(d))
			w.ctl = append(w.ctl, b[:]...)
		}
	default:
		for _, d := range deltas {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(d))
			w.ctl = append(w.ctl, b[:]...)
		}
	}
}

func (w *writer) putUvarint(x uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	w.ctl = append(w.ctl, tmp[:n]...)
}

// zigzag maps a signed delta to an unsigned ULEB128-friendly encoding so
// negative column deltas (moving left within a row, which the transform
// model makes possible for some pattern orders) cost the same few bytes as
// small positive ones.
func zigzag(d int64) uint64 {
	return uint64((d << 1) ^ (d >> 63))
}

// SortedIDs returns a collection's pattern ids in a stable order, used by
// callers (e.g. the root package's Stats) that need deterministic reporting
// independent of map iteration.
func SortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
