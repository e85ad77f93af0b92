// Package encode implements the encoding selector and rewriter of spec.md
// §4.3: for a partition in horizontal order, it repeatedly measures every
// candidate type's best instantiation, picks the highest-scoring one,
// rewrites the matching runs into pattern records, and repeats until no
// type scores positively. The final, irregular remainder is folded into
// delta-run records.
package encode

import (
	"github.com/jbowman-csx/csx/internal/ir"
	"github.com/jbowman-csx/csx/internal/stats"
	"github.com/jbowman-csx/csx/internal/types"
)

// Options carries the subset of csx.Config the encoder consumes. Like
// stats.Config, it is duplicated rather than imported to keep internal/
// packages free of a dependency on the root package.
type Options struct {
	stats.Config

	XformTypes   []types.EncodingType
	SplitBlocks  bool
	NewHeuristic bool
}

// Lambda returns the λ coefficient of score = encoded_nz - n_patterns -
// λ·n_deltas (spec.md §4.3).
func (o Options) Lambda() float64 {
	if o.NewHeuristic {
		return 1
	}
	return 0
}

// Selection is one round's winning (type, param) pair together with the
// stats.Data it was scored from.
type Selection struct {
	Type  types.EncodingType
	Param int64
	Data  stats.Data
	Score float64
}

// blockDims mirrors stats.blockDims; the encoder needs its own candidate
// set to re-derive the blockDim r that produced a winning otherDim when
// Data.R is unavailable (e.g. a caller-supplied Selection).
var blockDims = []int{1, 2, 3, 4, 5, 6, 7, 8}

// Run drives spec.md §4.3's outer loop to completion: it mutates part in
// place, folding regular runs into pattern records round by round, and
// returns the Selection chosen on every round in the order they were
// applied. internal/build does not consume this list; it assigns pattern
// flags by walking the rewritten partition.
// part must be in horizontal order on entry and is left in horizontal
// order on return.
func Run(part *ir.Partition, opts Options, seed uint64) []Selection {
	var chosen []Selection
	ignore := map[types.EncodingType]bool{}

	for {
		baseline := stats.ComputeDeltaBaseline(part, opts.Config)
		sel, ok := chooseRound(part, opts, ignore, seed, baseline.NDeltas)
		if !ok {
			break
		}
		applySelection(part, sel, opts)
		chosen = append(chosen, sel)
		ignore[sel.Type] = true
		// Re-seed deterministically per round so repeated rounds over the
		// same partition don't resample identical windows (still fully
		// reproducible: seed is a pure function of the base seed and the
		// round index, never wall-clock or global rand state).
		seed = seed*1000003 + uint64(len(chosen))
	}
	DeltaFallback(part, opts)
	return chosen
}

// chooseRound measures every not-yet-ignored type in opts.XformTypes and
// returns the single highest-scoring instantiation across all of them,
// breaking ties by the type's position in opts.XformTypes (spec.md §4.3:
// "ties are broken by a fixed type precedence").
func chooseRound(part *ir.Partition, opts Options, ignore map[types.EncodingType]bool, seed uint64, nDeltas int64) (Selection, bool) {
	scorer := func(d stats.Data) float64 {
		return float64(d.EncodedNZ) - float64(d.NPatterns) - opts.Lambda()*float64(nDeltas)
	}

	var best Selection
	found := false
	for _, t := range opts.XformTypes {
		if ignore[t] {
			continue
		}
		coll := stats.Compute(part, t, seed, opts.Config)
		param, data, score, ok := coll.Best(scorer)
		if !ok || score <= 0 {
			continue
		}
		if !found || score > best.Score {
			best = Selection{Type: t, Param: param, Data: data, Score: score}
			found = true
		}
	}
	return best, found
}

// applySelection transforms part to sel.Type's iteration order, rewrites
// every matching run into pattern records, then restores horizontal order.
func applySelection(part *ir.Partition, sel Selection, opts Options) {
	blockDim := sel.Data.R
	if (sel.Type == types.TypeBlockRow || sel.Type == types.TypeBlockCol) && blockDim == 0 {
		blockDim = resolveBlockDim(sel.Param)
	}

	if err := part.TransformTo(sel.Type, blockDim); err != nil {
		return
	}
	rewrite(part, sel, blockDim, opts)
	_ = part.TransformToHorizontal(blockDim)
}

// resolveBlockDim is the fallback when a Selection arrives without its
// originating Data.R (e.g. constructed by a caller outside Run); it just
// returns the smallest candidate, matching stats.Compute's own preference
// for the minimum otherDim at a given r.
func resolveBlockDim(otherDim int64) int {
	return blockDims[0]
}

// rewrite rebuilds part.Elems/RowPtr, replacing every run matching sel
// with pattern records (spec.md §4.3, "Rewriting a row"). part must
// already be in sel.Type's iteration order.
func rewrite(part *ir.Partition, sel Selection, blockDim int, opts Options) {
	newElems := make([]ir.Element, 0, len(part.Elems))
	newRowPtr := make([]int, part.NRows+1)
	for i := 0; i < part.NRows; i++ {
		newRowPtr[i] = len(newElems)
		newElems = append(newElems, rewriteRow(part.Row(i), sel, blockDim, opts)...)
	}
	newRowPtr[part.NRows] = len(newElems)
	part.Elems = newElems
	part.RowPtr = newRowPtr
}

// rewriteRow scans one row for maximal constant-delta runs of unpatterned
// elements and replaces the ones matching sel with a single pattern
// element. For block types with SplitBlocks enabled, a run longer than one
// unit (blockDim*otherDim) is decomposed into as many whole units as fit
// plus a left-over remainder of plain elements (spec.md §4.3, "block-split
// manipulator").
func rewriteRow(row []ir.Element, sel Selection, blockDim int, opts Options) []ir.Element {
	out := make([]ir.Element, 0, len(row))
	i := 0
	for i < len(row) {
		if row[i].Pattern != nil {
			out = append(out, row[i])
			i++
			continue
		}
		j := i + 1
		delta := int64(0)
		for j < len(row) && row[j].Pattern == nil && j-i < opts.MaxUnitSize {
			d := int64(row[j].Col - row[j-1].Col)
			if j == i+1 {
				delta = d
			} else if d != delta {
				break
			}
			j++
		}
		runLen := j - i

		switch {
		case (sel.Type == types.TypeBlockRow || sel.Type == types.TypeBlockCol) && delta == 1:
			unit := blockDim * int(sel.Param)
			if unit <= 0 || runLen < unit {
				out = append(out, row[i])
				i++
				continue
			}
			k := runLen / unit
			if !opts.SplitBlocks {
				k = 1 // only ever fold one whole unit per run when splitting is off
			}
			for b := 0; b < k; b++ {
				seg := row[i+b*unit : i+(b+1)*unit]
				out = append(out, makePatternElement(seg, sel.Type, unit, 1, int(sel.Param)))
			}
			consumed := k * unit
			for r := consumed; r < runLen; r++ {
				out = append(out, row[i+r])
			}
			i = j
		case sel.Type != types.TypeBlockRow && sel.Type != types.TypeBlockCol &&
			runLen >= 2 && runLen >= opts.MinUnitSize && delta == sel.Param:
			out = append(out, makePatternElement(row[i:j], sel.Type, runLen, delta, 0))
			i = j
		default:
			out = append(out, row[i])
			i++
		}
	}
	return out
}

func makePatternElement(seg []ir.Element, t types.EncodingType, size int, delta int64, otherDim int) ir.Element {
	vals := make([]float64, len(seg))
	for k, e := range seg {
		vals[k] = e.Val
	}
	var deltas []int64
	if t == types.TypeDeltaRun && len(seg) > 1 {
		deltas = make([]int64, len(seg)-1)
		for k := 1; k < len(seg); k++ {
			deltas[k-1] = int64(seg[k].Col - seg[k-1].Col)
		}
		// A delta-run's "delta" param is not a stride (it has none, by
		// definition) but the byte width its deltas are written at, so
		// the build/codegen pair can agree on a decode width purely from
		// the pattern id (spec.md §4.4: "the pattern flag encodes the
		// chosen delta width" / §4.5's delta-u{8,16,32,64} template set).
		delta = deltaWidth(deltas)
	}
	return ir.Element{
		Row: seg[0].Row,
		Col: seg[0].Col,
		Pattern: &types.Pattern{
			Type:     t,
			Size:     size,
			Delta:    delta,
			OtherDim: otherDim,
		},
		Vals:   vals,
		Deltas: deltas,
	}
}

// deltaWidth returns the narrowest byte width in {1,2,4,8} that holds every
// value in deltas. Deltas are always positive: within one row, elements are
// kept sorted by strictly ascending column (internal/ir's sortByCoord), so
// a delta-run's successive strides are never zero or negative.
func deltaWidth(deltas []int64) int64 {
	var max int64
	for _, d := range deltas {
		if d > max {
			max = d
		}
	}
	switch {
	case max <= 0xFF:
		return 1
	case max <= 0xFFFF:
		return 2
	case max <= 0xFFFFFFFF:
		return 4
	default:
		return 8
	}
}

// DeltaFallback folds every still-unpatterned element into plain delta-run
// pattern records chunked at MaxUnitSize, the terminal step of spec.md
// §4.3's outer loop ("once no candidate type scores positively, the
// remaining irregular elements become delta-run records"). part must be in
// horizontal order.
func DeltaFallback(part *ir.Partition, opts Options) {
	newElems := make([]ir.Element, 0, len(part.Elems))
	newRowPtr := make([]int, part.NRows+1)
	for i := 0; i < part.NRows; i++ {
		newRowPtr[i] = len(newElems)
		row := part.Row(i)
		j := 0
		for j < len(row) {
			if row[j].Pattern != nil {
				newElems = append(newElems, row[j])
				j++
				continue
			}
			end := j
			limit := j + opts.MaxUnitSize
			if limit > len(row) {
				limit = len(row)
			}
			for end < limit && row[end].Pattern == nil {
				end++
			}
			seg := row[j:end]
			if len(seg) == 1 {
				newElems = append(newElems, seg[0])
			} else {
				delta := int64(0)
				if len(seg) > 1 {
					delta = int64(seg[1].Col - seg[0].Col)
				}
				newElems = append(newElems, makePatternElement(seg, types.TypeDeltaRun, len(seg), delta, 0))
			}
			j = end
		}
	}
	newRowPtr[part.NRows] = len(newElems)
	part.Elems = newElems
	part.RowPtr = newRowPtr
}
