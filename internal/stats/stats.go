// Package stats implements the statistics engine of spec.md §4.2: for a
// partition and a candidate encoding type, it produces a StatsCollection
// mapping each instantiation of that type to its StatsData, optionally
// computed on a sample of windows and scaled back up.
package stats

import (
	"sort"

	"golang.org/x/exp/rand"

	"github.com/jbowman-csx/csx/internal/ir"
	"github.com/jbowman-csx/csx/internal/types"
)

// Data is the per-instantiation triple of spec.md §3: how many non-zeros an
// instantiation would capture, how many pattern records that takes, and
// (delta baseline only) how many irregular delta-run records remain.
type Data struct {
	EncodedNZ int64
	NPatterns int64
	NDeltas   int64
	// R is the row/column group size for block-type instantiations (0 for
	// every other type). It is not part of the persisted Pattern descriptor
	// (which recovers r as Size/OtherDim per record); it is threaded through
	// here purely so the encoder knows which blockDim produced the winning
	// otherDim without re-scanning.
	R int
}

// Coverage returns EncodedNZ as a fraction of partitionNZ.
func (d Data) Coverage(partitionNZ int64) float64 {
	if partitionNZ == 0 {
		return 0
	}
	return float64(d.EncodedNZ) / float64(partitionNZ)
}

// Collection groups every surviving instantiation of one EncodingType,
// keyed by its Param (delta for linear types, block dimension for block
// types), plus the partition totals the instantiations were measured
// against (spec.md §4.2: "Global totals are recomputed after each
// manipulation").
type Collection struct {
	Type       types.EncodingType
	ByParam    map[int64]Data
	PartitionNZ int64
}

// Best returns the instantiation in the collection that scorer rates
// highest, with its param and score, used by the encoder's scoring step.
// ok is false for an empty collection.
func (c *Collection) Best(scorer func(Data) float64) (param int64, best Data, score float64, ok bool) {
	first := true
	var bestScore float64
	var bestParam int64
	var bestData Data
	// Iterate params in a fixed order so ties resolve deterministically
	// regardless of map iteration order (spec.md §4.2: "deterministic and
	// independent of thread scheduling").
	params := make([]int64, 0, len(c.ByParam))
	for p := range c.ByParam {
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool { return params[i] < params[j] })
	for _, p := range params {
		d := c.ByParam[p]
		s := scorer(d)
		if first || s > bestScore {
			bestScore, bestParam, bestData, first = s, p, d, false
		}
	}
	return bestParam, bestData, bestScore, !first
}

// Config carries the subset of csx.Config the statistics engine consumes,
// duplicated here (rather than imported) to keep internal/stats free of a
// dependency on the root package.
type Config struct {
	MinUnitSize int
	MaxUnitSize int
	MinCoverage float64

	SamplingEnabled    bool
	SamplingPortion    float64
	SamplingMaxWindows int
	WindowSize         int // non-zeros per window; 0 means "auto" (= partition size, sampling skipped)
}

// blockDims is the small set of row/column group sizes tried for block
// types, generalising the source's BLOCK_R1..BLOCK_R8/BLOCK_C1..BLOCK_C8
// macro enumeration (spec.md §9, "Design notes") into a plain range.
var blockDims = []int{1, 2, 3, 4, 5, 6, 7, 8}

// Compute produces the StatsCollection for type t over part, per spec.md
// §4.2. part is never mutated: Compute clones (and, when sampling,
// windows) before transforming.
func Compute(part *ir.Partition, t types.EncodingType, seed uint64, cfg Config) *Collection {
	partNZ := int64(part.NNZ())
	coll := &Collection{Type: t, ByParam: map[int64]Data{}, PartitionNZ: partNZ}

	windows := selectWindows(part, seed, cfg)
	sampledNZ := int64(0)
	for _, w := range windows {
		sampledNZ += int64(w.NNZ())
	}
	scale := 1.0
	if sampledNZ > 0 && sampledNZ != partNZ {
		scale = float64(partNZ) / float64(sampledNZ)
	}

	if t == types.TypeBlockRow || t == types.TypeBlockCol {
		for _, r := range blockDims {
			bound := part.OrigNRows
			if t == types.TypeBlockCol {
				bound = part.OrigNCols
			}
			if r > bound {
				continue
			}
			agg := Data{}
			for _, w := range windows {
				clone := w.Clone()
				if err := clone.TransformTo(t, r); err != nil {
					continue
				}
				runs := scanRuns(clone, cfg.MinUnitSize, cfg.MaxUnitSize)
				for _, run := range runs {
					if run.delta != 1 || run.size%r != 0 {
						continue
					}
					agg.EncodedNZ += int64(run.size)
					agg.NPatterns++
				}
			}
			agg = scaleData(agg, scale)
			if agg.NPatterns == 0 {
				continue
			}
			// otherDim is recorded per the *minimum* observed block width
			// so the id is stable; the encode package's block-split
			// manipulator decomposes larger multiples.
			otherDim := minOtherDim(windows, t, r, cfg)
			if otherDim == 0 {
				continue
			}
			agg.R = r
			if agg.Coverage(partNZ) < cfg.MinCoverage {
				continue
			}
			// Two different row-group sizes r can legitimately compute the
			// same otherDim; keep whichever has the larger EncodedNZ minus
			// NPatterns; ties keep the first r (the smallest, by blockDims'
			// ascending order).
			if existing, ok := coll.ByParam[int64(otherDim)]; !ok ||
				agg.EncodedNZ-agg.NPatterns > existing.EncodedNZ-existing.NPatterns {
				coll.ByParam[int64(otherDim)] = agg
			}
		}
		return coll
	}

	agg := map[int64]Data{}
	for _, w := range windows {
		clone := w.Clone()
		if t != types.TypeHorizontal {
			if err := clone.TransformTo(t, 0); err != nil {
				continue
			}
		}
		runs := scanRuns(clone, cfg.MinUnitSize, cfg.MaxUnitSize)
		for _, run := range runs {
			d := agg[run.delta]
			d.EncodedNZ += int64(run.size)
			d.NPatterns++
			agg[run.delta] = d
		}
	}
	for delta, d := range agg {
		d = scaleData(d, scale)
		if d.Coverage(partNZ) < cfg.MinCoverage {
			continue
		}
		coll.ByParam[delta] = d
	}
	return coll
}

// ComputeDeltaBaseline measures the cost of carrying every still-unpatterned
// element as an irregular delta-run record, chunked at MaxUnitSize
// (spec.md §3, "n_deltas counts the number of delta-run records that would
// still be needed after encoding to carry non-pattern elements; this is
// computed only for the delta (irregular) baseline"). part must be in
// horizontal order.
func ComputeDeltaBaseline(part *ir.Partition, cfg Config) Data {
	var nDeltas int64
	for i := 0; i < part.NRows; i++ {
		n := 0
		for _, e := range part.Row(i) {
			if e.Pattern == nil {
				n++
			}
		}
		if n == 0 {
			continue
		}
		nDeltas += int64((n + cfg.MaxUnitSize - 1) / cfg.MaxUnitSize)
	}
	return Data{NDeltas: nDeltas}
}

func scaleData(d Data, scale float64) Data {
	if scale == 1 {
		return d
	}
	return Data{
		EncodedNZ: int64(float64(d.EncodedNZ) * scale),
		NPatterns: int64(float64(d.NPatterns) * scale),
		NDeltas:   int64(float64(d.NDeltas) * scale),
	}
}

// minOtherDim recomputes, for the winning row-group size r, the smallest
// "other dimension" (block width) actually observed across the sampled
// windows; ties in block width are fine to collapse to the minimum because
// the encode package's block-split manipulator later decomposes any wider
// run into multiples of this unit plus a remainder (spec.md §4.3).
func minOtherDim(windows []*ir.Partition, t types.EncodingType, r int, cfg Config) int {
	best := -1
	for _, w := range windows {
		clone := w.Clone()
		if err := clone.TransformTo(t, r); err != nil {
			continue
		}
		for _, run := range scanRuns(clone, cfg.MinUnitSize, cfg.MaxUnitSize) {
			if run.delta != 1 || run.size%r != 0 {
				continue
			}
			c := run.size / r
			if best == -1 || c < best {
				best = c
			}
		}
	}
	if best == -1 {
		return 0
	}
	return best
}

type run struct {
	delta int64
	size  int
}

// scanRuns walks part (already in the iteration order under analysis) row
// by row and returns every maximal run of >=2 consecutive, not-already-
// patterned elements sharing a constant column delta, bounded to
// [minUnit,maxUnit] (spec.md §4.2, "Transform model" /  "Cut-offs"). A run
// never crosses an existing pattern element: the encoder "never encodes
// across an existing pattern boundary" (spec.md §4.3).
func scanRuns(part *ir.Partition, minUnit, maxUnit int) []run {
	var out []run
	for i := 0; i < part.NRows; i++ {
		row := part.Row(i)
		j := 0
		for j < len(row) {
			if row[j].Pattern != nil {
				j++
				continue
			}
			start := j
			delta := int64(0)
			j++
			for j < len(row) && row[j].Pattern == nil && j-start < maxUnit {
				d := int64(row[j].Col - row[j-1].Col)
				if j == start+1 {
					delta = d
				} else if d != delta {
					break
				}
				j++
			}
			size := j - start
			if size >= 2 && size >= minUnit {
				out = append(out, run{delta: delta, size: size})
			}
		}
	}
	return out
}

// selectWindows returns the sub-partitions statistics should scan: the
// whole partition (wrapped in a length-1 slice) when sampling is disabled,
// the window size is "auto", or the window size is at least the partition
// size (spec.md §4.2: "Sampling is skipped when the window size equals the
// partition size"); otherwise a uniformly-selected, seeded subset of
// windows of the configured size.
func selectWindows(part *ir.Partition, seed uint64, cfg Config) []*ir.Partition {
	total := part.NNZ()
	if !cfg.SamplingEnabled || cfg.WindowSize <= 0 || cfg.WindowSize >= total || part.NRows == 0 {
		return []*ir.Partition{part}
	}

	// Convert a non-zero-count window size into a row count by walking
	// the row pointer, mirroring the partitioner's own load-balancing
	// walk (internal/partition).
	var bounds []int
	rowStart := 0
	acc := 0
	for i := 0; i < part.NRows; i++ {
		acc += len(part.Row(i))
		if acc >= cfg.WindowSize && i+1 < part.NRows {
			bounds = append(bounds, rowStart, i+1)
			rowStart = i + 1
			acc = 0
		}
	}
	bounds = append(bounds, rowStart, part.NRows)

	type span struct{ start, end int }
	var spans []span
	for i := 0; i+1 < len(bounds); i += 2 {
		if bounds[i] < bounds[i+1] {
			spans = append(spans, span{bounds[i], bounds[i+1]})
		}
	}
	if len(spans) <= cfg.SamplingMaxWindows {
		out := make([]*ir.Partition, 0, len(spans))
		for _, s := range spans {
			out = append(out, part.Window(s.start, s.end-s.start))
		}
		return out
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(spans))
	n := cfg.SamplingMaxWindows
	if budget := int(float64(len(spans)) * cfg.SamplingPortion); budget < n {
		n = budget
	}
	if n <= 0 {
		n = 1
	}
	out := make([]*ir.Partition, 0, n)
	for i := 0; i < n; i++ {
		s := spans[perm[i]]
		out = append(out, part.Window(s.start, s.end-s.start))
	}
	return out
}
