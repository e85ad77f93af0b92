package csx

import (
	"io"
	"runtime"
	"sort"

	"github.com/jbowman-csx/csx/internal/build"
	"github.com/jbowman-csx/csx/internal/codegen"
	"github.com/jbowman-csx/csx/internal/encode"
	"github.com/jbowman-csx/csx/internal/exec"
	"github.com/jbowman-csx/csx/internal/kernel"
	"github.com/jbowman-csx/csx/internal/partition"
	"github.com/jbowman-csx/csx/internal/stats"
	"github.com/jbowman-csx/csx/persist"
)

// Context drives Tune with an immutable Config (spec.md §6: "parsed once at
// init and immutable thereafter").
type Context struct {
	cfg Config
}

// NewContext builds a Context from cfg. cfg is copied; later mutation of
// the caller's Config has no effect on the Context.
func NewContext(cfg Config) *Context {
	return &Context{cfg: cfg}
}

// partitionState is everything Save/At/Stats need about one tuned
// partition, kept alongside the compiled Program the executor actually
// runs.
type partitionState struct {
	placement persist.PartitionPlacement
	nnz       int
	ncols     int
	nrows     int
	rowStart  int
	image     *build.Image
	prog      *codegen.Program
}

// TunedMatrix is the built, executable CSX form of one CSRInput (spec.md
// §3, "TunedMatrix"). It owns a persistent executor pool for its lifetime;
// the pool's goroutines are stopped only by Close, not by garbage
// collection, so callers that are done with a TunedMatrix call Close.
type TunedMatrix struct {
	nrows, ncols int
	symmetric    bool
	permutation  []int // forward mapping, nil if unreordered

	pool  *exec.Pool
	parts []partitionState
}

// BuildReport summarises one tuned matrix's encoded footprint, grounded in
// CsxUtil.h's csx_size/csx_bytes helpers (SPEC_FULL §4): byte counts per
// stream, useful for tests checking spec.md §8's "encoded form is no larger
// than naive CSR for a dense-enough matrix" style properties.
type BuildReport struct {
	NumWorkers    int
	NNZ           int
	CtlBytes      int
	ValueBytes    int
	RowsInfoBytes int
	IDMapBytes    int
	TotalBytes    int
}

// Tune builds a TunedMatrix from in, running the full partition -> stats ->
// encode -> build -> codegen pipeline of spec.md §2 and handing the
// compiled per-partition programs to a fresh executor pool. permutation, if
// non-nil, is an already-computed forward row/column mapping (RCM or any
// other reordering is out of this package's scope, spec.md §5 Non-goals);
// it must have length in.Dims()'s row count and in must be square, since
// the same mapping is applied to both axes (spec.md §4.6, "P A P^-1").
func (ctx *Context) Tune(in *CSRInput, permutation []int) (*TunedMatrix, error) {
	if in == nil {
		return nil, newError(InvalidArg, "nil input matrix")
	}
	nrows, ncols := in.Dims()
	rowptr, colind, data := in.RawCSR()

	if permutation != nil {
		if nrows != ncols {
			return nil, newError(InvalidArg, "permutation requires a square matrix, got %dx%d", nrows, ncols)
		}
		if err := validatePermutation(permutation, nrows); err != nil {
			return nil, err
		}
		rowptr, colind, data = permuteCSR(nrows, rowptr, colind, data, permutation)
	}

	numWorkers := ctx.cfg.NumThreads
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if nrows > 0 && numWorkers > nrows {
		numWorkers = nrows
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	irParts, err := partition.Split(nrows, ncols, rowptr, colind, data, numWorkers)
	if err != nil {
		return nil, newError(InputMatrixInvalid, "%v", err)
	}

	encOpts := encode.Options{
		Config: stats.Config{
			MinUnitSize:        ctx.cfg.MinUnitSize,
			MaxUnitSize:        ctx.cfg.MaxUnitSize,
			MinCoverage:        ctx.cfg.MinCoverage,
			SamplingEnabled:    ctx.cfg.SamplingEnabled,
			SamplingPortion:    ctx.cfg.SamplingPortion,
			SamplingMaxWindows: ctx.cfg.SamplingMaxWindows,
			WindowSize:         ctx.cfg.WindowSize,
		},
		XformTypes:   ctx.cfg.XformTypes,
		SplitBlocks:  ctx.cfg.SplitBlocks,
		NewHeuristic: ctx.cfg.NewHeuristic,
	}

	colMode := build.ColIndexDelta
	if ctx.cfg.FullColInd {
		colMode = build.ColIndexFull32
	}

	programs := make([]*codegen.Program, len(irParts))
	rowOffsets := make([]int, len(irParts))
	rowCounts := make([]int, len(irParts))
	parts := make([]partitionState, len(irParts))

	for i, part := range irParts {
		// Seed is a pure function of the partition index, so tuning the
		// same matrix twice with the same Config always picks the same
		// encodings (spec.md §4.2, "deterministic and independent of
		// thread scheduling").
		encode.Run(part, encOpts, uint64(i)+1)

		img, err := build.Build(part, colMode)
		if err != nil {
			return nil, newError(InputMatrixInvalid, "partition %d: %v", i, err)
		}
		prog, err := codegen.Compile(img, part.NRows)
		if err != nil {
			return nil, newError(InputMatrixInvalid, "partition %d: %v", i, err)
		}

		programs[i] = prog
		rowOffsets[i] = part.RowStart
		rowCounts[i] = part.NRows
		parts[i] = partitionState{
			nnz:      part.NNZ(),
			ncols:    ncols,
			nrows:    part.NRows,
			rowStart: part.RowStart,
			image:    img,
			prog:     prog,
		}
	}

	var affinity []int
	if len(ctx.cfg.CPUAffinity) == len(irParts) {
		affinity = ctx.cfg.CPUAffinity
	}

	var perm *kernel.Permutation
	if permutation != nil {
		perm = kernel.NewPermutation(permutation)
	}

	pool, err := exec.NewPool(programs, rowOffsets, rowCounts, affinity, perm, ncols)
	if err != nil {
		return nil, newError(InputMatrixInvalid, "%v", err)
	}
	for i, w := range pool.Workers() {
		parts[i].placement = persist.PartitionPlacement{CPU: w.CPU, ID: w.ID, Node: w.NUMANode}
	}

	return &TunedMatrix{
		nrows:       nrows,
		ncols:       ncols,
		symmetric:   ctx.cfg.Symmetric,
		permutation: permutation,
		pool:        pool,
		parts:       parts,
	}, nil
}

// Dims reports the tuned matrix's shape.
func (t *TunedMatrix) Dims() (r, c int) { return t.nrows, t.ncols }

// SpMV computes y <- alpha*A*x + beta*y (spec.md §4.6, "Contract"),
// dispatching across the executor pool. len(x) must equal the column
// count and len(y) the row count.
func (t *TunedMatrix) SpMV(alpha float64, x []float64, beta float64, y []float64) error {
	if len(x) != t.ncols {
		return newError(VectorDimMismatch, "x has length %d, want %d", len(x), t.ncols)
	}
	if len(y) != t.nrows {
		return newError(VectorDimMismatch, "y has length %d, want %d", len(y), t.nrows)
	}
	t.pool.Run(x, alpha, y, beta)
	return nil
}

// At returns the matrix entry at (row, col), read against the already-built
// CSX image rather than any retained copy of the original input (SPEC_FULL
// §4, "Get/Set on a built CSX image"). It is read-only: CsxGetSet.h's own
// comment that mutating a built image without rebuilding is unsupported is
// why there is no corresponding Set.
func (t *TunedMatrix) At(row, col int) (float64, error) {
	if row < 0 || row >= t.nrows {
		return 0, newError(IndexOutOfBounds, "row %d out of range [0,%d)", row, t.nrows)
	}
	if col < 0 || col >= t.ncols {
		return 0, newError(IndexOutOfBounds, "col %d out of range [0,%d)", col, t.ncols)
	}

	pr, pc := row, col
	if t.permutation != nil {
		pr, pc = t.permutation[row], t.permutation[col]
	}

	for _, part := range t.parts {
		if pr >= part.rowStart && pr < part.rowStart+part.nrows {
			return part.prog.At(pr-part.rowStart, pc), nil
		}
	}
	return 0, newError(IndexOutOfBounds, "row %d not covered by any partition", row)
}

// Stats reports the tuned matrix's encoded footprint (SPEC_FULL §4, "CSX
// statistics/print utilities"), summing each partition's ctl/values/
// rows_info/id_map byte counts. Int-sized fields are counted at 8 bytes,
// matching the int width of every 64-bit build this module targets.
func (t *TunedMatrix) Stats() BuildReport {
	const intSize = 8
	var r BuildReport
	r.NumWorkers = len(t.parts)
	for _, part := range t.parts {
		r.NNZ += part.nnz
		r.CtlBytes += len(part.image.Ctl)
		r.ValueBytes += len(part.image.Values) * intSize
		r.RowsInfoBytes += len(part.image.RowsInfo) * 3 * intSize
		r.IDMapBytes += len(part.image.IDMap) * intSize
	}
	r.TotalBytes = r.CtlBytes + r.ValueBytes + r.RowsInfoBytes + r.IDMapBytes
	return r
}

// Close stops the tuned matrix's executor pool. A TunedMatrix must not be
// used again afterwards.
func (t *TunedMatrix) Close() {
	t.pool.Close()
}

// Save serialises the tuned matrix's CSX image to w (spec.md §6's on-disk
// form), via persist.Image's binary encoding.
func (t *TunedMatrix) Save(w io.Writer) error {
	img := &persist.Image{
		NumWorkers: len(t.parts),
		Symmetric:  t.symmetric,
		Reordered:  t.permutation != nil,
	}
	if t.permutation != nil {
		img.Permutation = append([]int(nil), t.permutation...)
	}
	for _, part := range t.parts {
		img.Partitions = append(img.Partitions, persist.Partition{
			Placement: part.placement,
			NNZ:       part.nnz,
			NCols:     part.ncols,
			NRows:     part.nrows,
			RowStart:  part.rowStart,
			Image:     part.image,
		})
	}
	data, err := img.MarshalBinary()
	if err != nil {
		return newError(FileIO, "%v", err)
	}
	if _, err := w.Write(data); err != nil {
		return newError(FileIO, "%v", err)
	}
	return nil
}

// Restore rebuilds a TunedMatrix from a stream previously produced by Save
// (spec.md §8, "save/restore round-trip"). The restored pool is pinned
// according to ctx's own Config.CPUAffinity rather than the saved
// placement triples, which the round-trip law allows to be re-mapped
// (placement is a scheduling hint, not part of the matrix's semantics).
func (ctx *Context) Restore(r io.Reader) (*TunedMatrix, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newError(FileIO, "%v", err)
	}
	img := &persist.Image{}
	if err := img.UnmarshalBinary(data); err != nil {
		return nil, newError(FileIO, "%v", err)
	}

	programs := make([]*codegen.Program, len(img.Partitions))
	rowOffsets := make([]int, len(img.Partitions))
	rowCounts := make([]int, len(img.Partitions))
	parts := make([]partitionState, len(img.Partitions))
	ncols := 0

	for i, p := range img.Partitions {
		prog, err := codegen.Compile(p.Image, p.NRows)
		if err != nil {
			return nil, newError(TunedMatrixInvalid, "partition %d: %v", i, err)
		}
		programs[i] = prog
		rowOffsets[i] = p.RowStart
		rowCounts[i] = p.NRows
		parts[i] = partitionState{
			placement: p.Placement,
			nnz:       p.NNZ,
			ncols:     p.NCols,
			nrows:     p.NRows,
			rowStart:  p.RowStart,
			image:     p.Image,
			prog:      prog,
		}
		if p.NCols > ncols {
			ncols = p.NCols
		}
	}

	nrows := 0
	for _, c := range rowCounts {
		nrows += c
	}

	var affinity []int
	if len(ctx.cfg.CPUAffinity) == len(img.Partitions) {
		affinity = ctx.cfg.CPUAffinity
	}

	var perm *kernel.Permutation
	if img.Reordered {
		perm = kernel.NewPermutation(img.Permutation)
	}

	pool, err := exec.NewPool(programs, rowOffsets, rowCounts, affinity, perm, ncols)
	if err != nil {
		return nil, newError(TunedMatrixInvalid, "%v", err)
	}
	for i, w := range pool.Workers() {
		parts[i].placement = persist.PartitionPlacement{CPU: w.CPU, ID: w.ID, Node: w.NUMANode}
	}

	tm := &TunedMatrix{
		nrows:     nrows,
		ncols:     ncols,
		symmetric: img.Symmetric,
		pool:      pool,
		parts:     parts,
	}
	if img.Reordered {
		tm.permutation = img.Permutation
	}
	return tm, nil
}

// validatePermutation checks that forward is a bijection on [0,n) before
// handing it to kernel.NewPermutation, which panics on a malformed
// permutation rather than erroring - Tune's caller gets a csx.Error
// instead of a runtime panic for a bad external input (spec.md §7, "fatal
// input error").
func validatePermutation(forward []int, n int) error {
	if len(forward) != n {
		return newError(InvalidArg, "permutation has length %d, want %d", len(forward), n)
	}
	seen := make([]bool, n)
	for _, f := range forward {
		if f < 0 || f >= n || seen[f] {
			return newError(InvalidArg, "permutation is not a bijection on [0,%d)", n)
		}
		seen[f] = true
	}
	return nil
}

// permuteCSR rewrites a 0-based CSR matrix under the forward mapping
// forward, applied to both axes: entry (i, j) moves to (forward[i],
// forward[j]) (spec.md §4.6, "A_p = P A P^-1" for the permutation matrix
// P). Each destination row's entries are re-sorted by column, since
// internal/ir.FromCSR assumes an ascending column order per row.
func permuteCSR(n int, rowptr, colind []int, data []float64, forward []int) (newRowptr, newColind []int, newData []float64) {
	type entry struct {
		col int
		val float64
	}
	buckets := make([][]entry, n)
	for i := 0; i < n; i++ {
		pr := forward[i]
		for k := rowptr[i]; k < rowptr[i+1]; k++ {
			buckets[pr] = append(buckets[pr], entry{col: forward[colind[k]], val: data[k]})
		}
	}

	nnz := rowptr[n]
	newRowptr = make([]int, n+1)
	newColind = make([]int, 0, nnz)
	newData = make([]float64, 0, nnz)
	for pr := 0; pr < n; pr++ {
		b := buckets[pr]
		sort.Slice(b, func(a, c int) bool { return b[a].col < b[c].col })
		newRowptr[pr] = len(newColind)
		for _, e := range b {
			newColind = append(newColind, e.col)
			newData = append(newData, e.val)
		}
	}
	newRowptr[n] = len(newColind)
	return newRowptr, newColind, newData
}
