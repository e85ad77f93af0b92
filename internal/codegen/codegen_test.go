package codegen

import (
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/jbowman-csx/csx/internal/build"
	"github.com/jbowman-csx/csx/internal/ir"
	"github.com/jbowman-csx/csx/internal/types"
)

// almostEqual checks spec.md §8's ε_abs = 1e-9 correctness tolerance.
func almostEqual(a, b float64) bool {
	return floats.EqualWithinAbs(a, b, 1e-9)
}

// TestRunScalarRow checks that a row of plain scalars (each built as a
// size-1 delta-run record) computes a correct dot product.
func TestRunScalarRow(t *testing.T) {
	rowptr := []int{0, 2}
	elems := []ir.Element{
		{Row: 1, Col: 1, Val: 2},
		{Row: 1, Col: 3, Val: 5},
	}
	part := ir.New(0, 1, 4, elems, rowptr)

	img, err := build.Build(part, build.ColIndexDelta)
	if err != nil {
		t.Fatal(err)
	}
	prog, err := Compile(img, 1)
	if err != nil {
		t.Fatal(err)
	}

	x := []float64{1, 10, 100, 1000}
	y := []float64{0}
	prog.Run(x, 1, y, 0)

	want := 2*x[0] + 5*x[2]
	if !almostEqual(y[0], want) {
		t.Fatalf("y[0] = %v, want %v", y[0], want)
	}
}

// TestRunDeltaRunWidths checks that delta-run records needing different
// byte widths (because their maximum stride differs) both decode correctly,
// including a width wide enough to require more than one byte per delta.
func TestRunDeltaRunWidths(t *testing.T) {
	rowptr := []int{0, 1}
	// Deltas 2 and 300 force a u16-width record (300 > 0xFF).
	elems := []ir.Element{
		{
			Row: 1, Col: 1,
			Pattern: &types.Pattern{Type: types.TypeDeltaRun, Size: 3, Delta: 2},
			Vals:    []float64{1, 2, 3},
			Deltas:  []int64{2, 300},
		},
	}
	part := ir.New(0, 1, 400, elems, rowptr)

	img, err := build.Build(part, build.ColIndexDelta)
	if err != nil {
		t.Fatal(err)
	}
	prog, err := Compile(img, 1)
	if err != nil {
		t.Fatal(err)
	}

	x := make([]float64, 400)
	x[0] = 1  // col 1 (1-based) -> local 0-based col 0
	x[2] = 1  // col 1+2 = 3 -> local col 2
	x[302] = 1 // col 3+300 = 303 -> local col 302
	y := []float64{0}
	prog.Run(x, 1, y, 0)

	want := 1.0 + 2.0 + 3.0
	if !almostEqual(y[0], want) {
		t.Fatalf("y[0] = %v, want %v (wide delta-run decoded wrong)", y[0], want)
	}
}

// TestRunVerticalPattern checks the axpy-down-a-column geometry: a vertical
// pattern of size n contributes vals[k]*x[col] to y[row+k] for each k.
func TestRunVerticalPattern(t *testing.T) {
	rowptr := []int{0, 1, 1, 1}
	elems := []ir.Element{
		{
			Row: 1, Col: 1,
			Pattern: &types.Pattern{Type: types.TypeVertical, Size: 3, Delta: 1},
			Vals:    []float64{10, 20, 30},
		},
	}
	part := ir.New(0, 3, 1, elems, rowptr)

	img, err := build.Build(part, build.ColIndexFull32)
	if err != nil {
		t.Fatal(err)
	}
	prog, err := Compile(img, 3)
	if err != nil {
		t.Fatal(err)
	}

	x := []float64{2}
	y := make([]float64, 3)
	prog.Run(x, 1, y, 0)

	want := []float64{20, 40, 60}
	for i := range want {
		if !almostEqual(y[i], want[i]) {
			t.Fatalf("y = %v, want %v", y, want)
		}
	}
}

// TestRunBlockRowPattern checks the block-row unpacking geometry
// (subRow = k % r, colOff = k / r) against a small 2x2 dense block.
func TestRunBlockRowPattern(t *testing.T) {
	rowptr := []int{0, 1}
	// r=2 rows, otherDim=2 columns per group; vals laid out column by
	// column with subRow varying fastest, the scan order of the
	// block-row-transformed partition that rewriteRow's makePatternElement
	// copies.
	elems := []ir.Element{
		{
			Row: 1, Col: 1,
			Pattern: &types.Pattern{Type: types.TypeBlockRow, Size: 4, OtherDim: 2},
			Vals:    []float64{1, 2, 3, 4},
		},
	}
	part := ir.New(0, 2, 2, elems, rowptr)

	img, err := build.Build(part, build.ColIndexFull32)
	if err != nil {
		t.Fatal(err)
	}
	prog, err := Compile(img, 2)
	if err != nil {
		t.Fatal(err)
	}

	r := 2
	x := []float64{5, 7}
	y := make([]float64, 2)
	prog.Run(x, 1, y, 0)

	want := make([]float64, 2)
	for k, v := range elems[0].Vals {
		subRow := k % r
		colOff := k / r
		want[subRow] += v * x[colOff]
	}
	for i := range want {
		if !almostEqual(y[i], want[i]) {
			t.Fatalf("y = %v, want %v", y, want)
		}
	}
}

// TestRunBetaScaling checks that beta=0 clears y and beta!=1 scales the
// prior y before accumulation, matching y <- alpha*A*x + beta*y.
func TestRunBetaScaling(t *testing.T) {
	rowptr := []int{0, 1}
	elems := []ir.Element{{Row: 1, Col: 1, Val: 3}}
	part := ir.New(0, 1, 1, elems, rowptr)

	img, err := build.Build(part, build.ColIndexDelta)
	if err != nil {
		t.Fatal(err)
	}
	prog, err := Compile(img, 1)
	if err != nil {
		t.Fatal(err)
	}

	x := []float64{2}
	y := []float64{100}
	prog.Run(x, 2, y, 0.5)

	want := 2*3*2 + 0.5*100
	if !almostEqual(y[0], want) {
		t.Fatalf("y[0] = %v, want %v", y[0], want)
	}
}

// TestDotAtMatchesBothVariants checks the unrolled and plain dotAt paths
// agree on a non-multiple-of-4 length input, forcing each path in turn
// regardless of the host CPU's actual feature set.
func TestDotAtMatchesBothVariants(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5, 6, 7}
	idx := []int{0, 1, 2, 3, 4, 5, 6}
	x := []float64{2, 2, 2, 2, 2, 2, 2}
	want := 2 * (1 + 2 + 3 + 4 + 5 + 6 + 7)

	saved := unroll4
	defer func() { unroll4 = saved }()

	unroll4 = false
	if got := dotAt(vals, idx, x); !almostEqual(got, want) {
		t.Fatalf("scalar dotAt = %v, want %v", got, want)
	}

	unroll4 = true
	if got := dotAt(vals, idx, x); !almostEqual(got, want) {
		t.Fatalf("unrolled dotAt = %v, want %v", got, want)
	}
}
