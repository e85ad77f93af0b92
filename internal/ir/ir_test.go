package ir

import (
	"testing"

	"github.com/jbowman-csx/csx/internal/types"
)

// TestRoundTripMaps checks the testable property of spec.md §8: for every
// supported type T, f_T⁻¹(f_T((r,c))) == (r,c) for all (r,c) within bounds.
func TestRoundTripMaps(t *testing.T) {
	const nrows, ncols = 7, 5
	const blockDim = 2

	cases := []types.EncodingType{
		types.TypeVertical, types.TypeDiagonal, types.TypeAntiDiagonal,
		types.TypeBlockRow, types.TypeBlockCol,
	}

	for _, et := range cases {
		fwd := forwardMap(et, nrows, ncols, blockDim)
		rev := inverseMap(et, nrows, ncols, blockDim)
		for r := 1; r <= nrows; r++ {
			for c := 1; c <= ncols; c++ {
				nr, nc := fwd(r, c)
				gr, gc := rev(nr, nc)
				if gr != r || gc != c {
					t.Fatalf("%v: round trip failed for (%d,%d): fwd=(%d,%d) rev=(%d,%d)", et, r, c, nr, nc, gr, gc)
				}
			}
		}
	}
}

func elemsByRowCol(p *Partition) map[[2]int]float64 {
	m := make(map[[2]int]float64)
	for _, e := range p.Elems {
		m[[2]int{e.Row, e.Col}] = e.Val
	}
	return m
}

// TestTransformRoundTrip builds a small horizontal partition, transforms it
// to every supported type and back, and checks the element set is
// unchanged (spec.md §4.2: "After analysis the partition must be
// transformed back to horizontal; map application and its inverse are
// exact").
func TestTransformRoundTrip(t *testing.T) {
	rowptr := []int{0, 2, 3, 5}
	elems := []Element{
		{Row: 1, Col: 1, Val: 1},
		{Row: 1, Col: 3, Val: 2},
		{Row: 2, Col: 2, Val: 3},
		{Row: 3, Col: 1, Val: 4},
		{Row: 3, Col: 3, Val: 5},
	}
	want := elemsByRowCol(New(0, 3, 3, elems, rowptr))

	for _, et := range []types.EncodingType{
		types.TypeVertical, types.TypeDiagonal, types.TypeAntiDiagonal,
		types.TypeBlockRow, types.TypeBlockCol,
	} {
		p := New(0, 3, 3, append([]Element(nil), elems...), append([]int(nil), rowptr...))
		if err := p.TransformTo(et, 1); err != nil {
			t.Fatalf("%v: TransformTo: %v", et, err)
		}
		if err := p.TransformToHorizontal(1); err != nil {
			t.Fatalf("%v: TransformToHorizontal: %v", et, err)
		}
		if p.NRows != 3 || p.NCols != 3 {
			t.Fatalf("%v: dims not restored: got %dx%d", et, p.NRows, p.NCols)
		}
		got := elemsByRowCol(p)
		if len(got) != len(want) {
			t.Fatalf("%v: element count changed: got %d want %d", et, len(got), len(want))
		}
		for k, v := range want {
			if gv, ok := got[k]; !ok || gv != v {
				t.Fatalf("%v: element at %v: got %v (present=%v) want %v", et, k, gv, ok, v)
			}
		}
	}
}

func TestFromCSR(t *testing.T) {
	rowptr := []int{0, 1, 1, 3}
	colind := []int{0, 0, 2}
	data := []float64{1, 2, 3}
	p, err := FromCSR(0, 3, 3, rowptr, colind, data)
	if err != nil {
		t.Fatal(err)
	}
	if p.NNZ() != 3 {
		t.Fatalf("NNZ() = %d, want 3", p.NNZ())
	}
	if len(p.Row(1)) != 0 {
		t.Fatalf("row 1 should be empty")
	}
	row2 := p.Row(2)
	if len(row2) != 2 || row2[0].Col != 1 || row2[1].Col != 3 {
		t.Fatalf("row 2 = %+v, want cols 1,3", row2)
	}
}

func TestFromCSRRejectsOutOfRangeColumn(t *testing.T) {
	rowptr := []int{0, 1}
	colind := []int{5}
	data := []float64{1}
	if _, err := FromCSR(0, 1, 3, rowptr, colind, data); err == nil {
		t.Fatal("expected error for out-of-range column index")
	}
}

func TestWindowIsNonOwningAndCannotTransform(t *testing.T) {
	rowptr := []int{0, 1, 2, 3}
	elems := []Element{{Row: 1, Col: 1, Val: 1}, {Row: 2, Col: 1, Val: 2}, {Row: 3, Col: 1, Val: 3}}
	p := New(0, 3, 1, elems, rowptr)
	w := p.Window(1, 2)
	if !w.IsWindow() {
		t.Fatal("Window() should mark the view as a window")
	}
	if err := w.TransformTo(types.TypeVertical, 1); err == nil {
		t.Fatal("transforming a window in place should be rejected")
	}
	if w.NRows != 2 || w.Row(0)[0].Row != 1 {
		t.Fatalf("window not renumbered correctly: %+v", w)
	}
}
