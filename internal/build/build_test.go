package build

import (
	"testing"

	"github.com/jbowman-csx/csx/internal/ir"
	"github.com/jbowman-csx/csx/internal/types"
)

// TestBuildScalarRow checks the simplest case: a row of plain scalar
// elements becomes one ctl record per element, each tagged with the
// delta-run pattern id (spec.md §4.4: scalars are size-1 delta records).
func TestBuildScalarRow(t *testing.T) {
	rowptr := []int{0, 2}
	elems := []ir.Element{
		{Row: 1, Col: 1, Val: 10},
		{Row: 1, Col: 3, Val: 20},
	}
	part := ir.New(0, 1, 5, elems, rowptr)

	img, err := Build(part, ColIndexDelta)
	if err != nil {
		t.Fatal(err)
	}
	if len(img.Values) != 2 || img.Values[0] != 10 || img.Values[1] != 20 {
		t.Fatalf("Values = %v", img.Values)
	}
	if len(img.RowsInfo) != 1 || img.RowsInfo[0].CtlOffset != 0 {
		t.Fatalf("RowsInfo = %+v", img.RowsInfo)
	}
	if len(img.IDMap) != 2 || img.IDMap[len(img.IDMap)-1] != -1 {
		t.Fatalf("IDMap = %v, want a 2-entry map terminated by -1", img.IDMap)
	}
}

// TestBuildEmptyRowsGetRowJump checks that rows with no elements cost
// nothing in ctl and that the next record after a gap carries a row-jump.
func TestBuildEmptyRowsGetRowJump(t *testing.T) {
	rowptr := []int{0, 0, 0, 1}
	elems := []ir.Element{{Row: 3, Col: 1, Val: 5}}
	part := ir.New(0, 3, 4, elems, rowptr)

	img, err := Build(part, ColIndexDelta)
	if err != nil {
		t.Fatal(err)
	}
	if img.RowsInfo[0].CtlOffset != img.RowsInfo[1].CtlOffset || img.RowsInfo[1].CtlOffset != img.RowsInfo[2].CtlOffset {
		t.Fatalf("empty rows should share the next record's ctl offset: %+v", img.RowsInfo)
	}
	if img.Ctl[0]&flagRJMP == 0 {
		t.Fatalf("expected RJMP flag on the first record after 2 empty rows, got flag %08b", img.Ctl[0])
	}
}

// TestBuildDeltaRunPattern checks a multi-element delta-run record carries
// its per-element strides and that the reported span stays within its
// anchor row.
func TestBuildDeltaRunPattern(t *testing.T) {
	rowptr := []int{0, 1}
	elems := []ir.Element{
		{
			Row: 1, Col: 1,
			Pattern: &types.Pattern{Type: types.TypeDeltaRun, Size: 3, Delta: 1},
			Vals:    []float64{1, 2, 3},
			Deltas:  []int64{2, 5},
		},
	}
	part := ir.New(0, 1, 20, elems, rowptr)

	img, err := Build(part, ColIndexDelta)
	if err != nil {
		t.Fatal(err)
	}
	if img.RowsInfo[0].Span != 0 {
		t.Fatalf("delta-run span = %d, want 0", img.RowsInfo[0].Span)
	}
	if len(img.Values) != 3 {
		t.Fatalf("Values = %v, want 3 entries", img.Values)
	}
}

// TestBuildVerticalPatternSpan checks a vertical pattern's span is its size
// minus one (spec.md §4.4: "vertical... patterns can reach other rows").
func TestBuildVerticalPatternSpan(t *testing.T) {
	rowptr := []int{0, 1}
	elems := []ir.Element{
		{
			Row: 1, Col: 1,
			Pattern: &types.Pattern{Type: types.TypeVertical, Size: 4, Delta: 1},
			Vals:    []float64{1, 2, 3, 4},
		},
	}
	part := ir.New(0, 1, 10, elems, rowptr)

	img, err := Build(part, ColIndexFull32)
	if err != nil {
		t.Fatal(err)
	}
	if img.RowsInfo[0].Span != 3 {
		t.Fatalf("vertical span = %d, want 3", img.RowsInfo[0].Span)
	}
}

func TestBuildRejectsNonHorizontalPartition(t *testing.T) {
	rowptr := []int{0, 1}
	elems := []ir.Element{{Row: 1, Col: 1, Val: 1}}
	part := ir.New(0, 1, 1, elems, rowptr)
	part.Type = types.TypeVertical
	if _, err := Build(part, ColIndexDelta); err == nil {
		t.Fatal("expected error for a non-horizontal partition")
	}
}
