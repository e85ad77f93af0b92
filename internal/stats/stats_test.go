package stats

import (
	"testing"

	"github.com/jbowman-csx/csx/internal/ir"
	"github.com/jbowman-csx/csx/internal/types"
)

func defaultCfg() Config {
	return Config{
		MinUnitSize: 4,
		MaxUnitSize: 255,
		MinCoverage: 0.1,
	}
}

// TestHorizontalRun checks scenario 3 of spec.md §8: a 1x8 row of ones
// should produce one horizontal instantiation of delta 1, size 8.
func TestHorizontalRun(t *testing.T) {
	rowptr := []int{0, 8}
	elems := make([]ir.Element, 8)
	for i := range elems {
		elems[i] = ir.Element{Row: 1, Col: i + 1, Val: 1}
	}
	p := ir.New(0, 1, 8, elems, rowptr)

	coll := Compute(p, types.TypeHorizontal, 1, defaultCfg())
	d, ok := coll.ByParam[1]
	if !ok {
		t.Fatalf("expected delta=1 instantiation, got %v", coll.ByParam)
	}
	if d.EncodedNZ != 8 || d.NPatterns != 1 {
		t.Fatalf("got %+v, want EncodedNZ=8 NPatterns=1", d)
	}
}

// TestBlockRowDetection checks scenario 4 of spec.md §8: two adjacent rows
// with non-zeros in the same four consecutive columns must be detected as
// a single block-row-2 instantiation of size 8.
func TestBlockRowDetection(t *testing.T) {
	rowptr := []int{0, 4, 8}
	elems := make([]ir.Element, 0, 8)
	for r := 1; r <= 2; r++ {
		for c := 1; c <= 4; c++ {
			elems = append(elems, ir.Element{Row: r, Col: c, Val: 1})
		}
	}
	p := ir.New(0, 2, 4, elems, rowptr)
	cfg := defaultCfg()
	cfg.MinUnitSize = 2

	coll := Compute(p, types.TypeBlockRow, 1, cfg)
	found := false
	for _, d := range coll.ByParam {
		if d.EncodedNZ == 8 && d.NPatterns == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a block-row instantiation covering all 8 non-zeros, got %v", coll.ByParam)
	}
}

func TestDeltaBaseline(t *testing.T) {
	rowptr := []int{0, 3, 3, 5}
	elems := []ir.Element{
		{Row: 1, Col: 1, Val: 1}, {Row: 1, Col: 2, Val: 1}, {Row: 1, Col: 3, Val: 1},
		{Row: 3, Col: 1, Val: 1}, {Row: 3, Col: 2, Val: 1},
	}
	p := ir.New(0, 3, 3, elems, rowptr)
	d := ComputeDeltaBaseline(p, Config{MaxUnitSize: 2})
	// row 1 has 3 unpatterned elements -> ceil(3/2) = 2 records;
	// row 3 has 2 -> ceil(2/2) = 1 record.
	if d.NDeltas != 3 {
		t.Fatalf("NDeltas = %d, want 3", d.NDeltas)
	}
}
