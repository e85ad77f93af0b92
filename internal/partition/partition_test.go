package partition

import "testing"

// TestSplitBalancesByNNZ checks spec.md §4.1's contract: rows never split
// across partitions, and partitions are balanced by non-zero count rather
// than by row count.
func TestSplitBalancesByNNZ(t *testing.T) {
	// 6 rows, non-zero counts 1,1,1,1,1,5 -> nnz=10. With p=2 the ideal load
	// is 5; row-contiguous closing should put rows 0-4 in partition 0 (load
	// 5) and row 5 alone in partition 1 (load 5), not split 3/3 by row count.
	rowptr := []int{0, 1, 2, 3, 4, 5, 10}
	colind := make([]int, 10)
	data := make([]float64, 10)
	for i := range colind {
		colind[i] = i % 6
		data[i] = float64(i + 1)
	}

	parts, err := Split(6, 6, rowptr, colind, data, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 2 {
		t.Fatalf("len(parts) = %d, want 2", len(parts))
	}
	if parts[0].NRows != 5 || parts[0].NNZ() != 5 {
		t.Fatalf("partition 0: NRows=%d NNZ=%d, want 5,5", parts[0].NRows, parts[0].NNZ())
	}
	if parts[1].NRows != 1 || parts[1].NNZ() != 5 {
		t.Fatalf("partition 1: NRows=%d NNZ=%d, want 1,5", parts[1].NRows, parts[1].NNZ())
	}
	if parts[1].RowStart != 5 {
		t.Fatalf("partition 1: RowStart=%d, want 5", parts[1].RowStart)
	}
}

// TestSplitEmptyMatrixYieldsPEmptyPartitions checks spec.md §4.1, "Failure":
// empty matrices yield p empty partitions.
func TestSplitEmptyMatrixYieldsPEmptyPartitions(t *testing.T) {
	rowptr := []int{0}
	parts, err := Split(0, 4, rowptr, nil, nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 3 {
		t.Fatalf("len(parts) = %d, want 3", len(parts))
	}
	for i, p := range parts {
		if p.NRows != 0 || p.NNZ() != 0 {
			t.Fatalf("partition %d not empty: NRows=%d NNZ=%d", i, p.NRows, p.NNZ())
		}
	}
}

// TestSplitMoreWorkersThanRows checks that requesting more partitions than
// rows still yields exactly p partitions, with trailing ones empty.
func TestSplitMoreWorkersThanRows(t *testing.T) {
	rowptr := []int{0, 1, 2}
	colind := []int{0, 1}
	data := []float64{1, 2}
	parts, err := Split(2, 2, rowptr, colind, data, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 5 {
		t.Fatalf("len(parts) = %d, want 5", len(parts))
	}
	total := 0
	for _, p := range parts {
		total += p.NNZ()
	}
	if total != 2 {
		t.Fatalf("total NNZ across partitions = %d, want 2", total)
	}
}

// TestSplitRejectsNonMonotoneRowPtr checks input validation (spec.md §4.1,
// "mismatched CSR arrays are an InvalidInput error").
func TestSplitRejectsNonMonotoneRowPtr(t *testing.T) {
	rowptr := []int{0, 2, 1}
	colind := []int{0, 1}
	data := []float64{1, 2}
	if _, err := Split(2, 2, rowptr, colind, data, 1); err == nil {
		t.Fatal("expected error for non-monotone rowptr")
	}
}
