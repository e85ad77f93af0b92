// Package partition implements the partitioner of spec.md §4.1: it splits a
// CSR-like view of a matrix row-contiguously into P partitions, balanced by
// non-zero count, with no row ever split across a partition boundary.
package partition

import (
	"fmt"

	"github.com/jbowman-csx/csx/internal/ir"
)

// Split builds P row-contiguous partitions of the nrows x ncols matrix given
// by (rowptr, colind, data), balanced by non-zero count (spec.md §4.1,
// "Algorithm"). rowptr is a 0-based CSR row pointer of length nrows+1;
// colind/data are 0-based column indices and values.
//
// The ideal per-partition load is ceil(nnz/p); rows accumulate into the
// current partition until its load reaches that ideal, at which point the
// partition closes (keeping the row that reached it), unless closing it now
// would leave no rows for the final partition. An empty matrix (nrows==0 or nnz==0) yields p empty partitions,
// each with its own (degenerate) row_start, per spec.md §4.1, "Failure".
func Split(nrows, ncols int, rowptr, colind []int, data []float64, p int) ([]*ir.Partition, error) {
	if p <= 0 {
		return nil, fmt.Errorf("partition: p must be positive, got %d", p)
	}
	if len(rowptr) != nrows+1 {
		return nil, fmt.Errorf("partition: rowptr has length %d, want %d", len(rowptr), nrows+1)
	}
	for i := 0; i < nrows; i++ {
		if rowptr[i+1] < rowptr[i] {
			return nil, fmt.Errorf("partition: non-monotone rowptr at row %d", i)
		}
	}
	nnz := rowptr[nrows]
	if len(colind) < nnz || len(data) < nnz {
		return nil, fmt.Errorf("partition: colind/data shorter than rowptr[nrows]=%d", nnz)
	}

	bounds := rowBounds(nrows, rowptr, p)

	parts := make([]*ir.Partition, 0, p)
	for _, b := range bounds {
		rs, re := b.start, b.end
		lo, hi := rowptr[rs], rowptr[re]
		sub, err := ir.FromCSR(rs, re-rs, ncols, subRowPtr(rowptr, rs, re), colind[lo:hi], data[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", len(parts), err)
		}
		parts = append(parts, sub)
	}
	return parts, nil
}

type rowSpan struct{ start, end int }

// rowBounds computes the [start,end) row range of each of the p partitions.
// For an empty matrix (nrows==0) it returns p empty, consecutive spans so
// every partition still exists (spec.md §4.1, "Empty matrices yield P empty
// partitions").
func rowBounds(nrows int, rowptr []int, p int) []rowSpan {
	if nrows == 0 {
		spans := make([]rowSpan, p)
		for i := range spans {
			spans[i] = rowSpan{0, 0}
		}
		return spans
	}

	nnz := rowptr[nrows]
	ideal := (nnz + p - 1) / p
	if ideal == 0 {
		ideal = 1
	}

	// Close a partition once its running load reaches the ideal, but never
	// close more than p-1 of them here, and never at the last row: the
	// loop's own trailing append below always supplies the final partition,
	// so these two limits guarantee it always gets at least one row.
	var spans []rowSpan
	rowStart := 0
	load := 0
	for i := 0; i < nrows && len(spans) < p-1; i++ {
		load += rowptr[i+1] - rowptr[i]
		if load >= ideal && i+1 < nrows {
			spans = append(spans, rowSpan{rowStart, i + 1})
			rowStart = i + 1
			load = 0
		}
	}
	spans = append(spans, rowSpan{rowStart, nrows})

	// Pad with trailing empty partitions when fewer than p spans were
	// formed (always the case when nrows < p): every requested partition
	// must exist, even if empty.
	for len(spans) < p {
		spans = append(spans, rowSpan{nrows, nrows})
	}
	return spans
}

// subRowPtr extracts a 0-based row pointer for rows [rs,re) from the
// whole-matrix rowptr, renumbered so the sub-slice starts at 0.
func subRowPtr(rowptr []int, rs, re int) []int {
	out := make([]int, re-rs+1)
	base := rowptr[rs]
	for i := range out {
		out[i] = rowptr[rs+i] - base
	}
	return out
}
