package exec

import (
	"testing"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/jbowman-csx/csx/internal/build"
	"github.com/jbowman-csx/csx/internal/codegen"
	"github.com/jbowman-csx/csx/internal/ir"
	"github.com/jbowman-csx/csx/internal/kernel"
)

func almostEqual(a, b float64) bool { return floats.EqualWithinAbs(a, b, 1e-9) }

func compileProgram(t *testing.T, part *ir.Partition, nrows int) *codegen.Program {
	t.Helper()
	img, err := build.Build(part, build.ColIndexDelta)
	if err != nil {
		t.Fatal(err)
	}
	prog, err := codegen.Compile(img, nrows)
	if err != nil {
		t.Fatal(err)
	}
	return prog
}

// TestPoolRunTwoPartitions checks that two row-disjoint partitions, each run
// on its own worker, together produce the same result a single
// unpartitioned SpMV would (spec.md §5: "partitions are row-disjoint,
// workers write to disjoint slices of y; there is no locking in the hot
// path").
func TestPoolRunTwoPartitions(t *testing.T) {
	part0 := ir.New(0, 1, 3, []ir.Element{{Row: 1, Col: 1, Val: 2}}, []int{0, 1})
	part1 := ir.New(1, 2, 3, []ir.Element{
		{Row: 1, Col: 2, Val: 3},
		{Row: 2, Col: 3, Val: 4},
	}, []int{0, 1, 2})

	prog0 := compileProgram(t, part0, 1)
	prog1 := compileProgram(t, part1, 2)

	pool, err := NewPool(
		[]*codegen.Program{prog0, prog1},
		[]int{0, 1},
		[]int{1, 2},
		nil,
		nil,
		3,
	)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	x := []float64{10, 100, 1000}
	y := make([]float64, 3)
	pool.Run(x, 1, y, 0)

	want := []float64{2 * 10, 3 * 100, 4 * 1000}
	for i := range want {
		if !almostEqual(y[i], want[i]) {
			t.Fatalf("y = %v, want %v", y, want)
		}
	}
}

// TestPoolRunWithPermutation checks that a permuted pool still produces the
// unpermuted caller's expected y, round-tripping through Apply/ApplyInverse.
func TestPoolRunWithPermutation(t *testing.T) {
	// Permuted row 0 holds original row 1's data, permuted row 1 holds
	// original row 0's data.
	part := ir.New(0, 2, 2, []ir.Element{
		{Row: 1, Col: 1, Val: 5},
		{Row: 2, Col: 2, Val: 7},
	}, []int{0, 1, 2})
	prog := compileProgram(t, part, 2)

	perm := kernel.NewPermutation([]int{1, 0}) // forward[i] = permuted position of original row i

	pool, err := NewPool([]*codegen.Program{prog}, []int{0}, []int{2}, nil, perm, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	x := []float64{3, 9}
	y := make([]float64, 2)
	pool.Run(x, 1, y, 0)

	// Px = P(x) = [x[Inverse[0]], x[Inverse[1]]]; forward=[1,0] is its own
	// inverse, so Px = [x[1], x[0]] = [9,3]. The partition computes
	// Py[0]=5*Px[0]=45, Py[1]=7*Px[1]=21. y = P^-1(Py) = [Py[Forward[0]],
	// Py[Forward[1]]] = [Py[1], Py[0]] = [21,45].
	want := []float64{21, 45}
	for i := range want {
		if !almostEqual(y[i], want[i]) {
			t.Fatalf("y = %v, want %v", y, want)
		}
	}
}

// TestPoolCloseStopsWorkers checks that Close terminates worker goroutines
// without blocking.
func TestPoolCloseStopsWorkers(t *testing.T) {
	part := ir.New(0, 1, 1, []ir.Element{{Row: 1, Col: 1, Val: 1}}, []int{0, 1})
	prog := compileProgram(t, part, 1)

	pool, err := NewPool([]*codegen.Program{prog}, []int{0}, []int{1}, nil, nil, 1)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return in time")
	}
}

// TestNewPoolValidatesLengths checks that mismatched slice lengths are
// rejected rather than silently truncated.
func TestNewPoolValidatesLengths(t *testing.T) {
	part := ir.New(0, 1, 1, []ir.Element{{Row: 1, Col: 1, Val: 1}}, []int{0, 1})
	prog := compileProgram(t, part, 1)

	if _, err := NewPool([]*codegen.Program{prog}, []int{0, 1}, []int{1}, nil, nil, 1); err == nil {
		t.Fatal("expected error for mismatched rowOffsets length")
	}
	if _, err := NewPool([]*codegen.Program{prog}, []int{0}, []int{1}, []int{0, 1}, nil, 1); err == nil {
		t.Fatal("expected error for mismatched affinity length")
	}
}
