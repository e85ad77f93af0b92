package kernel

import "testing"

func TestGatherScatterRoundTrip(t *testing.T) {
	y := []float64{10, 20, 30, 40}
	idx := []int{3, 1, 0}
	dst := make([]float64, len(idx))
	Gather(dst, y, idx, 1)
	if dst[0] != 40 || dst[1] != 20 || dst[2] != 10 {
		t.Fatalf("Gather = %v", dst)
	}

	y2 := make([]float64, len(y))
	Scatter(y2, dst, idx, 1)
	if y2[3] != 40 || y2[1] != 20 || y2[0] != 10 || y2[2] != 0 {
		t.Fatalf("Scatter = %v", y2)
	}
}

func TestAxpyAtAndDotAt(t *testing.T) {
	y := []float64{0, 0, 0}
	idx := []int{0, 2}
	x := []float64{2, 3}
	AxpyAt(5, x, idx, y, 1)
	if y[0] != 10 || y[2] != 15 || y[1] != 0 {
		t.Fatalf("AxpyAt = %v", y)
	}

	dot := DotAt(x, idx, []float64{1, 1, 1}, 1)
	if dot != 5 {
		t.Fatalf("DotAt = %v, want 5", dot)
	}
}

func TestPermutationRoundTrip(t *testing.T) {
	forward := []int{2, 0, 1}
	p := NewPermutation(forward)

	src := []float64{10, 20, 30}
	permuted := make([]float64, 3)
	p.Apply(permuted, src)
	back := make([]float64, 3)
	p.ApplyInverse(back, permuted)
	for i := range src {
		if back[i] != src[i] {
			t.Fatalf("round trip at %d: got %v want %v", i, back[i], src[i])
		}
	}
}

func TestNewPermutationRejectsNonBijection(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for a non-bijective forward map")
		}
	}()
	NewPermutation([]int{0, 0})
}
