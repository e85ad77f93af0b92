package pool

import "testing"

func TestGetFloatsLengthAndClear(t *testing.T) {
	w := GetFloats(10, false)
	if len(w) != 10 {
		t.Fatalf("len = %d, want 10", len(w))
	}
	for i := range w {
		w[i] = float64(i + 1)
	}
	PutFloats(w)

	w2 := GetFloats(5, true)
	if len(w2) != 5 {
		t.Fatalf("len = %d, want 5", len(w2))
	}
	for i, v := range w2 {
		if v != 0 {
			t.Fatalf("w2[%d] = %v, want 0 (clear requested)", i, v)
		}
	}
}

func TestGetFloatsGrowsBeyondBaseline(t *testing.T) {
	w := GetFloats(pooledFloatSize+50, false)
	if len(w) != pooledFloatSize+50 {
		t.Fatalf("len = %d, want %d", len(w), pooledFloatSize+50)
	}
	PutFloats(w)
}

func TestGetIntsLengthAndClear(t *testing.T) {
	w := GetInts(8, false)
	if len(w) != 8 {
		t.Fatalf("len = %d, want 8", len(w))
	}
	for i := range w {
		w[i] = i + 1
	}
	PutInts(w)

	w2 := GetInts(3, true)
	for i, v := range w2 {
		if v != 0 {
			t.Fatalf("w2[%d] = %v, want 0 (clear requested)", i, v)
		}
	}
}

func TestPutSmallSliceIsDropped(t *testing.T) {
	// A slice smaller than the pool's baseline capacity must not panic on
	// Put, even though it will be silently dropped rather than pooled.
	PutFloats(make([]float64, 1))
	PutInts(make([]int, 1))
}
