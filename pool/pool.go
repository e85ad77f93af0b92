// Package pool provides sync.Pool-backed scratch buffers, generalising the
// teacher's own pool.go (getWorkspace/putWorkspace, getFloats/putInts) from
// a CSR workspace pool to plain float64 and int scratch slices. No other
// package in this module currently draws its buffers from here. The growth/
// clear contract is unchanged from the teacher: Get returns a slice of at
// least the requested length, optionally zeroed; Put returns ownership to
// the pool and must not be called while any alias of the slice is still in
// use.
package pool

import "sync"

// pooledFloatSize/pooledIntSize mirror the teacher's pooledFloatSize/
// pooledIntSize: the baseline capacity newly allocated pool entries start
// at, sized for one partition's typical scratch vector rather than the
// whole matrix.
const (
	pooledFloatSize = 256
	pooledIntSize   = 256
)

var (
	floatPool = sync.Pool{
		New: func() interface{} { return make([]float64, pooledFloatSize) },
	}
	intPool = sync.Pool{
		New: func() interface{} { return make([]int, pooledIntSize) },
	}
)

// GetFloats returns a []float64 of length l, drawn from the pool when a
// large-enough backing array is available. If clear is true every visible
// element is zeroed; callers that are about to overwrite every element
// (e.g. a gather destination) should pass false.
func GetFloats(l int, clear bool) []float64 {
	w := floatPool.Get().([]float64)
	return useFloats(w, l, clear)
}

// PutFloats returns w to the pool. w must not be referenced again by the
// caller afterwards (the teacher's own putFloats carries the identical
// contract). Slices smaller than the pool's baseline capacity are dropped
// rather than pooled, since re-growing them on the next Get would cost more
// than a fresh allocation.
func PutFloats(w []float64) {
	if cap(w) >= pooledFloatSize {
		floatPool.Put(w[:cap(w)])
	}
}

// GetInts is GetFloats' counterpart for []int scratch buffers (row/column
// index lists, sampling offsets).
func GetInts(l int, clear bool) []int {
	w := intPool.Get().([]int)
	return useInts(w, l, clear)
}

// PutInts is PutFloats' counterpart for []int scratch buffers.
func PutInts(w []int) {
	if cap(w) >= pooledIntSize {
		intPool.Put(w[:cap(w)])
	}
}

// useFloats grows w to length l if needed, reusing its backing array
// whenever capacity allows, and optionally zeroes the visible slice.
func useFloats(w []float64, l int, clear bool) []float64 {
	if cap(w) < l {
		w = make([]float64, l)
	} else {
		w = w[:l]
	}
	if clear {
		for i := range w {
			w[i] = 0
		}
	}
	return w
}

// useInts is useFloats' []int counterpart.
func useInts(w []int, l int, clear bool) []int {
	if cap(w) < l {
		w = make([]int, l)
	} else {
		w = w[:l]
	}
	if clear {
		for i := range w {
			w[i] = 0
		}
	}
	return w
}
