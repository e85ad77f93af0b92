// Package exec implements the executor and concurrency model of spec.md
// §4.6/§5: a barrier-synchronised thread pool with one persistent worker
// per partition, each pinned to a caller-supplied CPU. SpMV is
// bulk-synchronous across two barriers per call; permutation application
// (when the tuned matrix was reordered) happens once in the caller's
// goroutine, outside the barriers, using scratch buffers sized once at
// pool construction.
package exec

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/jbowman-csx/csx/internal/codegen"
	"github.com/jbowman-csx/csx/internal/kernel"
)

// Worker is one partition's pinned execution unit (spec.md §5, "Scheduling
// model": "threads are pinned to CPUs by a user-supplied affinity list, and
// each partition records the NUMA node of its pinned CPU").
type Worker struct {
	ID       int
	CPU      int // -1 if unpinned
	NUMANode int // -1 if unknown

	prog         *codegen.Program
	rowStart     int
	rowCount     int
	taskCh       chan task
	shutdownOnce sync.Once
	stopCh       chan struct{}
}

// RowSpan reports the worker's global row range [rowStart, rowStart+rowCount).
func (w *Worker) RowSpan() (start, count int) { return w.rowStart, w.rowCount }

type task struct {
	x     []float64
	alpha float64
	y     []float64
	beta  float64
	wg    *sync.WaitGroup
}

// Pool is the persistent thread pool spec.md §5 describes as "created once
// at library init". One goroutine per Worker is parked on its own task
// channel and, if given a CPU, pinned to it for the pool's lifetime.
type Pool struct {
	workers []*Worker
	perm    *kernel.Permutation
	scratchX []float64
	scratchY []float64
}

// NewPool builds a pool of one worker per program, row-disjoint over
// [0,nrows). affinity, if non-nil, must have the same length as programs
// and gives each worker's pinned CPU id (spec.md §6, rt.cpu_affinity); a nil
// affinity leaves every worker unpinned, which is the portable default on
// platforms CPU pinning isn't wired for (see affinity_other.go).
func NewPool(programs []*codegen.Program, rowOffsets []int, rowCounts []int, affinity []int, perm *kernel.Permutation, ncols int) (*Pool, error) {
	if len(rowOffsets) != len(programs) || len(rowCounts) != len(programs) {
		return nil, fmt.Errorf("exec: rowOffsets/rowCounts must match len(programs)=%d", len(programs))
	}
	if affinity != nil && len(affinity) != len(programs) {
		return nil, fmt.Errorf("exec: affinity has %d entries, want %d", len(affinity), len(programs))
	}

	p := &Pool{}
	nrows := 0
	for _, c := range rowCounts {
		nrows += c
	}
	if perm != nil {
		p.perm = perm
		p.scratchX = make([]float64, ncols)
		p.scratchY = make([]float64, nrows)
	}

	for i, prog := range programs {
		cpu := -1
		if affinity != nil {
			cpu = affinity[i]
		}
		w := &Worker{
			ID:       i,
			CPU:      cpu,
			NUMANode: nodeOf(cpu),
			prog:     prog,
			rowStart: rowOffsets[i],
			rowCount: rowCounts[i],
			taskCh:   make(chan task),
			stopCh:   make(chan struct{}),
		}
		p.workers = append(p.workers, w)
		go w.loop()
	}
	return p, nil
}

// loop is the worker's entire lifetime: park on taskCh (Barrier 0) until a
// task arrives, run the partition kernel against the task's row-disjoint y
// slice, then signal completion (Barrier 1) via the task's WaitGroup. Pinning
// happens once, before the first barrier, since affinity never changes for
// the pool's lifetime (spec.md §5, "Suspension points": workers suspend only
// at the two barriers and during initial NUMA allocation).
func (w *Worker) loop() {
	runtime.LockOSThread()
	pinToCPU(w.CPU)

	for {
		select {
		case t := <-w.taskCh:
			local := t.y[w.rowStart : w.rowStart+w.rowCount]
			w.prog.Run(t.x, t.alpha, local, t.beta)
			t.wg.Done()
		case <-w.stopCh:
			return
		}
	}
}

// Close stops every worker's goroutine. The pool is not usable afterwards.
func (p *Pool) Close() {
	for _, w := range p.workers {
		w.shutdownOnce.Do(func() { close(w.stopCh) })
	}
}

// Workers returns the pool's workers, in partition order, for callers that
// need to report per-partition CPU/NUMA placement (e.g. persist).
func (p *Pool) Workers() []*Worker { return p.workers }

// Run executes y <- alpha*A*x + beta*y across every partition (spec.md
// §4.6, "Per-partition dispatch"). If the pool carries a permutation, x and
// y are permuted into scratch buffers first and the result is
// inverse-permuted back into y on return, matching
// y <- P^-1( alpha*A_p*P(x) + beta*P(y) ); otherwise the caller's slices are
// used directly with no copy.
func (p *Pool) Run(x []float64, alpha float64, y []float64, beta float64) {
	if p.perm == nil {
		p.dispatch(x, alpha, y, beta)
		return
	}
	p.perm.Apply(p.scratchX, x)
	p.perm.Apply(p.scratchY, y)
	p.dispatch(p.scratchX, alpha, p.scratchY, beta)
	p.perm.ApplyInverse(y, p.scratchY)
}

// dispatch runs Barrier 0 (handing the task to every worker) then Barrier 1
// (waiting for every worker to finish) exactly once.
func (p *Pool) dispatch(x []float64, alpha float64, y []float64, beta float64) {
	var wg sync.WaitGroup
	wg.Add(len(p.workers))
	t := task{x: x, alpha: alpha, y: y, beta: beta, wg: &wg}
	for _, w := range p.workers {
		w.taskCh <- t // Barrier 0: release once the caller has set x/y
	}
	wg.Wait() // Barrier 1: all workers have written their disjoint y slice
}
