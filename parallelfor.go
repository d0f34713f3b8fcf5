package dagrun

import (
	"golang.org/x/sync/semaphore"

	"github.com/joeycumines/dagrun/edge"
	"github.com/joeycumines/dagrun/task"
)

// parallelForRange is the Divisible producer backing ParallelFor: its
// remaining work is the index range [lo,hi), and splitting carves off the
// upper half for a thief, wiring the new half's own producer-to-join edge
// against the same join in-counter as every other chunk of this loop. sem
// is shared by every chunk descended from one top-level ParallelFor call
// and bounds how many split-off halves may be outstanding (created but not
// yet run to completion) at once, so very wide ranges under heavy stealing
// can't fragment into more outstanding chunks than the pool could ever run
// concurrently.
type parallelForRange struct {
	rt     *Runtime
	join   edge.Incounter
	worker int
	body   func(i int64)
	sem    *semaphore.Weighted
	lo, hi int64
}

// Size reports the remaining range, except once the bound on outstanding
// split halves is currently exhausted: reporting 1 there tells the thief to
// take this chunk whole rather than spawn another outstanding half. This is
// only a hint — Split still re-acquires for real and may proceed even if a
// concurrent acquire/release raced this peek — so it costs no correctness,
// only occasionally under- or over-shoots the bound by one.
func (r *parallelForRange) Size() int64 {
	n := r.hi - r.lo
	if n <= 1 {
		return n
	}
	if !r.sem.TryAcquire(1) {
		return 1
	}
	r.sem.Release(1)
	return n
}

func (r *parallelForRange) Split() *task.Task {
	mid := r.lo + (r.hi-r.lo)/2
	half := &parallelForRange{rt: r.rt, join: r.join, worker: r.worker, body: r.body, sem: r.sem, lo: mid, hi: r.hi}
	r.hi = mid

	acquired := r.sem.TryAcquire(1)
	dt := r.rt.newTask(r.worker, func(t *Task) {
		half.run()
		if acquired {
			r.sem.Release(1)
		}
	})
	pin := r.rt.newIncounter(dt.t)
	pout := r.rt.newOutset()
	dt.t.Prepare(pin, pout)
	dt.t.SetDivisible(half)

	edge.AddEdge(r.join, pout, dt.t)
	pin.Decrement(nil)

	return dt.t
}

func (r *parallelForRange) run() {
	for i := r.lo; i < r.hi; i++ {
		r.body(i)
	}
}

// ParallelFor runs body(i) once for every i in [lo,hi), splitting the range
// across idle workers via lazy binary division rather than eagerly spawning
// hi-lo tasks, and suspends the caller at block k until every chunk has
// finished.
func (caller *Task) ParallelFor(lo, hi int64, body func(i int64), k int) {
	rt := caller.rt

	cin := rt.newIncounter(caller.t)
	caller.t.Prepare(cin, caller.t.Outset)
	caller.t.SetContinuation(k)

	// One outstanding half per worker is already enough to keep every
	// worker busy; beyond that, further splitting only adds scheduling
	// overhead with no added parallelism available to exploit it.
	sem := semaphore.NewWeighted(int64(rt.NumWorkers()))

	worker := caller.WorkerID()
	root := &parallelForRange{rt: rt, join: cin, worker: worker, body: body, sem: sem, lo: lo, hi: hi}
	dt := rt.newTask(worker, func(t *Task) { root.run() })
	pin := rt.newIncounter(dt.t)
	pout := rt.newOutset()
	dt.t.Prepare(pin, pout)
	dt.t.SetDivisible(root)

	edge.AddEdge(cin, pout, dt.t)
	cin.Decrement(nil)

	pin.Decrement(nil)
}
