// Package dagrun implements a parallel task-graph runtime: a fixed pool of
// work-stealing workers (package sched) executing multishot tasks (package
// task) wired together by concurrent edge-tracking in-counters and out-sets
// (package edge). Async, Finish, Future, Force and ParallelFor are the five
// ways a running task adds to the graph; Init, Launch and Destroy are its
// external lifecycle, mirroring spec.md §6.
package dagrun

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/joeycumines/dagrun/edge"
	"github.com/joeycumines/dagrun/sched"
	"github.com/joeycumines/dagrun/task"
)

// Runtime is the scheduler context object every public operation is threaded
// through explicitly — spec.md §9 flags the original's package-level globals
// for exactly this replacement.
type Runtime struct {
	cfg      config
	sched    *sched.Scheduler
	launched atomic.Bool
}

var automaxprocsOnce sync.Once

// setAutomaxprocs applies cgroup-aware GOMAXPROCS tuning at most once per
// process. Best effort: a non-Linux or non-cgroup environment leaves
// GOMAXPROCS untouched, which is the correct fallback here.
func setAutomaxprocs() {
	automaxprocsOnce.Do(func() {
		_, _ = maxprocs.Set()
	})
}

// Init constructs a Runtime and its worker pool, but does not start it;
// workers begin running only once Launch is called.
func Init(opts ...Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	n := cfg.proc
	switch {
	case n < 0:
		setAutomaxprocs()
		n = runtime.GOMAXPROCS(0)
	case n == 0:
		// spec.md §6's proc=0 means "no worker pool, run on the caller's
		// own thread" — a single worker reproduces the same observable
		// behaviour (no concurrent execution, one goroutine doing all the
		// work) without a second scheduling code path.
		n = 1
	}

	return &Runtime{cfg: cfg, sched: sched.New(n)}, nil
}

// NumWorkers returns the size of the worker pool.
func (rt *Runtime) NumWorkers() int { return rt.sched.NumWorkers() }

// Launch runs body as the graph's root task on worker 0, and blocks until
// the entire graph it spawns has drained. Per spec.md §6, a Runtime may be
// launched at most once; a second call returns ErrAlreadyLaunched rather
// than panicking.
func (rt *Runtime) Launch(body Body) error {
	if !rt.launched.CompareAndSwap(false, true) {
		return &ErrAlreadyLaunched{}
	}
	root := rt.newTask(0, body)
	out := rt.newOutset()
	root.t.Prepare(nil, out)
	rt.sched.Launch(root.t)
	return nil
}

// Destroy tears down the worker pool. Safe to call after Launch returns.
func (rt *Runtime) Destroy() {
	rt.sched.Destroy()
}

func (rt *Runtime) newIncounter(notifier edge.ReadyNotifier) edge.Incounter {
	return edge.NewIncounter(rt.cfg.algo, rt.cfg.params, notifier)
}

func (rt *Runtime) newOutset() edge.Outset {
	return edge.NewOutset(rt.cfg.algo, rt.cfg.params)
}

// newTask builds a *Task bound to workerID, wrapping body so that a block
// which returns without calling JumpTo or SetContinuation (directly or
// through an edge operation) automatically delivers the task's
// Outset.Finish and Destroy — spec.md §4.4's implicit "this was the task's
// last block" behaviour, rather than requiring every producer body to call
// Finish on itself explicitly.
func (rt *Runtime) newTask(workerID int, body Body) *Task {
	w := rt.sched.Worker(workerID)
	dt := &Task{rt: rt}
	dt.t = task.New(func(raw *task.Task) { body(dt) }, w)
	dt.t.SetOnTerminal(func() {
		if dt.t.Outset != nil {
			dt.t.Outset.Finish(dt.t)
		}
		dt.t.Destroy()
	})
	return dt
}
