// Package sched implements the fixed work-stealing worker pool: spec.md's
// component E. Each Worker owns one deque.Deque; idle workers steal
// runnable tasks from random peers; a shutdown flag and per-worker waiting
// flags give the scheduler its termination check.
package sched

import (
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/dagrun/deque"
	"github.com/joeycumines/dagrun/internal/obslog"
	"github.com/joeycumines/dagrun/task"
)

// Worker is one OS-thread-backed participant in the pool: its own deque,
// its own PRNG state for victim selection, seeded from current_worker_id
// per spec.md §6, and a waiting flag the scheduler's idle-check reads.
type Worker struct {
	id      int
	deque   *deque.Deque
	rng     *rand.Rand
	waiting atomic.Bool

	sched *Scheduler
}

// ID returns the worker's index in the pool, the value current_worker_id
// returns when called from within this worker's goroutine.
func (w *Worker) ID() int { return w.id }

// Enqueue implements task.Enqueuer: it always pushes onto this worker's own
// deque. A task's NotifyReady calls the Enqueuer it was constructed with
// (task.New); it is not rebound to the worker that last ran the task.
func (w *Worker) Enqueue(t *task.Task) {
	w.deque.PushBottom(t)
	w.sched.wake()
}

func (w *Worker) loop() {
	for {
		t := w.deque.PopBottom()
		if t == nil {
			t = w.steal()
		}
		if t == nil {
			if w.sched.shutdown.Load() {
				return
			}
			w.idle()
			continue
		}
		t.Run(w.id)
		w.periodicCheck()
	}
}

// steal attempts one steal round: pick a random victim, pop its top. If the
// stolen task is Divisible and sizeable, split it once and push the new
// half onto this worker's own deque before returning the original to run.
func (w *Worker) steal() *task.Task {
	peers := w.sched.workers
	if len(peers) <= 1 {
		return nil
	}
	victim := peers[w.rng.IntN(len(peers))]
	if victim == w {
		return nil
	}
	t := victim.deque.PopTop()
	obslog.Logger().Trace().Int("worker", w.id).Int("victim", victim.id).Bool("hit", t != nil).Log("sched: steal attempt")
	if t == nil {
		return nil
	}
	if d := t.Divisible(); d != nil && d.Size() > 1 {
		half := d.Split()
		w.deque.PushBottom(half)
	}
	return t
}

func (w *Worker) idle() {
	w.waiting.Store(true)
	runtime.Gosched()
	w.waiting.Store(false)
}

// periodicCheck runs between tasks. It reads the shutdown flag and discards
// the value; loop itself exits only once it finds no task to run and the
// flag is set.
func (w *Worker) periodicCheck() {
	_ = w.sched.shutdown.Load()
}

// Scheduler owns the fixed worker array, the shutdown flag, and the
// coordinated lifecycle (Launch/Destroy) spec.md §6 requires.
type Scheduler struct {
	workers  []*Worker
	shutdown atomic.Bool

	group   *errgroup.Group
	started atomic.Bool

	wakeCh chan struct{}
}

// New builds a pool of n workers (n <= 0 defaults to runtime.NumCPU).
// dagrun.Init always passes a positive n, resolving its own default from
// GOMAXPROCS after applying go.uber.org/automaxprocs. Workers are not
// started until Launch.
func New(n int) *Scheduler {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	s := &Scheduler{wakeCh: make(chan struct{}, 1)}
	s.workers = make([]*Worker, n)
	for i := range s.workers {
		s.workers[i] = &Worker{
			id:    i,
			deque: deque.New(),
			rng:   rand.New(rand.NewPCG(uint64(i), uint64(i*2654435761))),
			sched: s,
		}
	}
	return s
}

// Worker returns the i-th worker, primarily so callers can bind a task's
// Enqueuer to a specific worker (e.g. the worker that created it).
func (s *Scheduler) Worker(i int) *Worker { return s.workers[i] }

// NumWorkers returns the size of the pool.
func (s *Scheduler) NumWorkers() int { return len(s.workers) }

// Launch starts every worker goroutine, pushes the initial task onto
// worker 0's deque, and blocks until every worker is simultaneously idle
// and the shutdown flag is set — mirroring spec.md §6's launch(task*).
func (s *Scheduler) Launch(initial *task.Task) {
	if !s.started.CompareAndSwap(false, true) {
		panic("sched: Launch called more than once")
	}
	s.group = new(errgroup.Group)
	for _, w := range s.workers {
		w := w
		s.group.Go(func() error {
			obslog.Logger().Debug().Int("worker", w.id).Log("sched: worker start")
			defer obslog.Logger().Debug().Int("worker", w.id).Log("sched: worker stop")
			w.loop()
			return nil
		})
	}
	s.workers[0].deque.PushBottom(initial)
	s.awaitQuiescence()
}

// awaitQuiescence blocks until every worker simultaneously reports waiting
// and every deque is empty, then raises the shutdown flag so the worker
// loops exit. Per spec.md §4.5, detecting "no in-flight producer exists" is
// the external harness's job; this method only tracks "nothing left
// locally and all peers idle", which is sufficient for a single Launch
// call driving one task graph to completion.
func (s *Scheduler) awaitQuiescence() {
	for {
		allIdle := true
		for _, w := range s.workers {
			if !w.waiting.Load() || !w.deque.Empty() {
				allIdle = false
				break
			}
		}
		if allIdle {
			s.shutdown.Store(true)
			_ = s.group.Wait()
			return
		}
		runtime.Gosched()
	}
}

// wake is a placeholder hook for waking idle workers promptly; workers
// currently poll via runtime.Gosched rather than blocking on a channel, so
// this is a no-op kept for the Enqueue call site's symmetry with a
// channel-based wake-up, should one be added later without touching every
// Enqueue caller.
func (s *Scheduler) wake() {}

// Destroy tears down the pool. Safe to call after Launch has returned (the
// workers have already exited); calling it before Launch is a no-op.
func (s *Scheduler) Destroy() {
	s.shutdown.Store(true)
	if s.started.Load() && s.group != nil {
		_ = s.group.Wait()
	}
}
