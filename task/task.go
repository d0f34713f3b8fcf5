// Package task implements the multishot task object and the block-index
// continuation model: a single Task re-enters its Body across numbered
// blocks instead of unwinding and rebuilding a stack per suspension point.
package task

import (
	"sync/atomic"

	"github.com/joeycumines/dagrun/edge"
)

// Enqueuer is implemented by the scheduler and injected into every Task so
// a task can re-enqueue itself (directly, or via its incounter's
// NotifyReady callback) without package task importing package sched —
// sched depends on task, never the reverse.
type Enqueuer interface {
	// Enqueue pushes t onto the local ready deque of the calling worker, or
	// onto a designated worker's deque if the task was last known to belong
	// to one. Safe to call from any goroutine.
	Enqueue(t *Task)
}

// Body is the user code driving a task: it switches on t.CurrentBlock() and
// issues edge operations (Async, Finish, Future, Force, ParallelFor) that
// end by calling t.JumpTo or t.SetContinuation to select the block the task
// resumes at next.
type Body func(t *Task)

// Divisible is implemented by producer tasks created for ParallelFor: a
// thief that steals a divisible task may call Split before running it,
// carving off roughly half the remaining range for itself.
type Divisible interface {
	// Size reports the amount of remaining work, used to decide whether
	// splitting is worthwhile.
	Size() int64
	// Split carves off a half of the remaining range, wiring its own
	// producer-to-join edge against the same join as the original, and
	// returns the new task. The receiver's own remaining range shrinks by
	// the same amount.
	Split() *Task
}

// Task is one vertex of the graph: an in-counter, an out-set, and a current
// block of Body to run next time the scheduler picks it up.
type Task struct {
	Incounter edge.Incounter
	Outset    edge.Outset

	body Body

	// current is the block index Run will dispatch to on its next call;
	// continuation is the block JumpTo or SetContinuation most recently
	// requested. Run copies continuation into current at the start of every
	// call; continuation itself keeps its value until the next request.
	current      atomic.Int64
	continuation atomic.Int64

	enqueuer Enqueuer

	// divisible is non-nil for ParallelFor producer tasks; Scheduler type-
	// asserts task.Divisible against it via the Divisible() accessor.
	divisible Divisible

	// worker records which worker last ran this task (see WorkerID).
	worker atomic.Int64

	// suspendFlag points at a bool local to the in-flight Run call; JumpTo
	// and SetContinuation set *suspendFlag = true through it. Run reads its own local copy of
	// the pointer after body returns, never re-loading suspendFlag off t,
	// so a next episode started by JumpTo's own Enqueue call (which may
	// race ahead on another worker before this Run call unwinds) can't
	// clobber the outcome this Run call observes.
	suspendFlag atomic.Pointer[bool]

	// onTerminal, if set, runs once per Run call in which body returned
	// without calling JumpTo or SetContinuation — i.e. the task's current
	// block was its last.
	// Edge operations use this to deliver the task's own Outset.Finish and
	// Destroy automatically, without requiring Body to call them.
	onTerminal func()
}

// New constructs a task with the given body, starting at block 0, with no
// in/out strategy installed yet (callers install one via Prepare before the
// task is reachable by any edge operation).
func New(body Body, enqueuer Enqueuer) *Task {
	t := &Task{body: body, enqueuer: enqueuer}
	t.worker.Store(-1)
	return t
}

// Prepare installs the in-counter/out-set pair that makes this task a valid
// target for edge wiring and scheduling.
func (t *Task) Prepare(in edge.Incounter, out edge.Outset) {
	t.Incounter = in
	t.Outset = out
}

// SetDivisible installs a Divisible implementation, making this task
// eligible for work-stealing splits.
func (t *Task) SetDivisible(d Divisible) { t.divisible = d }

// Divisible returns the task's Divisible implementation, or nil.
func (t *Task) Divisible() Divisible { return t.divisible }

// SetOnTerminal installs the hook Run calls whenever a Run call's Body
// returns without JumpTo or SetContinuation having been called.
func (t *Task) SetOnTerminal(fn func()) { t.onTerminal = fn }

// WorkerID returns the worker that is running, or last ran, this task; -1 if
// it has never run.
func (t *Task) WorkerID() int { return int(t.worker.Load()) }

// CurrentBlock returns the block id Run is currently dispatching (valid
// only while Body is executing).
func (t *Task) CurrentBlock() int { return int(t.current.Load()) }

// SetContinuation arms the block the task resumes at on its next Run,
// without enqueuing it. Used by edge operations that rearm a caller's
// in-counter for a future continuation before that in-counter reaches zero
// on its own and enqueues the task via NotifyReady. Like JumpTo, it marks
// the in-flight Run call as suspended, so onTerminal does not fire for it.
func (t *Task) SetContinuation(block int) {
	if f := t.suspendFlag.Load(); f != nil {
		*f = true
	}
	t.continuation.Store(int64(block))
}

// JumpTo sets the block the task resumes at on its next Run and re-enqueues
// it. JumpTo and SetContinuation are the two ways a task suspends: Body must
// return immediately after calling either.
func (t *Task) JumpTo(block int) {
	if f := t.suspendFlag.Load(); f != nil {
		*f = true
	}
	t.continuation.Store(int64(block))
	t.enqueuer.Enqueue(t)
}

// Run dispatches one block of Body: current := continuation, then Body(t).
// Called by the worker that popped t from a deque. If Body returns without
// calling JumpTo or SetContinuation, the onTerminal hook (if any) runs
// before Run returns.
func (t *Task) Run(workerID int) {
	t.worker.Store(int64(workerID))
	t.current.Store(t.continuation.Load())
	suspended := new(bool)
	t.suspendFlag.Store(suspended)
	t.body(t)
	if !*suspended && t.onTerminal != nil {
		t.onTerminal()
	}
}

// NotifyReady implements edge.ReadyNotifier: it is called synchronously by
// the task's own Incounter the instant its count reaches zero, and
// re-enqueues the task on the Enqueuer it was constructed with (New).
func (t *Task) NotifyReady() {
	t.enqueuer.Enqueue(t)
}

// Destroy releases any deferred-reclamation state retained by the task's
// in-counter/out-set, once both have finished delivering every notification
// they owe. Safe to call even if the variant has nothing to reclaim.
func (t *Task) Destroy() {
	if d, ok := t.Incounter.(edge.Destroyer); ok {
		d.Destroy()
	}
	if t.Outset != nil {
		t.Outset.Destroy()
	}
}
