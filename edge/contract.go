// Package edge implements the concurrent edge-tracking substrate: for every
// task, an in-counter that tracks unsatisfied in-edges and fires the task
// when the count reaches zero, and an out-set that accumulates consumers
// reachable on out-edges and, once the producer finishes, delivers exactly
// one decrement to each of them.
//
// Four variants implement the same two contracts (Incounter and Outset):
// simple (a bare atomic counter / Treiber stack), distributed (a SNZI tree),
// dyntree (a dynamic concurrent tree) and dyntreeopt (dyntree with
// per-node amortised local counters). Selecting among them is the job of
// the edge_algo configuration key consumed by package dagrun; this package
// only defines the shared contract and the add-edge protocol that every
// caller uses to wire an edge regardless of which variant is active.
package edge

import "fmt"

// Status is the result of a Decrement call: whether it was the one
// transition that activated (made runnable) the owning task.
type Status int

const (
	// NotActivated means the incounter still has at least one unsatisfied
	// in-edge.
	NotActivated Status = iota
	// Activated means this call observed the transition to zero in-edges.
	// At most one Decrement call per incounter instance ever sees this.
	Activated
)

func (s Status) String() string {
	if s == Activated {
		return "Activated"
	}
	return "NotActivated"
}

// InsertResult is the result of Outset.Insert.
type InsertResult int

const (
	// Success means the consumer was recorded and is guaranteed exactly
	// one Decrement call when Finish runs (or has already run, per the
	// self-delivery race documented on the dyntree/dyntreeopt variants).
	Success InsertResult = iota
	// Fail means Finish had already completed for this region of the
	// outset; no Decrement will ever be delivered for this attempt.
	Fail
)

// ReadyNotifier is told exactly once when an incounter's edge count drops
// to zero — the signal a task uses to re-enqueue itself.
type ReadyNotifier interface {
	NotifyReady()
}

// Incounter tracks a task's unsatisfied in-edges.
type Incounter interface {
	// IsActivated reports whether this incounter has reached zero.
	IsActivated() bool
	// Increment records one more unsatisfied in-edge. source identifies
	// the calling task and is used only as a hash seed for contention
	// spreading; it may be nil.
	Increment(source any)
	// Decrement satisfies one in-edge, returning Activated at most once,
	// on the call that observes the transition to zero. Implementations
	// notify their bound ReadyNotifier synchronously, before returning,
	// on that same call.
	Decrement(source any) Status
}

// Destroyer is implemented by incounter variants that retain freelist state
// needing an explicit drain once the task owning them is known dead (the
// dyntree and dyntreeopt variants; simple and distributed have nothing to
// reclaim and do not implement it). Callers should type-assert for it
// rather than add Destroy to Incounter itself, since most variants have no
// use for it.
type Destroyer interface {
	Destroy()
}

// Outset accumulates the consumers reachable on a task's out-edges.
type Outset interface {
	// Insert records consumer as needing exactly one Decrement once
	// Finish runs. Fail means Finish has already completed.
	Insert(consumer Incounter) InsertResult
	// Finish stamps the outset as terminated and delivers exactly one
	// Decrement to every consumer recorded (or still being recorded
	// concurrently) before this call. It must be called at most once.
	Finish(source any)
	// Destroy releases any resources retained for deferred reclamation.
	// Safe to call concurrently with reads from other goroutines that
	// already observed Finish.
	Destroy()
}

// AddEdge wires one edge from source's outset to target's incounter,
// following the two-step protocol common to every variant: increment the
// target first, then attempt to insert it into the source outset; if the
// insert fails (the producer already finished), roll back with a matching
// decrement. The rollback decrement is an ordinary decrement like any
// other — if it drives target to zero, target activates normally, which is
// the correct outcome for wiring an edge to an already-finished producer.
func AddEdge(target Incounter, source Outset, edgeSource any) {
	target.Increment(edgeSource)
	if source.Insert(target) == Fail {
		target.Decrement(edgeSource)
	}
}

// ErrMisuse reports a programming error: a caller invoked an operation a
// strategy kind doesn't support (e.g. Increment on a READY incounter).
// Per §7, this is a detected bug, not a runtime condition callers recover
// from; callers that hit it should treat it as fatal.
type ErrMisuse struct {
	Op   string
	Kind string
}

func (e *ErrMisuse) Error() string {
	return fmt.Sprintf("edge: invalid operation %q on %s strategy", e.Op, e.Kind)
}
