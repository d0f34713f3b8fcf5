package dagrun

import "github.com/joeycumines/dagrun/edge"

// Every edge-tracking variant's constructor starts an incounter at an
// implicit unit of one: a wiring placeholder representing "this task's
// activation is still being assembled". Every operation below follows the
// same two-step discipline: call Task.Prepare (or edge.AddEdge, which wraps
// Increment+Insert) to wire every real edge first, then release the
// placeholder with a final Decrement(nil) — never the other way around,
// since a task whose Incounter/Outset aren't yet installed may already be
// runnable the instant the placeholder is released.
//
// Per spec.md §4.4, every one of these operations is a suspension point: the
// current block ends, and the caller does not run again until it has been
// re-enqueued — which, for Async and Future, happens immediately (their own
// in-counter is untouched), and for Finish and Force, only once the producer
// side has finished.

// Async spawns producerBody as a new task on the caller's worker, wires one
// in-edge from it into consumer's existing in-counter, and jumps the caller
// to block k. The caller's own activation is unaffected, so it is simply
// re-enqueued to continue at k once the scheduler picks it up again.
func (caller *Task) Async(consumer *Task, k int, producerBody Body) *Task {
	rt := caller.rt
	producer := rt.newTask(caller.WorkerID(), producerBody)
	in := rt.newIncounter(producer.t)
	out := rt.newOutset()
	producer.t.Prepare(in, out)

	edge.AddEdge(consumer.t.Incounter, out, producer.t)
	in.Decrement(nil)

	caller.JumpTo(k)
	return producer
}

// Finish spawns producerBody as a new task and suspends the caller at
// block k until it completes (i.e. until a Run call of producerBody returns
// without calling JumpTo). The caller's existing out-set is preserved.
func (caller *Task) Finish(k int, producerBody Body) {
	rt := caller.rt

	producer := rt.newTask(caller.WorkerID(), producerBody)
	pin := rt.newIncounter(producer.t)
	pout := rt.newOutset()
	producer.t.Prepare(pin, pout)

	cin := rt.newIncounter(caller.t)
	caller.t.Prepare(cin, caller.t.Outset)
	caller.t.SetContinuation(k)

	edge.AddEdge(cin, pout, producer.t)
	cin.Decrement(nil)

	pin.Decrement(nil)
}

// Future is a handle to an independently-running producer task, returned by
// Future and consumed by Force. Go's garbage collector makes the source
// model's "flag the outset do-not-auto-deallocate" unnecessary: the handle
// itself keeps the outset reachable for as long as any caller might still
// Force against it.
type Future struct {
	outset edge.Outset
}

// Future spawns producerBody as a new task with no consumer wired yet,
// jumps the caller to block k immediately, and returns a handle the caller
// (or any other task) can later pass to Force.
func (caller *Task) Future(k int, producerBody Body) *Future {
	rt := caller.rt
	producer := rt.newTask(caller.WorkerID(), producerBody)
	pin := rt.newIncounter(producer.t)
	pout := rt.newOutset()
	producer.t.Prepare(pin, pout)
	pin.Decrement(nil)

	caller.JumpTo(k)
	return &Future{outset: pout}
}

// Force suspends the caller at block k until f's producer completes. Safe
// to call more than once, and from more than one task, against the same
// Future: each call wires its own independent edge into f's out-set. If the
// producer has already finished, the caller is re-enqueued at k immediately
// instead of suspending.
func (caller *Task) Force(f *Future, k int) {
	rt := caller.rt

	cin := rt.newIncounter(caller.t)
	caller.t.Prepare(cin, caller.t.Outset)
	caller.t.SetContinuation(k)

	edge.AddEdge(cin, f.outset, caller.t)
	cin.Decrement(nil)
}
