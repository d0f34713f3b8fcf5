package task

import (
	"testing"

	"github.com/joeycumines/dagrun/edge"
	"github.com/stretchr/testify/assert"
)

type queueEnqueuer struct {
	queue []*Task
}

func (q *queueEnqueuer) Enqueue(t *Task) { q.queue = append(q.queue, t) }

func (q *queueEnqueuer) pop() *Task {
	if len(q.queue) == 0 {
		return nil
	}
	t := q.queue[0]
	q.queue = q.queue[1:]
	return t
}

func TestTask_MultishotBlockTransitions(t *testing.T) {
	q := &queueEnqueuer{}
	var trace []int

	body := func(tk *Task) {
		switch tk.CurrentBlock() {
		case 0:
			trace = append(trace, 0)
			tk.JumpTo(1)
		case 1:
			trace = append(trace, 1)
			tk.JumpTo(2)
		case 2:
			trace = append(trace, 2)
		}
	}

	tk := New(body, q)
	tk.Prepare(edge.NewSimpleIncounter(tk), edge.NewSimpleOutset())

	tk.Run(0)
	assert.Equal(t, []int{0}, trace)
	assert.Len(t, q.queue, 1)

	next := q.pop()
	next.Run(0)
	assert.Equal(t, []int{0, 1}, trace)

	next = q.pop()
	next.Run(0)
	assert.Equal(t, []int{0, 1, 2}, trace)
	assert.Empty(t, q.queue)
}

func TestTask_NotifyReadyReenqueuesOnActivation(t *testing.T) {
	q := &queueEnqueuer{}
	ran := false
	tk := New(func(tk *Task) { ran = true }, q)
	in := edge.NewSimpleIncounter(tk)
	tk.Prepare(in, edge.NewSimpleOutset())

	// consume the implicit initial unit: this should fire NotifyReady,
	// which enqueues the task.
	status := in.Decrement(nil)
	assert.Equal(t, edge.Activated, status)
	assert.Len(t, q.queue, 1)

	popped := q.pop()
	popped.Run(0)
	assert.True(t, ran)
}

type rangeDivisible struct {
	lo, hi int64
}

func (r *rangeDivisible) Size() int64 { return r.hi - r.lo }

func (r *rangeDivisible) Split() *Task {
	mid := r.lo + (r.hi-r.lo)/2
	half := &rangeDivisible{lo: mid, hi: r.hi}
	r.hi = mid
	q := &queueEnqueuer{}
	nt := New(func(*Task) {}, q)
	nt.SetDivisible(half)
	return nt
}

func TestTask_DivisibleSplit(t *testing.T) {
	q := &queueEnqueuer{}
	tk := New(func(*Task) {}, q)
	d := &rangeDivisible{lo: 0, hi: 1000}
	tk.SetDivisible(d)

	assert.EqualValues(t, 1000, tk.Divisible().Size())
	half := tk.Divisible().Split()
	assert.EqualValues(t, 500, tk.Divisible().Size())
	assert.EqualValues(t, 500, half.Divisible().Size())
}

// TestTask_OnTerminalFiresOnlyWhenBodyDoesNotSuspend covers the suspendFlag
// mechanism: onTerminal must fire for a Run call whose Body returns without
// JumpTo, and must not fire for one that suspends.
func TestTask_OnTerminalFiresOnlyWhenBodyDoesNotSuspend(t *testing.T) {
	q := &queueEnqueuer{}
	var terminalCount int
	var suspend bool

	tk := New(func(tk *Task) {
		if suspend {
			tk.JumpTo(1)
		}
	}, q)
	tk.SetOnTerminal(func() { terminalCount++ })

	suspend = true
	tk.Run(0)
	assert.Equal(t, 0, terminalCount, "onTerminal must not fire for a suspending Run")
	assert.Len(t, q.queue, 1)

	next := q.pop()
	suspend = false
	next.Run(0)
	assert.Equal(t, 1, terminalCount, "onTerminal must fire once Body returns without JumpTo")
}

// TestTask_SetContinuationArmsWithoutEnqueuing covers the arm-but-don't-jump
// primitive Finish/Force/ParallelFor rely on: it must not touch the
// Enqueuer, only the block the next Run call dispatches to.
func TestTask_SetContinuationArmsWithoutEnqueuing(t *testing.T) {
	q := &queueEnqueuer{}
	var seenBlock int
	tk := New(func(tk *Task) { seenBlock = tk.CurrentBlock() }, q)

	tk.SetContinuation(7)
	assert.Empty(t, q.queue, "SetContinuation must not enqueue")

	tk.Run(0)
	assert.Equal(t, 7, seenBlock)
}

// TestTask_WorkerIDTracksLastRun covers WorkerID: -1 before any Run, then
// whichever worker index the most recent Run call used.
func TestTask_WorkerIDTracksLastRun(t *testing.T) {
	q := &queueEnqueuer{}
	tk := New(func(*Task) {}, q)
	assert.Equal(t, -1, tk.WorkerID())

	tk.Run(3)
	assert.Equal(t, 3, tk.WorkerID())
}
