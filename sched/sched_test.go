package sched

import (
	"sync/atomic"
	"testing"

	"github.com/joeycumines/dagrun/edge"
	"github.com/joeycumines/dagrun/task"
	"github.com/stretchr/testify/assert"
)

// TestScheduler_SingleTaskRunsToCompletion covers S1-style usage at its
// smallest: one task, no edges, Launch returns once it has run.
func TestScheduler_SingleTaskRunsToCompletion(t *testing.T) {
	s := New(4)
	var ran atomic.Bool
	w0 := s.Worker(0)
	tk := task.New(func(tk *task.Task) { ran.Store(true) }, w0)
	// Launch itself pushes the initial task onto worker 0's deque: the root
	// of a graph has no real in-edges, so there is nothing to decrement
	// here. Prepare still installs an incounter/outset pair so tk is a
	// valid edge-operation target if the body wires further edges.
	tk.Prepare(edge.NewSimpleIncounter(tk), edge.NewSimpleOutset())

	s.Launch(tk)
	assert.True(t, ran.Load())
}

// TestScheduler_AsyncBintree builds a binary tree of depth d via repeated
// async-style wiring (S1/S2's shape): every leaf increments a shared
// counter, every interior task increments an interior counter. Every task
// is bound to worker 0, so the other workers get work only by stealing.
func TestScheduler_AsyncBintree(t *testing.T) {
	const depth = 4
	s := New(4)

	var leafCount, interiorCount atomic.Int64

	var build func(w *Worker, d int) *task.Task
	build = func(w *Worker, d int) *task.Task {
		var tk *task.Task
		tk = task.New(func(self *task.Task) {
			switch self.CurrentBlock() {
			case 0:
				if d == 0 {
					leafCount.Add(1)
					return
				}
				interiorCount.Add(1)
				left := build(w, d-1)
				right := build(w, d-1)
				left.Incounter.Decrement(self) // consume each child's implicit unit, activating it
				right.Incounter.Decrement(self)
			}
		}, w)
		tk.Prepare(edge.NewSimpleIncounter(tk), edge.NewSimpleOutset())
		return tk
	}

	root := build(s.Worker(0), depth)
	// Launch pushes root directly; it has no real in-edges of its own.
	s.Launch(root)

	assert.EqualValues(t, 1<<depth, leafCount.Load())
	assert.EqualValues(t, (1<<depth)-1, interiorCount.Load())
}
