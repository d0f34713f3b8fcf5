package dagrun

import "github.com/joeycumines/dagrun/task"

// Body is user code driving a Task: it switches on t.CurrentBlock() and ends
// every block either by calling t.JumpTo or one of the edge operations
// (suspending until some edge operation's condition is satisfied) or by
// simply returning (the task's
// last block, triggering automatic Finish+Destroy of its out-edges).
type Body func(t *Task)

// Task is one vertex of the graph, threaded explicitly through every
// operation rather than held in package-level state.
type Task struct {
	rt *Runtime
	t  *task.Task
}

// CurrentBlock returns the block index Body is currently dispatching.
func (t *Task) CurrentBlock() int { return t.t.CurrentBlock() }

// JumpTo suspends the task until its next activation, resuming at block.
// Body must return immediately after calling this.
func (t *Task) JumpTo(block int) { t.t.JumpTo(block) }

// WorkerID returns the id of the worker currently running this task.
func (t *Task) WorkerID() int { return t.t.WorkerID() }

// Runtime returns the Runtime this task belongs to.
func (t *Task) Runtime() *Runtime { return t.rt }
