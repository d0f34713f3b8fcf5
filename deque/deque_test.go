package deque

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/joeycumines/dagrun/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(*task.Task) {}

func newTask() *task.Task {
	return task.New(func(*task.Task) {}, nopEnqueuer{})
}

func TestDeque_PushBottomPopBottomIsLIFO(t *testing.T) {
	d := New()
	a, b, c := newTask(), newTask(), newTask()
	d.PushBottom(a)
	d.PushBottom(b)
	d.PushBottom(c)

	assert.Same(t, c, d.PopBottom())
	assert.Same(t, b, d.PopBottom())
	assert.Same(t, a, d.PopBottom())
	assert.Nil(t, d.PopBottom())
}

func TestDeque_GrowsPastInitialCapacity(t *testing.T) {
	d := New()
	const n = 500
	tasks := make([]*task.Task, n)
	for i := range tasks {
		tasks[i] = newTask()
		d.PushBottom(tasks[i])
	}
	assert.EqualValues(t, n, d.Len())
	for i := n - 1; i >= 0; i-- {
		require.Same(t, tasks[i], d.PopBottom())
	}
	assert.True(t, d.Empty())
}

func TestDeque_ConcurrentStealNeverDuplicates(t *testing.T) {
	const n = 20000
	d := New()
	tasks := make([]*task.Task, n)
	seen := make([]int32, n)
	for i := range tasks {
		tasks[i] = newTask()
	}
	byPtr := make(map[*task.Task]int, n)
	for i, tk := range tasks {
		byPtr[tk] = i
		d.PushBottom(tk)
	}

	const thieves = 8
	var wg sync.WaitGroup
	var stolen atomic.Int64
	for i := 0; i < thieves; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				tk := d.PopTop()
				if tk == nil {
					if d.Empty() {
						return
					}
					continue
				}
				idx := byPtr[tk]
				if atomic.AddInt32(&seen[idx], 1) != 1 {
					t.Errorf("task %d observed more than once", idx)
				}
				stolen.Add(1)
			}
		}()
	}

	var owned int64
	for d.Len() > 0 {
		if tk := d.PopBottom(); tk != nil {
			idx := byPtr[tk]
			if atomic.AddInt32(&seen[idx], 1) != 1 {
				t.Errorf("task %d observed more than once (owner)", idx)
			}
			owned++
		}
	}
	wg.Wait()

	assert.EqualValues(t, n, owned+stolen.Load())
	for i, v := range seen {
		assert.Equal(t, int32(1), v, "task %d seen %d times", i, v)
	}
}
