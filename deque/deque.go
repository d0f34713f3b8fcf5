// Package deque implements a Chase-Lev work-stealing deque of *task.Task:
// the owning worker pushes and pops at the bottom; any number of thieves
// pop at the top via CAS. See spec.md §4.5 / §8 property 6.
package deque

import (
	"sync/atomic"

	"github.com/joeycumines/dagrun/task"
)

const minCapacity = 32

// circularArray is a fixed-size ring buffer of task pointers, grown by
// copying into a new, larger array (never shrunk).
type circularArray struct {
	tasks []atomic.Pointer[task.Task]
}

func newCircularArray(capacity int64) *circularArray {
	return &circularArray{tasks: make([]atomic.Pointer[task.Task], capacity)}
}

func (c *circularArray) size() int64 { return int64(len(c.tasks)) }

func (c *circularArray) get(i int64) *task.Task {
	return c.tasks[i%c.size()].Load()
}

func (c *circularArray) put(i int64, t *task.Task) {
	c.tasks[i%c.size()].Store(t)
}

// growInto returns a new array of double the capacity containing every
// element at indices [top, bottom).
func (c *circularArray) growInto(bottom, top int64) *circularArray {
	next := newCircularArray(c.size() * 2)
	for i := top; i < bottom; i++ {
		next.put(i, c.get(i))
	}
	return next
}

// Deque is one worker's Chase-Lev owner/steal deque.
type Deque struct {
	top    atomic.Int64
	bottom atomic.Int64
	array  atomic.Pointer[circularArray]
}

// New returns an empty deque with an initial capacity of minCapacity.
func New() *Deque {
	d := &Deque{}
	d.array.Store(newCircularArray(minCapacity))
	return d
}

// PushBottom adds t to the bottom of the deque. Only the owning worker may
// call this.
func (d *Deque) PushBottom(t *task.Task) {
	b := d.bottom.Load()
	top := d.top.Load()
	a := d.array.Load()
	if size := b - top; size >= a.size()-1 {
		a = a.growInto(b, top)
		d.array.Store(a)
	}
	a.put(b, t)
	d.bottom.Store(b + 1)
}

// PopBottom removes and returns the task at the bottom of the deque, or nil
// if empty. Only the owning worker may call this. In isolation (no
// concurrent steals), PushBottom/PopBottom behave as a LIFO stack.
func (d *Deque) PopBottom() *task.Task {
	b := d.bottom.Load() - 1
	a := d.array.Load()
	d.bottom.Store(b)
	top := d.top.Load()

	size := b - top
	if size < 0 {
		// deque was already empty; restore bottom
		d.bottom.Store(top)
		return nil
	}

	t := a.get(b)
	if size > 0 {
		return t
	}

	// last element: race with thieves for it via the same CAS thieves use.
	if !d.top.CompareAndSwap(top, top+1) {
		t = nil
	}
	d.bottom.Store(top + 1)
	return t
}

// PopTop removes and returns the task at the top of the deque, or nil if
// the deque was empty or the attempt lost a race with a concurrent
// PopBottom or another PopTop (an "abort", per spec.md §8 property 6 —
// aborting always implies an observed, simultaneous bottom transition: the
// size computed below went non-positive, or the top CAS lost to a
// concurrent popper).
func (d *Deque) PopTop() *task.Task {
	top := d.top.Load()
	bottom := d.bottom.Load()
	size := bottom - top
	if size <= 0 {
		return nil
	}
	a := d.array.Load()
	t := a.get(top)
	if !d.top.CompareAndSwap(top, top+1) {
		return nil
	}
	return t
}

// Empty reports whether the deque currently has no elements. This is a
// snapshot, not a linearisable check — by the time the caller acts on it,
// concurrent pushes/pops may have changed the answer.
func (d *Deque) Empty() bool {
	b := d.bottom.Load()
	t := d.top.Load()
	return b-t <= 0
}

// Len returns a snapshot of the number of elements currently in the deque.
func (d *Deque) Len() int64 {
	b := d.bottom.Load()
	t := d.top.Load()
	if b < t {
		return 0
	}
	return b - t
}
