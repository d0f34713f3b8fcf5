package edge

import "sync/atomic"

// SimpleIncounter is the plain fetch-add incounter: a single atomic counter
// initialised to one (the task's own pending work) with no contention
// spreading. It is the cheapest variant and the right choice when edge
// fan-in is known to stay low.
type SimpleIncounter struct {
	count    atomic.Int64
	notifier ReadyNotifier
}

// NewSimpleIncounter returns an incounter with an initial count of one,
// representing the owning task's own not-yet-satisfied unit of work (the
// same convention finish() relies on: a task's incounter starts at one and
// drops to zero only once every in-edge, including that initial unit, has
// been satisfied).
func NewSimpleIncounter(notifier ReadyNotifier) *SimpleIncounter {
	s := &SimpleIncounter{notifier: notifier}
	s.count.Store(1)
	return s
}

func (s *SimpleIncounter) IsActivated() bool {
	return s.count.Load() == 0
}

func (s *SimpleIncounter) Increment(source any) {
	s.count.Add(1)
}

func (s *SimpleIncounter) Decrement(source any) Status {
	if s.count.Add(-1) == 0 {
		if s.notifier != nil {
			s.notifier.NotifyReady()
		}
		return Activated
	}
	return NotActivated
}

// simpleOutsetNode is one cell of the Treiber stack backing SimpleOutset.
type simpleOutsetNode struct {
	consumer Incounter
	next     *simpleOutsetNode
}

// SimpleOutset is a lock-free Treiber stack of consumers, closed by a single
// CAS-guarded "finished" flag.
type SimpleOutset struct {
	head   atomic.Pointer[simpleOutsetNode]
	closed atomic.Bool
}

// NewSimpleOutset returns an empty, open outset.
func NewSimpleOutset() *SimpleOutset {
	return &SimpleOutset{}
}

func (s *SimpleOutset) Insert(consumer Incounter) InsertResult {
	if s.closed.Load() {
		return Fail
	}
	n := &simpleOutsetNode{consumer: consumer}
	for {
		head := s.head.Load()
		n.next = head
		if s.head.CompareAndSwap(head, n) {
			break
		}
	}
	// Finish may have closed the outset between our initial check and the
	// push above; if so, it is draining the stack from the head right now
	// (or already has). Join the same drain, stopping once our own node has
	// been popped by either side — whichever goroutine's CAS actually pops
	// a node is the one that delivers its decrement, so there is never a
	// double delivery even though both loops may run concurrently.
	if s.closed.Load() {
		s.drain(n, s)
	}
	return Success
}

// drain pops nodes from the head one at a time, delivering each one's
// decrement, until either target has been popped (by this call or a
// concurrent one) or the stack is empty. A nil target drains unconditionally
// (Finish's case).
func (s *SimpleOutset) drain(target *simpleOutsetNode, source any) {
	for {
		head := s.head.Load()
		if head == nil {
			return
		}
		if !s.head.CompareAndSwap(head, head.next) {
			continue
		}
		head.consumer.Decrement(source)
		if head == target {
			return
		}
	}
}

func (s *SimpleOutset) Finish(source any) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.drain(nil, source)
}

func (s *SimpleOutset) Destroy() {
	s.head.Store(nil)
}
