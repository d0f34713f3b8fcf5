package edge

import (
	"sync/atomic"

	"github.com/joeycumines/dagrun/internal/obslog"
	"github.com/joeycumines/dagrun/internal/reclaim"
)

// freelist collects tree nodes removed from a dyntree/dyntreeopt structure
// for deferred reclamation. Go's GC already makes holding a stale pointer
// safe; freelist exists so Destroy has a concrete point at which every
// removed node is accounted for exactly once, matching the "no node is
// reclaimed twice" property the tree algorithms are required to uphold.
type freelist[T any] struct {
	head atomic.Pointer[flNode[T]]
}

type flNode[T any] struct {
	value     *T
	next      *flNode[T]
	destroyed atomic.Bool
}

func newFreelist[T any]() *freelist[T] {
	return &freelist[T]{}
}

// push queues value for later draining.
func (f *freelist[T]) push(value *T) {
	n := &flNode[T]{value: value}
	for {
		head := f.head.Load()
		n.next = head
		if f.head.CompareAndSwap(head, n) {
			return
		}
	}
}

// drain unlinks every queued node from the list, then hands the batch off
// to the package-level reclaim.Reclaimer for amortised destruction, rather
// than marking each node destroyed inline on the caller's goroutine.
// Unlinking (pointer swaps) stays synchronous, since it must happen before
// drain returns to keep concurrent push calls consistent; the actual
// destroy-and-panic-on-double-reclaim work is what gets batched.
func (f *freelist[T]) drain() {
	var nodes []*flNode[T]
	for {
		head := f.head.Load()
		if head == nil {
			break
		}
		if !f.head.CompareAndSwap(head, head.next) {
			continue
		}
		nodes = append(nodes, head)
	}
	if len(nodes) == 0 {
		return
	}
	reclaim.Default().Submit(func() {
		for _, node := range nodes {
			if !node.destroyed.CompareAndSwap(false, true) {
				panic("edge: freelist node reclaimed twice")
			}
		}
		obslog.Logger().Debug().Int("count", len(nodes)).Log("edge: freelist drained")
	})
}
