package edge

import (
	"sync/atomic"

	"github.com/joeycumines/dagrun/tagword"
)

// dtoOutsetNode holds up to amortised consumers directly (each slot tagged
// independently) plus child slots for further nodes once the local slots
// are exhausted.
type dtoOutsetNode struct {
	slots     []tagword.Atomic[consumerHolder]
	children  []tagword.Atomic[dtoOutsetNode]
}

// consumerHolder boxes an Incounter so it can live inside a tagword.Box
// (which needs a pointer to something, not an interface value directly).
type consumerHolder struct {
	consumer Incounter
}

func newDtoOutsetNode(branching int, amortised int) *dtoOutsetNode {
	return &dtoOutsetNode{
		slots:    make([]tagword.Atomic[consumerHolder], amortised),
		children: make([]tagword.Atomic[dtoOutsetNode], branching),
	}
}

// DyntreeoptOutset is dyntree's outset with per-node amortised consumer
// slots: up to amortised consumers register directly on a node before a
// child node is allocated. Finish's sweep and a racing Insert resolve
// exactly as in DyntreeOutset, per slot, via a CAS to KindFinished.
type DyntreeoptOutset struct {
	branching int
	amortised int
	root      tagword.Atomic[dtoOutsetNode]
	closed    atomic.Bool
}

// NewDyntreeoptOutset returns an empty, open outset.
func NewDyntreeoptOutset(branching, amortised int) *DyntreeoptOutset {
	if branching < 2 {
		branching = defaultBranching
	}
	if amortised < 1 {
		amortised = defaultAmortisation
	}
	return &DyntreeoptOutset{branching: branching, amortised: amortised}
}

func (o *DyntreeoptOutset) Insert(consumer Incounter) InsertResult {
	if o.closed.Load() {
		return Fail
	}
	slot, ok := dtoInsertConsumer(&o.root, o.branching, o.amortised, seedOf(consumer), consumer)
	if !ok {
		return Fail
	}
	if o.closed.Load() {
		_, holder := slot.Load()
		if slot.CompareAndSwap(tagword.KindValue, holder, tagword.KindFinished, nil) {
			consumer.Decrement(o)
		}
	}
	return Success
}

// dtoInsertConsumer walks an outset node: first trying to claim one of its
// local consumer slots, then descending into (or allocating) a child node
// exactly as dtInsertConsumer does for the unoptimised variant.
func dtoInsertConsumer(slot *tagword.Atomic[dtoOutsetNode], branching, amortised int, seed uint64, consumer Incounter) (*tagword.Atomic[consumerHolder], bool) {
	for {
		kind, node := slot.Load()
		switch kind {
		case tagword.KindEmpty:
			n := newDtoOutsetNode(branching, amortised)
			if slot.CompareAndSwap(tagword.KindEmpty, nil, tagword.KindValue, n) {
				node = n
			} else {
				continue
			}
			fallthrough
		case tagword.KindValue:
			start := int(seed % uint64(amortised))
			for attempt := 0; attempt < amortised; attempt++ {
				idx := (start + attempt) % amortised
				s := &node.slots[idx]
				k, _ := s.Load()
				if k != tagword.KindEmpty {
					continue
				}
				if s.CompareAndSwap(tagword.KindEmpty, nil, tagword.KindValue, &consumerHolder{consumer: consumer}) {
					return s, true
				}
			}
			cstart := int(seed % uint64(branching))
			for attempt := 0; attempt < branching; attempt++ {
				idx := (cstart + attempt) % branching
				k, _ := node.children[idx].Load()
				if k == tagword.KindFinished {
					continue
				}
				if s, ok := dtoInsertConsumer(&node.children[idx], branching, amortised, rehash(seed), consumer); ok {
					return s, true
				}
			}
			return nil, false
		case tagword.KindFinished:
			return nil, false
		}
	}
}

func (o *DyntreeoptOutset) Finish(source any) {
	if !o.closed.CompareAndSwap(false, true) {
		return
	}
	dtoSweep(&o.root, source)
}

func dtoSweep(slot *tagword.Atomic[dtoOutsetNode], source any) {
	kind, node := slot.Load()
	if kind != tagword.KindValue {
		return
	}
	for i := range node.slots {
		s := &node.slots[i]
		k, holder := s.Load()
		if k != tagword.KindValue {
			continue
		}
		if s.CompareAndSwap(tagword.KindValue, holder, tagword.KindFinished, nil) {
			holder.consumer.Decrement(source)
		}
	}
	for i := range node.children {
		dtoSweep(&node.children[i], source)
	}
}

func (o *DyntreeoptOutset) Destroy() {}
