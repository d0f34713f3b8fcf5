package edge

import (
	"sync/atomic"

	"github.com/joeycumines/dagrun/tagword"
)

// dtOutsetNode is one consumer entry in a DyntreeOutset: the node itself
// holds exactly one registered consumer, and also carries child slots so
// further consumers can be registered underneath it without contending on
// the same word.
type dtOutsetNode struct {
	consumer Incounter
	children []tagword.Atomic[dtOutsetNode]
}

func newDtOutsetNode(consumer Incounter, branching int) *dtOutsetNode {
	return &dtOutsetNode{consumer: consumer, children: make([]tagword.Atomic[dtOutsetNode], branching)}
}

// DyntreeOutset is the dynamic concurrent tree variant of Outset. Finish
// stamps a closed flag and then sweeps the whole tree, racing any insert
// that is still descending into a not-yet-visited region; whichever side
// wins the per-slot CAS to KindFinished delivers that consumer's decrement,
// so every registered consumer is notified exactly once regardless of how
// the race resolves. The distributed variant reuses this type directly,
// since its own outset has no SNZI-specific structure to add.
type DyntreeOutset struct {
	branching int
	root      tagword.Atomic[dtOutsetNode]
	closed    atomic.Bool
}

// NewDyntreeOutset returns an empty, open outset.
func NewDyntreeOutset(branching int) *DyntreeOutset {
	if branching < 2 {
		branching = defaultBranching
	}
	return &DyntreeOutset{branching: branching}
}

func (o *DyntreeOutset) Insert(consumer Incounter) InsertResult {
	if o.closed.Load() {
		return Fail
	}
	slot, ok := dtInsertConsumer(&o.root, o.branching, seedOf(consumer), consumer)
	if !ok {
		return Fail
	}
	if o.closed.Load() {
		// No contender can have visited this exact slot before it existed;
		// the only possible racer is Finish's sweep reaching it after us,
		// so the loser of this CAS always saw the other side act first.
		if slot.CompareAndSwap(tagword.KindValue, slotValue(slot), tagword.KindFinished, nil) {
			consumer.Decrement(o)
		}
	}
	return Success
}

// slotValue re-reads a slot's current value, used only to supply the
// expected old value to a same-goroutine follow-up CAS where no concurrent
// writer can have changed the value (only its kind, via Finish's sweep).
func slotValue(slot *tagword.Atomic[dtOutsetNode]) *dtOutsetNode {
	_, v := slot.Load()
	return v
}

// dtInsertConsumer mirrors dtInsertCounter's walk, but each slot carries a
// consumer payload instead of being a pure presence marker, and a slot
// tagged KindFinished fails the whole attempt rather than being retried
// (once finish has touched a region, inserting into it can never succeed).
func dtInsertConsumer(slot *tagword.Atomic[dtOutsetNode], branching int, seed uint64, consumer Incounter) (*tagword.Atomic[dtOutsetNode], bool) {
	for {
		kind, node := slot.Load()
		switch kind {
		case tagword.KindEmpty:
			n := newDtOutsetNode(consumer, branching)
			if slot.CompareAndSwap(tagword.KindEmpty, nil, tagword.KindValue, n) {
				return slot, true
			}
		case tagword.KindValue:
			start := int(seed % uint64(branching))
			for attempt := 0; attempt < branching; attempt++ {
				idx := (start + attempt) % branching
				k, _ := node.children[idx].Load()
				if k == tagword.KindFinished {
					continue
				}
				if s, ok := dtInsertConsumer(&node.children[idx], branching, rehash(seed), consumer); ok {
					return s, true
				}
			}
			return nil, false
		case tagword.KindFinished:
			return nil, false
		}
	}
}

func (o *DyntreeOutset) Finish(source any) {
	if !o.closed.CompareAndSwap(false, true) {
		return
	}
	dtSweep(&o.root, source)
}

// dtSweep visits every node reachable from slot exactly once, delivering a
// decrement for any node whose CAS to KindFinished it wins, and always
// recursing into that node's children regardless of which side won.
func dtSweep(slot *tagword.Atomic[dtOutsetNode], source any) {
	kind, node := slot.Load()
	if kind != tagword.KindValue {
		return
	}
	if slot.CompareAndSwap(tagword.KindValue, node, tagword.KindFinished, nil) {
		node.consumer.Decrement(source)
	}
	for i := range node.children {
		dtSweep(&node.children[i], source)
	}
}

func (o *DyntreeOutset) Destroy() {
	// The tree is left for GC; KindFinished slots retain no consumer
	// reference so nothing beyond the node shells stays reachable.
}
