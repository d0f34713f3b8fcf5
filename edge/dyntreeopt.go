package edge

import (
	"sync/atomic"

	"github.com/joeycumines/dagrun/tagword"
)

// defaultAmortisation is the number of in-edges (or out-edge consumers) a
// single dyntreeopt node absorbs locally before allocating a child node.
const defaultAmortisation = 128

// dtoFrozen marks a node's local budget as closed for absorption: set only
// while a Decrement call is attempting to unlink the node, so a concurrent
// Increment can't absorb a new arrival into a node that is about to be
// removed from the tree.
const dtoFrozen int64 = -1

// dtoCounterNode extends the plain dyntree counter node with a bounded
// local counter: as in dyntree, the node's presence in the tree counts for
// one in-edge, and up to amortisation further in-edges are absorbed here with a
// single atomic add, and only once that bound is reached does increment
// fall through to the same allocate-a-child walk dyntree uses.
type dtoCounterNode struct {
	local       atomic.Int64
	amortised   int64
	children    []tagword.Atomic[dtoCounterNode]
}

func newDtoCounterNode(branching int, amortised int64) *dtoCounterNode {
	return &dtoCounterNode{
		amortised: amortised,
		children:  make([]tagword.Atomic[dtoCounterNode], branching),
	}
}

// DyntreeoptIncounter is dyntree with per-node amortisation: the same
// shape and the same zero-iff-root-empty indicator, but each node can
// absorb up to A arrivals/departures before the tree needs to grow.
type DyntreeoptIncounter struct {
	branching int
	amortised int64
	root      tagword.Atomic[dtoCounterNode]
	notifier  ReadyNotifier
	freelist  *freelist[dtoCounterNode]
}

// NewDyntreeoptIncounter returns an incounter with an initial increment
// representing the owning task's own unit of work. branching <= 1 and
// amortised <= 0 fall back to the defaults (12 and 128 respectively).
func NewDyntreeoptIncounter(branching int, amortised int64, notifier ReadyNotifier) *DyntreeoptIncounter {
	if branching < 2 {
		branching = defaultBranching
	}
	if amortised < 1 {
		amortised = defaultAmortisation
	}
	in := &DyntreeoptIncounter{
		branching: branching,
		amortised: amortised,
		notifier:  notifier,
		freelist:  newFreelist[dtoCounterNode](),
	}
	in.installRoot()
	return in
}

// installRoot installs the first node directly, bypassing the local-bound
// dance since there is nothing to absorb into yet. The node's presence is
// the incounter's initial unit.
func (in *DyntreeoptIncounter) installRoot() {
	n := newDtoCounterNode(in.branching, in.amortised)
	in.root.CompareAndSwap(tagword.KindEmpty, nil, tagword.KindValue, n)
}

func (in *DyntreeoptIncounter) IsActivated() bool {
	k, _ := in.root.Load()
	return k == tagword.KindEmpty
}

func (in *DyntreeoptIncounter) Increment(source any) {
	seed := seedOf(source)
	for {
		kind, root := in.root.Load()
		if kind == tagword.KindEmpty {
			n := newDtoCounterNode(in.branching, in.amortised)
			if in.root.CompareAndSwap(tagword.KindEmpty, nil, tagword.KindValue, n) {
				return
			}
			continue
		}
		if dtoAbsorb(root) {
			return
		}
		if dtoInsertCounter(&in.root, in.branching, in.amortised, seed) {
			return
		}
		seed = rehash(seed)
	}
}

// dtoAbsorb tries to claim one unit of the node's local amortisation
// budget with a single bounded fetch-add, returning false once the node is
// already at its bound or frozen for removal (dtoFrozen is negative, so the
// upper-bound check alone would not reject it).
func dtoAbsorb(n *dtoCounterNode) bool {
	for {
		cur := n.local.Load()
		if cur < 0 || cur >= n.amortised {
			return false
		}
		if n.local.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// dtoInsertCounter walks the tree exactly like dtInsertCounter, additionally
// trying to absorb into each node's local budget before descending into (or
// allocating) a child.
func dtoInsertCounter(slot *tagword.Atomic[dtoCounterNode], branching int, amortised int64, seed uint64) bool {
	for {
		kind, node := slot.Load()
		switch kind {
		case tagword.KindEmpty:
			n := newDtoCounterNode(branching, amortised)
			if slot.CompareAndSwap(tagword.KindEmpty, nil, tagword.KindValue, n) {
				return true
			}
		case tagword.KindValue:
			if dtoAbsorb(node) {
				return true
			}
			start := int(seed % uint64(branching))
			for attempt := 0; attempt < branching; attempt++ {
				idx := (start + attempt) % branching
				k, _ := node.children[idx].Load()
				if k == tagword.KindRemoving {
					continue
				}
				if dtoInsertCounter(&node.children[idx], branching, amortised, rehash(seed)) {
					return true
				}
			}
			return false
		case tagword.KindRemoving:
			return false
		}
	}
}

func (in *DyntreeoptIncounter) Decrement(source any) Status {
	seed := seedOf(source)
	for {
		if dtoRemoveCounter(&in.root, in.freelist, seed) {
			break
		}
		seed = rehash(seed)
	}
	k, _ := in.root.Load()
	if k == tagword.KindEmpty {
		if in.notifier != nil {
			in.notifier.NotifyReady()
		}
		return Activated
	}
	return NotActivated
}

// dtoRemoveCounter first tries to release one unit of the node's local
// budget. Once that budget reads zero, it tries to freeze it (CAS to
// dtoFrozen) so a concurrent dtoAbsorb can no longer claim a unit in this
// node while removal is in flight; losing that race (the budget moved,
// either absorbed into or already frozen by another remover) means this
// node is not ours to remove right now. Once frozen, it behaves like
// dtRemoveCounter: CAS-mark every child slot removing from null, and if
// all succeed, unlink the now-provably-childless node from its parent and
// hand it to the freelist; otherwise unmark, unfreeze, and descend into a
// non-null, non-removing child chosen by a pseudo-random rotation.
func dtoRemoveCounter(slot *tagword.Atomic[dtoCounterNode], fl *freelist[dtoCounterNode], seed uint64) bool {
	kind, node := slot.Load()
	switch kind {
	case tagword.KindEmpty, tagword.KindRemoving:
		return false
	}

	frozen := false
	for !frozen {
		cur := node.local.Load()
		switch {
		case cur > 0:
			if node.local.CompareAndSwap(cur, cur-1) {
				return true
			}
		case cur < 0:
			// another remover already froze this node; it owns the unlink.
			return false
		default:
			frozen = node.local.CompareAndSwap(0, dtoFrozen)
		}
	}

	marked := 0
	for marked < len(node.children) {
		if !node.children[marked].CompareAndSwap(tagword.KindEmpty, nil, tagword.KindRemoving, nil) {
			break
		}
		marked++
	}
	if marked == len(node.children) {
		if slot.CompareAndSwap(tagword.KindValue, node, tagword.KindEmpty, nil) {
			fl.push(node)
			return true
		}
		// lost the unlink race to a concurrent remover that reached this
		// same node another way; fall through to unmark, unfreeze, retry.
	}
	for i := 0; i < marked; i++ {
		node.children[i].CompareAndSwap(tagword.KindRemoving, nil, tagword.KindEmpty, nil)
	}
	node.local.CompareAndSwap(dtoFrozen, 0)

	branching := len(node.children)
	start := int(seed % uint64(branching))
	for attempt := 0; attempt < branching; attempt++ {
		idx := (start + attempt) % branching
		k, _ := node.children[idx].Load()
		if k != tagword.KindValue {
			continue
		}
		if dtoRemoveCounter(&node.children[idx], fl, rehash(seed)) {
			return true
		}
	}
	return false
}

func (in *DyntreeoptIncounter) Destroy() {
	in.freelist.drain()
}
