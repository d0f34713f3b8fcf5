package edge

import (
	"github.com/joeycumines/dagrun/tagword"
)

// defaultBranching is the child fan-out of every dyntree/dyntreeopt node
// when the caller does not request a specific value.
const defaultBranching = 12

// dtCounterNode is one allocated unit of a DyntreeIncounter: its existence
// in the tree counts for exactly one unsatisfied in-edge. It carries its
// own array of child slots so the tree can grow deeper under contention
// instead of every arrival retrying the same word.
type dtCounterNode struct {
	children []tagword.Atomic[dtCounterNode]
}

func newDtCounterNode(branching int) *dtCounterNode {
	return &dtCounterNode{children: make([]tagword.Atomic[dtCounterNode], branching)}
}

// DyntreeIncounter is the dynamic concurrent tree variant: each unsatisfied
// in-edge is represented by one allocated node reachable from root, and the
// indicator is zero iff root is empty. Nodes removed by Decrement are
// queued on a freelist rather than reused immediately, so a concurrent
// reader that is still mid-traversal through a node never observes memory
// that has been repurposed for something else (Go's GC makes the memory
// itself safe regardless; the freelist exists to give Destroy a point at
// which every removed node is known reachable from nowhere, and to let
// tests assert each node is drained exactly once).
type DyntreeIncounter struct {
	branching int
	root      tagword.Atomic[dtCounterNode]
	notifier  ReadyNotifier
	freelist  *freelist[dtCounterNode]
}

// NewDyntreeIncounter returns an incounter with an initial increment
// representing the owning task's own unit of work.
func NewDyntreeIncounter(branching int, notifier ReadyNotifier) *DyntreeIncounter {
	if branching < 2 {
		branching = defaultBranching
	}
	in := &DyntreeIncounter{
		branching: branching,
		notifier:  notifier,
		freelist:  newFreelist[dtCounterNode](),
	}
	in.Increment(nil)
	return in
}

func (in *DyntreeIncounter) IsActivated() bool {
	k, _ := in.root.Load()
	return k == tagword.KindEmpty
}

// Increment walks from root, installing a freshly allocated node at the
// first empty slot it finds, descending one level whenever a slot already
// holds a value and restarting from root whenever an entire level is
// blocked by in-flight removals.
func (in *DyntreeIncounter) Increment(source any) {
	seed := seedOf(source)
	for {
		if dtInsertCounter(&in.root, in.branching, seed) {
			return
		}
		seed = seedOf(source)
	}
}

// dtInsertCounter attempts to install one counter node reachable from slot,
// returning false iff every path from slot is currently blocked by removal
// markers and the caller should restart from root.
func dtInsertCounter(slot *tagword.Atomic[dtCounterNode], branching int, seed uint64) bool {
	for {
		kind, node := slot.Load()
		switch kind {
		case tagword.KindEmpty:
			n := newDtCounterNode(branching)
			if slot.CompareAndSwap(tagword.KindEmpty, nil, tagword.KindValue, n) {
				return true
			}
			// lost the race; reload and reassess this same slot
		case tagword.KindValue:
			start := int(seed % uint64(branching))
			for attempt := 0; attempt < branching; attempt++ {
				idx := (start + attempt) % branching
				k, _ := node.children[idx].Load()
				if k == tagword.KindRemoving {
					continue
				}
				if dtInsertCounter(&node.children[idx], branching, rehash(seed)) {
					return true
				}
			}
			return false
		case tagword.KindRemoving:
			return false
		}
	}
}

// Decrement removes exactly one counter node from the tree, returning
// Activated iff this call observed root transition to empty.
func (in *DyntreeIncounter) Decrement(source any) Status {
	seed := seedOf(source)
	for {
		removed := dtRemoveCounter(&in.root, in.freelist, seed)
		if removed {
			break
		}
		// every reachable node was transiently blocked (a child raced to
		// occupied mid-removal, or this node was unlinked out from under
		// us by a concurrent remover that reached it via the same parent);
		// restart from root with a fresh rotation.
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

// dtRemoveCounter removes one node reachable from slot. It first tries to
// *remove* the node at slot outright: CAS-mark every one of its child slots
// removing from null. If every mark succeeds, the node has no live
// descendants (and, since marking blocks any concurrent Increment from
// installing a child mid-attempt, none can arrive while we hold the marks),
// so it is safe to unlink from its parent and hand to the freelist. If any
// mark fails — because a child is occupied, or another remover already
// marked it — the marks that did succeed are rolled back and the search
// instead descends into a non-null, non-removing child, chosen by a
// pseudo-random rotation so concurrent removers don't herd on the same
// index. Returns false iff every child is empty or removing (meaning the
// caller must retry from root) or the unlink itself lost a race.
func dtRemoveCounter(slot *tagword.Atomic[dtCounterNode], fl *freelist[dtCounterNode], seed uint64) bool {
	kind, node := slot.Load()
	switch kind {
	case tagword.KindEmpty, tagword.KindRemoving:
		return false
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
		// same node another way; fall through to unmark and retry.
	}
	for i := 0; i < marked; i++ {
		node.children[i].CompareAndSwap(tagword.KindRemoving, nil, tagword.KindEmpty, nil)
	}

	branching := len(node.children)
	start := int(seed % uint64(branching))
	for attempt := 0; attempt < branching; attempt++ {
		idx := (start + attempt) % branching
		k, _ := node.children[idx].Load()
		if k != tagword.KindValue {
			continue
		}
		if dtRemoveCounter(&node.children[idx], fl, rehash(seed)) {
			return true
		}
	}
	return false
}

// Destroy drains the freelist, marking every reclaimed node as released.
// Nodes still reachable from root are left untouched; Destroy is expected
// to run only once every in-edge has been satisfied, by which point root is
// empty and nothing is reachable.
func (in *DyntreeIncounter) Destroy() {
	in.freelist.drain()
}

// rehash mixes a seed for the next descent level so successive levels of a
// deep tree don't all pick the same child index.
func rehash(seed uint64) uint64 {
	seed ^= seed << 13
	seed ^= seed >> 7
	seed ^= seed << 17
	return seed
}
