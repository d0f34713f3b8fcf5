package edge

import (
	"sync/atomic"
	"unsafe"

	"github.com/joeycumines/dagrun/snzi"
)

// snziNotifierAdapter bridges edge.ReadyNotifier to snzi.ReadyNotifier (the
// two interfaces are structurally identical but kept distinct so package
// snzi has no dependency on package edge).
type snziNotifierAdapter struct {
	notifier ReadyNotifier
}

func (a snziNotifierAdapter) NotifyReady() {
	if a.notifier != nil {
		a.notifier.NotifyReady()
	}
}

// DistributedIncounter is the SNZI-backed variant: arrivals spread across a
// tree of counters instead of contending on one word, at the cost of a
// fixed-size tree allocated up front.
//
// SNZI requires each Depart to land on the exact same node its matching
// Arrive used — unlike a flat counter, a node's local state is only valid
// across a balanced pair of calls on that node, not across the tree as a
// whole. Since an increment and its eventual decrement are issued from
// unrelated call sites (one when an edge is wired, the other when the
// predecessor task finishes), this incounter records which leaf each
// Arrive used on a lock-free stack and has Decrement pop and depart that
// exact leaf, so pairing is always exact regardless of how arrivals spread.
type DistributedIncounter struct {
	tree   *snzi.Tree
	leases atomic.Pointer[leaseNode]
}

type leaseNode struct {
	leaf *snzi.Node
	next *leaseNode
}

// NewDistributedIncounter returns an incounter backed by a SNZI tree of the
// given height, with an initial arrival representing the owning task's own
// unit of work (mirroring SimpleIncounter's initial count of one).
func NewDistributedIncounter(height int, notifier ReadyNotifier) *DistributedIncounter {
	tree := snzi.NewTree(height)
	tree.SetRootAnnotation(snziNotifierAdapter{notifier: notifier})
	d := &DistributedIncounter{tree: tree}
	d.arrive(seedOf(nil))
	return d
}

func (d *DistributedIncounter) arrive(seed uint64) {
	leaf := d.tree.RandomLeafOf(seed)
	leaf.Arrive()
	n := &leaseNode{leaf: leaf}
	for {
		head := d.leases.Load()
		n.next = head
		if d.leases.CompareAndSwap(head, n) {
			return
		}
	}
}

// depart pops the most recently recorded lease and departs exactly that
// leaf; any lease works since Arrive/Depart pairing only needs to match
// leaves, not preserve ordering between distinct logical edges.
func (d *DistributedIncounter) depart() bool {
	for {
		head := d.leases.Load()
		if head == nil {
			panic("edge: distributed incounter decremented without a matching increment")
		}
		if d.leases.CompareAndSwap(head, head.next) {
			return head.leaf.Depart()
		}
	}
}

func (d *DistributedIncounter) IsActivated() bool {
	return !d.tree.IsNonzero()
}

func (d *DistributedIncounter) Increment(source any) {
	d.arrive(seedOf(source))
}

func (d *DistributedIncounter) Decrement(source any) Status {
	if d.depart() {
		return Activated
	}
	return NotActivated
}

// DistributedOutset is the outset half of the distributed variant. SNZI has
// no natural tree-of-consumers shape of its own, so the distributed variant
// reuses DyntreeOutset unchanged rather than duplicating the same sweep
// logic for no benefit.
type DistributedOutset = DyntreeOutset

// NewDistributedOutset returns an empty, open outset for the distributed
// variant.
func NewDistributedOutset(branching int) *DistributedOutset {
	return NewDyntreeOutset(branching)
}

// ifaceWords mirrors the runtime's two-word representation of a non-empty
// interface value (a type pointer and a data pointer), read back purely to
// recover the data word as a per-source identity.
type ifaceWords struct {
	typ  unsafe.Pointer
	data unsafe.Pointer
}

// seedOf derives a contention-spreading seed from source's own identity
// instead of a shared global counter: a pointer-shaped source (every real
// caller passes the *task.Task wiring the edge) has its pointer value as
// the interface data word directly; anything else is boxed onto the heap
// by Go when converted to `any`, so the data word is still a stable
// per-value address. A shared atomic counter would otherwise serialise
// every Increment/Insert call across every incounter in the process on one
// cache line — exactly the contention the dyntree and SNZI designs exist
// to spread.
func seedOf(source any) uint64 {
	if source == nil {
		return 0
	}
	data := (*ifaceWords)(unsafe.Pointer(&source)).data
	return rehash(uint64(uintptr(data)))
}
