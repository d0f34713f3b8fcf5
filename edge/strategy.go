package edge

// Algo names the edge-tracking variant backing a graph's incounters and
// outsets, selected once per graph via the edge_algo configuration key.
type Algo string

const (
	AlgoSimple      Algo = "simple"
	AlgoDistributed Algo = "distributed"
	AlgoDyntree     Algo = "dyntree"
	AlgoDyntreeopt  Algo = "dyntreeopt"
)

// Params collects the tuning knobs the tree-shaped variants need; fields
// irrelevant to a given Algo are ignored.
type Params struct {
	// BranchingFactor is the b-ary fan-out for dyntree/dyntreeopt.
	BranchingFactor int
	// Amortisation is dyntreeopt's per-node local counter bound A.
	Amortisation int64
	// TreeHeight is the fixed SNZI tree height for distributed.
	TreeHeight int
}

// DefaultParams returns the variants' documented defaults: branching
// factor 12, amortisation 128, SNZI tree height 10.
func DefaultParams() Params {
	return Params{BranchingFactor: defaultBranching, Amortisation: defaultAmortisation, TreeHeight: 10}
}

// NewIncounter constructs the incounter half of the edge-tracking pair for
// the given algorithm.
func NewIncounter(algo Algo, params Params, notifier ReadyNotifier) Incounter {
	switch algo {
	case AlgoSimple:
		return NewSimpleIncounter(notifier)
	case AlgoDistributed:
		height := params.TreeHeight
		if height <= 0 {
			height = 10
		}
		return NewDistributedIncounter(height, notifier)
	case AlgoDyntree:
		return NewDyntreeIncounter(params.BranchingFactor, notifier)
	case AlgoDyntreeopt:
		return NewDyntreeoptIncounter(params.BranchingFactor, params.Amortisation, notifier)
	default:
		return NewSimpleIncounter(notifier)
	}
}

// NewOutset constructs the outset half for the given algorithm.
func NewOutset(algo Algo, params Params) Outset {
	switch algo {
	case AlgoSimple:
		return NewSimpleOutset()
	case AlgoDistributed:
		return NewDistributedOutset(params.BranchingFactor)
	case AlgoDyntree:
		return NewDyntreeOutset(params.BranchingFactor)
	case AlgoDyntreeopt:
		return NewDyntreeoptOutset(params.BranchingFactor, int(params.Amortisation))
	default:
		return NewSimpleOutset()
	}
}
