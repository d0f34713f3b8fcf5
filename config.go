package dagrun

import (
	"fmt"
	"strconv"

	"github.com/joeycumines/dagrun/edge"
)

// config holds the resolved settings a Runtime is built from.
type config struct {
	proc               int
	algo               edge.Algo
	params             edge.Params
	communicationDelay int
	poisson            bool
}

// defaultConfig mirrors the variants' documented defaults (see
// edge.DefaultParams) and runs one worker per logical CPU.
func defaultConfig() config {
	return config{
		proc:               -1,
		algo:               edge.AlgoDyntreeopt,
		params:             edge.DefaultParams(),
		communicationDelay: 128,
		poisson:            false,
	}
}

// Option configures a Runtime at Init.
type Option interface {
	applyRuntime(*config) error
}

type optionFunc struct {
	fn func(*config) error
}

func (o *optionFunc) applyRuntime(c *config) error { return o.fn(c) }

// WithWorkers sets the worker pool size. n == 0 builds a single-worker pool
// (no parallelism; proc=0 in spec terms); n < 0 means one worker per
// GOMAXPROCS, after adjusting GOMAXPROCS for cgroup limits via automaxprocs.
func WithWorkers(n int) Option {
	return &optionFunc{func(c *config) error {
		c.proc = n
		return nil
	}}
}

// WithEdgeAlgo selects the edge-tracking variant backing every incounter and
// outset the Runtime constructs.
func WithEdgeAlgo(algo edge.Algo) Option {
	return &optionFunc{func(c *config) error {
		switch algo {
		case edge.AlgoSimple, edge.AlgoDistributed, edge.AlgoDyntree, edge.AlgoDyntreeopt:
			c.algo = algo
			return nil
		default:
			return fmt.Errorf("dagrun: unknown edge algorithm %q", algo)
		}
	}}
}

// WithBranchingFactor sets the b-ary fan-out used by dyntree/dyntreeopt.
func WithBranchingFactor(n int) Option {
	return &optionFunc{func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("dagrun: branching factor must be positive, got %d", n)
		}
		c.params.BranchingFactor = n
		return nil
	}}
}

// WithTreeHeight sets the fixed SNZI tree height used by the distributed
// variant.
func WithTreeHeight(n int) Option {
	return &optionFunc{func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("dagrun: tree height must be positive, got %d", n)
		}
		c.params.TreeHeight = n
		return nil
	}}
}

// WithAmortisation sets dyntreeopt's per-node local counter bound.
func WithAmortisation(n int64) Option {
	return &optionFunc{func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("dagrun: amortisation must be positive, got %d", n)
		}
		c.params.Amortisation = n
		return nil
	}}
}

// WithReclaimPacing records a reclaim batch size and a poisson jitter flag
// in the Runtime's configuration (the communication_delay and poisson
// keys). Nothing reads these values: the internal freelist reclaimer runs
// with its own fixed batch size and flush interval.
func WithReclaimPacing(batchSize int, poisson bool) Option {
	return &optionFunc{func(c *config) error {
		if batchSize <= 0 {
			return fmt.Errorf("dagrun: reclaim batch size must be positive, got %d", batchSize)
		}
		c.communicationDelay = batchSize
		c.poisson = poisson
		return nil
	}}
}

// WithReclaimBatchSize records only the batch size, leaving the poisson
// flag untouched; like WithReclaimPacing, it has no effect on the
// reclaimer. Split out from WithReclaimPacing so ConfigFromMap can apply
// "communication_delay" and "poisson" independently without either one
// clobbering the other depending on map iteration order.
func WithReclaimBatchSize(batchSize int) Option {
	return &optionFunc{func(c *config) error {
		if batchSize <= 0 {
			return fmt.Errorf("dagrun: reclaim batch size must be positive, got %d", batchSize)
		}
		c.communicationDelay = batchSize
		return nil
	}}
}

// WithReclaimPoisson records only the poisson flag, leaving the batch size
// untouched; it has no effect on the reclaimer. See WithReclaimBatchSize.
func WithReclaimPoisson(poisson bool) Option {
	return &optionFunc{func(c *config) error {
		c.poisson = poisson
		return nil
	}}
}

func resolveOptions(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(&cfg); err != nil {
			return config{}, err
		}
	}
	return cfg, nil
}

// ConfigFromMap builds Options from the string-keyed configuration surface
// spec.md §6 specifies: proc, edge_algo, branching_factor, nb_levels,
// communication_delay, poisson. Unknown keys are rejected; every recognised
// key that fails to parse returns a descriptive error rather than silently
// falling back to a default.
func ConfigFromMap(m map[string]string) ([]Option, error) {
	var opts []Option
	for k, v := range m {
		switch k {
		case "proc":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("dagrun: parsing %q: %w", k, err)
			}
			opts = append(opts, WithWorkers(n))
		case "edge_algo":
			algo := edge.Algo(v)
			if algo == "tree" {
				algo = edge.AlgoDyntree
			}
			opts = append(opts, WithEdgeAlgo(algo))
		case "branching_factor":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("dagrun: parsing %q: %w", k, err)
			}
			opts = append(opts, WithBranchingFactor(n))
		case "nb_levels":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("dagrun: parsing %q: %w", k, err)
			}
			opts = append(opts, WithTreeHeight(n))
		case "communication_delay":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("dagrun: parsing %q: %w", k, err)
			}
			opts = append(opts, WithReclaimBatchSize(n))
		case "poisson":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("dagrun: parsing %q: %w", k, err)
			}
			opts = append(opts, WithReclaimPoisson(b))
		default:
			return nil, fmt.Errorf("dagrun: unknown configuration key %q", k)
		}
	}
	return opts, nil
}
