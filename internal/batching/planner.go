package batching

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	log "github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"pickbatch/internal/lip"
)

// Strategy names a way to build a batching.
type Strategy string

const (
	StrategyRandom            Strategy = "random"
	StrategyGreedy            Strategy = "greedy"
	StrategyGreedyExact       Strategy = "greedy-exact"
	StrategyGreedyExactSeeded Strategy = "greedy-exact-seeded"
	StrategyExact             Strategy = "exact"
)

// Strategies lists every strategy, cheapest first.
func Strategies() []Strategy {
	return []Strategy{StrategyRandom, StrategyGreedy, StrategyGreedyExact, StrategyGreedyExactSeeded, StrategyExact}
}

// ParseStrategy returns the strategy named s.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// NeedsSolver reports whether s calls the optimisation engine.
func (s Strategy) NeedsSolver() bool {
	switch s {
	case StrategyGreedyExact, StrategyGreedyExactSeeded, StrategyExact:
		return true
	}
	return false
}

// Planner runs batching strategies over one incidence index with a fixed
// maximum batch size K and batch count B = ceil(n/K). A Planner holds no
// mutable state and may be shared between goroutines.
type Planner struct {
	idx      *Incidence
	k, b     int
	solver   lip.Solver
	params   lip.Params
	hook     func(*lip.Model)
	symmetry bool
	seed     int64
	seeded   bool
}

// Option configures a Planner.
type Option func(*Planner)

// WithSolver sets the engine used by the exact strategies.
func WithSolver(s lip.Solver) Option { return func(p *Planner) { p.solver = s } }

// WithParams sets the limits applied to every engine call.
func WithParams(params lip.Params) Option { return func(p *Planner) { p.params = params } }

// WithModelHook registers fn to see every model right before it is solved,
// e.g. to export it with (*lip.Model).WriteLP. Compare may call fn from
// several goroutines.
func WithModelHook(fn func(*lip.Model)) Option { return func(p *Planner) { p.hook = fn } }

// WithSymmetryBreaking fixes x[o_i,b] = 0 for b > i in the full exact model.
func WithSymmetryBreaking(on bool) Option { return func(p *Planner) { p.symmetry = on } }

// WithSeed makes the random strategy reproducible.
func WithSeed(seed int64) Option {
	return func(p *Planner) { p.seed, p.seeded = seed, true }
}

// NewPlanner returns a planner for batches of at most k orders.
func NewPlanner(idx *Incidence, k int, opts ...Option) (*Planner, error) {
	if idx == nil || idx.Len() == 0 {
		return nil, ErrNoOrders
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, k)
	}
	p := &Planner{idx: idx, k: k, b: (idx.Len() + k - 1) / k}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Incidence returns the index the planner works on.
func (p *Planner) Incidence() *Incidence { return p.idx }

// BatchSize returns K.
func (p *Planner) BatchSize() int { return p.k }

// NumBatches returns B.
func (p *Planner) NumBatches() int { return p.b }

// Validate checks that b has exactly B batches of at most K orders and holds
// every order exactly once.
func (p *Planner) Validate(b Batching) error {
	if len(b) != p.b {
		return fmt.Errorf("%w: %d batches, want %d", ErrInvalidBatching, len(b), p.b)
	}
	return p.validateMembers(b)
}

func (p *Planner) validateMembers(b Batching) error {
	seen := make(map[string]int, p.idx.Len())
	for i, batch := range b {
		if len(batch) > p.k {
			return fmt.Errorf("%w: batch %d holds %d orders, max %d", ErrInvalidBatching, i, len(batch), p.k)
		}
		for _, id := range batch {
			if !p.idx.Has(id) {
				return fmt.Errorf("%w: unknown order %s in batch %d", ErrInvalidBatching, id, i)
			}
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("%w: order %s in batches %d and %d", ErrInvalidBatching, id, prev, i)
			}
			seen[id] = i
		}
	}
	if len(seen) != p.idx.Len() {
		return fmt.Errorf("%w: %d of %d orders assigned", ErrInvalidBatching, len(seen), p.idx.Len())
	}
	return nil
}

// sortedPool returns every order sorted by descending aisle count. Equal
// counts keep input order.
func (p *Planner) sortedPool() []string {
	pool := p.idx.Orders()
	sort.SliceStable(pool, func(i, j int) bool {
		return p.idx.NumAisles(pool[i]) > p.idx.NumAisles(pool[j])
	})
	return pool
}

// without returns pool minus the members of batch, keeping relative order.
func without(pool []string, batch Batch) []string {
	drop := make(map[string]struct{}, len(batch))
	for _, id := range batch {
		drop[id] = struct{}{}
	}
	out := pool[:0:0]
	for _, id := range pool {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// SolveInfo reports what the engine did for an exact strategy.
type SolveInfo struct {
	Status lip.Status
	// Objective is the engine's objective summed over its models. It equals
	// Score.Total only when Status is Optimal: a Feasible stop may still
	// count aisles that no batch member touches, so it is an upper bound.
	Objective float64
	Runtime   time.Duration
	// Models is the number of engine calls.
	Models int
}

func (s *SolveInfo) add(sol *lip.Solution) {
	if s.Models == 0 || sol.Status == lip.Feasible {
		s.Status = sol.Status
	}
	s.Objective += sol.Objective
	s.Runtime += sol.Runtime
	s.Models++
}

// PlanOptions tune a single Plan call.
type PlanOptions struct {
	// WarmStart names the heuristic whose batching seeds the exact model.
	WarmStart Strategy
}

// Plan is a scored batching.
type Plan struct {
	Strategy  Strategy
	WarmStart Strategy
	Batches   Batching
	Score     Score
	Solve     *SolveInfo
	Elapsed   time.Duration
}

// Plan builds a batching with strategy s and scores it.
func (p *Planner) Plan(ctx context.Context, s Strategy, opts PlanOptions) (*Plan, error) {
	start := time.Now()
	out := &Plan{Strategy: s}
	var err error
	switch s {
	case StrategyRandom:
		out.Batches = p.Random(p.rand())
	case StrategyGreedy:
		out.Batches = p.Greedy()
	case StrategyGreedyExact, StrategyGreedyExactSeeded:
		out.Batches, out.Solve, err = p.greedySingleBatch(ctx, s == StrategyGreedyExactSeeded)
	case StrategyExact:
		var warm Batching
		if opts.WarmStart != "" {
			if opts.WarmStart == StrategyExact {
				return nil, fmt.Errorf("%w: exact cannot warm-start itself", ErrUnknownStrategy)
			}
			wp, werr := p.Plan(ctx, opts.WarmStart, PlanOptions{})
			if werr != nil {
				return nil, fmt.Errorf("warm start %s: %w", opts.WarmStart, werr)
			}
			warm = wp.Batches
			out.WarmStart = opts.WarmStart
		}
		out.Batches, out.Solve, err = p.Exact(ctx, warm)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s, err)
	}
	if err := p.Validate(out.Batches); err != nil {
		return nil, fmt.Errorf("%s: %w", s, err)
	}
	out.Score = p.idx.Evaluate(out.Batches)
	out.Elapsed = time.Since(start)
	log.V(1).Infof("plan %s: %d orders in %d batches, %d aisle visits in %s", s, p.idx.Len(), len(out.Batches), out.Score.Total, out.Elapsed)
	return out, nil
}

// Compare runs each strategy concurrently and returns the plans in request
// order. The first failure cancels the others.
func (p *Planner) Compare(ctx context.Context, strategies []Strategy, opts PlanOptions) ([]*Plan, error) {
	plans := make([]*Plan, len(strategies))
	g, ctx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		g.Go(func() error {
			o := PlanOptions{}
			if s == StrategyExact {
				o = opts
			}
			plan, err := p.Plan(ctx, s, o)
			if err != nil {
				return err
			}
			plans[i] = plan
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (p *Planner) rand() *rand.Rand {
	seed := p.seed
	if !p.seeded {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
