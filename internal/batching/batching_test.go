package batching

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickbatch/internal/lip"
	"pickbatch/internal/lip/pbsolver"
)

func order(id string, aisles ...string) Order {
	o := Order{ID: id}
	for _, a := range aisles {
		o.Items = append(o.Items, Item{Aisle: a})
	}
	return o
}

func threeOrders() []Order {
	return []Order{
		order("o1", "a1", "a2"),
		order("o2", "a2"),
		order("o3", "a3"),
	}
}

func sixOrders() []Order {
	return []Order{
		order("o1", "a1", "a2", "a3"),
		order("o2", "a2", "a4"),
		order("o3", "a1"),
		order("o4", "a5"),
		order("o5", "a4", "a5"),
		order("o6", "a3"),
	}
}

func newPlanner(t *testing.T, orders []Order, k int, opts ...Option) *Planner {
	t.Helper()
	idx, err := NewIncidence(orders)
	require.NoError(t, err)
	opts = append([]Option{WithSolver(pbsolver.New()), WithSymmetryBreaking(true), WithSeed(7)}, opts...)
	p, err := NewPlanner(idx, k, opts...)
	require.NoError(t, err)
	return p
}

func TestIncidence(t *testing.T) {
	idx, err := NewIncidence(threeOrders())
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, []string{"o1", "o2", "o3"}, idx.Orders())
	assert.Equal(t, []string{"a1", "a2", "a3"}, idx.Aisles())
	assert.Equal(t, []string{"o1", "o2"}, idx.AisleOrders("a2"))
	assert.Equal(t, 2, idx.NumAisles("o1"))
	assert.Equal(t, 2, idx.Position("o3"))
	assert.Equal(t, -1, idx.Position("nope"))

	again, err := NewIncidence(threeOrders())
	require.NoError(t, err)
	if diff := cmp.Diff(idx.OrderAislesMap(), again.OrderAislesMap()); diff != "" {
		t.Errorf("order→aisles differs (-first +second):\n%s", diff)
	}
	sorted := func(m map[string][]string) map[string][]string {
		for _, v := range m {
			sort.Strings(v)
		}
		return m
	}
	if diff := cmp.Diff(sorted(idx.AisleOrdersMap()), sorted(again.AisleOrdersMap())); diff != "" {
		t.Errorf("aisle→orders differs (-first +second):\n%s", diff)
	}
}

func TestIncidenceRejectsBadInput(t *testing.T) {
	_, err := NewIncidence(nil)
	require.ErrorIs(t, err, ErrNoOrders)

	for name, orders := range map[string][]Order{
		"empty id":    {order("", "a1")},
		"duplicate":   {order("o1", "a1"), order("o1", "a2")},
		"no items":    {{ID: "o1"}},
		"empty aisle": {order("o1", "")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewIncidence(orders)
			require.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
}

func TestNewPlannerBatchCount(t *testing.T) {
	idx, err := NewIncidence(sixOrders())
	require.NoError(t, err)
	for k, want := range map[int]int{1: 6, 2: 3, 4: 2, 6: 1, 10: 1} {
		p, err := NewPlanner(idx, k)
		require.NoError(t, err)
		assert.Equal(t, want, p.NumBatches(), "k=%d", k)
	}
	_, err = NewPlanner(idx, 0)
	require.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestGreedyThreeOrders(t *testing.T) {
	p := newPlanner(t, threeOrders(), 2)
	got := p.Greedy()
	assert.Equal(t, Batching{{"o1", "o2"}, {"o3"}}, got)
	assert.Equal(t, Score{Total: 3, PerBatch: []int{2, 1}}, p.Incidence().Evaluate(got))
}

func TestGreedyTieBreaksByScanOrder(t *testing.T) {
	p := newPlanner(t, []Order{order("o1", "a1", "a2"), order("o2", "a3"), order("o3", "a4")}, 2)
	assert.Equal(t, Batching{{"o1", "o2"}, {"o3"}}, p.Greedy())

	p = newPlanner(t, []Order{order("o1", "a1"), order("o2", "a2"), order("o3", "a1")}, 2)
	assert.Equal(t, Batching{{"o1", "o3"}, {"o2"}}, p.Greedy())
}

func TestGreedySixOrders(t *testing.T) {
	p := newPlanner(t, sixOrders(), 2)
	got := p.Greedy()
	assert.Equal(t, Batching{{"o1", "o3"}, {"o2", "o5"}, {"o4", "o6"}}, got)
	assert.Equal(t, 8, p.Incidence().Evaluate(got).Total)
}

func TestExactThreeOrders(t *testing.T) {
	p := newPlanner(t, threeOrders(), 2)
	plan, err := p.Plan(context.Background(), StrategyExact, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, plan.Score.Total)
	require.NotNil(t, plan.Solve)
	assert.Equal(t, lip.Optimal, plan.Solve.Status)
	assert.Equal(t, float64(plan.Score.Total), plan.Solve.Objective)
}

func TestExactWarmStart(t *testing.T) {
	for _, warm := range []Strategy{StrategyGreedy, StrategyRandom} {
		t.Run(string(warm), func(t *testing.T) {
			p := newPlanner(t, sixOrders(), 2)
			plan, err := p.Plan(context.Background(), StrategyExact, PlanOptions{WarmStart: warm})
			require.NoError(t, err)
			assert.Equal(t, warm, plan.WarmStart)
			assert.Equal(t, 8, plan.Score.Total)
			assert.Equal(t, float64(plan.Score.Total), plan.Solve.Objective)
		})
	}
}

func TestExactHonoursTimeLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var orders []Order
	for i := 0; i < 40; i++ {
		var aisles []string
		for _, a := range rng.Perm(20)[:3] {
			aisles = append(aisles, fmt.Sprintf("a%02d", a))
		}
		orders = append(orders, order(fmt.Sprintf("o%02d", i), aisles...))
	}
	const limit = 500 * time.Millisecond
	p := newPlanner(t, orders, 5, WithParams(lip.Params{TimeLimit: limit}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	greedy, err := p.Plan(ctx, StrategyGreedy, PlanOptions{})
	require.NoError(t, err)
	start := time.Now()
	plan, err := p.Plan(ctx, StrategyExact, PlanOptions{WarmStart: StrategyGreedy})
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Less(t, elapsed, 2*limit+500*time.Millisecond)
	require.NoError(t, p.Validate(plan.Batches))
	assert.LessOrEqual(t, plan.Score.Total, greedy.Score.Total)
	require.NotNil(t, plan.Solve)
	assert.GreaterOrEqual(t, plan.Solve.Objective, float64(plan.Score.Total))
}

func TestExactStopsOnCancel(t *testing.T) {
	var orders []Order
	for i := 0; i < 30; i++ {
		orders = append(orders, order(fmt.Sprintf("o%02d", i), fmt.Sprintf("a%d", i%7), fmt.Sprintf("a%d", (i*3)%11+7)))
	}
	p := newPlanner(t, orders, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	plan, err := p.Plan(ctx, StrategyExact, PlanOptions{WarmStart: StrategyGreedy})
	assert.Less(t, time.Since(start), 2*time.Second)
	if err != nil {
		require.ErrorIs(t, err, lip.ErrNoSolution)
		return
	}
	require.NoError(t, p.Validate(plan.Batches))
}

func TestExactRejectsInvalidWarmStart(t *testing.T) {
	p := newPlanner(t, threeOrders(), 2)
	for name, warm := range map[string]Batching{
		"missing order": {{"o1", "o2"}},
		"too many":      {{"o1"}, {"o2"}, {"o3"}},
		"over capacity": {{"o1", "o2", "o3"}},
		"duplicate":     {{"o1", "o2"}, {"o2", "o3"}},
		"unknown":       {{"o1", "o2"}, {"o3", "o9"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := p.Exact(context.Background(), warm)
			require.ErrorIs(t, err, ErrInvalidBatching)
		})
	}
}

func TestSingleAisleScoresB(t *testing.T) {
	var orders []Order
	for _, id := range []string{"o1", "o2", "o3", "o4", "o5"} {
		orders = append(orders, order(id, "a1"))
	}
	p := newPlanner(t, orders, 2)
	for _, s := range Strategies() {
		plan, err := p.Plan(context.Background(), s, PlanOptions{})
		require.NoError(t, err, s)
		assert.Equal(t, p.NumBatches(), plan.Score.Total, s)
	}
}

func TestPartitionAndCapacity(t *testing.T) {
	for _, k := range []int{1, 2, 3, 4, 6, 9} {
		p := newPlanner(t, sixOrders(), k)
		for _, s := range Strategies() {
			plan, err := p.Plan(context.Background(), s, PlanOptions{})
			require.NoError(t, err, "k=%d %s", k, s)
			require.NoError(t, p.Validate(plan.Batches))

			var all []string
			for _, b := range plan.Batches {
				assert.LessOrEqual(t, len(b), k)
				all = append(all, b...)
			}
			sort.Strings(all)
			assert.Equal(t, []string{"o1", "o2", "o3", "o4", "o5", "o6"}, all, "k=%d %s", k, s)
			assert.Len(t, plan.Batches, p.NumBatches())
		}
	}
}

func TestExactIsLowerBound(t *testing.T) {
	p := newPlanner(t, sixOrders(), 2)
	plans, err := p.Compare(context.Background(), Strategies(), PlanOptions{WarmStart: StrategyGreedy})
	require.NoError(t, err)
	require.Len(t, plans, len(Strategies()))

	exact := plans[len(plans)-1]
	require.Equal(t, StrategyExact, exact.Strategy)
	for i, plan := range plans {
		assert.Equal(t, Strategies()[i], plan.Strategy)
		assert.LessOrEqual(t, exact.Score.Total, plan.Score.Total, plan.Strategy)
	}
}

func TestSingleBatchWholePool(t *testing.T) {
	p := newPlanner(t, sixOrders(), 2)
	pool := p.Incidence().Orders()
	batch, sol, err := p.singleBatch(context.Background(), pool, len(pool), "")
	require.NoError(t, err)
	assert.Equal(t, Batch(pool), batch)
	assert.Equal(t, float64(p.Incidence().Evaluate(Batching{batch}).Total), sol.Objective)
}

func TestSingleBatchPicksFewestAisles(t *testing.T) {
	p := newPlanner(t, sixOrders(), 2)
	pool := p.Incidence().Orders()

	batch, err := p.SingleBatch(context.Background(), pool, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Incidence().BatchAisles(batch).Len())

	batch, err = p.SingleBatch(context.Background(), pool, 2, "o1")
	require.NoError(t, err)
	assert.Contains(t, batch, "o1")
	assert.Equal(t, 3, p.Incidence().BatchAisles(batch).Len())
}

func TestSingleBatchRejectsInfeasibleRequests(t *testing.T) {
	p := newPlanner(t, threeOrders(), 2)
	ctx := context.Background()
	for name, call := range map[string]func() error{
		"too large":  func() error { _, err := p.SingleBatch(ctx, []string{"o1"}, 2, ""); return err },
		"zero":       func() error { _, err := p.SingleBatch(ctx, []string{"o1"}, 0, ""); return err },
		"seed":       func() error { _, err := p.SingleBatch(ctx, []string{"o1", "o2"}, 1, "o3"); return err },
		"unknown":    func() error { _, err := p.SingleBatch(ctx, []string{"o1", "o9"}, 1, ""); return err },
		"duplicated": func() error { _, err := p.SingleBatch(ctx, []string{"o1", "o1"}, 1, ""); return err },
	} {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, call(), ErrInfeasibleRequest)
		})
	}
}

func TestGreedySingleBatch(t *testing.T) {
	p := newPlanner(t, threeOrders(), 2)
	seeded, err := p.GreedySingleBatch(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, Batching{{"o1", "o2"}, {"o3"}}, seeded)

	// {o1,o2} and {o2,o3} both touch two aisles; either may come first.
	unseeded, err := p.GreedySingleBatch(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, p.Validate(unseeded))
	require.Len(t, unseeded, 2)
	assert.Len(t, unseeded[0], 2)
	assert.Equal(t, 2, p.Incidence().BatchAisles(unseeded[0]).Len())
	assert.LessOrEqual(t, p.Incidence().Evaluate(unseeded).Total, 4)
}

func TestRandomUnderFill(t *testing.T) {
	var orders []Order
	for _, id := range []string{"o1", "o2", "o3", "o4", "o5", "o6", "o7"} {
		orders = append(orders, order(id, "a"+id))
	}
	p := newPlanner(t, orders, 3)
	for seed := int64(0); seed < 20; seed++ {
		got := p.Random(rand.New(rand.NewSource(seed)))
		require.Len(t, got, 3)
		assert.Equal(t, []int{3, 3, 1}, []int{len(got[0]), len(got[1]), len(got[2])})
		require.NoError(t, p.Validate(got))
	}

	p = newPlanner(t, orders[:6], 3)
	got := p.Random(rand.New(rand.NewSource(1)))
	assert.Equal(t, []int{3, 3}, []int{len(got[0]), len(got[1])})
}

func TestRandomIsReproducible(t *testing.T) {
	p := newPlanner(t, sixOrders(), 2)
	a, err := p.Plan(context.Background(), StrategyRandom, PlanOptions{})
	require.NoError(t, err)
	b, err := p.Plan(context.Background(), StrategyRandom, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, a.Batches, b.Batches)
}

func TestStrategiesNeedSolver(t *testing.T) {
	idx, err := NewIncidence(threeOrders())
	require.NoError(t, err)
	p, err := NewPlanner(idx, 2)
	require.NoError(t, err)
	for _, s := range Strategies() {
		_, err := p.Plan(context.Background(), s, PlanOptions{})
		if s.NeedsSolver() {
			require.ErrorIs(t, err, ErrNoSolver, s)
		} else {
			require.NoError(t, err, s)
		}
	}
}

func TestSolverFailurePropagates(t *testing.T) {
	failing := lip.SolverFunc(func(context.Context, *lip.Model, lip.Params) (*lip.Solution, error) {
		return nil, lip.ErrNoSolution
	})
	p := newPlanner(t, threeOrders(), 2, WithSolver(failing))
	for _, s := range []Strategy{StrategyGreedyExact, StrategyExact} {
		plan, err := p.Plan(context.Background(), s, PlanOptions{})
		require.ErrorIs(t, err, lip.ErrNoSolution)
		assert.Nil(t, plan)
	}
}

func TestModelHookExportsLP(t *testing.T) {
	var calls atomic.Int32
	var buf bytes.Buffer
	hook := func(m *lip.Model) {
		calls.Add(1)
		if m.Name() == "batching" {
			require.NoError(t, m.WriteLP(&buf))
		}
	}
	p := newPlanner(t, threeOrders(), 2, WithModelHook(hook))
	_, err := p.Plan(context.Background(), StrategyExact, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, buf.String(), " capacity_0_:")
	assert.Contains(t, buf.String(), " symmetry_o1_1_:")

	_, err = p.Plan(context.Background(), StrategyGreedyExactSeeded, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1+p.NumBatches()), calls.Load())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("greedy-exact-seeded")
	require.NoError(t, err)
	assert.Equal(t, StrategyGreedyExactSeeded, s)
	_, err = ParseStrategy("annealing")
	assert.True(t, errors.Is(err, ErrUnknownStrategy))
}

func TestPlanRejectsSelfWarmStart(t *testing.T) {
	p := newPlanner(t, threeOrders(), 2)
	_, err := p.Plan(context.Background(), StrategyExact, PlanOptions{WarmStart: StrategyExact})
	require.ErrorIs(t, err, ErrUnknownStrategy)
}
