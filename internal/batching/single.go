package batching

import (
	"context"
	"fmt"

	"pickbatch/internal/lip"
)

// SingleBatch picks exactly size orders from pool touching the fewest
// distinct aisles. A non-empty seed must be one of the picked orders. The
// result follows pool order.
func (p *Planner) SingleBatch(ctx context.Context, pool []string, size int, seed string) (Batch, error) {
	b, _, err := p.singleBatch(ctx, pool, size, seed)
	return b, err
}

func (p *Planner) singleBatch(ctx context.Context, pool []string, size int, seed string) (Batch, *lip.Solution, error) {
	if p.solver == nil {
		return nil, nil, ErrNoSolver
	}
	if size < 1 || size > len(pool) {
		return nil, nil, fmt.Errorf("%w: size %d from a pool of %d", ErrInfeasibleRequest, size, len(pool))
	}
	inPool := make(map[string]struct{}, len(pool))
	for _, id := range pool {
		if !p.idx.Has(id) {
			return nil, nil, fmt.Errorf("%w: unknown order %s", ErrInfeasibleRequest, id)
		}
		if _, dup := inPool[id]; dup {
			return nil, nil, fmt.Errorf("%w: order %s listed twice", ErrInfeasibleRequest, id)
		}
		inPool[id] = struct{}{}
	}
	if _, ok := inPool[seed]; seed != "" && !ok {
		return nil, nil, fmt.Errorf("%w: seed %s not in pool", ErrInfeasibleRequest, seed)
	}

	m := lip.NewModel("single_batch")
	x := make(map[string]lip.Var, len(pool))
	for _, id := range pool {
		x[id] = m.NewBinary(fmt.Sprintf("x[%s]", id))
	}
	y := map[string]lip.Var{}
	var visits lip.Expr
	for _, id := range pool {
		for _, a := range p.idx.OrderAisles(id).Sorted() {
			v, ok := y[a]
			if !ok {
				v = m.NewBinary(fmt.Sprintf("y[%s]", a))
				y[a] = v
				visits = visits.Add(1, v)
			}
			m.AddConstraint(fmt.Sprintf("visit[%s,%s]", a, id), lip.Expr{}.Add(1, v).Add(-1, x[id]), lip.GreaterEqual, 0)
		}
	}
	chosen := make(lip.Expr, 0, len(pool))
	for _, id := range pool {
		chosen = chosen.Add(1, x[id])
	}
	m.AddConstraint("size", chosen, lip.Equal, float64(size))
	if seed != "" {
		m.AddConstraint("seed", lip.Sum(x[seed]), lip.Equal, 1)
	}
	m.Minimize(visits)

	sol, err := p.solve(ctx, m)
	if err != nil {
		return nil, nil, err
	}
	batch := make(Batch, 0, size)
	for _, id := range pool {
		if sol.Value(x[id]) > 0.5 {
			batch = append(batch, id)
		}
	}
	if len(batch) != size {
		return nil, nil, fmt.Errorf("single batch: engine picked %d orders, want %d", len(batch), size)
	}
	return batch, sol, nil
}

func (p *Planner) solve(ctx context.Context, m *lip.Model) (*lip.Solution, error) {
	if p.hook != nil {
		p.hook(m)
	}
	return p.solver.Solve(ctx, m, p.params)
}
