package batching

import (
	"context"
	"fmt"
	"sort"

	log "github.com/golang/glog"

	"pickbatch/internal/lip"
)

// Exact assigns every order to one of B batches at once, minimising the total
// aisle visits:
//
//	min  sum_b d[b]
//	s.t. sum_o x[o,b] <= K          for every batch b
//	     sum_b x[o,b]  = 1          for every order o
//	     y[b,a] >= x[o,b]           for every b, aisle a, order o touching a
//	     d[b]   = sum_a y[b,a]      for every batch b
//
// A non-nil warm batching (at most B batches of at most K orders covering
// every order once) is passed to the engine as a starting point. Batches in
// the result list members in input order.
func (p *Planner) Exact(ctx context.Context, warm Batching) (Batching, *SolveInfo, error) {
	if p.solver == nil {
		return nil, nil, ErrNoSolver
	}
	if warm != nil {
		if len(warm) > p.b {
			return nil, nil, fmt.Errorf("%w: warm start has %d batches, max %d", ErrInvalidBatching, len(warm), p.b)
		}
		if err := p.validateMembers(warm); err != nil {
			return nil, nil, fmt.Errorf("warm start: %w", err)
		}
		warm = p.canonical(warm)
	}

	orders, aisles := p.idx.orders, p.idx.aisles
	m := lip.NewModel("batching")
	x := make([][]lip.Var, len(orders))
	for i, o := range orders {
		x[i] = make([]lip.Var, p.b)
		for b := range x[i] {
			x[i][b] = m.NewBinary(fmt.Sprintf("x[%s,%d]", o, b))
		}
	}
	y := make([]map[string]lip.Var, p.b)
	d := make([]lip.Var, p.b)
	for b := range y {
		y[b] = make(map[string]lip.Var, len(aisles))
		for _, a := range aisles {
			y[b][a] = m.NewBinary(fmt.Sprintf("y[%d,%s]", b, a))
		}
		d[b] = m.NewInteger(fmt.Sprintf("d[%d]", b), 0, int64(len(aisles)))
	}

	for b := 0; b < p.b; b++ {
		load := make(lip.Expr, 0, len(orders))
		for i := range orders {
			load = load.Add(1, x[i][b])
		}
		m.AddConstraint(fmt.Sprintf("capacity[%d]", b), load, lip.LessEqual, float64(p.k))
	}
	for i, o := range orders {
		m.AddConstraint(fmt.Sprintf("assign[%s]", o), lip.Sum(x[i]...), lip.Equal, 1)
	}
	for b := 0; b < p.b; b++ {
		for _, a := range aisles {
			for _, o := range p.idx.aisleOrders[a] {
				i := p.idx.pos[o]
				m.AddConstraint(fmt.Sprintf("visit[%d,%s,%s]", b, a, o), lip.Expr{}.Add(1, y[b][a]).Add(-1, x[i][b]), lip.GreaterEqual, 0)
			}
		}
		count := make(lip.Expr, 0, len(aisles)+1)
		for _, a := range aisles {
			count = count.Add(1, y[b][a])
		}
		m.AddConstraint(fmt.Sprintf("count[%d]", b), count.Add(-1, d[b]), lip.Equal, 0)
	}
	if p.symmetry {
		// Order i may only join batches 0..i.
		for i, o := range orders {
			for b := i + 1; b < p.b; b++ {
				m.AddConstraint(fmt.Sprintf("symmetry[%s,%d]", o, b), lip.Sum(x[i][b]), lip.Equal, 0)
			}
		}
	}
	m.Minimize(lip.Sum(d...))

	if warm != nil {
		for b := 0; b < p.b; b++ {
			var batch Batch
			if b < len(warm) {
				batch = warm[b]
			}
			member := make(map[string]bool, len(batch))
			for _, o := range batch {
				member[o] = true
			}
			for i, o := range orders {
				m.SetHint(x[i][b], boolValue(member[o]))
			}
			visited := p.idx.BatchAisles(batch)
			for _, a := range aisles {
				m.SetHint(y[b][a], boolValue(visited.Has(a)))
			}
			m.SetHint(d[b], float64(visited.Len()))
		}
	}

	log.V(1).Infof("exact: %d orders, %d aisles, %d batches of %d: %d variables, %d constraints", len(orders), len(aisles), p.b, p.k, m.NumVars(), m.NumConstraints())
	sol, err := p.solve(ctx, m)
	if err != nil {
		return nil, nil, err
	}

	out := make(Batching, p.b)
	for b := range out {
		out[b] = Batch{}
		for i, o := range orders {
			if sol.Value(x[i][b]) > 0.5 {
				out[b] = append(out[b], o)
			}
		}
	}
	info := &SolveInfo{}
	info.add(sol)
	return out, info, nil
}

// canonical pads warm to B batches and orders them by the input position of
// their earliest member, empty batches last. The result satisfies the
// symmetry constraints.
func (p *Planner) canonical(warm Batching) Batching {
	out := warm.Clone()
	for len(out) < p.b {
		out = append(out, Batch{})
	}
	first := func(batch Batch) int {
		lo := p.idx.Len()
		for _, o := range batch {
			lo = min(lo, p.idx.pos[o])
		}
		return lo
	}
	sort.SliceStable(out, func(i, j int) bool { return first(out[i]) < first(out[j]) })
	return out
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
