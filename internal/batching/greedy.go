package batching

import (
	"context"
	"fmt"
	"math"
)

// Greedy builds batches by aisle overlap. Orders are taken in descending
// aisle count; each batch starts from the largest remaining order and grows
// by the order adding the fewest aisles not yet visited. Ties go to the
// order met first in that scan, and a scan stops at the first order adding
// nothing. The tie rule is part of the contract: it makes results
// reproducible.
func (p *Planner) Greedy() Batching {
	pool := p.sortedPool()
	out := make(Batching, 0, p.b)
	for len(pool) > 0 {
		size := min(p.k, len(pool))
		batch := make(Batch, 0, size)
		batch = append(batch, pool[0])
		visited := AisleSet{}
		visited.AddAll(p.idx.OrderAisles(pool[0]))
		pool = pool[1:]

		for len(batch) < size {
			best, bestNew := -1, math.MaxInt
			for i, id := range pool {
				n := p.idx.OrderAisles(id).CountNew(visited)
				if n < bestNew {
					best, bestNew = i, n
					if n == 0 {
						break
					}
				}
			}
			id := pool[best]
			batch = append(batch, id)
			visited.AddAll(p.idx.OrderAisles(id))
			pool = append(pool[:best:best], pool[best+1:]...)
		}
		out = append(out, batch)
	}
	return out
}

// GreedySingleBatch builds B batches one after the other, each the exact
// optimum of the single-batch subproblem over the orders left. When seeded,
// the pool is kept in descending aisle count and its head must join the
// next batch.
func (p *Planner) GreedySingleBatch(ctx context.Context, seeded bool) (Batching, error) {
	b, _, err := p.greedySingleBatch(ctx, seeded)
	return b, err
}

func (p *Planner) greedySingleBatch(ctx context.Context, seeded bool) (Batching, *SolveInfo, error) {
	if p.solver == nil {
		return nil, nil, ErrNoSolver
	}
	pool := p.idx.Orders()
	if seeded {
		pool = p.sortedPool()
	}
	info := &SolveInfo{}
	out := make(Batching, 0, p.b)
	for i := 0; i < p.b; i++ {
		seed := ""
		if seeded {
			seed = pool[0]
		}
		batch, sol, err := p.singleBatch(ctx, pool, min(p.k, len(pool)), seed)
		if err != nil {
			return nil, nil, fmt.Errorf("batch %d of %d: %w", i+1, p.b, err)
		}
		info.add(sol)
		out = append(out, batch)
		pool = without(pool, batch)
	}
	return out, info, nil
}
