package batching

import "math/rand"

// Random fills B batches with orders drawn uniformly from the remaining pool.
// Each batch takes min(K, remaining) orders, so only the last batch can hold
// fewer than K and none is ever empty.
func (p *Planner) Random(rng *rand.Rand) Batching {
	pool := p.idx.Orders()
	out := make(Batching, 0, p.b)
	for i := 0; i < p.b && len(pool) > 0; i++ {
		size := min(p.k, len(pool))
		batch := make(Batch, 0, size)
		for len(batch) < size {
			j := rng.Intn(len(pool))
			batch = append(batch, pool[j])
			pool[j] = pool[len(pool)-1]
			pool = pool[:len(pool)-1]
		}
		out = append(out, batch)
	}
	return out
}
