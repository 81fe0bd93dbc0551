package batching

// Batch is the ordered member list of one picker trip.
type Batch []string

// Batching is a partition of orders into batches.
type Batching []Batch

// Clone returns a deep copy of b.
func (b Batching) Clone() Batching {
	out := make(Batching, len(b))
	for i, batch := range b {
		out[i] = append(Batch(nil), batch...)
	}
	return out
}

// Score is the aisle-visit count of a batching.
type Score struct {
	Total    int   `json:"total"`
	PerBatch []int `json:"perBatch"`
}

// Evaluate counts, per batch, the distinct aisles its orders touch, and sums
// them. Unknown order ids contribute no aisles.
func (ix *Incidence) Evaluate(b Batching) Score {
	s := Score{PerBatch: make([]int, len(b))}
	for i, batch := range b {
		s.PerBatch[i] = ix.BatchAisles(batch).Len()
		s.Total += s.PerBatch[i]
	}
	return s
}

// BatchAisles returns the union of the aisles of batch members.
func (ix *Incidence) BatchAisles(batch Batch) AisleSet {
	visited := AisleSet{}
	for _, id := range batch {
		visited.AddAll(ix.orderAisles[id])
	}
	return visited
}
