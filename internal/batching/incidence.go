// Package batching partitions warehouse orders into pick batches of bounded
// size, minimising the total number of (batch, aisle) visits.
//
// The incidence index between orders and aisles is built once and shared
// read-only by every strategy. Strategies that need an exact optimiser take
// it as a lip.Solver.
package batching

import (
	"fmt"
	"sort"
)

// Item is one pick record. Only Aisle is used for batching.
type Item struct {
	Aisle   string            `json:"aisle"`
	Section int               `json:"section,omitempty"`
	Shelf   string            `json:"shelf,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Order is a customer order and the items it requires.
type Order struct {
	ID    string `json:"id"`
	Items []Item `json:"items"`
}

// Validate checks that o has an id and every item names an aisle.
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: empty order id", ErrInvalidOrder)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: order %s has no items", ErrInvalidOrder, o.ID)
	}
	for i, it := range o.Items {
		if it.Aisle == "" {
			return fmt.Errorf("%w: order %s item %d has no aisle", ErrInvalidOrder, o.ID, i)
		}
	}
	return nil
}

// Aisles returns the distinct aisles o visits.
func (o Order) Aisles() AisleSet {
	s := make(AisleSet, len(o.Items))
	for _, it := range o.Items {
		s[it.Aisle] = struct{}{}
	}
	return s
}

// AisleSet is a set of aisle identifiers.
type AisleSet map[string]struct{}

// NewAisleSet returns the set holding aisles.
func NewAisleSet(aisles ...string) AisleSet {
	s := make(AisleSet, len(aisles))
	for _, a := range aisles {
		s[a] = struct{}{}
	}
	return s
}

func (s AisleSet) Has(a string) bool {
	_, ok := s[a]
	return ok
}

func (s AisleSet) Len() int { return len(s) }

// CountNew returns how many aisles of s are missing from visited.
func (s AisleSet) CountNew(visited AisleSet) int {
	n := 0
	for a := range s {
		if !visited.Has(a) {
			n++
		}
	}
	return n
}

// AddAll adds every aisle of o to s.
func (s AisleSet) AddAll(o AisleSet) {
	for a := range o {
		s[a] = struct{}{}
	}
}

// Sorted returns the aisles in lexical order.
func (s AisleSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Incidence is the bipartite relation between orders and aisles. It is never
// modified after NewIncidence returns and is safe for concurrent use.
type Incidence struct {
	orders      []string
	pos         map[string]int
	orderAisles map[string]AisleSet
	aisleOrders map[string][]string
	aisles      []string
}

// NewIncidence indexes orders. The slice order is kept as the stable
// iteration order every strategy breaks ties by.
func NewIncidence(orders []Order) (*Incidence, error) {
	if len(orders) == 0 {
		return nil, ErrNoOrders
	}
	ix := &Incidence{
		orders:      make([]string, 0, len(orders)),
		pos:         make(map[string]int, len(orders)),
		orderAisles: make(map[string]AisleSet, len(orders)),
		aisleOrders: map[string][]string{},
	}
	for _, o := range orders {
		if err := o.Validate(); err != nil {
			return nil, err
		}
		if _, dup := ix.pos[o.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate order %s", ErrInvalidOrder, o.ID)
		}
		ix.pos[o.ID] = len(ix.orders)
		ix.orders = append(ix.orders, o.ID)
		ix.orderAisles[o.ID] = o.Aisles()
	}
	for _, id := range ix.orders {
		for _, a := range ix.orderAisles[id].Sorted() {
			ix.aisleOrders[a] = append(ix.aisleOrders[a], id)
		}
	}
	ix.aisles = make([]string, 0, len(ix.aisleOrders))
	for a := range ix.aisleOrders {
		ix.aisles = append(ix.aisles, a)
	}
	sort.Strings(ix.aisles)
	return ix, nil
}

// Len returns the number of orders.
func (ix *Incidence) Len() int { return len(ix.orders) }

// Orders returns the order ids in input order.
func (ix *Incidence) Orders() []string { return append([]string(nil), ix.orders...) }

// Aisles returns every aisle touched by some order, sorted.
func (ix *Incidence) Aisles() []string { return append([]string(nil), ix.aisles...) }

// Has reports whether id is an indexed order.
func (ix *Incidence) Has(id string) bool {
	_, ok := ix.pos[id]
	return ok
}

// Position returns the input position of order id, or -1.
func (ix *Incidence) Position(id string) int {
	if p, ok := ix.pos[id]; ok {
		return p
	}
	return -1
}

// OrderAisles returns the aisles of order id. The set is shared and must not
// be modified.
func (ix *Incidence) OrderAisles(id string) AisleSet { return ix.orderAisles[id] }

// NumAisles returns the number of distinct aisles order id touches.
func (ix *Incidence) NumAisles(id string) int { return len(ix.orderAisles[id]) }

// AisleOrders returns the orders touching aisle a, in input order.
func (ix *Incidence) AisleOrders(a string) []string {
	return append([]string(nil), ix.aisleOrders[a]...)
}

// OrderAislesMap returns a copy of the order→aisles mapping.
func (ix *Incidence) OrderAislesMap() map[string][]string {
	out := make(map[string][]string, len(ix.orderAisles))
	for id, s := range ix.orderAisles {
		out[id] = s.Sorted()
	}
	return out
}

// AisleOrdersMap returns a copy of the aisle→orders mapping.
func (ix *Incidence) AisleOrdersMap() map[string][]string {
	out := make(map[string][]string, len(ix.aisleOrders))
	for a, ids := range ix.aisleOrders {
		out[a] = append([]string(nil), ids...)
	}
	return out
}
