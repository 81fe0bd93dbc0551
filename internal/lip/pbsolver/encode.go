package pbsolver

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/crillab/gophersat/solver"

	"pickbatch/internal/lip"
)

// sum is an integer linear form over literals plus a constant. Literals are
// DIMACS style: variable ids start at 1 and negative ids are negations.
type sum struct {
	lits    []int
	weights []int64
	pos     map[int]int
	konst   int64
}

func newSum() *sum { return &sum{pos: map[int]int{}} }

func (s *sum) add(lit int, w int64) {
	if w == 0 {
		return
	}
	if i, ok := s.pos[lit]; ok {
		s.weights[i] += w
		return
	}
	s.pos[lit] = len(s.lits)
	s.lits = append(s.lits, lit)
	s.weights = append(s.weights, w)
}

// encoding maps a lip.Model onto pseudo-boolean constraints. Binary
// variables own one literal; an integer variable in [lo, hi] is
// lo + sum(2^j * bit_j) over bits.Len64(hi-lo) literals.
type encoding struct {
	model      *lip.Model
	nlits      int
	varLits    [][]int
	constrs    []solver.PBConstr
	obj        *sum
	infeasible string
}

func encode(m *lip.Model) (*encoding, error) {
	e := &encoding{model: m, varLits: make([][]int, m.NumVars())}
	for _, v := range m.Vars() {
		lo, hi := m.Bounds(v)
		width := 1
		if m.Kind(v) == lip.Integer {
			width = bits.Len64(uint64(hi - lo))
		}
		lits := make([]int, width)
		for j := range lits {
			e.nlits++
			lits[j] = e.nlits
		}
		e.varLits[v.Index()] = lits
		if m.Kind(v) == lip.Integer && width > 0 && uint64(hi-lo) != (uint64(1)<<width)-1 {
			bound := newSum()
			for j, l := range lits {
				bound.add(l, int64(1)<<j)
			}
			e.atMost(bound, hi-lo, m.VarName(v)+"_ub")
		}
	}

	for _, c := range m.Constraints() {
		s, err := e.linear(c.Expr)
		if err != nil {
			return nil, fmt.Errorf("constraint %s: %w", c.Name, err)
		}
		rhs := c.RHS - float64(s.konst)
		switch c.Sense {
		case lip.LessEqual:
			e.atMost(s, int64(math.Floor(rhs+1e-9)), c.Name)
		case lip.GreaterEqual:
			e.atLeast(s, int64(math.Ceil(rhs-1e-9)), c.Name)
		case lip.Equal:
			if math.Abs(rhs-math.Round(rhs)) > 1e-9 {
				e.infeasible = c.Name
				continue
			}
			e.atMost(s, int64(math.Round(rhs)), c.Name)
			e.atLeast(s, int64(math.Round(rhs)), c.Name)
		}
	}

	obj, err := e.linear(m.Objective())
	if err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}
	e.obj = positive(obj)
	return e, nil
}

// linear expands expr over literals. Coefficients must be integral.
func (e *encoding) linear(expr lip.Expr) (*sum, error) {
	s := newSum()
	for _, t := range expr {
		c := math.Round(t.Coef)
		if math.Abs(c-t.Coef) > 1e-9 {
			return nil, fmt.Errorf("%w: coefficient %v on %s is not integral", lip.ErrInvalidModel, t.Coef, e.model.VarName(t.Var))
		}
		coef := int64(c)
		lits := e.varLits[t.Var.Index()]
		if e.model.Kind(t.Var) == lip.Binary {
			s.add(lits[0], coef)
			continue
		}
		lo, _ := e.model.Bounds(t.Var)
		s.konst += coef * lo
		for j, l := range lits {
			s.add(l, coef<<j)
		}
	}
	return s, nil
}

// positive rewrites negative weights through w*x = w + |w|*not(x), so that
// every weight is positive and the constant absorbs the difference.
func positive(s *sum) *sum {
	out := newSum()
	out.konst = s.konst
	for i, l := range s.lits {
		w := s.weights[i]
		switch {
		case w > 0:
			out.add(l, w)
		case w < 0:
			out.add(-l, -w)
			out.konst += w
		}
	}
	return out
}

// atLeast adds sum(s without constant) >= n.
func (e *encoding) atLeast(s *sum, n int64, name string) {
	c, feasible := atLeastConstr(s, n)
	switch {
	case !feasible:
		e.infeasible = name
	case c != nil:
		e.constrs = append(e.constrs, *c)
	}
}

// atMost adds sum(s without constant) <= n.
func (e *encoding) atMost(s *sum, n int64, name string) {
	e.atLeast(negate(s), -n, name)
}

func negate(s *sum) *sum {
	neg := newSum()
	for i, l := range s.lits {
		neg.add(l, -s.weights[i])
	}
	return neg
}

// atLeastConstr builds sum(s without constant) >= n. It returns a nil
// constraint when the relation always holds and feasible=false when it
// never can.
func atLeastConstr(s *sum, n int64) (c *solver.PBConstr, feasible bool) {
	p := positive(s)
	n -= p.konst - s.konst
	if n <= 0 {
		return nil, true
	}
	total := int64(0)
	lits := make([]int, len(p.lits))
	weights := make([]int, len(p.lits))
	for i, l := range p.lits {
		lits[i] = l
		weights[i] = int(p.weights[i])
		total += p.weights[i]
	}
	if n > total {
		return nil, false
	}
	constr := solver.GtEq(lits, weights, int(n))
	return &constr, true
}

// objectiveBelow returns the constraint forcing the objective strictly
// below cost. ok is false when no assignment can do better.
func (e *encoding) objectiveBelow(cost int64) (c *solver.PBConstr, ok bool) {
	bound := cost - 1 - e.obj.konst
	if bound < 0 {
		return nil, false
	}
	return atLeastConstr(negate(e.obj), -bound)
}

// decode turns a gophersat model into values indexed by lip variable.
// Literals beyond the model's length appear in no constraint and read as
// false.
func (e *encoding) decode(model []bool) []float64 {
	values := make([]float64, len(e.varLits))
	for _, v := range e.model.Vars() {
		lo, _ := e.model.Bounds(v)
		val := lo
		for j, l := range e.varLits[v.Index()] {
			if l-1 < len(model) && model[l-1] {
				val += int64(1) << j
			}
		}
		values[v.Index()] = float64(val)
	}
	return values
}

// problem builds the gophersat problem: the base constraints, extra when
// set, and the objective as cost function. Every literal is declared so that
// ones appearing only in the objective get a slot in the solver's model.
func (e *encoding) problem(extra *solver.PBConstr) *solver.Problem {
	constrs := make([]solver.PBConstr, 0, len(e.constrs)+2)
	constrs = append(constrs, e.constrs...)
	if extra != nil {
		constrs = append(constrs, *extra)
	}
	if e.nlits > 0 {
		constrs = append(constrs, solver.PBConstr{Lits: []int{e.nlits}, AtLeast: 0})
	}
	pb := solver.ParsePBConstrs(constrs)
	if len(e.obj.lits) > 0 {
		lits := make([]solver.Lit, len(e.obj.lits))
		weights := make([]int, len(e.obj.lits))
		for i, l := range e.obj.lits {
			lits[i] = solver.IntToLit(int32(l))
			weights[i] = int(e.obj.weights[i])
		}
		pb.SetCostFunc(lits, weights)
	}
	return pb
}
