// Package lip declares linear integer programs and the Solver interface that
// optimisation backends implement.
//
// A Model is built once per optimisation call: declare variables, add named
// linear constraints, set a minimisation objective and optionally hint
// starting values. Backends read the model through its accessors and never
// modify it.
package lip

import (
	"fmt"
	"math"
)

// VarKind is the domain of a decision variable.
type VarKind int

const (
	// Binary variables take values in {0, 1}.
	Binary VarKind = iota
	// Integer variables take integral values within their bounds.
	Integer
)

func (k VarKind) String() string {
	switch k {
	case Binary:
		return "binary"
	case Integer:
		return "integer"
	}
	return fmt.Sprintf("VarKind(%d)", int(k))
}

// Var is a handle to a variable of the Model that created it.
type Var struct{ idx int }

// Index returns the position of v in its model, starting at 0.
func (v Var) Index() int { return v.idx }

// Term is a coefficient applied to a variable.
type Term struct {
	Coef float64
	Var  Var
}

// Expr is a linear expression: the sum of its terms.
type Expr []Term

// Sum returns the expression adding every variable with coefficient 1.
func Sum(vars ...Var) Expr {
	e := make(Expr, 0, len(vars))
	for _, v := range vars {
		e = append(e, Term{Coef: 1, Var: v})
	}
	return e
}

// Add appends coef*v to e.
func (e Expr) Add(coef float64, v Var) Expr {
	return append(e, Term{Coef: coef, Var: v})
}

// Plus appends every term of o to e.
func (e Expr) Plus(o Expr) Expr {
	return append(e, o...)
}

// Eval returns the value of e under values, indexed by variable.
func (e Expr) Eval(values []float64) float64 {
	total := 0.0
	for _, t := range e {
		total += t.Coef * values[t.Var.idx]
	}
	return total
}

// Sense is the relation of a constraint's expression to its right-hand side.
type Sense int

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "="
	}
	return fmt.Sprintf("Sense(%d)", int(s))
}

// Constraint is a named linear constraint Expr Sense RHS.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

type varDef struct {
	name   string
	kind   VarKind
	lo, hi int64
}

// Model is a linear integer program with a minimisation objective.
type Model struct {
	name  string
	vars  []varDef
	cons  []Constraint
	obj   Expr
	hints map[int]float64
}

// NewModel returns an empty model.
func NewModel(name string) *Model {
	return &Model{name: name, hints: map[int]float64{}}
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// NewBinary declares a 0/1 variable.
func (m *Model) NewBinary(name string) Var {
	return m.newVar(varDef{name: name, kind: Binary, lo: 0, hi: 1})
}

// NewInteger declares an integer variable bounded by [lo, hi].
func (m *Model) NewInteger(name string, lo, hi int64) Var {
	return m.newVar(varDef{name: name, kind: Integer, lo: lo, hi: hi})
}

func (m *Model) newVar(d varDef) Var {
	m.vars = append(m.vars, d)
	return Var{idx: len(m.vars) - 1}
}

// AddConstraint adds expr sense rhs under the given name.
func (m *Model) AddConstraint(name string, expr Expr, sense Sense, rhs float64) {
	m.cons = append(m.cons, Constraint{Name: name, Expr: expr, Sense: sense, RHS: rhs})
}

// Minimize sets the objective, replacing any previous one.
func (m *Model) Minimize(expr Expr) { m.obj = expr }

// SetHint records a starting value for v.
func (m *Model) SetHint(v Var, value float64) { m.hints[v.idx] = value }

// NumVars returns the number of declared variables.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstraints returns the number of constraints.
func (m *Model) NumConstraints() int { return len(m.cons) }

// Vars returns handles for every variable in declaration order.
func (m *Model) Vars() []Var {
	out := make([]Var, len(m.vars))
	for i := range out {
		out[i] = Var{idx: i}
	}
	return out
}

// VarName returns the declared name of v, or v<index> when it was declared
// without one.
func (m *Model) VarName(v Var) string {
	if n := m.vars[v.idx].name; n != "" {
		return n
	}
	return fmt.Sprintf("v%d", v.idx)
}

// Kind returns the domain of v.
func (m *Model) Kind(v Var) VarKind { return m.vars[v.idx].kind }

// Bounds returns the inclusive bounds of v.
func (m *Model) Bounds(v Var) (lo, hi int64) {
	d := m.vars[v.idx]
	return d.lo, d.hi
}

// Constraints returns the constraints in insertion order. The slice is shared
// with the model and must not be modified.
func (m *Model) Constraints() []Constraint { return m.cons }

// Objective returns the minimisation objective.
func (m *Model) Objective() Expr { return m.obj }

// Hint returns the starting value recorded for v.
func (m *Model) Hint(v Var) (float64, bool) {
	h, ok := m.hints[v.idx]
	return h, ok
}

// HintedValues returns a full assignment built from the hints, or nil when
// some variable has no hint.
func (m *Model) HintedValues() []float64 {
	if len(m.hints) < len(m.vars) {
		return nil
	}
	values := make([]float64, len(m.vars))
	for i := range m.vars {
		h, ok := m.hints[i]
		if !ok {
			return nil
		}
		values[i] = h
	}
	return values
}

// Validate checks that every expression refers to variables of m, that bounds
// are ordered and that hints lie within bounds.
func (m *Model) Validate() error {
	for i, d := range m.vars {
		if d.lo > d.hi {
			return fmt.Errorf("%w: variable %s has bounds [%d, %d]", ErrInvalidModel, m.VarName(Var{i}), d.lo, d.hi)
		}
	}
	check := func(where string, e Expr) error {
		for _, t := range e {
			if t.Var.idx < 0 || t.Var.idx >= len(m.vars) {
				return fmt.Errorf("%w: %s refers to unknown variable %d", ErrInvalidModel, where, t.Var.idx)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("%w: %s has coefficient %v", ErrInvalidModel, where, t.Coef)
			}
		}
		return nil
	}
	for _, c := range m.cons {
		if err := check("constraint "+c.Name, c.Expr); err != nil {
			return err
		}
	}
	if err := check("objective", m.obj); err != nil {
		return err
	}
	for i, h := range m.hints {
		if i < 0 || i >= len(m.vars) {
			return fmt.Errorf("%w: hint for unknown variable %d", ErrInvalidModel, i)
		}
		d := m.vars[i]
		if h < float64(d.lo) || h > float64(d.hi) {
			return fmt.Errorf("%w: hint %v for %s outside [%d, %d]", ErrInvalidModel, h, m.VarName(Var{i}), d.lo, d.hi)
		}
	}
	return nil
}

// feasTol is the absolute tolerance used when checking assignments.
const feasTol = 1e-6

// Check reports whether values is an integral assignment within bounds that
// satisfies every constraint. The returned error names the first violation.
func (m *Model) Check(values []float64) error {
	if len(values) != len(m.vars) {
		return fmt.Errorf("assignment has %d values for %d variables", len(values), len(m.vars))
	}
	for i, d := range m.vars {
		v := values[i]
		if math.Abs(v-math.Round(v)) > feasTol {
			return fmt.Errorf("%s = %v is not integral", m.VarName(Var{i}), v)
		}
		if v < float64(d.lo)-feasTol || v > float64(d.hi)+feasTol {
			return fmt.Errorf("%s = %v outside [%d, %d]", m.VarName(Var{i}), v, d.lo, d.hi)
		}
	}
	for _, c := range m.cons {
		lhs := c.Expr.Eval(values)
		ok := true
		switch c.Sense {
		case LessEqual:
			ok = lhs <= c.RHS+feasTol
		case GreaterEqual:
			ok = lhs >= c.RHS-feasTol
		case Equal:
			ok = math.Abs(lhs-c.RHS) <= feasTol
		}
		if !ok {
			return fmt.Errorf("constraint %s violated: %v %s %v", c.Name, lhs, c.Sense, c.RHS)
		}
	}
	return nil
}

// ObjectiveValue evaluates the objective under values.
func (m *Model) ObjectiveValue(values []float64) float64 {
	return m.obj.Eval(values)
}
