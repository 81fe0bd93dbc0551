package lip

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSolution is returned when a solve ends without any feasible
	// assignment, e.g. because the time limit ran out first.
	ErrNoSolution = errors.New("lip: no solution found")
	// ErrInfeasible is returned when the model is proven to have no feasible
	// assignment.
	ErrInfeasible = errors.New("lip: model is infeasible")
	// ErrInvalidModel is returned for models a backend cannot represent.
	ErrInvalidModel = errors.New("lip: invalid model")
)

// Status describes the quality of a returned solution.
type Status int

const (
	// Optimal solutions are proven optimal.
	Optimal Status = iota + 1
	// Feasible solutions satisfy every constraint but optimality was not
	// proven before the solve stopped.
	Feasible
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Feasible:
		return "feasible"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Params bound a single solve.
type Params struct {
	// TimeLimit caps wall-clock solve time. Zero means no limit beyond the
	// context deadline.
	TimeLimit time.Duration
	// RelativeGap is the accepted relative optimality gap for backends that
	// support one. Zero asks for proven optimality.
	RelativeGap float64
}

// Solution is an assignment returned by a Solver.
type Solution struct {
	Status    Status
	Objective float64
	Runtime   time.Duration
	values    []float64
}

// NewSolution wraps an assignment indexed by variable.
func NewSolution(status Status, objective float64, runtime time.Duration, values []float64) *Solution {
	return &Solution{Status: status, Objective: objective, Runtime: runtime, values: values}
}

// Value returns the value assigned to v.
func (s *Solution) Value(v Var) float64 {
	if v.idx < 0 || v.idx >= len(s.values) {
		return 0
	}
	return s.values[v.idx]
}

// Solver solves linear integer programs. Implementations return a Solution
// with status Optimal or Feasible, or an error wrapping ErrNoSolution,
// ErrInfeasible or ErrInvalidModel.
type Solver interface {
	Solve(ctx context.Context, m *Model, p Params) (*Solution, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, m *Model, p Params) (*Solution, error)

// Solve calls f.
func (f SolverFunc) Solve(ctx context.Context, m *Model, p Params) (*Solution, error) {
	return f(ctx, m, p)
}
