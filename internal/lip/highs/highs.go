// Package highs solves linear integer programs with the HiGHS provider of the
// nextmv mip SDK. The provider plugin must be installed where the SDK looks
// for it; hints are not forwarded.
package highs

import (
	"context"
	"fmt"
	"time"

	log "github.com/golang/glog"
	"github.com/nextmv-io/sdk/mip"

	"pickbatch/internal/lip"
)

// Provider is the nextmv solver provider name.
const Provider = "highs"

// Solver implements lip.Solver.
type Solver struct{}

// New returns a HiGHS-backed solver.
func New() *Solver { return &Solver{} }

var _ lip.Solver = (*Solver)(nil)

// Solve translates m into a nextmv model and solves it.
func (s *Solver) Solve(ctx context.Context, m *lip.Model, p lip.Params) (*lip.Solution, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", lip.ErrNoSolution, err)
	}

	nm := mip.NewModel()
	vars := make([]mip.Var, m.NumVars())
	for _, v := range m.Vars() {
		switch m.Kind(v) {
		case lip.Binary:
			vars[v.Index()] = nm.NewBool()
		default:
			lo, hi := m.Bounds(v)
			vars[v.Index()] = nm.NewInt(lo, hi)
		}
	}
	for _, c := range m.Constraints() {
		nc := nm.NewConstraint(sense(c.Sense), c.RHS)
		for _, t := range c.Expr {
			nc.NewTerm(t.Coef, vars[t.Var.Index()])
		}
	}
	nm.Objective().SetMinimize()
	for _, t := range m.Objective() {
		nm.Objective().NewTerm(t.Coef, vars[t.Var.Index()])
	}

	solver, err := mip.NewSolver(Provider, nm)
	if err != nil {
		return nil, fmt.Errorf("highs: %w", err)
	}
	opts := mip.NewSolveOptions()
	limit := p.TimeLimit
	if d, ok := ctx.Deadline(); ok {
		if left := time.Until(d); limit == 0 || left < limit {
			limit = left
		}
	}
	if limit > 0 {
		if err := opts.SetMaximumDuration(limit); err != nil {
			return nil, fmt.Errorf("highs: %w", err)
		}
	}
	if err := opts.SetMIPGapRelative(p.RelativeGap); err != nil {
		return nil, fmt.Errorf("highs: %w", err)
	}
	opts.SetVerbosity(mip.Off)

	sol, err := solver.Solve(opts)
	if err != nil {
		return nil, fmt.Errorf("highs: %w", err)
	}
	if sol == nil || !sol.HasValues() {
		if sol != nil && sol.IsInfeasible() {
			return nil, fmt.Errorf("%w: %s", lip.ErrInfeasible, m.Name())
		}
		return nil, fmt.Errorf("%w: %s", lip.ErrNoSolution, m.Name())
	}

	values := make([]float64, m.NumVars())
	for i, v := range vars {
		values[i] = sol.Value(v)
	}
	status := lip.Feasible
	if sol.IsOptimal() {
		status = lip.Optimal
	}
	log.V(1).Infof("highs %s: %s objective %v in %s", m.Name(), status, sol.ObjectiveValue(), sol.RunTime())
	return lip.NewSolution(status, sol.ObjectiveValue(), sol.RunTime(), values), nil
}

func sense(s lip.Sense) mip.Sense {
	switch s {
	case lip.GreaterEqual:
		return mip.GreaterThanOrEqual
	case lip.Equal:
		return mip.Equal
	}
	return mip.LessThanOrEqual
}
