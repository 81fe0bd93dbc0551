// Package pbsolver solves linear integer programs with the gophersat
// pseudo-boolean engine.
//
// Integer variables are bit-expanded and every constraint becomes one or two
// weighted at-least constraints. The objective is handed to gophersat as a
// cost function and minimised incrementally: each model found tightens the
// bound for the next. The search runs in its own goroutine and reports every
// improvement, so a time limit or a cancelled context returns the best model
// so far. gophersat cannot be interrupted; an abandoned search keeps running
// in the background until it ends, with its remaining results discarded.
package pbsolver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/crillab/gophersat/solver"
	log "github.com/golang/glog"

	"pickbatch/internal/lip"
)

// Solver implements lip.Solver.
type Solver struct{}

// New returns a pseudo-boolean solver.
func New() *Solver { return &Solver{} }

var _ lip.Solver = (*Solver)(nil)

// Solve minimises m. A complete feasible hint seeds the incumbent.
func (s *Solver) Solve(ctx context.Context, m *lip.Model, p lip.Params) (*lip.Solution, error) {
	start := time.Now()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	enc, err := encode(m)
	if err != nil {
		return nil, err
	}
	if enc.infeasible != "" {
		return nil, fmt.Errorf("%w: constraint %s can never hold", lip.ErrInfeasible, enc.infeasible)
	}

	var timeout <-chan time.Time
	if p.TimeLimit > 0 {
		t := time.NewTimer(p.TimeLimit - time.Since(start))
		defer t.Stop()
		timeout = t.C
	}

	var best []float64
	bestCost := int64(0)
	var bound *solver.PBConstr
	if h := m.HintedValues(); h != nil {
		if err := m.Check(h); err == nil {
			best, bestCost = h, int64(math.Round(m.ObjectiveValue(h)))
			log.V(2).Infof("pbsolver %s: hint accepted with cost %d", m.Name(), bestCost)
			c, ok := enc.objectiveBelow(bestCost)
			if !ok {
				return finish(m, best, bestCost, start, lip.Optimal, nil)
			}
			bound = c
		} else {
			log.V(1).Infof("pbsolver %s: hint rejected: %v", m.Name(), err)
		}
	}
	if err := ctx.Err(); err != nil {
		return finish(m, best, bestCost, start, lip.Feasible, err)
	}
	if enc.nlits == 0 {
		values := enc.decode(nil)
		return finish(m, values, int64(math.Round(m.ObjectiveValue(values))), start, lip.Optimal, nil)
	}

	results := make(chan solver.Result)
	go solver.New(enc.problem(bound)).Optimal(results, nil)
	abandon := func() {
		go func() {
			for range results {
			}
		}()
	}
	for n := 0; ; n++ {
		select {
		case res, ok := <-results:
			if !ok {
				if best == nil {
					return nil, fmt.Errorf("%w: %s", lip.ErrInfeasible, m.Name())
				}
				return finish(m, best, bestCost, start, lip.Optimal, nil)
			}
			if res.Status != solver.Sat {
				continue
			}
			best = enc.decode(res.Model)
			bestCost = int64(math.Round(m.ObjectiveValue(best)))
			log.V(2).Infof("pbsolver %s: model %d has cost %d", m.Name(), n, bestCost)
		case <-ctx.Done():
			abandon()
			return finish(m, best, bestCost, start, lip.Feasible, ctx.Err())
		case <-timeout:
			abandon()
			return finish(m, best, bestCost, start, lip.Feasible, context.DeadlineExceeded)
		}
	}
}

// finish wraps the incumbent. Without one the stop reason becomes
// ErrNoSolution.
func finish(m *lip.Model, best []float64, cost int64, start time.Time, status lip.Status, reason error) (*lip.Solution, error) {
	runtime := time.Since(start)
	if best == nil {
		return nil, fmt.Errorf("%w: %s after %s: %v", lip.ErrNoSolution, m.Name(), runtime.Round(time.Millisecond), reason)
	}
	if reason != nil {
		log.V(1).Infof("pbsolver %s: stopped with cost %d: %v", m.Name(), cost, reason)
	}
	return lip.NewSolution(status, float64(cost), runtime, best), nil
}
