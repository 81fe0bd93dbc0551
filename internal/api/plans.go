package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/golang/glog"

	"pickbatch/internal/batching"
	"pickbatch/internal/lip"
	"pickbatch/internal/metrics"
	"pickbatch/internal/model"
)

// planSettings is the service config overlaid with the tenant's planner
// config and then the request.
type planSettings struct {
	strategy  batching.Strategy
	warmStart batching.Strategy
	k         int
	symmetry  bool
	params    lip.Params
	seed      *int64
}

// settings resolves the effective planner settings for one request. Empty
// request fields fall back to the tenant config, then the service config.
func (s *Server) settings(ctx context.Context, tenantID, strategy, warmStart string, k, timeLimitMs int, seed *int64) (planSettings, error) {
	tc, err := s.Store.GetPlannerConfig(ctx, tenantID)
	if err != nil {
		return planSettings{}, err
	}
	base := s.Cfg.Planner
	out := planSettings{
		k:        firstPositive(k, tc.MaxBatchSize, base.MaxBatchSize),
		symmetry: base.SymmetryBreaking,
		params: lip.Params{
			TimeLimit:   s.Cfg.Solver.TimeLimit,
			RelativeGap: s.Cfg.Solver.RelativeGap,
		},
		seed: seed,
	}
	if tc.SymmetryBreaking != nil {
		out.symmetry = *tc.SymmetryBreaking
	}
	if ms := firstPositive(timeLimitMs, tc.TimeLimitMs); ms > 0 {
		out.params.TimeLimit = time.Duration(ms) * time.Millisecond
	}
	if out.strategy, err = batching.ParseStrategy(firstNonEmpty(strategy, tc.DefaultStrategy, base.DefaultStrategy)); err != nil {
		return planSettings{}, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	if ws := firstNonEmpty(warmStart, tc.WarmStart, base.WarmStart); ws != "" {
		if out.warmStart, err = batching.ParseStrategy(ws); err != nil {
			return planSettings{}, fmt.Errorf("%w: %v", errInvalidRequest, err)
		}
	}
	return out, nil
}

func firstPositive(vs ...int) int {
	for _, v := range vs {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

// planner loads a wave and builds a planner over it. exact reports whether
// any requested strategy runs the full exact model, which is refused for
// waves above the configured cap.
func (s *Server) planner(ctx context.Context, tenantID, waveID string, ps planSettings, exact bool) (*batching.Planner, error) {
	orders, err := s.Store.WaveOrders(ctx, tenantID, waveID)
	if err != nil {
		return nil, fmt.Errorf("wave %s: %w", waveID, err)
	}
	if max := s.Cfg.Planner.MaxExactOrders; exact && max > 0 && len(orders) > max {
		return nil, fmt.Errorf("%w: %d orders, limit %d", errWaveTooLarge, len(orders), max)
	}
	idx, err := batching.NewIncidence(orders)
	if err != nil {
		return nil, err
	}
	opts := []batching.Option{
		batching.WithSolver(s.Solver),
		batching.WithParams(ps.params),
		batching.WithSymmetryBreaking(ps.symmetry),
	}
	if ps.seed != nil {
		opts = append(opts, batching.WithSeed(*ps.seed))
	}
	return batching.NewPlanner(idx, ps.k, opts...)
}

// runPlan builds, records and announces one plan. The outcome is stored
// and published as plan.completed or plan.failed.
func (s *Server) runPlan(ctx context.Context, id, tenantID, waveID string, ps planSettings) (model.BatchPlan, error) {
	start := time.Now()
	out, err := s.buildPlan(ctx, id, tenantID, waveID, ps)
	metrics.PlanDuration.WithLabelValues(string(ps.strategy)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Plans.WithLabelValues(string(ps.strategy), "error").Inc()
		log.Warningf("plan %s for %s/%s (%s): %v", id, tenantID, waveID, ps.strategy, err)
		s.announce(context.WithoutCancel(ctx), tenantID, id, model.EventPlanFailed, map[string]any{
			"planId":   id,
			"waveId":   waveID,
			"strategy": ps.strategy,
			"error":    err.Error(),
		})
		return model.BatchPlan{}, err
	}
	metrics.Plans.WithLabelValues(string(ps.strategy), "ok").Inc()
	metrics.PlanAisles.WithLabelValues(string(ps.strategy)).Observe(float64(out.TotalAisles))
	s.announce(ctx, tenantID, id, model.EventPlanCompleted, out)
	return out, nil
}

func (s *Server) buildPlan(ctx context.Context, id, tenantID, waveID string, ps planSettings) (model.BatchPlan, error) {
	p, err := s.planner(ctx, tenantID, waveID, ps, ps.strategy == batching.StrategyExact)
	if err != nil {
		return model.BatchPlan{}, err
	}
	opts := batching.PlanOptions{}
	if ps.strategy == batching.StrategyExact {
		opts.WarmStart = ps.warmStart
	}
	plan, err := p.Plan(ctx, ps.strategy, opts)
	s.recordSolve(plan, err, ps.strategy)
	if err != nil {
		return model.BatchPlan{}, err
	}
	out := s.toBatchPlan(p, plan)
	out.ID, out.TenantID, out.WaveID = id, tenantID, waveID
	out.CreatedAt = time.Now().UTC()
	if err := s.Store.SavePlan(ctx, out); err != nil {
		return model.BatchPlan{}, fmt.Errorf("save plan: %w", err)
	}
	return out, nil
}

// recordSolve counts engine outcomes of the strategies that use it.
func (s *Server) recordSolve(plan *batching.Plan, err error, st batching.Strategy) {
	if !st.NeedsSolver() {
		return
	}
	status := "error"
	switch {
	case err == nil && plan.Solve != nil:
		status = plan.Solve.Status.String()
	case errors.Is(err, lip.ErrNoSolution):
		status = "no_solution"
	case errors.Is(err, lip.ErrInfeasible):
		status = "infeasible"
	}
	metrics.SolverRuns.WithLabelValues(s.Cfg.Solver.Backend, status).Inc()
}

func (s *Server) toBatchPlan(p *batching.Planner, plan *batching.Plan) model.BatchPlan {
	idx := p.Incidence()
	out := model.BatchPlan{
		Strategy:     string(plan.Strategy),
		WarmStart:    string(plan.WarmStart),
		MaxBatchSize: p.BatchSize(),
		NumOrders:    idx.Len(),
		Batches:      make([]model.PlanBatch, 0, len(plan.Batches)),
		TotalAisles:  plan.Score.Total,
		PerBatch:     plan.Score.PerBatch,
		Solver:       s.solverSummary(plan.Solve),
		ElapsedMs:    plan.Elapsed.Milliseconds(),
	}
	for i, b := range plan.Batches {
		out.Batches = append(out.Batches, model.PlanBatch{
			Index:  i,
			Orders: append([]string{}, b...),
			Aisles: idx.BatchAisles(b).Sorted(),
		})
	}
	return out
}

func (s *Server) solverSummary(si *batching.SolveInfo) *model.SolverSummary {
	if si == nil {
		return nil
	}
	return &model.SolverSummary{
		Backend:   s.Cfg.Solver.Backend,
		Status:    si.Status.String(),
		Objective: si.Objective,
		RuntimeMs: si.Runtime.Milliseconds(),
		Models:    si.Models,
	}
}

// compare runs every strategy over one wave and names the one with the
// fewest aisle visits, earliest listed on ties.
func (s *Server) compare(ctx context.Context, tenantID string, req model.CompareRequest, ps planSettings) (model.CompareResponse, error) {
	strategies := batching.Strategies()
	if len(req.Strategies) > 0 {
		strategies = make([]batching.Strategy, 0, len(req.Strategies))
		for _, name := range req.Strategies {
			st, err := batching.ParseStrategy(name)
			if err != nil {
				return model.CompareResponse{}, fmt.Errorf("%w: %v", errInvalidRequest, err)
			}
			strategies = append(strategies, st)
		}
	}
	exact := false
	for _, st := range strategies {
		exact = exact || st == batching.StrategyExact
	}
	p, err := s.planner(ctx, tenantID, req.WaveID, ps, exact)
	if err != nil {
		return model.CompareResponse{}, err
	}
	plans, err := p.Compare(ctx, strategies, batching.PlanOptions{WarmStart: ps.warmStart})
	if err != nil {
		return model.CompareResponse{}, err
	}
	out := model.CompareResponse{
		WaveID:       req.WaveID,
		NumOrders:    p.Incidence().Len(),
		MaxBatchSize: p.BatchSize(),
		NumBatches:   p.NumBatches(),
		Results:      make([]model.CompareResult, 0, len(plans)),
	}
	best := -1
	for i, plan := range plans {
		s.recordSolve(plan, nil, plan.Strategy)
		out.Results = append(out.Results, model.CompareResult{
			Strategy:    string(plan.Strategy),
			WarmStart:   string(plan.WarmStart),
			TotalAisles: plan.Score.Total,
			PerBatch:    plan.Score.PerBatch,
			Solver:      s.solverSummary(plan.Solve),
			ElapsedMs:   plan.Elapsed.Milliseconds(),
		})
		if best < 0 || plan.Score.Total < plans[best].Score.Total {
			best = i
		}
	}
	if best >= 0 {
		out.Best = string(plans[best].Strategy)
	}
	return out, nil
}

// announce queues webhooks for evt and hands it to live stream clients of
// the tenant and, when planID is set, of the plan.
func (s *Server) announce(ctx context.Context, tenantID, planID, eventType string, data any) {
	evt, err := s.Pub.Emit(ctx, tenantID, eventType, data)
	if err != nil {
		log.Warningf("emit %s for %s: %v", eventType, tenantID, err)
	}
	s.Broker.Publish(tenantTopic(tenantID), evt)
	if planID != "" {
		s.Broker.Publish(planTopic(tenantID, planID), evt)
	}
}
