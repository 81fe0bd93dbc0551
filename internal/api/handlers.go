package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/golang/glog"
	"github.com/google/uuid"

	"pickbatch/internal/auth"
	"pickbatch/internal/batching"
	"pickbatch/internal/integrations/picklist"
	"pickbatch/internal/metrics"
	"pickbatch/internal/model"
)

// OrdersHandler handles POST/GET /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p, ok := s.require(w, r, auth.RolePlanner)
		if !ok {
			return
		}
		var req model.OrderImportRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		tenant, ok := tenantFor(p, req.TenantID)
		if !ok {
			writeProblem(w, http.StatusForbidden, "Forbidden", "cannot import orders for another tenant", r.URL.Path)
			return
		}
		if err := validateOrderImport(&req); err != nil {
			writeError(w, r, "Invalid orders", err)
			return
		}
		s.importOrders(w, r, tenant, req.WaveID, req.Orders)
	case http.MethodGet:
		p, ok := s.require(w, r, auth.RoleViewer)
		if !ok {
			return
		}
		limit, err := queryInt(r, "limit", 100)
		if err != nil {
			writeError(w, r, "Invalid query", err)
			return
		}
		q := r.URL.Query()
		items, next, err := s.Store.ListOrders(r.Context(), p.Tenant, q.Get("waveId"), q.Get("cursor"), limit)
		if err != nil {
			writeError(w, r, "List orders failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// OrdersImportHandler handles POST /v1/orders/import with a tab-separated
// pick list body.
func (s *Server) OrdersImportHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RolePlanner)
	if !ok {
		return
	}
	waveID := r.URL.Query().Get("waveId")
	if waveID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing waveId", "", r.URL.Path)
		return
	}
	maxOrders, err := queryInt(r, "maxOrders", picklist.DefaultMaxOrders)
	if err != nil {
		writeError(w, r, "Invalid query", err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.Cfg.HTTP.MaxBodyBytes)
	orders, err := picklist.Parse(r.Body, maxOrders)
	if err != nil {
		writeError(w, r, "Invalid pick list", err)
		return
	}
	if len(orders) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid pick list", "no orders", r.URL.Path)
		return
	}
	s.importOrders(w, r, p.Tenant, waveID, orders)
}

func (s *Server) importOrders(w http.ResponseWriter, r *http.Request, tenant, waveID string, orders []batching.Order) {
	imp, created, skipped, err := s.Store.CreateOrders(r.Context(), tenant, waveID, orders)
	if err != nil {
		writeError(w, r, "Create orders failed", err)
		return
	}
	metrics.OrdersImported.WithLabelValues("created").Add(float64(created))
	metrics.OrdersImported.WithLabelValues("skipped").Add(float64(skipped))
	resp := model.OrderImportResponse{ImportID: imp, Created: created, Skipped: skipped}
	s.announce(r.Context(), tenant, "", model.EventOrdersImported, map[string]any{
		"importId": imp,
		"waveId":   waveID,
		"created":  created,
		"skipped":  skipped,
	})
	writeJSON(w, http.StatusAccepted, resp)
}

// CreatePlanHandler handles POST /v1/batch-plans
func (s *Server) CreatePlanHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RolePlanner)
	if !ok {
		return
	}
	var req model.PlanRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	tenant, ok := tenantFor(p, req.TenantID)
	if !ok {
		writeProblem(w, http.StatusForbidden, "Forbidden", "cannot plan for another tenant", r.URL.Path)
		return
	}
	if err := validatePlanRequest(&req); err != nil {
		writeError(w, r, "Invalid plan request", err)
		return
	}
	if !s.limits.allow(tenant) {
		metrics.RateLimited.Inc()
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "plan rate limit exceeded", r.URL.Path)
		return
	}
	ps, err := s.settings(r.Context(), tenant, req.Strategy, req.WarmStart, req.MaxBatchSize, req.TimeLimitMs, req.Seed)
	if err != nil {
		writeError(w, r, "Invalid plan request", err)
		return
	}
	id := "bp_" + uuid.NewString()
	if req.Async {
		s.running.Add(1)
		go func() {
			defer s.running.Done()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.planTimeout(ps))
			defer cancel()
			_, _ = s.runPlan(ctx, id, tenant, req.WaveID, ps)
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "running"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.planTimeout(ps))
	defer cancel()
	plan, err := s.runPlan(ctx, id, tenant, req.WaveID, ps)
	if err != nil {
		writeError(w, r, "Plan failed", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// planTimeout bounds one plan or compare call: the engine limit per model
// leaves room for the greedy-exact strategies, which solve one model per
// batch.
func (s *Server) planTimeout(ps planSettings) time.Duration {
	if ps.params.TimeLimit <= 0 {
		return 10 * time.Minute
	}
	return ps.params.TimeLimit*4 + 30*time.Second
}

// CompareHandler handles POST /v1/batch-plans/compare
func (s *Server) CompareHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RolePlanner)
	if !ok {
		return
	}
	var req model.CompareRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	tenant, ok := tenantFor(p, req.TenantID)
	if !ok {
		writeProblem(w, http.StatusForbidden, "Forbidden", "cannot compare for another tenant", r.URL.Path)
		return
	}
	if err := validateCompareRequest(&req); err != nil {
		writeError(w, r, "Invalid compare request", err)
		return
	}
	if !s.limits.allow(tenant) {
		metrics.RateLimited.Inc()
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "plan rate limit exceeded", r.URL.Path)
		return
	}
	ps, err := s.settings(r.Context(), tenant, "", req.WarmStart, req.MaxBatchSize, req.TimeLimitMs, req.Seed)
	if err != nil {
		writeError(w, r, "Invalid compare request", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.planTimeout(ps))
	defer cancel()
	resp, err := s.compare(ctx, tenant, req, ps)
	if err != nil {
		writeError(w, r, "Compare failed", err)
		return
	}
	log.V(1).Infof("compare %s/%s: best %s", tenant, req.WaveID, resp.Best)
	writeJSON(w, http.StatusOK, resp)
}

// PlansIndexHandler handles GET /v1/batch-plans
func (s *Server) PlansIndexHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, r, "Invalid query", err)
		return
	}
	q := r.URL.Query()
	items, next, err := s.Store.ListPlans(r.Context(), p.Tenant, q.Get("waveId"), q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, "List plans failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// PlanByIDHandler handles GET /v1/batch-plans/{id}
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	plan, err := s.Store.GetPlan(r.Context(), p.Tenant, r.PathValue("id"))
	if err != nil {
		writeError(w, r, "Plan not found", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// PlannerConfigHandler handles GET/PUT /v1/planner/config. GET returns the
// tenant overrides and the settings they resolve to.
func (s *Server) PlannerConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, ok := s.require(w, r, auth.RoleViewer)
		if !ok {
			return
		}
		cfg, err := s.Store.GetPlannerConfig(r.Context(), p.Tenant)
		if err != nil {
			writeError(w, r, "Load config failed", err)
			return
		}
		ps, err := s.settings(r.Context(), p.Tenant, "", "", 0, 0, nil)
		if err != nil {
			writeError(w, r, "Load config failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"config": cfg,
			"effective": model.PlannerConfig{
				MaxBatchSize:     ps.k,
				DefaultStrategy:  string(ps.strategy),
				WarmStart:        string(ps.warmStart),
				SymmetryBreaking: &ps.symmetry,
				TimeLimitMs:      int(ps.params.TimeLimit.Milliseconds()),
			},
			"backend": s.Cfg.Solver.Backend,
		})
	case http.MethodPut:
		p, ok := s.require(w, r, auth.RoleAdmin)
		if !ok {
			return
		}
		var body struct {
			Config *model.PlannerConfig `json:"config"`
		}
		if !s.decodeJSON(w, r, &body) {
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		if err := validatePlannerConfig(body.Config); err != nil {
			writeError(w, r, "Invalid config", err)
			return
		}
		if err := s.Store.SavePlannerConfig(r.Context(), p.Tenant, *body.Config); err != nil {
			writeError(w, r, "Save failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
