package api

import (
	"net/http"
	"time"

	"pickbatch/internal/auth"
	"pickbatch/internal/buildinfo"
	"pickbatch/internal/lip/backends"
)

// DebugJSON handles GET /debug/config. Secrets and URLs are reduced to
// whether they are set.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.require(w, r, auth.RoleAdmin); !ok {
		return
	}
	c := s.Cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":             c.HTTP.Port,
			"authMode":         c.Auth.Mode,
			"hasDatabaseUrl":   c.Store.DatabaseURL != "",
			"hasRedisUrl":      c.Redis.URL != "",
			"maxBatchSize":     c.Planner.MaxBatchSize,
			"defaultStrategy":  c.Planner.DefaultStrategy,
			"warmStart":        c.Planner.WarmStart,
			"symmetryBreaking": c.Planner.SymmetryBreaking,
			"maxExactOrders":   c.Planner.MaxExactOrders,
			"solverBackend":    c.Solver.Backend,
			"solverBackends":   backends.Names(),
			"solverTimeLimit":  c.Solver.TimeLimit.String(),
			"rateRps":          c.RateLimit.RPS,
			"rateBurst":        c.RateLimit.Burst,
			"webhookAttempts":  c.Webhooks.MaxAttempts,
		},
	})
}
