package api

import (
	"net/http"
	"time"

	"pickbatch/internal/auth"
	"pickbatch/internal/model"
	"pickbatch/internal/store"
)

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		tenant, ok := tenantFor(p, req.TenantID)
		if !ok {
			writeProblem(w, http.StatusForbidden, "Forbidden", "cannot subscribe for another tenant", r.URL.Path)
			return
		}
		req.TenantID = tenant
		if err := validateSubscription(&req); err != nil {
			writeError(w, r, "Invalid subscription", err)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeError(w, r, "Create subscription failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		limit, err := queryInt(r, "limit", 100)
		if err != nil {
			writeError(w, r, "Invalid query", err)
			return
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), limit)
		if err != nil {
			writeError(w, r, "List subscriptions failed", err)
			return
		}
		for i := range items {
			items[i].Secret = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, r.PathValue("id")); err != nil {
		writeError(w, r, "Delete subscription failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, r, "Invalid query", err)
		return
	}
	q := r.URL.Query()
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, "List deliveries failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, r.PathValue("id")); err != nil {
		writeError(w, r, "Retry delivery failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// WebhookDLQHandler handles GET (list) and DELETE (purge) on
// /v1/admin/webhook-dlq
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		f, limit, err := dlqQuery(r)
		if err != nil {
			writeError(w, r, "Invalid query", err)
			return
		}
		items, next, err := s.Store.ListWebhookDLQ(r.Context(), p.Tenant, f, r.URL.Query().Get("cursor"), limit)
		if err != nil {
			writeError(w, r, "List DLQ failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	case http.MethodDelete:
		var req struct {
			IDs            []string `json:"ids"`
			OlderThanHours int      `json:"olderThanHours"`
		}
		if !s.decodeJSON(w, r, &req) {
			return
		}
		if len(req.IDs) == 0 && req.OlderThanHours <= 0 {
			writeProblem(w, http.StatusBadRequest, "Missing ids or olderThanHours", "", r.URL.Path)
			return
		}
		var older time.Time
		if req.OlderThanHours > 0 {
			older = time.Now().Add(-time.Duration(req.OlderThanHours) * time.Hour)
		}
		n, err := s.Store.DeleteWebhookDLQ(r.Context(), p.Tenant, req.IDs, older)
		if err != nil {
			writeError(w, r, "Delete DLQ failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// WebhookDLQRequeueHandler handles POST /v1/admin/webhook-dlq/{id}/requeue
func (s *Server) WebhookDLQRequeueHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	if err := s.Store.RequeueWebhookDLQ(r.Context(), p.Tenant, r.PathValue("id")); err != nil {
		writeError(w, r, "Requeue failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

func dlqQuery(r *http.Request) (store.DLQFilter, int, error) {
	q := r.URL.Query()
	f := store.DLQFilter{EventType: q.Get("eventType"), ErrorQuery: q.Get("errorQuery")}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		return f, 0, err
	}
	hours, err := queryInt(r, "olderThanHours", 0)
	if err != nil {
		return f, 0, err
	}
	if hours > 0 {
		f.OlderThan = time.Now().Add(-time.Duration(hours) * time.Hour)
	}
	if f.CodeMin, err = queryInt(r, "responseCodeMin", 0); err != nil {
		return f, 0, err
	}
	if f.CodeMax, err = queryInt(r, "responseCodeMax", 0); err != nil {
		return f, 0, err
	}
	return f, limit, nil
}
