// Package api implements the HTTP surface of the batching service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/golang/glog"
	"golang.org/x/time/rate"

	"pickbatch/internal/auth"
	"pickbatch/internal/config"
	"pickbatch/internal/lip"
	"pickbatch/internal/lip/backends"
	"pickbatch/internal/store"
	"pickbatch/internal/webhooks"
)

type Server struct {
	Cfg    config.Config
	Store  store.Store
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Solver lip.Solver

	limits *limiters
	// running tracks async plans so tests and shutdown can wait for them.
	running sync.WaitGroup
}

// NewServer wires the store, broker, solver and verifier named by cfg. An
// empty database URL keeps everything in memory; an empty Redis URL keeps
// live events in process.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if cfg.Store.DatabaseURL == "" {
		s = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			err := pg.Migrate(ctx)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		s = pg
	}
	var broker EventBroker = NewBroker()
	if cfg.Redis.URL != "" {
		rb, err := NewRedisBroker(cfg.Redis.URL)
		if err != nil {
			log.Warningf("redis broker unavailable, using in-process events: %v", err)
		} else {
			broker = rb
		}
	}
	solver, err := backends.New(cfg.Solver.Backend)
	if err != nil {
		return nil, err
	}
	return &Server{
		Cfg:    cfg,
		Store:  s,
		Pub:    webhooks.NewPublisher(s),
		Auth:   auth.NewVerifier(cfg.Auth),
		Broker: broker,
		Solver: solver,
		limits: newLimiters(cfg.RateLimit),
	}, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.Webhooks)
}

// Wait blocks until every async plan has finished.
func (s *Server) Wait() { s.running.Wait() }

// limiters hands out one token bucket per tenant for plan requests.
type limiters struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

func newLimiters(c config.RateLimit) *limiters {
	l := &limiters{limit: rate.Limit(c.RPS), burst: c.Burst, m: map[string]*rate.Limiter{}}
	if c.RPS == 0 {
		l.limit = rate.Inf
	}
	if l.burst < 1 {
		l.burst = 1
	}
	return l
}

func (l *limiters) allow(tenant string) bool {
	l.mu.Lock()
	lim, ok := l.m[tenant]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.m[tenant] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Routes returns the service mux wrapped in request instrumentation.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Orders
	mux.HandleFunc("GET /v1/orders", s.OrdersHandler)
	mux.HandleFunc("POST /v1/orders", s.OrdersHandler)
	mux.HandleFunc("POST /v1/orders/import", s.OrdersImportHandler)

	// Batch plans
	mux.HandleFunc("GET /v1/batch-plans", s.PlansIndexHandler)
	mux.HandleFunc("POST /v1/batch-plans", s.CreatePlanHandler)
	mux.HandleFunc("POST /v1/batch-plans/compare", s.CompareHandler)
	mux.HandleFunc("GET /v1/batch-plans/{id}", s.PlanByIDHandler)
	mux.HandleFunc("GET /v1/batch-plans/{id}/events/stream", s.PlanEventsHandler)
	mux.HandleFunc("GET /v1/planner/config", s.PlannerConfigHandler)
	mux.HandleFunc("PUT /v1/planner/config", s.PlannerConfigHandler)

	// Live events
	mux.HandleFunc("GET /v1/events/ws", s.EventsWSHandler)

	// Subscriptions
	mux.HandleFunc("GET /v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("POST /v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("DELETE /v1/subscriptions/{id}", s.SubscriptionByIDHandler)

	// Admin
	mux.HandleFunc("GET /v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("POST /v1/admin/webhook-deliveries/{id}/retry", s.WebhookDeliveryRetryHandler)
	mux.HandleFunc("GET /v1/admin/webhook-dlq", s.WebhookDLQHandler)
	mux.HandleFunc("DELETE /v1/admin/webhook-dlq", s.WebhookDLQHandler)
	mux.HandleFunc("POST /v1/admin/webhook-dlq/{id}/requeue", s.WebhookDLQRequeueHandler)
	mux.HandleFunc("GET /debug/config", s.DebugJSON)

	// Health
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", metricsHandler())
	mux.HandleFunc("GET /openapi.json", s.OpenAPIHandler)

	return instrument(mux)
}
