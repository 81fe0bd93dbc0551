// Package metrics holds the service's Prometheus registry and collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route pattern and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Plans counts planning runs by strategy and outcome (ok, error).
	Plans = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "batch_plans_total", Help: "Batch planning runs by strategy and outcome."},
		[]string{"strategy", "outcome"},
	)
	// PlanDuration records wall time of a planning run.
	PlanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "batch_plan_duration_seconds", Help: "Batch planning duration in seconds.", Buckets: []float64{.001, .01, .1, .5, 1, 5, 15, 30, 60, 120}},
		[]string{"strategy"},
	)
	// PlanAisles records the total aisle visits of successful plans.
	PlanAisles = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "batch_plan_aisle_visits", Help: "Total aisle visits of a batch plan.", Buckets: prometheus.ExponentialBuckets(4, 2, 10)},
		[]string{"strategy"},
	)
	// SolverRuns counts engine outcomes by backend and status.
	SolverRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_runs_total", Help: "Exact solver runs by backend and status."},
		[]string{"backend", "status"},
	)
	// OrdersImported counts orders accepted or skipped as duplicates.
	OrdersImported = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_imported_total", Help: "Imported orders by result."},
		[]string{"result"},
	)
	// RateLimited counts requests rejected by the plan throttle.
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "plan_requests_throttled_total", Help: "Plan requests rejected by the rate limiter."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

var regOnce sync.Once

// RegisterDefault registers every collector on Registry. Safe to call more
// than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Plans, PlanDuration, PlanAisles, SolverRuns, OrdersImported, RateLimited)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
