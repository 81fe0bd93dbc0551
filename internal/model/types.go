package model

import (
	"time"

	"pickbatch/internal/batching"
)

// Orders

type OrderImportRequest struct {
	TenantID string           `json:"tenantId"`
	WaveID   string           `json:"waveId"`
	Orders   []batching.Order `json:"orders"`
}

type OrderImportResponse struct {
	ImportID string `json:"importId"`
	Created  int    `json:"created"`
	Skipped  int    `json:"skipped"`
}

type OrderOut struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenantId"`
	WaveID    string          `json:"waveId"`
	Items     []batching.Item `json:"items"`
	Aisles    []string        `json:"aisles"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Plans

type PlanRequest struct {
	TenantID     string `json:"tenantId"`
	WaveID       string `json:"waveId"`
	Strategy     string `json:"strategy,omitempty"`
	MaxBatchSize int    `json:"maxBatchSize,omitempty"`
	WarmStart    string `json:"warmStart,omitempty"`
	TimeLimitMs  int    `json:"timeLimitMs,omitempty"`
	Seed         *int64 `json:"seed,omitempty"`
	// Async returns 202 with the plan id at once and streams the outcome
	// as a plan.completed or plan.failed event.
	Async bool `json:"async,omitempty"`
}

type CompareRequest struct {
	TenantID     string   `json:"tenantId"`
	WaveID       string   `json:"waveId"`
	Strategies   []string `json:"strategies,omitempty"`
	MaxBatchSize int      `json:"maxBatchSize,omitempty"`
	WarmStart    string   `json:"warmStart,omitempty"`
	TimeLimitMs  int      `json:"timeLimitMs,omitempty"`
	Seed         *int64   `json:"seed,omitempty"`
}

type PlanBatch struct {
	Index  int      `json:"index"`
	Orders []string `json:"orders"`
	Aisles []string `json:"aisles"`
}

// SolverSummary reports the engine outcome of an exact strategy. Objective
// is the engine's own value; for a feasible, non-optimal stop it can exceed
// the plan's totalAisles.
type SolverSummary struct {
	Backend   string  `json:"backend"`
	Status    string  `json:"status"`
	Objective float64 `json:"objective"`
	RuntimeMs int64   `json:"runtimeMs"`
	Models    int     `json:"models"`
}

type BatchPlan struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenantId"`
	WaveID       string         `json:"waveId"`
	Strategy     string         `json:"strategy"`
	WarmStart    string         `json:"warmStart,omitempty"`
	MaxBatchSize int            `json:"maxBatchSize"`
	NumOrders    int            `json:"numOrders"`
	Batches      []PlanBatch    `json:"batches"`
	TotalAisles  int            `json:"totalAisles"`
	PerBatch     []int          `json:"perBatch"`
	Solver       *SolverSummary `json:"solver,omitempty"`
	ElapsedMs    int64          `json:"elapsedMs"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type CompareResult struct {
	Strategy    string         `json:"strategy"`
	WarmStart   string         `json:"warmStart,omitempty"`
	TotalAisles int            `json:"totalAisles"`
	PerBatch    []int          `json:"perBatch"`
	Solver      *SolverSummary `json:"solver,omitempty"`
	ElapsedMs   int64          `json:"elapsedMs"`
}

type CompareResponse struct {
	WaveID       string          `json:"waveId"`
	NumOrders    int             `json:"numOrders"`
	MaxBatchSize int             `json:"maxBatchSize"`
	NumBatches   int             `json:"numBatches"`
	Results      []CompareResult `json:"results"`
	Best         string          `json:"best"`
}

// PlannerConfig holds per-tenant overrides of the service planner defaults.
// Zero fields fall back to the service configuration.
type PlannerConfig struct {
	MaxBatchSize     int    `json:"maxBatchSize,omitempty"`
	DefaultStrategy  string `json:"defaultStrategy,omitempty"`
	WarmStart        string `json:"warmStart,omitempty"`
	SymmetryBreaking *bool  `json:"symmetryBreaking,omitempty"`
	TimeLimitMs      int    `json:"timeLimitMs,omitempty"`
}

// Subscriptions

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

// Event is the envelope published to subscribers and stream clients.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	TS       string `json:"ts"`
	Data     any    `json:"data"`
}

const (
	EventOrdersImported = "orders.imported"
	EventPlanCompleted  = "plan.completed"
	EventPlanFailed     = "plan.failed"
)

// EventTypes lists the events subscriptions may name.
func EventTypes() []string {
	return []string{EventOrdersImported, EventPlanCompleted, EventPlanFailed}
}
