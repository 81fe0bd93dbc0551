package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"pickbatch/internal/batching"
	"pickbatch/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Orders. Order ids are unique per tenant and wave; repeats are skipped.
	CreateOrders(ctx context.Context, tenantID, waveID string, orders []batching.Order) (importID string, created, skipped int, err error)
	ListOrders(ctx context.Context, tenantID, waveID, cursor string, limit int) (items []model.OrderOut, nextCursor string, err error)
	// WaveOrders returns the orders of a wave in import order.
	WaveOrders(ctx context.Context, tenantID, waveID string) ([]batching.Order, error)

	// Batch plans, newest first.
	SavePlan(ctx context.Context, plan model.BatchPlan) error
	GetPlan(ctx context.Context, tenantID, id string) (model.BatchPlan, error)
	ListPlans(ctx context.Context, tenantID, waveID, cursor string, limit int) ([]model.BatchPlan, string, error)

	// Planner config per tenant
	GetPlannerConfig(ctx context.Context, tenantID string) (model.PlannerConfig, error)
	SavePlannerConfig(ctx context.Context, tenantID string, cfg model.PlannerConfig) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]WebhookDelivery, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

	// Dead-letter queue
	ListWebhookDLQ(ctx context.Context, tenantID string, f DLQFilter, cursor string, limit int) ([]DLQEntry, string, error)
	RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error
	DeleteWebhookDLQ(ctx context.Context, tenantID string, ids []string, olderThan time.Time) (int, error)

	Ping(ctx context.Context) error
}

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Cursors are the opaque decimal sequence number of the last row returned.

func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || n < 0 {
		return 0, ErrInvalidCursor
	}
	return n, nil
}

func formatCursor(seq int64) string { return strconv.FormatInt(seq, 10) }

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

func orderOut(tenantID, waveID string, o batching.Order, created time.Time) model.OrderOut {
	return model.OrderOut{
		ID:        o.ID,
		TenantID:  tenantID,
		WaveID:    waveID,
		Items:     o.Items,
		Aisles:    o.Aisles().Sorted(),
		CreatedAt: created,
	}
}
