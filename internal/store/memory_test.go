package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickbatch/internal/batching"
	"pickbatch/internal/model"
)

func order(id string, aisles ...string) batching.Order {
	o := batching.Order{ID: id}
	for _, a := range aisles {
		o.Items = append(o.Items, batching.Item{Aisle: a})
	}
	return o
}

func TestMemoryOrdersDedupAndWaveOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	imp, created, skipped, err := m.CreateOrders(ctx, "t1", "w1", []batching.Order{order("o2", "3a"), order("o1", "4", "3a"), order("o2", "9")})
	require.NoError(t, err)
	assert.NotEmpty(t, imp)
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, skipped)

	_, created, skipped, err = m.CreateOrders(ctx, "t1", "w2", []batching.Order{order("o1", "7")})
	require.NoError(t, err)
	assert.Equal(t, 1, created, "same id in another wave is a new order")
	assert.Zero(t, skipped)

	got, err := m.WaveOrders(ctx, "t1", "w1")
	require.NoError(t, err)
	want := []batching.Order{order("o2", "3a"), order("o1", "4", "3a")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wave orders (-want +got):\n%s", diff)
	}

	_, err = m.WaveOrders(ctx, "t2", "w1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListOrdersPaginates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _, _, err := m.CreateOrders(ctx, "t1", "w1", []batching.Order{order("a", "1"), order("b", "2"), order("c", "3")})
	require.NoError(t, err)
	_, _, _, err = m.CreateOrders(ctx, "t1", "w2", []batching.Order{order("d", "4")})
	require.NoError(t, err)

	page, next, err := m.ListOrders(ctx, "t1", "w1", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].ID)
	assert.Equal(t, []string{"1"}, page[0].Aisles)
	require.NotEmpty(t, next)

	page, next, err = m.ListOrders(ctx, "t1", "w1", next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].ID)
	assert.Empty(t, next)

	all, _, err := m.ListOrders(ctx, "t1", "", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, _, err = m.ListOrders(ctx, "t1", "", "nope", 0)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestMemoryPlans(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i, id := range []string{"p1", "p2", "p3"} {
		wave := "w1"
		if i == 1 {
			wave = "w2"
		}
		require.NoError(t, m.SavePlan(ctx, model.BatchPlan{ID: id, TenantID: "t1", WaveID: wave, Strategy: "greedy"}))
	}

	p, err := m.GetPlan(ctx, "t1", "p2")
	require.NoError(t, err)
	assert.Equal(t, "w2", p.WaveID)
	_, err = m.GetPlan(ctx, "t2", "p2")
	assert.ErrorIs(t, err, ErrNotFound)

	page, next, err := m.ListPlans(ctx, "t1", "", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "p3", page[0].ID, "newest first")
	assert.Equal(t, "p2", page[1].ID)
	page, next, err = m.ListPlans(ctx, "t1", "", next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "p1", page[0].ID)
	assert.Empty(t, next)

	wave, _, err := m.ListPlans(ctx, "t1", "w1", "", 0)
	require.NoError(t, err)
	assert.Len(t, wave, 2)
}

func TestMemoryPlannerConfig(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cfg, err := m.GetPlannerConfig(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.PlannerConfig{}, cfg)

	on := true
	want := model.PlannerConfig{MaxBatchSize: 10, DefaultStrategy: "exact", WarmStart: "greedy", SymmetryBreaking: &on}
	require.NoError(t, m.SavePlannerConfig(ctx, "t1", want))
	cfg, err = m.GetPlannerConfig(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, want, cfg)
}

func TestMemorySubscriptions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://a", Events: []string{"plan.completed"}})
	require.NoError(t, err)
	_, err = m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://b", Events: []string{"orders.imported"}})
	require.NoError(t, err)

	subs, err := m.GetSubscriptionsForEvent(ctx, "t1", "plan.completed")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "http://a", subs[0].URL)

	page, next, err := m.ListSubscriptions(ctx, "t1", "", 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, a.ID, next)
	page, next, err = m.ListSubscriptions(ctx, "t1", next, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Empty(t, next)

	require.NoError(t, m.DeleteSubscription(ctx, "t1", a.ID))
	assert.ErrorIs(t, m.DeleteSubscription(ctx, "t1", a.ID), ErrNotFound)
}

func TestMemoryWebhookLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	body := []byte(`{"id":"evt_1"}`)

	id, err := m.EnqueueWebhook(ctx, "t1", "s1", "plan.completed", "http://hook", "k", body)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	dup, err := m.EnqueueWebhook(ctx, "t1", "s1", "plan.completed", "http://hook", "k", body)
	require.NoError(t, err)
	assert.Empty(t, dup, "same event id is deduplicated")

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "k", due[0].Secret)

	later := time.Now().Add(time.Hour)
	require.NoError(t, m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 12))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "retry is not due yet")

	require.NoError(t, m.RetryWebhookDelivery(ctx, "t1", id))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)

	require.NoError(t, m.FailWebhookDelivery(ctx, id, "gone", 410, 3))
	list, _, err := m.ListWebhookDeliveries(ctx, "t1", DeliveryFailed, "", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	dlq, _, err := m.ListWebhookDLQ(ctx, "t1", DLQFilter{CodeMin: 400, CodeMax: 499, ErrorQuery: "GON"}, "", 0)
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, id, dlq[0].DeliveryID)
	assert.Equal(t, 2, dlq[0].Attempts)
	none, _, err := m.ListWebhookDLQ(ctx, "t1", DLQFilter{EventType: "orders.imported"}, "", 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, m.RequeueWebhookDLQ(ctx, "t1", dlq[0].ID))
	assert.ErrorIs(t, m.RequeueWebhookDLQ(ctx, "t1", dlq[0].ID), ErrNotFound)
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Zero(t, due[0].Attempts)

	require.NoError(t, m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 5))
	list, _, err = m.ListWebhookDeliveries(ctx, "t1", DeliveryDelivered, "", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].DeliveredAt)
}

func TestMemoryDeleteDLQ(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, evt := range []string{`{"id":"a"}`, `{"id":"b"}`, `{"id":"c"}`} {
		id, err := m.EnqueueWebhook(ctx, "t1", "", "plan.failed", "http://hook", "", []byte(evt))
		require.NoError(t, err)
		require.NoError(t, m.FailWebhookDelivery(ctx, id, "x", 500, 1))
	}
	dlq, _, err := m.ListWebhookDLQ(ctx, "t1", DLQFilter{}, "", 0)
	require.NoError(t, err)
	require.Len(t, dlq, 3)

	n, err := m.DeleteWebhookDLQ(ctx, "t1", []string{dlq[0].ID}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.DeleteWebhookDLQ(ctx, "t2", nil, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n, "other tenants are untouched")

	n, err = m.DeleteWebhookDLQ(ctx, "t1", nil, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.DeleteWebhookDLQ(ctx, "t1", nil, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n)
}
