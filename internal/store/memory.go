package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"pickbatch/internal/batching"
	"pickbatch/internal/model"
)

// Memory is an in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	seq        int64
	orders     map[string][]memOrder  // tenant -> orders in import order
	orderKeys  map[[3]string]struct{} // tenant, wave, order id
	plans      map[string][]memPlan   // tenant -> plans in save order
	cfg        map[string]model.PlannerConfig
	subs       map[string][]model.Subscription
	deliveries []*memDelivery
	dedup      map[[4]string]struct{} // tenant, event, url, dedup key
	dlq        []memDLQ
}

type memOrder struct {
	seq     int64
	wave    string
	order   batching.Order
	created time.Time
}

type memPlan struct {
	seq  int64
	plan model.BatchPlan
}

type memDelivery struct {
	seq int64
	WebhookDelivery
}

type memDLQ struct {
	seq int64
	DLQEntry
}

func NewMemory() *Memory {
	return &Memory{
		orders:    map[string][]memOrder{},
		orderKeys: map[[3]string]struct{}{},
		plans:     map[string][]memPlan{},
		cfg:       map[string]model.PlannerConfig{},
		subs:      map[string][]model.Subscription{},
		dedup:     map[[4]string]struct{}{},
	}
}

func (m *Memory) next() int64 {
	m.seq++
	return m.seq
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) CreateOrders(ctx context.Context, tenantID, waveID string, orders []batching.Order) (string, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created, skipped := 0, 0
	now := time.Now().UTC()
	for _, o := range orders {
		key := [3]string{tenantID, waveID, o.ID}
		if _, dup := m.orderKeys[key]; dup {
			skipped++
			continue
		}
		m.orderKeys[key] = struct{}{}
		m.orders[tenantID] = append(m.orders[tenantID], memOrder{seq: m.next(), wave: waveID, order: o, created: now})
		created++
	}
	return "imp_" + uuid.NewString(), created, skipped, nil
}

func (m *Memory) ListOrders(ctx context.Context, tenantID, waveID, cursor string, limit int) ([]model.OrderOut, string, error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.OrderOut{}
	var last int64
	for _, o := range m.orders[tenantID] {
		if o.seq <= after || (waveID != "" && o.wave != waveID) {
			continue
		}
		out = append(out, orderOut(tenantID, o.wave, o.order, o.created))
		last = o.seq
		if len(out) == limit {
			return out, formatCursor(last), nil
		}
	}
	return out, "", nil
}

func (m *Memory) WaveOrders(ctx context.Context, tenantID, waveID string) ([]batching.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []batching.Order
	for _, o := range m.orders[tenantID] {
		if o.wave == waveID {
			out = append(out, o.order)
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (m *Memory) SavePlan(ctx context.Context, plan model.BatchPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.TenantID] = append(m.plans[plan.TenantID], memPlan{seq: m.next(), plan: plan})
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, id string) (model.BatchPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans[tenantID] {
		if p.plan.ID == id {
			return p.plan, nil
		}
	}
	return model.BatchPlan{}, ErrNotFound
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, waveID, cursor string, limit int) ([]model.BatchPlan, string, error) {
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	plans := m.plans[tenantID]
	out := []model.BatchPlan{}
	for i := len(plans) - 1; i >= 0; i-- {
		p := plans[i]
		if (before > 0 && p.seq >= before) || (waveID != "" && p.plan.WaveID != waveID) {
			continue
		}
		out = append(out, p.plan)
		if len(out) == limit {
			return out, formatCursor(p.seq), nil
		}
	}
	return out, "", nil
}

func (m *Memory) GetPlannerConfig(ctx context.Context, tenantID string) (model.PlannerConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg[tenantID], nil
}

func (m *Memory) SavePlannerConfig(ctx context.Context, tenantID string, cfg model.PlannerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg[tenantID] = cfg
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.NewString(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs[tenantID] {
		if slices.Contains(s.Events, eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	start := 0
	if cursor != "" {
		i := slices.IndexFunc(subs, func(s model.Subscription) bool { return s.ID == cursor })
		if i < 0 {
			return nil, "", ErrInvalidCursor
		}
		start = i + 1
	}
	limit = clampLimit(limit)
	end := min(start+limit, len(subs))
	out := append([]model.Subscription{}, subs[start:end]...)
	next := ""
	if end < len(subs) {
		next = subs[end-1].ID
	}
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	i := slices.IndexFunc(subs, func(s model.Subscription) bool { return s.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	m.subs[tenantID] = slices.Delete(subs, i, i+1)
	return nil
}

// Webhook deliveries

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [4]string{tenantID, eventType, url, computeDedupKey(payload)}
	if _, dup := m.dedup[key]; dup {
		return "", nil
	}
	m.dedup[key] = struct{}{}
	d := &memDelivery{seq: m.next(), WebhookDelivery: WebhookDelivery{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		URL:            url,
		Secret:         secret,
		Payload:        payload,
		Status:         DeliveryPending,
		NextAttemptAt:  time.Now(),
	}}
	m.deliveries = append(m.deliveries, d)
	return d.ID, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var due []*memDelivery
	for _, d := range m.deliveries {
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			due = append(due, d)
		}
	}
	slices.SortStableFunc(due, func(a, b *memDelivery) int { return a.NextAttemptAt.Compare(b.NextAttemptAt) })
	out := []WebhookDelivery{}
	for _, d := range due {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, d.WebhookDelivery)
	}
	return out, nil
}

func (m *Memory) delivery(id string) *memDelivery {
	for _, d := range m.deliveries {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.delivery(id)
	if d == nil {
		return ErrNotFound
	}
	d.ResponseCode, d.LatencyMs = responseCode, latencyMs
	if success {
		now := time.Now()
		d.Status, d.DeliveredAt = DeliveryDelivered, &now
		return nil
	}
	d.Attempts++
	d.Status, d.LastError = DeliveryRetry, lastError
	if nextAttemptAt == nil {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	} else {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.delivery(id)
	if d == nil {
		return ErrNotFound
	}
	d.Status, d.LastError, d.ResponseCode, d.LatencyMs = DeliveryFailed, lastError, responseCode, latencyMs
	m.dlq = append(m.dlq, memDLQ{seq: m.next(), DLQEntry: DLQEntry{
		ID:           uuid.NewString(),
		DeliveryID:   d.ID,
		TenantID:     d.TenantID,
		EventType:    d.EventType,
		URL:          d.URL,
		Secret:       d.Secret,
		Payload:      d.Payload,
		Attempts:     d.Attempts + 1,
		LastError:    lastError,
		ResponseCode: responseCode,
		LatencyMs:    latencyMs,
		CreatedAt:    time.Now(),
	}})
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []WebhookDelivery{}
	for _, d := range m.deliveries {
		if d.seq <= after || d.TenantID != tenantID || (status != "" && d.Status != status) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) == limit {
			return out, formatCursor(d.seq), nil
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.delivery(id)
	if d == nil || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status, d.NextAttemptAt = DeliveryPending, time.Now()
	return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, tenantID string, f DLQFilter, cursor string, limit int) ([]DLQEntry, string, error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []DLQEntry{}
	for _, e := range m.dlq {
		if e.seq <= after || e.TenantID != tenantID || !f.match(e.DLQEntry) {
			continue
		}
		out = append(out, e.DLQEntry)
		if len(out) == limit {
			return out, formatCursor(e.seq), nil
		}
	}
	return out, "", nil
}

// RequeueWebhookDLQ resets the dead-lettered delivery to pending with a
// fresh attempt count and drops the DLQ entry.
func (m *Memory) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.dlq, func(e memDLQ) bool { return e.ID == id && e.TenantID == tenantID })
	if i < 0 {
		return ErrNotFound
	}
	d := m.delivery(m.dlq[i].DeliveryID)
	if d == nil {
		return ErrNotFound
	}
	d.Status, d.Attempts, d.NextAttemptAt = DeliveryPending, 0, time.Now()
	m.dlq = slices.Delete(m.dlq, i, i+1)
	return nil
}

// DeleteWebhookDLQ drops the listed entries, or when ids is empty every
// entry created before olderThan.
func (m *Memory) DeleteWebhookDLQ(ctx context.Context, tenantID string, ids []string, olderThan time.Time) (int, error) {
	if len(ids) == 0 && olderThan.IsZero() {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.dlq)
	m.dlq = slices.DeleteFunc(m.dlq, func(e memDLQ) bool {
		if e.TenantID != tenantID {
			return false
		}
		if len(ids) > 0 {
			return slices.Contains(ids, e.ID)
		}
		return e.CreatedAt.Before(olderThan)
	})
	return n - len(m.dlq), nil
}
