package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"time"

	log "github.com/golang/glog"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pickbatch/internal/batching"
	"pickbatch/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded migrations that have not run yet, in file
// name order, each in its own transaction.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return err
	}
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		var done bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&done); err != nil {
			return err
		}
		if done {
			continue
		}
		body, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if err := p.apply(ctx, name, string(body)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		log.Infof("store: applied %s", name)
	}
	return nil
}

func (p *Postgres) apply(ctx context.Context, name, body string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateOrders inserts orders in one transaction. Dedup by (tenant_id, wave_id, id).
func (p *Postgres) CreateOrders(ctx context.Context, tenantID, waveID string, orders []batching.Order) (string, int, int, error) {
	importID := "imp_" + uuid.NewString()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	created, skipped := 0, 0
	for _, o := range orders {
		items, err := json.Marshal(o.Items)
		if err != nil {
			return "", 0, 0, err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO orders (tenant_id, wave_id, id, items, import_id) VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (tenant_id, wave_id, id) DO NOTHING`, tenantID, waveID, o.ID, string(items), importID)
		if err != nil {
			return "", 0, 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return "", 0, 0, err
		}
		if n == 0 {
			skipped++
			continue
		}
		created++
	}
	if err := tx.Commit(); err != nil {
		return "", 0, 0, err
	}
	return importID, created, skipped, nil
}

func (p *Postgres) ListOrders(ctx context.Context, tenantID, waveID, cursor string, limit int) ([]model.OrderOut, string, error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)
	args := []any{tenantID}
	q := `SELECT seq, id, wave_id, items, created_at FROM orders WHERE tenant_id=$1`
	if waveID != "" {
		q += ` AND wave_id=` + bind(&args, waveID)
	}
	if after > 0 {
		q += ` AND seq > ` + bind(&args, after)
	}
	q += ` ORDER BY seq LIMIT ` + bind(&args, limit)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.OrderOut{}
	var last int64
	for rows.Next() {
		var (
			o       batching.Order
			wave    string
			items   []byte
			created time.Time
		)
		if err := rows.Scan(&last, &o.ID, &wave, &items, &created); err != nil {
			return nil, "", err
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, "", err
		}
		out = append(out, orderOut(tenantID, wave, o, created))
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = formatCursor(last)
	}
	return out, next, nil
}

func (p *Postgres) WaveOrders(ctx context.Context, tenantID, waveID string) ([]batching.Order, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, items FROM orders WHERE tenant_id=$1 AND wave_id=$2 ORDER BY seq`, tenantID, waveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []batching.Order
	for rows.Next() {
		var o batching.Order
		var items []byte
		if err := rows.Scan(&o.ID, &items); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (p *Postgres) SavePlan(ctx context.Context, plan model.BatchPlan) error {
	body, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO batch_plans (id, tenant_id, wave_id, strategy, total_aisles, body, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		plan.ID, plan.TenantID, plan.WaveID, plan.Strategy, plan.TotalAisles, string(body), plan.CreatedAt)
	return err
}

func (p *Postgres) GetPlan(ctx context.Context, tenantID, id string) (model.BatchPlan, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.BatchPlan{}, ErrNotFound
	}
	var body []byte
	err := p.db.QueryRowContext(ctx, `SELECT body FROM batch_plans WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BatchPlan{}, ErrNotFound
	}
	if err != nil {
		return model.BatchPlan{}, err
	}
	var plan model.BatchPlan
	if err := json.Unmarshal(body, &plan); err != nil {
		return model.BatchPlan{}, err
	}
	return plan, nil
}

func (p *Postgres) ListPlans(ctx context.Context, tenantID, waveID, cursor string, limit int) ([]model.BatchPlan, string, error) {
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)
	args := []any{tenantID}
	q := `SELECT seq, body FROM batch_plans WHERE tenant_id=$1`
	if waveID != "" {
		q += ` AND wave_id=` + bind(&args, waveID)
	}
	if before > 0 {
		q += ` AND seq < ` + bind(&args, before)
	}
	q += ` ORDER BY seq DESC LIMIT ` + bind(&args, limit)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.BatchPlan{}
	var last int64
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&last, &body); err != nil {
			return nil, "", err
		}
		var plan model.BatchPlan
		if err := json.Unmarshal(body, &plan); err != nil {
			return nil, "", err
		}
		out = append(out, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = formatCursor(last)
	}
	return out, next, nil
}

func (p *Postgres) GetPlannerConfig(ctx context.Context, tenantID string) (model.PlannerConfig, error) {
	var js []byte
	err := p.db.QueryRowContext(ctx, `SELECT config FROM planner_config WHERE tenant_id=$1`, tenantID).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlannerConfig{}, nil
	}
	if err != nil {
		return model.PlannerConfig{}, err
	}
	var cfg model.PlannerConfig
	if err := json.Unmarshal(js, &cfg); err != nil {
		return model.PlannerConfig{}, err
	}
	return cfg, nil
}

func (p *Postgres) SavePlannerConfig(ctx context.Context, tenantID string, cfg model.PlannerConfig) error {
	js, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO planner_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, string(js))
	return err
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.NewString()
	ev, err := json.Marshal(req.Events)
	if err != nil {
		return model.Subscription{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		id, req.TenantID, req.URL, string(ev), nullIfEmpty(req.Secret))
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	filter, _ := json.Marshal([]string{eventType})
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb ORDER BY seq`,
		tenantID, string(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, _, err := scanSubscription(rows, tenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events, seq FROM subscriptions WHERE tenant_id=$1 AND seq > $2 ORDER BY seq LIMIT $3`,
		tenantID, after, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last int64
	for rows.Next() {
		s, seq, err := scanSubscription(rows, tenantID)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
		last = seq
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = formatCursor(last)
	}
	return out, next, nil
}

// scanSubscription reads id, url, secret, events and an optional seq.
func scanSubscription(rows *sql.Rows, tenantID string) (model.Subscription, int64, error) {
	cols, err := rows.Columns()
	if err != nil {
		return model.Subscription{}, 0, err
	}
	s := model.Subscription{TenantID: tenantID}
	var ev []byte
	var seq int64
	dest := []any{&s.ID, &s.URL, &s.Secret, &ev}
	if len(cols) > 4 {
		dest = append(dest, &seq)
	}
	if err := rows.Scan(dest...); err != nil {
		return model.Subscription{}, 0, err
	}
	if err := json.Unmarshal(ev, &s.Events); err != nil {
		return model.Subscription{}, 0, err
	}
	return s, seq, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return affected(res, err)
}

// Webhook deliveries

const deliveryColumns = `seq, id::text, tenant_id, COALESCE(subscription_id,''), event_type, url, COALESCE(secret,''), payload, status, attempts,
    next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0), delivered_at`

func scanDelivery(rows *sql.Rows) (WebhookDelivery, int64, error) {
	var (
		d         WebhookDelivery
		seq       int64
		delivered sql.NullTime
	)
	err := rows.Scan(&seq, &d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts,
		&d.NextAttemptAt, &d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered)
	if delivered.Valid {
		d.DeliveredAt = &delivered.Time
	}
	return d, seq, err
}

// EnqueueWebhook schedules a delivery. A payload already queued for the same
// tenant, event and URL is dropped and yields an empty id.
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.NewString()
	res, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`,
		id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, computeDedupKey(payload))
	if err != nil {
		return "", err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+deliveryColumns+`
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		d, _, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
			id, responseCode, latencyMs)
		return affected(res, err)
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return affected(res, err)
}

// FailWebhookDelivery marks the delivery failed and moves it to the DLQ.
func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	if err := affected(res, err); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO webhook_dlq (tenant_id, delivery_id, event_type, url, secret, payload, attempts, last_error, response_code, latency_ms)
        SELECT tenant_id, id, event_type, url, secret, payload, attempts+1, $2, $3, $4 FROM webhook_deliveries WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)
	args := []any{tenantID}
	q := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE tenant_id=$1`
	if status != "" {
		q += ` AND status=` + bind(&args, status)
	}
	if after > 0 {
		q += ` AND seq > ` + bind(&args, after)
	}
	q += ` ORDER BY seq LIMIT ` + bind(&args, limit)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	var last int64
	for rows.Next() {
		d, seq, err := scanDelivery(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, d)
		last = seq
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = formatCursor(last)
	}
	return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return affected(res, err)
}

func (p *Postgres) ListWebhookDLQ(ctx context.Context, tenantID string, f DLQFilter, cursor string, limit int) ([]DLQEntry, string, error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)
	args := []any{tenantID}
	q := `SELECT seq, id::text, delivery_id::text, event_type, url, COALESCE(last_error,''), attempts, created_at, COALESCE(response_code,0), COALESCE(latency_ms,0)
        FROM webhook_dlq WHERE tenant_id=$1`
	if f.EventType != "" {
		q += ` AND event_type=` + bind(&args, f.EventType)
	}
	if !f.OlderThan.IsZero() {
		q += ` AND created_at < ` + bind(&args, f.OlderThan)
	}
	if f.CodeMin > 0 {
		q += ` AND COALESCE(response_code,0) >= ` + bind(&args, f.CodeMin)
	}
	if f.CodeMax > 0 {
		q += ` AND COALESCE(response_code,0) <= ` + bind(&args, f.CodeMax)
	}
	if f.ErrorQuery != "" {
		q += ` AND last_error ILIKE ` + bind(&args, "%"+f.ErrorQuery+"%")
	}
	if after > 0 {
		q += ` AND seq > ` + bind(&args, after)
	}
	q += ` ORDER BY seq LIMIT ` + bind(&args, limit)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []DLQEntry{}
	var last int64
	for rows.Next() {
		e := DLQEntry{TenantID: tenantID}
		if err := rows.Scan(&last, &e.ID, &e.DeliveryID, &e.EventType, &e.URL, &e.LastError, &e.Attempts, &e.CreatedAt, &e.ResponseCode, &e.LatencyMs); err != nil {
			return nil, "", err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = formatCursor(last)
	}
	return out, next, nil
}

// RequeueWebhookDLQ resets the dead-lettered delivery to pending with a
// fresh attempt count and drops the DLQ entry.
func (p *Postgres) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	var deliveryID string
	err = tx.QueryRowContext(ctx, `DELETE FROM webhook_dlq WHERE tenant_id=$1 AND id=$2 RETURNING delivery_id::text`, tenantID, id).Scan(&deliveryID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', attempts=0, next_attempt_at=now(), updated_at=now() WHERE id=$1`, deliveryID)
	if err := affected(res, err); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteWebhookDLQ drops the listed entries, or when ids is empty every
// entry created before olderThan.
func (p *Postgres) DeleteWebhookDLQ(ctx context.Context, tenantID string, ids []string, olderThan time.Time) (int, error) {
	var (
		res sql.Result
		err error
	)
	switch {
	case len(ids) > 0:
		list, _ := json.Marshal(ids)
		res, err = p.db.ExecContext(ctx, `DELETE FROM webhook_dlq WHERE tenant_id=$1 AND id::text IN (SELECT jsonb_array_elements_text($2::jsonb))`, tenantID, string(list))
	case !olderThan.IsZero():
		res, err = p.db.ExecContext(ctx, `DELETE FROM webhook_dlq WHERE tenant_id=$1 AND created_at < $2`, tenantID, olderThan)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// bind appends v to args and returns its placeholder.
func bind(args *[]any, v any) string {
	*args = append(*args, v)
	return "$" + strconv.Itoa(len(*args))
}

// affected turns an update that touched no row into ErrNotFound.
func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
