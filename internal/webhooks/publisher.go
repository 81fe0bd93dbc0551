package webhooks

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/golang/glog"
	"github.com/google/uuid"

	"pickbatch/internal/model"
	"pickbatch/internal/store"
)

type Publisher struct {
	Store store.Store
	now   func() time.Time
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s, now: time.Now}
}

// Emit wraps data in an event envelope and queues one delivery per
// subscription of the tenant to eventType. It returns the event so callers
// can also hand it to live stream clients.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) (model.Event, error) {
	evt := model.Event{
		ID:       "evt_" + uuid.NewString(),
		Type:     eventType,
		TenantID: tenantID,
		TS:       p.now().UTC().Format(time.RFC3339),
		Data:     data,
	}
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil || len(subs) == 0 {
		return evt, err
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return evt, err
	}
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			log.Warningf("webhooks: enqueue %s for subscription %s: %v", eventType, s.ID, err)
		}
	}
	return evt, nil
}
