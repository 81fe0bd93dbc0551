package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickbatch/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	topic := planTopic("t1", "bp_1")
	ch := b.Subscribe(topic)

	evt := model.Event{ID: "evt_1", Type: model.EventPlanCompleted, TenantID: "t1"}
	b.Publish(topic, evt)
	b.Publish(tenantTopic("t1"), model.Event{ID: "other"})

	select {
	case got := <-ch:
		assert.Equal(t, evt, got)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected event on plan topic: %+v", got)
	default:
	}

	b.Unsubscribe(topic, ch)
	_, ok := <-ch
	assert.False(t, ok, "channel closed after unsubscribe")
	b.Unsubscribe(topic, ch)
	b.Publish(topic, evt)
}

func TestBrokerDropsForSlowSubscribers(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("x")
	for i := 0; i < 20; i++ {
		b.Publish("x", model.Event{Type: "e"})
	}
	assert.Len(t, ch, cap(ch))
	b.Unsubscribe("x", ch)
}

func TestTopicsAreTenantScoped(t *testing.T) {
	require.NotEqual(t, planTopic("a", "p"), planTopic("b", "p"))
	require.NotEqual(t, tenantTopic("a"), planTopic("a", ""))
}
