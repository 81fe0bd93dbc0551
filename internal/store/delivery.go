package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Delivery states.
const (
	DeliveryPending   = "pending"
	DeliveryRetry     = "retry"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

type WebhookDelivery struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenantId"`
	SubscriptionID string     `json:"subscriptionId,omitempty"`
	EventType      string     `json:"eventType"`
	URL            string     `json:"url"`
	Secret         string     `json:"-"`
	Payload        []byte     `json:"-"`
	Status         string     `json:"status"`
	Attempts       int        `json:"attempts"`
	NextAttemptAt  time.Time  `json:"nextAttemptAt"`
	LastError      string     `json:"lastError,omitempty"`
	ResponseCode   int        `json:"responseCode,omitempty"`
	LatencyMs      int        `json:"latencyMs,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}

// DLQEntry is a delivery that ran out of attempts.
type DLQEntry struct {
	ID           string    `json:"id"`
	DeliveryID   string    `json:"deliveryId"`
	TenantID     string    `json:"tenantId"`
	EventType    string    `json:"eventType"`
	URL          string    `json:"url"`
	Secret       string    `json:"-"`
	Payload      []byte    `json:"-"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"lastError,omitempty"`
	ResponseCode int       `json:"responseCode"`
	LatencyMs    int       `json:"latencyMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DLQFilter narrows ListWebhookDLQ. Zero fields match everything.
type DLQFilter struct {
	EventType  string
	OlderThan  time.Time
	CodeMin    int
	CodeMax    int
	ErrorQuery string
}

func (f DLQFilter) match(e DLQEntry) bool {
	switch {
	case f.EventType != "" && e.EventType != f.EventType:
		return false
	case !f.OlderThan.IsZero() && !e.CreatedAt.Before(f.OlderThan):
		return false
	case f.CodeMin > 0 && e.ResponseCode < f.CodeMin:
		return false
	case f.CodeMax > 0 && e.ResponseCode > f.CodeMax:
		return false
	case f.ErrorQuery != "" && !strings.Contains(strings.ToLower(e.LastError), strings.ToLower(f.ErrorQuery)):
		return false
	}
	return true
}

// computeDedupKey keys a payload by its event id, or by a short hash when it
// has none.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}
