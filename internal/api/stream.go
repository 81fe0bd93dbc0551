package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	log "github.com/golang/glog"
	"github.com/gorilla/websocket"

	"pickbatch/internal/auth"
	"pickbatch/internal/model"
)

const heartbeatEvery = 15 * time.Second

func terminal(evt model.Event) bool {
	return evt.Type == model.EventPlanCompleted || evt.Type == model.EventPlanFailed
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		log.Errorf("sse %s: %v", event, err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", b)
}

// PlanEventsHandler handles GET /v1/batch-plans/{id}/events/stream. It
// sends the outcome of the plan as one event and ends; a plan that is still
// running keeps the stream open with heartbeats until it finishes.
func (s *Server) PlanEventsHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	id := r.PathValue("id")
	topic := planTopic(p.Tenant, id)
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	heartbeat := func() {
		writeSSE(w, "heartbeat", map[string]string{"planId": id, "ts": time.Now().UTC().Format(time.RFC3339)})
		flusher.Flush()
	}
	if plan, err := s.Store.GetPlan(r.Context(), p.Tenant, id); err == nil {
		writeSSE(w, model.EventPlanCompleted, model.Event{Type: model.EventPlanCompleted, TenantID: p.Tenant, Data: plan})
		flusher.Flush()
		return
	}
	heartbeat()
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, evt.Type, evt)
			flusher.Flush()
			if terminal(evt) {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribePayload selects a stream: every event of the tenant, or those
// of one plan when PlanID is set. Events filters by type.
type subscribePayload struct {
	Events []string `json:"events,omitempty"`
	PlanID string   `json:"planId,omitempty"`
}

// EventsWSHandler handles /v1/events/ws. Clients send connection_init,
// then subscribe messages; each matching event arrives as a next message
// carrying the event envelope. Plan subscriptions complete after the plan's
// outcome.
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.require(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	errMsg := func(id, msg string) {
		pl, _ := json.Marshal(map[string]string{"message": msg})
		_ = write(wsMessage{Type: "error", ID: id, Payload: pl})
	}

	type sub struct {
		topic string
		ch    chan model.Event
	}
	subs := map[string]sub{}
	done := make(chan struct{})
	defer func() {
		close(done)
		for _, s0 := range subs {
			s.Broker.Unsubscribe(s0.topic, s0.ch)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) })

	initialised := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			if initialised {
				continue
			}
			initialised = true
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "pong":
		case "subscribe":
			if !initialised {
				errMsg(msg.ID, "connection_init required")
				continue
			}
			if _, dup := subs[msg.ID]; dup || msg.ID == "" {
				errMsg(msg.ID, "subscription id missing or in use")
				continue
			}
			var pl subscribePayload
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &pl); err != nil {
					errMsg(msg.ID, "invalid payload: "+err.Error())
					continue
				}
			}
			topic := tenantTopic(p.Tenant)
			if pl.PlanID != "" {
				topic = planTopic(p.Tenant, pl.PlanID)
			}
			ch := s.Broker.Subscribe(topic)
			subs[msg.ID] = sub{topic: topic, ch: ch}
			if pl.PlanID != "" {
				// a finished plan is replayed from the store
				if plan, err := s.Store.GetPlan(r.Context(), p.Tenant, pl.PlanID); err == nil {
					payload, _ := json.Marshal(model.Event{Type: model.EventPlanCompleted, TenantID: p.Tenant, Data: plan})
					_ = write(wsMessage{Type: "next", ID: msg.ID, Payload: payload})
					s.Broker.Unsubscribe(topic, ch)
				}
			}
			go func(id string, pl subscribePayload) {
				for evt := range ch {
					if len(pl.Events) > 0 && !slices.Contains(pl.Events, evt.Type) {
						continue
					}
					payload, err := json.Marshal(evt)
					if err != nil {
						continue
					}
					if err := write(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil {
						return
					}
					if pl.PlanID != "" && terminal(evt) {
						s.Broker.Unsubscribe(topic, ch)
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, pl)
		case "complete":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.topic, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			errMsg(msg.ID, "unknown message type "+msg.Type)
		}
	}
}
