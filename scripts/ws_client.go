// Package main runs a demo WebSocket client that follows an async batch
// plan to completion.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	log "github.com/golang/glog"
	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const token = "t_demo:planner"

func post(base, path, body string, out any) {
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Exit(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Exitf("%s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Exit(err)
	}
}

func main() {
	flag.Parse()
	defer log.Flush()
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// A small wave
	var imp map[string]any
	post(base, "/v1/orders", `{"waveId":"demo","orders":[
		{"id":"D1","items":[{"aisle":"2a"},{"aisle":"3a"}]},
		{"id":"D2","items":[{"aisle":"2a"}]},
		{"id":"D3","items":[{"aisle":"7b"},{"aisle":"8a"}]},
		{"id":"D4","items":[{"aisle":"8a"}]}
	]}`, &imp)
	log.Infof("import: %v", imp)

	// Connect WS before planning so no event is missed
	q := url.Values{"access_token": {token}}
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws", RawQuery: q.Encode()}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Exit("dial: ", err)
	}
	defer func() { _ = c.Close() }()
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Exit(err)
	}

	var accepted struct {
		ID string `json:"id"`
	}
	post(base, "/v1/batch-plans", `{"waveId":"demo","strategy":"exact","maxBatchSize":2,"warmStart":"greedy","async":true}`, &accepted)
	log.Infof("plan %s accepted", accepted.ID)

	pl, _ := json.Marshal(map[string]string{"planId": accepted.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Exit(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg wsMessage
			if err := c.ReadJSON(&msg); err != nil {
				log.Infof("read: %v", err)
				return
			}
			switch msg.Type {
			case "next":
				log.Infof("event: %s", string(msg.Payload))
			case "complete":
				return
			case "error":
				log.Warningf("error: %s", string(msg.Payload))
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Minute):
		log.Info("timeout waiting for plan " + accepted.ID)
	}
}
