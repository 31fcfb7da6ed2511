package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/incidentdesk/backend/internal/events"
	"go.uber.org/zap"
)

func TestWebhookForwarder(t *testing.T) {
	got := make(chan events.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e events.Event
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- e
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := &webhookForwarder{url: srv.URL, client: srv.Client(), log: zap.NewNop()}
	f.forward(context.Background(), events.Event{
		Type:    events.EventAuditWriteFailed,
		Payload: map[string]any{"entity_type": "Incident"},
	})

	e := <-got
	if e.Type != events.EventAuditWriteFailed || e.Payload["entity_type"] != "Incident" {
		t.Errorf("forwarded = %+v", e)
	}
}

func TestWebhookForwarderDisabled(t *testing.T) {
	f := &webhookForwarder{log: zap.NewNop()}
	f.forward(context.Background(), events.Event{Type: events.EventAuditWriteFailed})
}
