package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/incidentdesk/backend/internal/config"
	"github.com/incidentdesk/backend/internal/db"
	"github.com/incidentdesk/backend/internal/events"
	"go.uber.org/zap"
)

// audit-watch follows the event streams published by the API. Audit write failures are
// logged at error level and, when ALERT_WEBHOOK_URL is set, forwarded to it.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	if rdb == nil {
		log.Fatal("REDIS_URL is required")
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	forwarder := &webhookForwarder{url: cfg.AlertWebhookURL, client: &http.Client{Timeout: 10 * time.Second}, log: log}

	err = subscriber.Subscribe(ctx, cfg.AuditStream, func(event events.Event) {
		if event.Type != events.EventAuditWriteFailed {
			return
		}
		log.Error("audit write failed",
			zap.Any("entity_type", event.Payload["entity_type"]),
			zap.Any("entity_id", event.Payload["entity_id"]),
			zap.Any("action", event.Payload["action"]),
			zap.Any("error", event.Payload["error"]),
		)
		forwarder.forward(ctx, event)
	})
	if err != nil {
		log.Fatal("subscribe audit stream", zap.Error(err))
	}

	err = subscriber.Subscribe(ctx, cfg.IncidentStream, func(event events.Event) {
		log.Info("incident event", zap.String("type", event.Type), zap.Any("incident_id", event.Payload["incident_id"]))
	})
	if err != nil {
		log.Fatal("subscribe incident stream", zap.Error(err))
	}

	log.Info("audit-watch started", zap.String("audit_stream", cfg.AuditStream), zap.Bool("webhook", cfg.AlertWebhookURL != ""))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down audit-watch")
	cancel()
}

type webhookForwarder struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func (f *webhookForwarder) forward(ctx context.Context, event events.Event) {
	if f.url == "" {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		f.log.Warn("failed to encode alert", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		f.log.Warn("failed to build alert request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Warn("failed to forward alert", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		f.log.Warn("alert webhook returned non-2xx", zap.Int("status", resp.StatusCode))
	}
}
