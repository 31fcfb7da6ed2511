// Package audit records accepted mutations. Recording is best effort: it runs after the
// business mutation has committed and its failures are logged and announced, never returned.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/events"
	"github.com/incidentdesk/backend/internal/models"
	"go.uber.org/zap"
)

// Store is the append-only audit sink.
type Store interface {
	Append(ctx context.Context, entry *models.AuditLog) error
}

type Recorder struct {
	store     Store
	publisher events.Publisher
	stream    string
	log       *zap.Logger
	now       func() time.Time
}

func NewRecorder(store Store, publisher events.Publisher, stream string, log *zap.Logger) *Recorder {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if stream == "" {
		stream = events.StreamAudit
	}
	return &Recorder{store: store, publisher: publisher, stream: stream, log: log, now: time.Now}
}

type ctxKey struct{}

// WithClientIP attaches the caller's address so that entries recorded under ctx carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, ip)
}

func clientIP(ctx context.Context) *string {
	ip, ok := ctx.Value(ctxKey{}).(string)
	if !ok || ip == "" {
		return nil
	}
	return &ip
}

// Record appends one audit entry. actorID is nil for system-initiated changes. The request
// may already be cancelled when Record runs, so the write is detached from ctx cancellation.
func (r *Recorder) Record(ctx context.Context, actorID *uuid.UUID, action models.AuditAction, entityType string, entityID *uuid.UUID, changes any) {
	ctx = context.WithoutCancel(ctx)
	entry := &models.AuditLog{
		ID:         uuid.New(),
		UserID:     actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		IPAddress:  clientIP(ctx),
		CreatedAt:  r.now().UTC(),
	}

	if err := r.store.Append(ctx, entry); err != nil {
		r.log.Error("audit write failed",
			zap.String("action", string(action)),
			zap.String("entity_type", entityType),
			zap.Stringer("entity_id", optionalID{entityID}),
			zap.Error(err),
		)
		alert := events.Event{
			Type: events.EventAuditWriteFailed,
			Payload: map[string]any{
				"action":      string(action),
				"entity_type": entityType,
				"entity_id":   optionalID{entityID}.String(),
				"error":       err.Error(),
			},
		}
		if perr := r.publisher.Publish(ctx, r.stream, alert); perr != nil {
			r.log.Warn("audit failure alert not published", zap.Error(perr))
		}
	}
}

type optionalID struct{ id *uuid.UUID }

func (o optionalID) String() string {
	if o.id == nil {
		return ""
	}
	return o.id.String()
}
