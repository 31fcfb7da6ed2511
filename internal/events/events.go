package events

import "context"

// Event types
const (
	EventIncidentCreated  = "incident_created"
	EventIncidentUpdated  = "incident_updated"
	EventIncidentDeleted  = "incident_deleted"
	EventCommentAdded     = "comment_added"
	EventAttachmentAdded  = "attachment_added"
	EventAuditWriteFailed = "audit_write_failed"
)

// Default streams
const (
	StreamIncident = "events:incident"
	StreamAudit    = "events:audit"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
