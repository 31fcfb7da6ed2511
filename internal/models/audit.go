package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditInsert AuditAction = "INSERT"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

// Audited entity types
const (
	EntityIncident   = "Incident"
	EntityProfile    = "Profile"
	EntityComment    = "Comment"
	EntityAttachment = "Attachment"
)

// AuditLog is immutable once written. A nil UserID denotes a system-initiated change.
type AuditLog struct {
	ID         uuid.UUID   `json:"id"`
	UserID     *uuid.UUID  `json:"user_id,omitempty"`
	Action     AuditAction `json:"action"`
	EntityType string      `json:"entity_type"`
	EntityID   *uuid.UUID  `json:"entity_id,omitempty"`
	Changes    any         `json:"changes,omitempty"`
	IPAddress  *string     `json:"ip_address,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

type AuditFilter struct {
	EntityType *string
	Limit      int
}
