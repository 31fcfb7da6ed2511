package services

import (
	"context"
	"iter"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/audit"
	"github.com/incidentdesk/backend/internal/models"
)

// IncidentStore is the incident store adapter. List and Get apply the actor's visibility
// scope in the data layer; out-of-scope incidents are reported as apperr.ErrNotFound.
type IncidentStore interface {
	// List yields the visible incidents newest first. The sequence is single-pass.
	List(ctx context.Context, actor models.Profile, f models.IncidentFilter) iter.Seq2[models.Incident, error]
	Get(ctx context.Context, actor models.Profile, id uuid.UUID) (*models.Incident, error)
	// Create assigns ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, incident *models.Incident) error
	// Update locks the visible incident, hands it to mutate and persists status, severity,
	// assigned_to and updated_at from the result. Nothing is written if mutate fails. A new
	// assignee is re-checked under the lock and rejected with apperr.ErrInvalidAssignee
	// unless it exists with an assignable role.
	Update(ctx context.Context, actor models.Profile, id uuid.UUID, mutate func(current models.Incident) (models.Incident, error)) (*models.Incident, error)
	// Delete removes the incident with its comments and attachments.
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	List(ctx context.Context) ([]models.Profile, error)
	ListByRoles(ctx context.Context, roles []models.Role) ([]models.Profile, error)
	// Update locks the profile and persists username, role and team from mutate's result.
	// A role that cannot hold assignments is rejected with apperr.ErrInvalidAssignee while
	// any incident is assigned to the profile.
	Update(ctx context.Context, id uuid.UUID, mutate func(current models.Profile) (models.Profile, error)) (*models.Profile, error)
	// Delete clears assignments to the profile and returns the ids of the incidents it
	// unassigned. It fails with apperr.ErrConflict while the profile is still referenced as
	// reporter, comment author or uploader.
	Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type CommentStore interface {
	Create(ctx context.Context, c *models.Comment) error
	ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]models.Comment, error)
}

type AttachmentStore interface {
	Create(ctx context.Context, a *models.Attachment) error
	ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]models.Attachment, error)
}

type AuditStore interface {
	audit.Store
	List(ctx context.Context, f models.AuditFilter) ([]models.AuditLog, error)
}

// AuditRecorder is satisfied by *audit.Recorder.
type AuditRecorder interface {
	Record(ctx context.Context, actorID *uuid.UUID, action models.AuditAction, entityType string, entityID *uuid.UUID, changes any)
}
