package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/events"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/rbac"
	"go.uber.org/zap"
)

const defaultMimeType = "application/octet-stream"

// CollaborationService appends comments and attachment metadata to incidents. Both inherit
// the parent incident's visibility and are gated by COMMENT.
type CollaborationService struct {
	incidents   IncidentStore
	comments    CommentStore
	attachments AttachmentStore
	recorder    AuditRecorder
	publisher   events.Publisher
	stream      string
	log         *zap.Logger
}

func NewCollaborationService(
	incidents IncidentStore,
	comments CommentStore,
	attachments AttachmentStore,
	recorder AuditRecorder,
	publisher events.Publisher,
	stream string,
	log *zap.Logger,
) *CollaborationService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if stream == "" {
		stream = events.StreamIncident
	}
	return &CollaborationService{
		incidents:   incidents,
		comments:    comments,
		attachments: attachments,
		recorder:    recorder,
		publisher:   publisher,
		stream:      stream,
		log:         log,
	}
}

func (s *CollaborationService) authorize(ctx context.Context, actor models.Profile, incidentID uuid.UUID) error {
	incident, err := s.incidents.Get(ctx, actor, incidentID)
	if err != nil {
		return err
	}
	if !rbac.Can(actor, incident, rbac.CapComment) {
		return fmt.Errorf("%w: requires %s", apperr.ErrForbidden, rbac.CapComment)
	}
	return nil
}

func (s *CollaborationService) AddComment(ctx context.Context, actor models.Profile, incidentID uuid.UUID, message string) (*models.Comment, error) {
	if err := s.authorize(ctx, actor, incidentID); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", apperr.ErrInvalidInput)
	}

	comment := &models.Comment{
		IncidentID: incidentID,
		AuthorID:   actor.ID,
		Message:    message,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, &actor.ID, models.AuditInsert, models.EntityComment, &comment.ID, comment)
	s.notify(ctx, events.EventCommentAdded, incidentID, comment.ID)
	return comment, nil
}

type AttachmentInput struct {
	StoragePath string
	Filename    string
	FileSize    int64
	MimeType    string
}

// AddAttachment records metadata for a blob already placed in the blob store.
func (s *CollaborationService) AddAttachment(ctx context.Context, actor models.Profile, incidentID uuid.UUID, in AttachmentInput) (*models.Attachment, error) {
	if err := s.authorize(ctx, actor, incidentID); err != nil {
		return nil, err
	}

	filename := strings.TrimSpace(in.Filename)
	storagePath := strings.TrimSpace(in.StoragePath)
	if filename == "" || storagePath == "" {
		return nil, fmt.Errorf("%w: filename and storage_path are required", apperr.ErrInvalidInput)
	}
	if in.FileSize < 0 {
		return nil, fmt.Errorf("%w: file_size must not be negative", apperr.ErrInvalidInput)
	}
	mimeType := strings.TrimSpace(in.MimeType)
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	attachment := &models.Attachment{
		IncidentID:  incidentID,
		UploaderID:  actor.ID,
		Filename:    filename,
		StoragePath: storagePath,
		FileSize:    in.FileSize,
		MimeType:    mimeType,
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, &actor.ID, models.AuditInsert, models.EntityAttachment, &attachment.ID, attachment)
	s.notify(ctx, events.EventAttachmentAdded, incidentID, attachment.ID)
	return attachment, nil
}

func (s *CollaborationService) ListComments(ctx context.Context, actor models.Profile, incidentID uuid.UUID) ([]models.Comment, error) {
	if _, err := s.incidents.Get(ctx, actor, incidentID); err != nil {
		return nil, err
	}
	return s.comments.ListByIncident(ctx, incidentID)
}

func (s *CollaborationService) ListAttachments(ctx context.Context, actor models.Profile, incidentID uuid.UUID) ([]models.Attachment, error) {
	if _, err := s.incidents.Get(ctx, actor, incidentID); err != nil {
		return nil, err
	}
	return s.attachments.ListByIncident(ctx, incidentID)
}

func (s *CollaborationService) notify(ctx context.Context, eventType string, incidentID, entityID uuid.UUID) {
	err := s.publisher.Publish(context.WithoutCancel(ctx), s.stream, events.Event{
		Type: eventType,
		Payload: map[string]any{
			"incident_id": incidentID.String(),
			"entity_id":   entityID.String(),
		},
	})
	if err != nil {
		s.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
