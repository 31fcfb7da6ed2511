package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/events"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/rbac"
	"github.com/incidentdesk/backend/internal/workflow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const dashboardRecent = 5

type IncidentService struct {
	incidents   IncidentStore
	profiles    ProfileStore
	comments    CommentStore
	attachments AttachmentStore
	engine      *workflow.Engine
	recorder    AuditRecorder
	publisher   events.Publisher
	stream      string
	log         *zap.Logger
}

func NewIncidentService(
	incidents IncidentStore,
	profiles ProfileStore,
	comments CommentStore,
	attachments AttachmentStore,
	engine *workflow.Engine,
	recorder AuditRecorder,
	publisher events.Publisher,
	stream string,
	log *zap.Logger,
) *IncidentService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if stream == "" {
		stream = events.StreamIncident
	}
	return &IncidentService{
		incidents:   incidents,
		profiles:    profiles,
		comments:    comments,
		attachments: attachments,
		engine:      engine,
		recorder:    recorder,
		publisher:   publisher,
		stream:      stream,
		log:         log,
	}
}

// List returns the incidents visible to actor, narrowed by f.
func (s *IncidentService) List(ctx context.Context, actor models.Profile, f models.IncidentFilter) iter.Seq2[models.Incident, error] {
	return s.incidents.List(ctx, actor, f)
}

func (s *IncidentService) Get(ctx context.Context, actor models.Profile, id uuid.UUID) (*models.Incident, error) {
	return s.incidents.Get(ctx, actor, id)
}

// Detail loads an incident with its comments and attachments.
func (s *IncidentService) Detail(ctx context.Context, actor models.Profile, id uuid.UUID) (*models.IncidentDetail, error) {
	incident, err := s.incidents.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	detail := &models.IncidentDetail{Incident: *incident}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		comments, err := s.comments.ListByIncident(gctx, id)
		detail.Comments = comments
		return err
	})
	g.Go(func() error {
		attachments, err := s.attachments.ListByIncident(gctx, id)
		detail.Attachments = attachments
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if detail.Comments == nil {
		detail.Comments = []models.Comment{}
	}
	if detail.Attachments == nil {
		detail.Attachments = []models.Attachment{}
	}
	return detail, nil
}

func (s *IncidentService) Create(ctx context.Context, actor models.Profile, draft models.IncidentDraft) (*models.Incident, error) {
	if !rbac.Can(actor, nil, rbac.CapCreate) {
		return nil, fmt.Errorf("%w: create requires %s", apperr.ErrForbidden, rbac.CapCreate)
	}

	title := strings.TrimSpace(draft.Title)
	description := strings.TrimSpace(draft.Description)
	category := strings.TrimSpace(draft.Category)
	if title == "" || description == "" || category == "" {
		return nil, fmt.Errorf("%w: title, description and category are required", apperr.ErrInvalidInput)
	}

	severity := draft.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	if !severity.Valid() {
		return nil, fmt.Errorf("%w: severity %q", apperr.ErrInvalidValue, severity)
	}

	incident := &models.Incident{
		ReporterID:  actor.ID,
		Title:       title,
		Description: description,
		Severity:    severity,
		Status:      models.StatusNew,
		Category:    category,
		Team:        actor.Team,
	}
	if err := s.incidents.Create(ctx, incident); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, &actor.ID, models.AuditInsert, models.EntityIncident, &incident.ID, incident)
	s.publish(ctx, events.EventIncidentCreated, incident.ID, map[string]any{
		"severity": string(incident.Severity),
		"category": incident.Category,
	})
	return incident, nil
}

// Update validates p against the current incident under a row lock and persists it.
// When expectedUpdatedAt is set and no longer matches, the update is rejected with
// apperr.ErrConflict.
func (s *IncidentService) Update(ctx context.Context, actor models.Profile, id uuid.UUID, p workflow.Patch, expectedUpdatedAt *time.Time) (*models.Incident, error) {
	lookup, err := s.prefetchAssignee(ctx, p)
	if err != nil {
		return nil, err
	}

	var changes map[string]workflow.Change
	updated, err := s.incidents.Update(ctx, actor, id, func(current models.Incident) (models.Incident, error) {
		if expectedUpdatedAt != nil && !current.UpdatedAt.Equal(*expectedUpdatedAt) {
			return models.Incident{}, fmt.Errorf("%w: incident was modified at %s", apperr.ErrConflict, current.UpdatedAt.Format(time.RFC3339Nano))
		}
		res, err := s.engine.Apply(actor, current, p, lookup)
		if err != nil {
			return models.Incident{}, err
		}
		changes = res.Changes
		return res.Incident, nil
	})
	if err != nil {
		if apperr.IsRejection(err) {
			s.log.Debug("incident update rejected",
				zap.Stringer("incident_id", id),
				zap.Stringer("actor_id", actor.ID),
				zap.String("reason", apperr.Code(err)),
			)
		}
		return nil, err
	}

	s.recorder.Record(ctx, &actor.ID, models.AuditUpdate, models.EntityIncident, &updated.ID, changes)
	s.publish(ctx, events.EventIncidentUpdated, updated.ID, map[string]any{"fields": p.Fields()})
	return updated, nil
}

// prefetchAssignee resolves the requested assignee before the row lock is taken so the
// engine's lookup never touches the store while the incident is locked.
func (s *IncidentService) prefetchAssignee(ctx context.Context, p workflow.Patch) (workflow.ProfileLookup, error) {
	if p.AssignedTo == nil || p.AssignedTo.To == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*p.AssignedTo.To)
	if err != nil {
		// The engine reports the malformed id in its own order.
		return nil, nil
	}
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	return func(want uuid.UUID) (*models.Profile, error) {
		if profile == nil || want != id {
			return nil, apperr.ErrNotFound
		}
		return profile, nil
	}, nil
}

func (s *IncidentService) Delete(ctx context.Context, actor models.Profile, id uuid.UUID) error {
	incident, err := s.incidents.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.engine.AuthorizeDelete(actor, *incident); err != nil {
		return err
	}
	if err := s.incidents.Delete(ctx, id); err != nil {
		return err
	}

	s.recorder.Record(ctx, &actor.ID, models.AuditDelete, models.EntityIncident, &id, incident)
	s.publish(ctx, events.EventIncidentDeleted, id, nil)
	return nil
}

// Dashboard summarizes the most recent visible incidents.
func (s *IncidentService) Dashboard(ctx context.Context, actor models.Profile) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{Recent: []models.Incident{}}
	for incident, err := range s.incidents.List(ctx, actor, models.IncidentFilter{Limit: dashboardRecent}) {
		if err != nil {
			return nil, err
		}
		stats.Total++
		switch incident.Status {
		case models.StatusNew:
			stats.New++
		case models.StatusInProgress:
			stats.InProgress++
		case models.StatusResolved:
			stats.Resolved++
		}
		if incident.Severity == models.SeverityCritical {
			stats.Critical++
		}
		stats.Recent = append(stats.Recent, incident)
	}
	return stats, nil
}

func (s *IncidentService) publish(ctx context.Context, eventType string, incidentID uuid.UUID, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["incident_id"] = incidentID.String()
	if err := s.publisher.Publish(context.WithoutCancel(ctx), s.stream, events.Event{Type: eventType, Payload: payload}); err != nil {
		s.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
