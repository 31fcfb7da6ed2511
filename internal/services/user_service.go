package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/rbac"
	"github.com/incidentdesk/backend/internal/workflow"
	"go.uber.org/zap"
)

type UserService struct {
	profiles ProfileStore
	recorder AuditRecorder
	log      *zap.Logger
}

func NewUserService(profiles ProfileStore, recorder AuditRecorder, log *zap.Logger) *UserService {
	return &UserService{profiles: profiles, recorder: recorder, log: log}
}

func requireManageUsers(actor models.Profile) error {
	if !rbac.Can(actor, nil, rbac.CapManageUsers) {
		return fmt.Errorf("%w: requires %s", apperr.ErrForbidden, rbac.CapManageUsers)
	}
	return nil
}

func (s *UserService) List(ctx context.Context, actor models.Profile) ([]models.Profile, error) {
	if err := requireManageUsers(actor); err != nil {
		return nil, err
	}
	return s.profiles.List(ctx)
}

// Assignable lists profiles an incident may be assigned to, for actors who can assign.
func (s *UserService) Assignable(ctx context.Context, actor models.Profile) ([]models.Profile, error) {
	if !rbac.CanOnAny(actor, rbac.CapEditAssignment) {
		return nil, fmt.Errorf("%w: requires %s", apperr.ErrForbidden, rbac.CapEditAssignment)
	}
	return s.profiles.ListByRoles(ctx, models.AssignableRoles)
}

func (s *UserService) Update(ctx context.Context, actor models.Profile, id uuid.UUID, upd models.ProfileUpdate) (*models.Profile, error) {
	if err := requireManageUsers(actor); err != nil {
		return nil, err
	}

	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" {
			return nil, fmt.Errorf("%w: username must not be empty", apperr.ErrInvalidInput)
		}
		upd.Username = &name
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, fmt.Errorf("%w: role %q", apperr.ErrInvalidValue, *upd.Role)
		}
		if id == actor.ID && *upd.Role != actor.Role {
			return nil, fmt.Errorf("%w: cannot change your own role", apperr.ErrInvalidInput)
		}
	}
	if upd.Team != nil {
		team := strings.TrimSpace(*upd.Team)
		if team == "" {
			upd.Team = nil
			upd.ClearTeam = true
		} else {
			upd.Team = &team
		}
	}

	changes := map[string]any{}
	updated, err := s.profiles.Update(ctx, id, func(current models.Profile) (models.Profile, error) {
		next := current
		if upd.Username != nil && *upd.Username != current.Username {
			changes["username"] = map[string]any{"from": current.Username, "to": *upd.Username}
			next.Username = *upd.Username
		}
		if upd.Role != nil && *upd.Role != current.Role {
			changes["role"] = map[string]any{"from": current.Role, "to": *upd.Role}
			next.Role = *upd.Role
		}
		switch {
		case upd.ClearTeam && current.Team != nil:
			changes["team"] = map[string]any{"from": *current.Team, "to": nil}
			next.Team = nil
		case upd.Team != nil && (current.Team == nil || *current.Team != *upd.Team):
			changes["team"] = map[string]any{"from": current.Team, "to": *upd.Team}
			next.Team = upd.Team
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, &actor.ID, models.AuditUpdate, models.EntityProfile, &updated.ID, changes)
	return updated, nil
}

func (s *UserService) Delete(ctx context.Context, actor models.Profile, id uuid.UUID) error {
	if err := requireManageUsers(actor); err != nil {
		return err
	}
	if id == actor.ID {
		return fmt.Errorf("%w: cannot delete yourself", apperr.ErrInvalidInput)
	}
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	unassigned, err := s.profiles.Delete(ctx, id)
	if err != nil {
		return err
	}

	for _, incidentID := range unassigned {
		s.recorder.Record(ctx, &actor.ID, models.AuditUpdate, models.EntityIncident, &incidentID, map[string]workflow.Change{
			"assigned_to": {From: id.String(), To: nil},
		})
	}
	s.recorder.Record(ctx, &actor.ID, models.AuditDelete, models.EntityProfile, &id, profile)
	if len(unassigned) > 0 {
		s.log.Info("profile deleted with open assignments",
			zap.Stringer("profile_id", id),
			zap.Int("unassigned", len(unassigned)),
		)
	}
	return nil
}

// ProfileDirectory creates and finds profiles by username. It is used for provisioning,
// outside any actor's authority.
type ProfileDirectory interface {
	GetByUsername(ctx context.Context, username string) (*models.Profile, error)
	Create(ctx context.Context, p *models.Profile) error
}

// EnsureProfile returns the profile named username, creating it with role when missing.
// Creation is audited as a system action.
func EnsureProfile(ctx context.Context, dir ProfileDirectory, recorder AuditRecorder, username string, role models.Role) (*models.Profile, bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, false, fmt.Errorf("%w: username is required", apperr.ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, false, fmt.Errorf("%w: role %q", apperr.ErrInvalidValue, role)
	}

	existing, err := dir.GetByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, err
	}

	p := &models.Profile{Username: username, Role: role}
	if err := dir.Create(ctx, p); err != nil {
		return nil, false, err
	}
	recorder.Record(ctx, nil, models.AuditInsert, models.EntityProfile, &p.ID, p)
	return p, true, nil
}
