// Package workflow validates and applies incident patches against the current incident
// state and the actor's capabilities.
package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/rbac"
)

// ProfileLookup resolves an assignee. It returns apperr.ErrNotFound for unknown ids.
type ProfileLookup func(id uuid.UUID) (*models.Profile, error)

// Change is one field's before/after value, recorded in the audit trail.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

type Result struct {
	Incident models.Incident
	Changes  map[string]Change
}

type Engine struct {
	transitions TransitionValidator
	now         func() time.Time
}

type Option func(*Engine)

func WithTransitions(v TransitionValidator) Option {
	return func(e *Engine) {
		if v != nil {
			e.transitions = v
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{transitions: Unrestricted, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var fieldCapability = map[string]rbac.Capability{
	FieldStatus:     rbac.CapEditStatus,
	FieldSeverity:   rbac.CapEditSeverity,
	FieldAssignedTo: rbac.CapEditAssignment,
}

// Apply validates p against current and returns the updated incident. The first violation
// wins, in this order: unknown field, missing capability, invalid value, invalid assignee.
// current is never modified; on error the zero Result is returned.
func (e *Engine) Apply(actor models.Profile, current models.Incident, p Patch, lookup ProfileLookup) (Result, error) {
	if len(p.Unknown) > 0 {
		return Result{}, fmt.Errorf("%w: %s", apperr.ErrInvalidField, strings.Join(p.Unknown, ", "))
	}
	if p.Empty() {
		return Result{}, fmt.Errorf("%w: patch has no fields", apperr.ErrInvalidField)
	}

	caps := rbac.Capabilities(actor, &current)
	for _, field := range p.Fields() {
		if need := fieldCapability[field]; !caps.Has(need) {
			return Result{}, fmt.Errorf("%w: %s requires %s", apperr.ErrForbidden, field, need)
		}
	}

	next := current
	changes := map[string]Change{}

	if p.Status != nil {
		status := models.Status(*p.Status)
		if !status.Valid() {
			return Result{}, fmt.Errorf("%w: status %q", apperr.ErrInvalidValue, *p.Status)
		}
		if err := e.transitions.ValidateTransition(current.Status, status); err != nil {
			return Result{}, err
		}
		next.Status = status
		changes[FieldStatus] = Change{From: current.Status, To: status}
	}
	if p.Severity != nil {
		severity := models.Severity(*p.Severity)
		if !severity.Valid() {
			return Result{}, fmt.Errorf("%w: severity %q", apperr.ErrInvalidValue, *p.Severity)
		}
		next.Severity = severity
		changes[FieldSeverity] = Change{From: current.Severity, To: severity}
	}

	if p.AssignedTo != nil {
		assignee, err := resolveAssignee(p.AssignedTo, lookup)
		if err != nil {
			return Result{}, err
		}
		next.AssignedTo = assignee
		changes[FieldAssignedTo] = Change{From: uuidOrNil(current.AssignedTo), To: uuidOrNil(assignee)}
	}

	now := e.now().UTC()
	if !now.After(current.UpdatedAt) {
		now = current.UpdatedAt.Add(time.Microsecond)
	}
	next.UpdatedAt = now

	// Identity fields are owned by creation, never by a patch.
	next.ID = current.ID
	next.ReporterID = current.ReporterID
	next.CreatedAt = current.CreatedAt

	return Result{Incident: next, Changes: changes}, nil
}

func resolveAssignee(a *Assignment, lookup ProfileLookup) (*uuid.UUID, error) {
	if a.To == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*a.To)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a profile id", apperr.ErrInvalidAssignee, *a.To)
	}
	if lookup == nil {
		return nil, fmt.Errorf("%w: no profile lookup", apperr.ErrInvalidAssignee)
	}
	profile, err := lookup(id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: profile %s does not exist", apperr.ErrInvalidAssignee, id)
	}
	if err != nil {
		return nil, err
	}
	if !profile.Role.Assignable() {
		return nil, fmt.Errorf("%w: profile %s has role %s", apperr.ErrInvalidAssignee, id, profile.Role)
	}
	return &id, nil
}

// AuthorizeDelete gates hard deletion; only DELETE holders pass.
func (e *Engine) AuthorizeDelete(actor models.Profile, current models.Incident) error {
	if !rbac.Can(actor, &current, rbac.CapDelete) {
		return fmt.Errorf("%w: delete requires %s", apperr.ErrForbidden, rbac.CapDelete)
	}
	return nil
}

func uuidOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
