// Package memstore is an in-process implementation of the store ports, used for local
// runs (STORAGE_DRIVER=memory) and tests. A single lock guards every table, so each
// method is atomic with respect to the others.
package memstore

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/rbac"
)

type Store struct {
	mu          sync.RWMutex
	profiles    map[uuid.UUID]models.Profile
	incidents   map[uuid.UUID]models.Incident
	comments    map[uuid.UUID]models.Comment
	attachments map[uuid.UUID]models.Attachment
	audit       []models.AuditLog
	last        time.Time
}

func New() *Store {
	return &Store{
		profiles:    make(map[uuid.UUID]models.Profile),
		incidents:   make(map[uuid.UUID]models.Incident),
		comments:    make(map[uuid.UUID]models.Comment),
		attachments: make(map[uuid.UUID]models.Attachment),
	}
}

// tick returns a timestamp strictly after every previous one. Callers hold mu.
func (s *Store) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

func (s *Store) Incidents() *Incidents     { return &Incidents{s} }
func (s *Store) Profiles() *Profiles       { return &Profiles{s} }
func (s *Store) Comments() *Comments       { return &Comments{s} }
func (s *Store) Attachments() *Attachments { return &Attachments{s} }
func (s *Store) Audit() *Audit             { return &Audit{s} }

// Incidents

type Incidents struct{ s *Store }

func (r *Incidents) List(ctx context.Context, actor models.Profile, f models.IncidentFilter) iter.Seq2[models.Incident, error] {
	return func(yield func(models.Incident, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(models.Incident{}, err)
			return
		}
		scope := rbac.Scope(actor)
		if scope.None() {
			return
		}

		r.s.mu.RLock()
		snapshot := make([]models.Incident, 0, len(r.s.incidents))
		for _, i := range r.s.incidents {
			if !scope.Allows(i) {
				continue
			}
			if f.Status != nil && i.Status != *f.Status {
				continue
			}
			if f.Severity != nil && i.Severity != *f.Severity {
				continue
			}
			snapshot = append(snapshot, i)
		}
		r.s.mu.RUnlock()

		sort.Slice(snapshot, func(a, b int) bool {
			if !snapshot[a].CreatedAt.Equal(snapshot[b].CreatedAt) {
				return snapshot[a].CreatedAt.After(snapshot[b].CreatedAt)
			}
			return snapshot[a].ID.String() > snapshot[b].ID.String()
		})
		if f.Limit > 0 && len(snapshot) > f.Limit {
			snapshot = snapshot[:f.Limit]
		}

		for _, i := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(models.Incident{}, err)
				return
			}
			if !yield(i, nil) {
				return
			}
		}
	}
}

func (r *Incidents) Get(ctx context.Context, actor models.Profile, id uuid.UUID) (*models.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	i, ok := r.s.incidents[id]
	if !ok || !rbac.Scope(actor).Allows(i) {
		return nil, apperr.ErrNotFound
	}
	return &i, nil
}

func (r *Incidents) Create(ctx context.Context, i *models.Incident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.profiles[i.ReporterID]; !ok {
		return fmt.Errorf("%w: reporter %s does not exist", apperr.ErrConflict, i.ReporterID)
	}
	i.ID = uuid.New()
	i.CreatedAt = r.s.tick()
	i.UpdatedAt = i.CreatedAt
	r.s.incidents[i.ID] = *i
	return nil
}

func (r *Incidents) Update(ctx context.Context, actor models.Profile, id uuid.UUID, mutate func(models.Incident) (models.Incident, error)) (*models.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.incidents[id]
	if !ok || !rbac.Scope(actor).Allows(current) {
		return nil, apperr.ErrNotFound
	}

	next, err := mutate(current)
	if err != nil {
		return nil, err
	}
	if next.AssignedTo != nil && !current.IsAssignedTo(*next.AssignedTo) {
		p, ok := r.s.profiles[*next.AssignedTo]
		if !ok {
			return nil, fmt.Errorf("%w: assignee %s does not exist", apperr.ErrInvalidAssignee, *next.AssignedTo)
		}
		if !p.Role.Assignable() {
			return nil, fmt.Errorf("%w: assignee has role %s", apperr.ErrInvalidAssignee, p.Role)
		}
	}

	stored := current
	stored.Status = next.Status
	stored.Severity = next.Severity
	stored.AssignedTo = next.AssignedTo
	stored.UpdatedAt = next.UpdatedAt
	r.s.incidents[id] = stored
	return &stored, nil
}

func (r *Incidents) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.incidents[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(r.s.incidents, id)
	for cid, c := range r.s.comments {
		if c.IncidentID == id {
			delete(r.s.comments, cid)
		}
	}
	for aid, a := range r.s.attachments {
		if a.IncidentID == id {
			delete(r.s.attachments, aid)
		}
	}
	return nil
}

// assignedTo counts incidents assigned to the profile. Callers hold mu.
func (s *Store) assignedTo(profileID uuid.UUID) int {
	n := 0
	for _, i := range s.incidents {
		if i.IsAssignedTo(profileID) {
			n++
		}
	}
	return n
}

// Profiles

type Profiles struct{ s *Store }

func (r *Profiles) usernameTaken(username string, except uuid.UUID) bool {
	for id, p := range r.s.profiles {
		if id != except && p.Username == username {
			return true
		}
	}
	return false
}

func (r *Profiles) Create(ctx context.Context, p *models.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.usernameTaken(p.Username, uuid.Nil) {
		return fmt.Errorf("%w: username %q is taken", apperr.ErrConflict, p.Username)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = r.s.tick()
	r.s.profiles[p.ID] = *p
	return nil
}

func (r *Profiles) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &p, nil
}

func (r *Profiles) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.profiles {
		if p.Username == username {
			return &p, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (r *Profiles) List(ctx context.Context) ([]models.Profile, error) {
	return r.filter(ctx, func(models.Profile) bool { return true }, func(a, b models.Profile) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func (r *Profiles) ListByRoles(ctx context.Context, roles []models.Role) ([]models.Profile, error) {
	want := make(map[models.Role]bool, len(roles))
	for _, role := range roles {
		want[role] = true
	}
	return r.filter(ctx, func(p models.Profile) bool { return want[p.Role] }, func(a, b models.Profile) bool {
		return a.Username < b.Username
	})
}

func (r *Profiles) filter(ctx context.Context, keep func(models.Profile) bool, less func(a, b models.Profile) bool) ([]models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	out := []models.Profile{}
	for _, p := range r.s.profiles {
		if keep(p) {
			out = append(out, p)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return less(out[a], out[b]) })
	return out, nil
}

func (r *Profiles) Update(ctx context.Context, id uuid.UUID, mutate func(models.Profile) (models.Profile, error)) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.profiles[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	next, err := mutate(current)
	if err != nil {
		return nil, err
	}
	if r.usernameTaken(next.Username, id) {
		return nil, fmt.Errorf("%w: username %q is taken", apperr.ErrConflict, next.Username)
	}
	if !next.Role.Assignable() {
		if n := r.s.assignedTo(id); n > 0 {
			return nil, fmt.Errorf("%w: profile is assigned to %d incident(s)", apperr.ErrInvalidAssignee, n)
		}
	}

	stored := current
	stored.Username = next.Username
	stored.Role = next.Role
	stored.Team = next.Team
	r.s.profiles[id] = stored
	return &stored, nil
}

func (r *Profiles) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return apperr.ErrNotFound
	}
	now := r.s.tick()
	p.LastLogin = &now
	r.s.profiles[id] = p
	return nil
}

func (r *Profiles) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.profiles[id]; !ok {
		return nil, apperr.ErrNotFound
	}
	for _, i := range r.s.incidents {
		if i.ReporterID == id {
			return nil, fmt.Errorf("%w: profile reported incident %s", apperr.ErrConflict, i.ID)
		}
	}
	for _, c := range r.s.comments {
		if c.AuthorID == id {
			return nil, fmt.Errorf("%w: profile authored comment %s", apperr.ErrConflict, c.ID)
		}
	}
	for _, a := range r.s.attachments {
		if a.UploaderID == id {
			return nil, fmt.Errorf("%w: profile uploaded attachment %s", apperr.ErrConflict, a.ID)
		}
	}

	unassigned := []uuid.UUID{}
	for iid, i := range r.s.incidents {
		if i.IsAssignedTo(id) {
			i.AssignedTo = nil
			i.UpdatedAt = r.s.tick()
			r.s.incidents[iid] = i
			unassigned = append(unassigned, iid)
		}
	}
	sort.Slice(unassigned, func(a, b int) bool { return unassigned[a].String() < unassigned[b].String() })
	delete(r.s.profiles, id)
	return unassigned, nil
}

// Comments

type Comments struct{ s *Store }

func (r *Comments) Create(ctx context.Context, c *models.Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.incidents[c.IncidentID]; !ok {
		return apperr.ErrNotFound
	}
	c.ID = uuid.New()
	c.CreatedAt = r.s.tick()
	r.s.comments[c.ID] = *c
	return nil
}

func (r *Comments) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]models.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	out := []models.Comment{}
	for _, c := range r.s.comments {
		if c.IncidentID == incidentID {
			out = append(out, c)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

// Attachments

type Attachments struct{ s *Store }

func (r *Attachments) Create(ctx context.Context, a *models.Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.incidents[a.IncidentID]; !ok {
		return apperr.ErrNotFound
	}
	a.ID = uuid.New()
	a.CreatedAt = r.s.tick()
	r.s.attachments[a.ID] = *a
	return nil
}

func (r *Attachments) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]models.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	out := []models.Attachment{}
	for _, a := range r.s.attachments {
		if a.IncidentID == incidentID {
			out = append(out, a)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

// Audit

type Audit struct{ s *Store }

func (r *Audit) Append(ctx context.Context, entry *models.AuditLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = r.s.tick()
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

// List returns entries newest first.
func (r *Audit) List(ctx context.Context, f models.AuditFilter) ([]models.AuditLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.AuditLog{}
	for n := len(r.s.audit) - 1; n >= 0; n-- {
		e := r.s.audit[n]
		if f.EntityType != nil && e.EntityType != *f.EntityType {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
