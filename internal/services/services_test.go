package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/incidentdesk/backend/internal/audit"
	"github.com/incidentdesk/backend/internal/events"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/repositories/memstore"
	"github.com/incidentdesk/backend/internal/workflow"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for n, e := range p.events {
		out[n] = e.Type
	}
	return out
}

// flakyAudit fails every append while broken is set.
type flakyAudit struct {
	*memstore.Audit
	mu     sync.Mutex
	broken bool
}

func (f *flakyAudit) Append(ctx context.Context, e *models.AuditLog) error {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return errors.New("audit table unavailable")
	}
	return f.Audit.Append(ctx, e)
}

type env struct {
	store     *memstore.Store
	audit     *flakyAudit
	publisher *recordingPublisher

	incidents *IncidentService
	collab    *CollaborationService
	users     *UserService
	auditLog  *AuditService

	admin, manager, reporter, other, responder, responder2 models.Profile
}

func newEnv(t *testing.T, opts ...workflow.Option) *env {
	t.Helper()
	log := zap.NewNop()
	store := memstore.New()
	auditStore := &flakyAudit{Audit: store.Audit()}
	pub := &recordingPublisher{}
	rec := audit.NewRecorder(auditStore, pub, "", log)

	e := &env{store: store, audit: auditStore, publisher: pub}
	e.incidents = NewIncidentService(store.Incidents(), store.Profiles(), store.Comments(), store.Attachments(),
		workflow.NewEngine(opts...), rec, pub, "", log)
	e.collab = NewCollaborationService(store.Incidents(), store.Comments(), store.Attachments(), rec, pub, "", log)
	e.users = NewUserService(store.Profiles(), rec, log)
	e.auditLog = NewAuditService(auditStore, 0)

	team := "secops"
	seed := func(name string, role models.Role) models.Profile {
		p := &models.Profile{Username: name, Role: role, Team: &team}
		if err := store.Profiles().Create(context.Background(), p); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
		return *p
	}
	e.admin = seed("admin", models.RoleAdmin)
	e.manager = seed("manager", models.RoleManager)
	e.reporter = seed("reporter", models.RoleReporter)
	e.other = seed("other", models.RoleReporter)
	e.responder = seed("responder", models.RoleResponder)
	e.responder2 = seed("responder2", models.RoleResponder)
	return e
}

func (e *env) create(t *testing.T, actor models.Profile) *models.Incident {
	t.Helper()
	i, err := e.incidents.Create(context.Background(), actor, models.IncidentDraft{
		Title:       "Suspicious login",
		Description: "Login from unknown ASN",
		Category:    "Security",
		Severity:    models.SeverityHigh,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return i
}

func (e *env) list(t *testing.T, actor models.Profile) []models.Incident {
	t.Helper()
	var out []models.Incident
	for i, err := range e.incidents.List(context.Background(), actor, models.IncidentFilter{}) {
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		out = append(out, i)
	}
	return out
}

func (e *env) auditFor(t *testing.T, entityType string) []models.AuditLog {
	t.Helper()
	logs, err := e.auditLog.List(context.Background(), e.admin, entityType)
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	return logs
}
