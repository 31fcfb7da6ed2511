package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/models"
)

type fixture struct {
	reporter  models.Profile
	responder models.Profile
	other     models.Profile
	manager   models.Profile
	admin     models.Profile
	profiles  map[uuid.UUID]models.Profile
	incident  models.Incident
}

func newFixture() fixture {
	f := fixture{
		reporter:  models.Profile{ID: uuid.New(), Username: "rita", Role: models.RoleReporter},
		responder: models.Profile{ID: uuid.New(), Username: "xavier", Role: models.RoleResponder},
		other:     models.Profile{ID: uuid.New(), Username: "yann", Role: models.RoleResponder},
		manager:   models.Profile{ID: uuid.New(), Username: "maud", Role: models.RoleManager},
		admin:     models.Profile{ID: uuid.New(), Username: "ada", Role: models.RoleAdmin},
	}
	f.profiles = map[uuid.UUID]models.Profile{}
	for _, p := range []models.Profile{f.reporter, f.responder, f.other, f.manager, f.admin} {
		f.profiles[p.ID] = p
	}
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assignee := f.responder.ID
	f.incident = models.Incident{
		ID:          uuid.New(),
		ReporterID:  f.reporter.ID,
		Title:       "Phishing wave",
		Description: "Multiple users received credential phishing",
		Severity:    models.SeverityHigh,
		Status:      models.StatusNew,
		Category:    "Security",
		AssignedTo:  &assignee,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	return f
}

func (f fixture) lookup(id uuid.UUID) (*models.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &p, nil
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestApplyValidationOrder(t *testing.T) {
	f := newFixture()
	engine := NewEngine(WithClock(fixedClock))
	unknownID := uuid.New()

	tests := []struct {
		name  string
		actor models.Profile
		patch Patch
		want  error
	}{
		{"unknown field beats everything", f.reporter, Patch{Status: SetStatus("bogus"), Unknown: []string{"title"}}, apperr.ErrInvalidField},
		{"empty patch", f.manager, Patch{}, apperr.ErrInvalidField},
		{"forbidden beats invalid value", f.reporter, Patch{Status: SetStatus("bogus")}, apperr.ErrForbidden},
		{"unrelated responder", f.other, Patch{Status: SetStatus("triaged")}, apperr.ErrForbidden},
		{"responder cannot assign", f.responder, Patch{AssignedTo: AssignTo(f.other.ID)}, apperr.ErrForbidden},
		{"responder cannot unassign", f.responder, Patch{AssignedTo: Unassign()}, apperr.ErrForbidden},
		{"invalid status", f.manager, Patch{Status: SetStatus("open")}, apperr.ErrInvalidValue},
		{"invalid severity", f.manager, Patch{Severity: SetSeverity("urgent")}, apperr.ErrInvalidValue},
		{"invalid value beats invalid assignee", f.manager, Patch{Status: SetStatus("open"), AssignedTo: AssignTo(unknownID)}, apperr.ErrInvalidValue},
		{"assignee does not exist", f.manager, Patch{AssignedTo: AssignTo(unknownID)}, apperr.ErrInvalidAssignee},
		{"assignee is a reporter", f.manager, Patch{AssignedTo: AssignTo(f.reporter.ID)}, apperr.ErrInvalidAssignee},
		{"assignee is not a uuid", f.admin, Patch{AssignedTo: &Assignment{To: strPtr("bob")}}, apperr.ErrInvalidAssignee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Apply(tt.actor, f.incident, tt.patch, f.lookup)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if res.Incident.ID != uuid.Nil {
				t.Errorf("rejected patch must not return an incident")
			}
		})
	}
}

func TestApplySuccess(t *testing.T) {
	f := newFixture()
	engine := NewEngine(WithClock(fixedClock))

	res, err := engine.Apply(f.manager, f.incident, Patch{
		Status:     SetStatus("triaged"),
		Severity:   SetSeverity("critical"),
		AssignedTo: AssignTo(f.other.ID),
	}, f.lookup)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := res.Incident
	if got.Status != models.StatusTriaged || got.Severity != models.SeverityCritical {
		t.Errorf("fields not applied: %+v", got)
	}
	if !got.IsAssignedTo(f.other.ID) {
		t.Errorf("assigned_to = %v, want %s", got.AssignedTo, f.other.ID)
	}
	if !got.UpdatedAt.Equal(fixedClock()) {
		t.Errorf("updated_at = %s, want %s", got.UpdatedAt, fixedClock())
	}
	if len(res.Changes) != 3 {
		t.Errorf("changes = %v", res.Changes)
	}
	if c := res.Changes[FieldAssignedTo]; c.From != f.responder.ID.String() || c.To != f.other.ID.String() {
		t.Errorf("assigned_to change = %+v", c)
	}
}

func TestApplyAssignedResponderEditsStatusAndSeverity(t *testing.T) {
	f := newFixture()
	engine := NewEngine()
	res, err := engine.Apply(f.responder, f.incident, Patch{Status: SetStatus("in_progress"), Severity: SetSeverity("low")}, f.lookup)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Incident.Status != models.StatusInProgress || res.Incident.Severity != models.SeverityLow {
		t.Errorf("unexpected result %+v", res.Incident)
	}
}

func TestApplyUnassign(t *testing.T) {
	f := newFixture()
	res, err := NewEngine().Apply(f.admin, f.incident, Patch{AssignedTo: Unassign()}, f.lookup)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Incident.AssignedTo != nil {
		t.Errorf("assigned_to = %v, want nil", res.Incident.AssignedTo)
	}
	if c := res.Changes[FieldAssignedTo]; c.To != nil {
		t.Errorf("change.To = %v, want nil", c.To)
	}
}

func TestApplyIsAtomic(t *testing.T) {
	f := newFixture()
	before := f.incident
	res, err := NewEngine().Apply(f.manager, f.incident, Patch{Status: SetStatus("resolved"), Severity: SetSeverity("nope")}, f.lookup)
	if !errors.Is(err, apperr.ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
	if res.Incident.ID != uuid.Nil || res.Changes != nil {
		t.Errorf("partial result leaked: %+v", res)
	}
	if f.incident.Status != before.Status || f.incident.Severity != before.Severity {
		t.Errorf("current incident mutated: %+v", f.incident)
	}
}

func TestApplyKeepsIdentityFields(t *testing.T) {
	f := newFixture()
	engine := NewEngine()
	current := f.incident
	for _, p := range []Patch{
		{Status: SetStatus("triaged")},
		{Severity: SetSeverity("critical")},
		{AssignedTo: AssignTo(f.manager.ID)},
		{Status: SetStatus("closed"), AssignedTo: Unassign()},
		{Status: SetStatus("new")},
	} {
		res, err := engine.Apply(f.admin, current, p, f.lookup)
		if err != nil {
			t.Fatalf("Apply(%+v): %v", p, err)
		}
		if res.Incident.ReporterID != f.incident.ReporterID || !res.Incident.CreatedAt.Equal(f.incident.CreatedAt) {
			t.Fatalf("identity fields changed: %+v", res.Incident)
		}
		if !res.Incident.UpdatedAt.After(current.UpdatedAt) {
			t.Fatalf("updated_at did not advance")
		}
		current = res.Incident
	}
}

func TestLinearTransitions(t *testing.T) {
	f := newFixture()
	engine := NewEngine(WithTransitions(Linear))

	if _, err := engine.Apply(f.manager, f.incident, Patch{Status: SetStatus("closed")}, f.lookup); !errors.Is(err, apperr.ErrInvalidValue) {
		t.Errorf("skip to closed err = %v, want ErrInvalidValue", err)
	}
	res, err := engine.Apply(f.manager, f.incident, Patch{Status: SetStatus("triaged")}, f.lookup)
	if err != nil {
		t.Fatalf("new -> triaged: %v", err)
	}
	if _, err := engine.Apply(f.manager, res.Incident, Patch{Status: SetStatus("new")}, f.lookup); !errors.Is(err, apperr.ErrInvalidValue) {
		t.Errorf("reopen err = %v, want ErrInvalidValue", err)
	}
}

func TestUnrestrictedTransitions(t *testing.T) {
	f := newFixture()
	engine := NewEngine()
	closed := f.incident
	closed.Status = models.StatusClosed
	if _, err := engine.Apply(f.manager, closed, Patch{Status: SetStatus("new")}, f.lookup); err != nil {
		t.Errorf("closed -> new should be allowed by default: %v", err)
	}
}

func TestLookupFailureIsNotARejection(t *testing.T) {
	f := newFixture()
	boom := errors.New("connection reset")
	_, err := NewEngine().Apply(f.manager, f.incident, Patch{AssignedTo: AssignTo(f.other.ID)}, func(uuid.UUID) (*models.Profile, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) || apperr.IsRejection(err) {
		t.Errorf("err = %v, want the lookup failure unchanged", err)
	}
}

func TestAuthorizeDelete(t *testing.T) {
	f := newFixture()
	engine := NewEngine()
	if err := engine.AuthorizeDelete(f.admin, f.incident); err != nil {
		t.Errorf("admin delete: %v", err)
	}
	for _, actor := range []models.Profile{f.manager, f.responder, f.reporter} {
		if err := engine.AuthorizeDelete(actor, f.incident); !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("%s delete err = %v, want ErrForbidden", actor.Role, err)
		}
	}
}

func strPtr(s string) *string { return &s }
