package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/incidentdesk/backend/internal/audit"
	"github.com/incidentdesk/backend/internal/auth"
	"github.com/incidentdesk/backend/internal/config"
	"github.com/incidentdesk/backend/internal/http/handlers"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/repositories/memstore"
	"github.com/incidentdesk/backend/internal/services"
	"github.com/incidentdesk/backend/internal/workflow"
	"go.uber.org/zap"
)

type testServer struct {
	app    *fiber.App
	cfg    *config.Config
	tokens map[models.Role]string
	ids    map[models.Role]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()
	cfg := &config.Config{JWTSecret: "test-secret", JWTIssuer: "incidentdesk", CORSAllowOrigins: []string{"*"}, AuditListLimit: 100}
	store := memstore.New()
	rec := audit.NewRecorder(store.Audit(), nil, "", log)

	incidentSvc := services.NewIncidentService(store.Incidents(), store.Profiles(), store.Comments(), store.Attachments(),
		workflow.NewEngine(), rec, nil, "", log)
	collabSvc := services.NewCollaborationService(store.Incidents(), store.Comments(), store.Attachments(), rec, nil, "", log)
	userSvc := services.NewUserService(store.Profiles(), rec, log)
	auditSvc := services.NewAuditService(store.Audit(), cfg.AuditListLimit)

	app := fiber.New()
	SetupRouter(app, cfg, log, nil, store.Profiles(), Handlers{
		Incident:      handlers.NewIncidentHandler(incidentSvc, log),
		Collaboration: handlers.NewCollaborationHandler(collabSvc, log),
		User:          handlers.NewUserHandler(userSvc, store.Profiles(), log),
		Audit:         handlers.NewAuditHandler(auditSvc, log),
		Meta:          handlers.NewMetaHandler(),
	})

	s := &testServer{app: app, cfg: cfg, tokens: map[models.Role]string{}, ids: map[models.Role]string{}}
	for _, role := range models.AllRoles {
		p := &models.Profile{Username: string(role), Role: role}
		if err := store.Profiles().Create(context.Background(), p); err != nil {
			t.Fatal(err)
		}
		tok, err := auth.GenerateJWT(cfg.JWTSecret, cfg.JWTIssuer, p.ID, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		s.tokens[role] = tok
		s.ids[role] = p.ID.String()
	}
	return s
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

func (s *testServer) do(t *testing.T, role models.Role, method, path, body string, headers ...string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[role])
	}
	for n := 0; n+1 < len(headers); n += 2 {
		req.Header.Set(headers[n], headers[n+1])
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
	}
	return resp.StatusCode, env
}

func (s *testServer) createIncident(t *testing.T, role models.Role) models.Incident {
	t.Helper()
	status, env := s.do(t, role, "POST", "/api/v1/incidents",
		`{"title":"Phishing mail","description":"CEO fraud attempt","category":"Security","severity":"high"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("create: status %d, %s", status, env.Error)
	}
	var i models.Incident
	if err := json.Unmarshal(env.Data, &i); err != nil {
		t.Fatal(err)
	}
	return i
}

func TestHealthAndEnums(t *testing.T) {
	s := newTestServer(t)
	if status, _ := s.do(t, "", "GET", "/health", ""); status != fiber.StatusOK {
		t.Errorf("health: %d", status)
	}
	status, env := s.do(t, "", "GET", "/api/v1/meta/enums", "")
	if status != fiber.StatusOK || !strings.Contains(string(env.Data), "triaged") {
		t.Errorf("enums: %d %s", status, env.Data)
	}
}

func TestUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, "", "GET", "/api/v1/incidents", "")
	if status != fiber.StatusUnauthorized || env.Code != "unauthenticated" {
		t.Errorf("status %d code %q", status, env.Code)
	}
}

func TestMalformedIncidentIDIsNotFound(t *testing.T) {
	s := newTestServer(t)
	for _, tt := range []struct {
		method, path, body string
	}{
		{"GET", "/api/v1/incidents/not-a-uuid", ""},
		{"GET", "/api/v1/incidents/not-a-uuid/detail", ""},
		{"PATCH", "/api/v1/incidents/not-a-uuid", `{"status":"resolved"}`},
		{"DELETE", "/api/v1/incidents/not-a-uuid", ""},
		{"POST", "/api/v1/incidents/not-a-uuid/comments", `{"message":"hi"}`},
		{"GET", "/api/v1/incidents/not-a-uuid/attachments", ""},
	} {
		status, env := s.do(t, models.RoleAdmin, tt.method, tt.path, tt.body)
		if status != fiber.StatusNotFound || env.Code != "not_found" {
			t.Errorf("%s %s: status %d code %q", tt.method, tt.path, status, env.Code)
		}
	}
}

func TestIncidentLifecycle(t *testing.T) {
	s := newTestServer(t)
	i := s.createIncident(t, models.RoleReporter)
	path := "/api/v1/incidents/" + i.ID.String()

	if status, _ := s.do(t, models.RoleResponder, "GET", path, ""); status != fiber.StatusNotFound {
		t.Errorf("responder get unassigned: %d", status)
	}

	tests := []struct {
		name     string
		role     models.Role
		body     string
		wantCode int
		wantErr  string
	}{
		{"unknown field", models.RoleManager, `{"title":"x"}`, fiber.StatusBadRequest, "invalid_field"},
		{"empty patch", models.RoleManager, `{}`, fiber.StatusBadRequest, "invalid_field"},
		{"not an object", models.RoleManager, `[1]`, fiber.StatusBadRequest, "invalid_input"},
		{"reporter edits status", models.RoleReporter, `{"status":"bogus"}`, fiber.StatusForbidden, "forbidden"},
		{"bad status value", models.RoleManager, `{"status":"bogus"}`, fiber.StatusBadRequest, "invalid_value"},
		{"reporter as assignee", models.RoleManager, `{"assigned_to":"` + s.ids[models.RoleReporter] + `"}`, fiber.StatusBadRequest, "invalid_assignee"},
		{"assign responder", models.RoleManager, `{"assigned_to":"` + s.ids[models.RoleResponder] + `"}`, fiber.StatusOK, ""},
		{"responder moves status", models.RoleResponder, `{"status":"in_progress"}`, fiber.StatusOK, ""},
		{"responder reassigns", models.RoleResponder, `{"assigned_to":null}`, fiber.StatusForbidden, "forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.do(t, tt.role, "PATCH", path, tt.body)
			if status != tt.wantCode || env.Code != tt.wantErr {
				t.Errorf("status %d code %q (%s), want %d %q", status, env.Code, env.Error, tt.wantCode, tt.wantErr)
			}
		})
	}

	status, env := s.do(t, models.RoleAdmin, "PATCH", path, `{"severity":"low"}`,
		"X-Expected-Updated-At", i.UpdatedAt.Format(time.RFC3339Nano))
	if status != fiber.StatusConflict || env.Code != "conflict" {
		t.Errorf("stale write: %d %q", status, env.Code)
	}

	if status, _ := s.do(t, models.RoleManager, "DELETE", path, ""); status != fiber.StatusForbidden {
		t.Errorf("manager delete: %d", status)
	}
	if status, _ := s.do(t, models.RoleAdmin, "DELETE", path, ""); status != fiber.StatusNoContent {
		t.Errorf("admin delete: %d", status)
	}
	if status, _ := s.do(t, models.RoleAdmin, "GET", path, ""); status != fiber.StatusNotFound {
		t.Errorf("get after delete: %d", status)
	}

	status, env = s.do(t, models.RoleAdmin, "GET", "/api/v1/audit-logs?entity_type=Incident", "")
	if status != fiber.StatusOK {
		t.Fatalf("audit: %d", status)
	}
	var logs []models.AuditLog
	if err := json.Unmarshal(env.Data, &logs); err != nil {
		t.Fatal(err)
	}
	// INSERT, two accepted UPDATEs, DELETE.
	if len(logs) != 4 || logs[0].Action != models.AuditDelete {
		t.Errorf("audit entries = %d, first = %v", len(logs), logs)
	}
	if logs[0].IPAddress == nil {
		t.Error("audit entry without client address")
	}
}

func TestListFilters(t *testing.T) {
	s := newTestServer(t)
	s.createIncident(t, models.RoleReporter)
	s.createIncident(t, models.RoleManager)

	tests := []struct {
		role  models.Role
		query string
		want  int
		code  int
	}{
		{models.RoleAdmin, "", 2, fiber.StatusOK},
		{models.RoleReporter, "", 1, fiber.StatusOK},
		{models.RoleResponder, "", 0, fiber.StatusOK},
		{models.RoleManager, "?severity=high&status=new", 2, fiber.StatusOK},
		{models.RoleManager, "?severity=low", 0, fiber.StatusOK},
		{models.RoleManager, "?status=all&limit=1", 1, fiber.StatusOK},
		{models.RoleManager, "?status=open", 0, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		status, env := s.do(t, tt.role, "GET", "/api/v1/incidents"+tt.query, "")
		if status != tt.code {
			t.Errorf("%s %s: status %d", tt.role, tt.query, status)
			continue
		}
		if status != fiber.StatusOK {
			continue
		}
		var got []models.Incident
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatal(err)
		}
		if len(got) != tt.want {
			t.Errorf("%s %s: %d incidents, want %d", tt.role, tt.query, len(got), tt.want)
		}
	}
}

func TestCommentsAndAttachments(t *testing.T) {
	s := newTestServer(t)
	i := s.createIncident(t, models.RoleReporter)
	base := "/api/v1/incidents/" + i.ID.String()

	if status, _ := s.do(t, models.RoleReporter, "POST", base+"/comments", `{"message":"  "}`); status != fiber.StatusBadRequest {
		t.Errorf("blank comment: %d", status)
	}
	if status, _ := s.do(t, models.RoleResponder, "POST", base+"/comments", `{"message":"hi"}`); status != fiber.StatusNotFound {
		t.Errorf("unassigned responder comment: %d", status)
	}
	if status, _ := s.do(t, models.RoleManager, "POST", base+"/comments", `{"message":"on it"}`); status != fiber.StatusCreated {
		t.Errorf("manager comment: %d", status)
	}
	if status, _ := s.do(t, models.RoleReporter, "POST", base+"/attachments",
		`{"storage_path":"incidents/x/headers.eml","filename":"headers.eml","file_size":2048,"mime_type":"message/rfc822"}`); status != fiber.StatusCreated {
		t.Errorf("attachment: %d", status)
	}

	status, env := s.do(t, models.RoleReporter, "GET", base+"/detail", "")
	if status != fiber.StatusOK {
		t.Fatalf("detail: %d", status)
	}
	var d models.IncidentDetail
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatal(err)
	}
	if len(d.Comments) != 1 || len(d.Attachments) != 1 {
		t.Errorf("detail = %+v", d)
	}
}

func TestUserAdministration(t *testing.T) {
	s := newTestServer(t)

	if status, _ := s.do(t, models.RoleManager, "GET", "/api/v1/users", ""); status != fiber.StatusForbidden {
		t.Errorf("manager list users: %d", status)
	}
	if status, _ := s.do(t, models.RoleManager, "GET", "/api/v1/users/assignable", ""); status != fiber.StatusOK {
		t.Errorf("manager assignable: %d", status)
	}
	if status, _ := s.do(t, models.RoleAdmin, "GET", "/api/v1/audit-logs", ""); status != fiber.StatusOK {
		t.Errorf("admin audit: %d", status)
	}
	if status, _ := s.do(t, models.RoleManager, "GET", "/api/v1/audit-logs", ""); status != fiber.StatusForbidden {
		t.Errorf("manager audit: %d", status)
	}

	responder := "/api/v1/users/" + s.ids[models.RoleResponder]
	status, env := s.do(t, models.RoleAdmin, "PATCH", responder, `{"team":"blue"}`)
	if status != fiber.StatusOK || !strings.Contains(string(env.Data), `"team":"blue"`) {
		t.Errorf("update user: %d %s", status, env.Data)
	}
	if status, _ := s.do(t, models.RoleAdmin, "PATCH", responder, `{"role":"superuser"}`); status != fiber.StatusBadRequest {
		t.Errorf("bad role: %d", status)
	}
	if status, _ := s.do(t, models.RoleAdmin, "DELETE", "/api/v1/users/"+s.ids[models.RoleAdmin], ""); status != fiber.StatusBadRequest {
		t.Errorf("self delete: %d", status)
	}
	if status, _ := s.do(t, models.RoleAdmin, "DELETE", responder, ""); status != fiber.StatusNoContent {
		t.Errorf("delete responder: %d", status)
	}
	if status, _ := s.do(t, models.RoleResponder, "GET", "/api/v1/me", ""); status != fiber.StatusUnauthorized {
		t.Errorf("deleted user still authenticated: %d", status)
	}

	status, env = s.do(t, models.RoleManager, "GET", "/api/v1/me", "")
	if status != fiber.StatusOK || !strings.Contains(string(env.Data), "EDIT_ASSIGNMENT") {
		t.Errorf("me: %d %s", status, env.Data)
	}
}
