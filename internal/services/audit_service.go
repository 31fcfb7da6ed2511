package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/rbac"
)

const defaultAuditLimit = 100

// AuditService exposes the audit trail read-only to VIEW_AUDIT holders.
type AuditService struct {
	store AuditStore
	limit int
}

func NewAuditService(store AuditStore, limit int) *AuditService {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	return &AuditService{store: store, limit: limit}
}

func (s *AuditService) List(ctx context.Context, actor models.Profile, entityType string) ([]models.AuditLog, error) {
	if !rbac.Can(actor, nil, rbac.CapViewAudit) {
		return nil, fmt.Errorf("%w: requires %s", apperr.ErrForbidden, rbac.CapViewAudit)
	}
	f := models.AuditFilter{Limit: s.limit}
	if et := strings.TrimSpace(entityType); et != "" && et != "all" {
		f.EntityType = &et
	}
	return s.store.List(ctx, f)
}
