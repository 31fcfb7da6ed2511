package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/incidentdesk/backend/internal/http/dto"
	"github.com/incidentdesk/backend/internal/middleware"
	"github.com/incidentdesk/backend/internal/services"
	"go.uber.org/zap"
)

type AuditHandler struct {
	auditService *services.AuditService
	log          *zap.Logger
}

func NewAuditHandler(auditService *services.AuditService, log *zap.Logger) *AuditHandler {
	return &AuditHandler{auditService: auditService, log: log}
}

func (h *AuditHandler) ListAuditLogs(c *fiber.Ctx) error {
	logs, err := h.auditService.List(reqCtx(c), middleware.GetActor(c), c.Query("entity_type"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: logs})
}
