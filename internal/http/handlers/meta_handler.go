package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/incidentdesk/backend/internal/http/dto"
	"github.com/incidentdesk/backend/internal/models"
)

type MetaHandler struct {
	enums dto.EnumsResponse
}

func NewMetaHandler() *MetaHandler {
	var e dto.EnumsResponse
	for _, s := range models.AllStatuses {
		e.Statuses = append(e.Statuses, string(s))
	}
	for _, s := range models.AllSeverities {
		e.Severities = append(e.Severities, string(s))
	}
	for _, r := range models.AllRoles {
		e.Roles = append(e.Roles, string(r))
	}
	return &MetaHandler{enums: e}
}

func (h *MetaHandler) GetEnums(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.enums})
}
