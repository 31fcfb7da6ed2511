package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/http/dto"
	"github.com/incidentdesk/backend/internal/middleware"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/services"
	"github.com/incidentdesk/backend/internal/workflow"
	"go.uber.org/zap"
)

const (
	headerExpectedUpdatedAt = "X-Expected-Updated-At"

	maxListLimit = 500
)

type IncidentHandler struct {
	incidentService *services.IncidentService
	log             *zap.Logger
}

func NewIncidentHandler(incidentService *services.IncidentService, log *zap.Logger) *IncidentHandler {
	return &IncidentHandler{incidentService: incidentService, log: log}
}

func (h *IncidentHandler) ListIncidents(c *fiber.Ctx) error {
	var filter models.IncidentFilter
	if v := c.Query("status"); v != "" && v != "all" {
		s := models.Status(v)
		if !s.Valid() {
			return badRequest(c, "unknown status filter")
		}
		filter.Status = &s
	}
	if v := c.Query("severity"); v != "" && v != "all" {
		s := models.Severity(v)
		if !s.Valid() {
			return badRequest(c, "unknown severity filter")
		}
		filter.Severity = &s
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "invalid limit")
		}
		filter.Limit = min(n, maxListLimit)
	}

	incidents := []models.Incident{}
	for incident, err := range h.incidentService.List(reqCtx(c), middleware.GetActor(c), filter) {
		if err != nil {
			return respondError(c, h.log, err)
		}
		incidents = append(incidents, incident)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: incidents})
}

func (h *IncidentHandler) GetIncident(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return respondError(c, h.log, apperr.ErrNotFound)
	}

	incident, err := h.incidentService.Get(reqCtx(c), middleware.GetActor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: incident})
}

func (h *IncidentHandler) GetIncidentDetail(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return respondError(c, h.log, apperr.ErrNotFound)
	}

	detail, err := h.incidentService.Detail(reqCtx(c), middleware.GetActor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: detail})
}

func (h *IncidentHandler) CreateIncident(c *fiber.Ctx) error {
	var req dto.CreateIncidentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	incident, err := h.incidentService.Create(reqCtx(c), middleware.GetActor(c), models.IncidentDraft{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Severity:    models.Severity(req.Severity),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: incident})
}

// UpdateIncident applies a workflow patch. The body is decoded by the workflow package so
// that unknown fields and malformed values are reported in the engine's order.
func (h *IncidentHandler) UpdateIncident(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return respondError(c, h.log, apperr.ErrNotFound)
	}

	patch, err := workflow.ParsePatch(c.Body())
	if err != nil {
		return respondError(c, h.log, err)
	}

	var expected *time.Time
	if v := c.Get(headerExpectedUpdatedAt); v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return badRequest(c, headerExpectedUpdatedAt+" must be RFC 3339")
		}
		expected = &ts
	}

	incident, err := h.incidentService.Update(reqCtx(c), middleware.GetActor(c), id, patch, expected)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: incident})
}

func (h *IncidentHandler) DeleteIncident(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return respondError(c, h.log, apperr.ErrNotFound)
	}

	if err := h.incidentService.Delete(reqCtx(c), middleware.GetActor(c), id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *IncidentHandler) Dashboard(c *fiber.Ctx) error {
	stats, err := h.incidentService.Dashboard(reqCtx(c), middleware.GetActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: stats})
}
