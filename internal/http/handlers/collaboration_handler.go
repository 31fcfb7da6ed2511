package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/http/dto"
	"github.com/incidentdesk/backend/internal/middleware"
	"github.com/incidentdesk/backend/internal/services"
	"go.uber.org/zap"
)

type CollaborationHandler struct {
	collab *services.CollaborationService
	log    *zap.Logger
}

func NewCollaborationHandler(collab *services.CollaborationService, log *zap.Logger) *CollaborationHandler {
	return &CollaborationHandler{collab: collab, log: log}
}

func (h *CollaborationHandler) ListComments(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return respondError(c, h.log, apperr.ErrNotFound)
	}
	comments, err := h.collab.ListComments(reqCtx(c), middleware.GetActor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: comments})
}

func (h *CollaborationHandler) AddComment(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return respondError(c, h.log, apperr.ErrNotFound)
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	comment, err := h.collab.AddComment(reqCtx(c), middleware.GetActor(c), id, req.Message)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: comment})
}

func (h *CollaborationHandler) ListAttachments(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return respondError(c, h.log, apperr.ErrNotFound)
	}
	attachments, err := h.collab.ListAttachments(reqCtx(c), middleware.GetActor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: attachments})
}

func (h *CollaborationHandler) AddAttachment(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return respondError(c, h.log, apperr.ErrNotFound)
	}
	var req dto.AddAttachmentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	attachment, err := h.collab.AddAttachment(reqCtx(c), middleware.GetActor(c), id, services.AttachmentInput{
		StoragePath: req.StoragePath,
		Filename:    req.Filename,
		FileSize:    req.FileSize,
		MimeType:    req.MimeType,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: attachment})
}
