package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/audit"
	"github.com/incidentdesk/backend/internal/http/dto"
	"github.com/incidentdesk/backend/internal/middleware"
	"go.uber.org/zap"
)

// respondError writes err using the taxonomy status. Server-side failures are logged and
// their cause is not echoed to the client.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		msg = "internal error"
		if status == fiber.StatusServiceUnavailable {
			msg = "storage unavailable"
		}
	}
	return c.Status(status).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      apperr.Code(err),
		RequestID: middleware.GetRequestID(c),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      apperr.Code(apperr.ErrInvalidInput),
		RequestID: middleware.GetRequestID(c),
	})
}

// paramID parses a UUID route parameter. Incident routes answer a malformed id with
// not_found, like any id the caller cannot see.
func paramID(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

// reqCtx is the request context carrying the client address for audit entries.
func reqCtx(c *fiber.Ctx) context.Context {
	return audit.WithClientIP(c.UserContext(), c.IP())
}
