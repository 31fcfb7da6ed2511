package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/http/dto"
	"github.com/incidentdesk/backend/internal/middleware"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/rbac"
	"github.com/incidentdesk/backend/internal/services"
	"go.uber.org/zap"
)

// LoginToucher records that a profile was active.
type LoginToucher interface {
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
}

type UserHandler struct {
	userService *services.UserService
	logins      LoginToucher
	log         *zap.Logger
}

func NewUserHandler(userService *services.UserService, logins LoginToucher, log *zap.Logger) *UserHandler {
	return &UserHandler{userService: userService, logins: logins, log: log}
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	caps := rbac.Capabilities(actor, nil)
	for _, capability := range []rbac.Capability{rbac.CapEditAssignment, rbac.CapDelete} {
		if rbac.CanOnAny(actor, capability) {
			caps |= rbac.NewSet(capability)
		}
	}

	names := []string{}
	for _, capability := range caps.List() {
		names = append(names, capability.String())
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.MeResponse{Profile: actor, Capabilities: names}})
}

func (h *UserHandler) Ping(c *fiber.Ctx) error {
	if err := h.logins.TouchLastLogin(c.UserContext(), middleware.GetUserID(c)); err != nil {
		h.log.Error("failed to update last_login", zap.Error(err))
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.userService.List(reqCtx(c), middleware.GetActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: users})
}

func (h *UserHandler) ListAssignable(c *fiber.Ctx) error {
	users, err := h.userService.Assignable(reqCtx(c), middleware.GetActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: users})
}

func (h *UserHandler) UpdateUser(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	upd := models.ProfileUpdate{Username: req.Username, Team: req.Team}
	if req.Role != nil {
		role := models.Role(*req.Role)
		upd.Role = &role
	}

	profile, err := h.userService.Update(reqCtx(c), middleware.GetActor(c), id, upd)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: profile})
}

func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	if err := h.userService.Delete(reqCtx(c), middleware.GetActor(c), id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
