package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/auth"
	"github.com/incidentdesk/backend/internal/config"
	"github.com/incidentdesk/backend/internal/models"
	"go.uber.org/zap"
)

const (
	CtxUserID = "user_id"
	CtxActor  = "actor"
)

// ProfileSource resolves the token subject to its current profile.
type ProfileSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// AuthMiddleware authenticates the bearer token and loads the caller's profile. The role
// used for every authorization decision comes from the store, never from the token.
func AuthMiddleware(cfg *config.Config, profiles ProfileSource, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "missing authorization header")
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return unauthorized(c, "invalid authorization format")
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, cfg.JWTIssuer, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return unauthorized(c, "invalid or expired token")
		}

		profile, err := profiles.GetByID(c.UserContext(), claims.UserID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			return unauthorized(c, "unknown user")
		case err != nil:
			log.Error("load actor profile failed", zap.Stringer("user_id", claims.UserID), zap.Error(err))
			return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": "profile lookup failed", "code": apperr.Code(err)})
		}

		c.Locals(CtxUserID, profile.ID)
		c.Locals(CtxActor, *profile)

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": msg, "code": apperr.Code(apperr.ErrUnauthenticated)})
}

func GetUserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(CtxUserID).(uuid.UUID)
	return id
}

// GetActor returns the authenticated profile. Outside AuthMiddleware it is the zero
// profile, which holds no capabilities.
func GetActor(c *fiber.Ctx) models.Profile {
	p, _ := c.Locals(CtxActor).(models.Profile)
	return p
}
