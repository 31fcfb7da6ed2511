package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/incidentdesk/backend/internal/config"
	"github.com/incidentdesk/backend/internal/http/handlers"
	"github.com/incidentdesk/backend/internal/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handlers struct {
	Incident      *handlers.IncidentHandler
	Collaboration *handlers.CollaborationHandler
	User          *handlers.UserHandler
	Audit         *handlers.AuditHandler
	Meta          *handlers.MetaHandler
}

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	profiles middleware.ProfileSource,
	h Handlers,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(cfg.CORSAllowOrigins, ","),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Expected-Updated-At",
		AllowMethods:  "GET,POST,PATCH,DELETE,OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))

	// Meta (public)
	api.Get("/meta/enums", h.Meta.GetEnums)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, profiles, log))

	// Me
	protected.Get("/me", h.User.GetMe)
	protected.Post("/me/ping", h.User.Ping)
	protected.Get("/dashboard", h.Incident.Dashboard)

	// Incidents
	protected.Get("/incidents", h.Incident.ListIncidents)
	protected.Post("/incidents", h.Incident.CreateIncident)
	protected.Get("/incidents/:id", h.Incident.GetIncident)
	protected.Get("/incidents/:id/detail", h.Incident.GetIncidentDetail)
	protected.Patch("/incidents/:id", h.Incident.UpdateIncident)
	protected.Delete("/incidents/:id", h.Incident.DeleteIncident)

	// Collaboration
	protected.Get("/incidents/:id/comments", h.Collaboration.ListComments)
	protected.Post("/incidents/:id/comments", h.Collaboration.AddComment)
	protected.Get("/incidents/:id/attachments", h.Collaboration.ListAttachments)
	protected.Post("/incidents/:id/attachments", h.Collaboration.AddAttachment)

	// Audit
	protected.Get("/audit-logs", h.Audit.ListAuditLogs)

	// Users
	protected.Get("/users", h.User.ListUsers)
	protected.Get("/users/assignable", h.User.ListAssignable)
	protected.Patch("/users/:id", h.User.UpdateUser)
	protected.Delete("/users/:id", h.User.DeleteUser)
}
