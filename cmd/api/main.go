package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/audit"
	"github.com/incidentdesk/backend/internal/auth"
	"github.com/incidentdesk/backend/internal/config"
	"github.com/incidentdesk/backend/internal/db"
	"github.com/incidentdesk/backend/internal/events"
	apphttp "github.com/incidentdesk/backend/internal/http"
	"github.com/incidentdesk/backend/internal/http/dto"
	"github.com/incidentdesk/backend/internal/http/handlers"
	"github.com/incidentdesk/backend/internal/middleware"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/repositories"
	"github.com/incidentdesk/backend/internal/repositories/memstore"
	"github.com/incidentdesk/backend/internal/services"
	"github.com/incidentdesk/backend/internal/workflow"
	"github.com/incidentdesk/backend/migrations"
	"go.uber.org/zap"
)

type profileStore interface {
	services.ProfileStore
	services.ProfileDirectory
	handlers.LoginToucher
}

type stores struct {
	incidents   services.IncidentStore
	profiles    profileStore
	comments    services.CommentStore
	attachments services.AttachmentStore
	audit       services.AuditStore
	close       func()
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) stores {
	if cfg.StorageDriver == config.StorageDriverMemory {
		m := memstore.New()
		log.Info("using in-memory storage")
		return stores{
			incidents:   m.Incidents(),
			profiles:    m.Profiles(),
			comments:    m.Comments(),
			attachments: m.Attachments(),
			audit:       m.Audit(),
			close:       func() {},
		}
	}

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}

	var migrationsFS fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		migrationsFS = os.DirFS(cfg.MigrationsDir)
	}
	if err := db.RunMigrations(ctx, pool, migrationsFS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	return stores{
		incidents:   repositories.NewIncidentRepo(pool),
		profiles:    repositories.NewProfileRepo(pool),
		comments:    repositories.NewCommentRepo(pool),
		attachments: repositories.NewAttachmentRepo(pool),
		audit:       repositories.NewAuditRepo(pool),
		close:       pool.Close,
	}
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	st := openStores(ctx, cfg, log)
	defer st.close()

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}

	// Events
	var publisher events.Publisher = events.NopPublisher{}
	if rdb != nil {
		defer rdb.Close()
		publisher = events.NewRedisPublisher(rdb, log)
	}

	// Workflow
	transitions := workflow.Unrestricted
	if cfg.StrictTransitions {
		transitions = workflow.Linear
		log.Info("strict status transitions enabled")
	}
	engine := workflow.NewEngine(workflow.WithTransitions(transitions))

	// Services
	recorder := audit.NewRecorder(st.audit, publisher, cfg.AuditStream, log)
	incidentService := services.NewIncidentService(st.incidents, st.profiles, st.comments, st.attachments,
		engine, recorder, publisher, cfg.IncidentStream, log)
	collabService := services.NewCollaborationService(st.incidents, st.comments, st.attachments,
		recorder, publisher, cfg.IncidentStream, log)
	userService := services.NewUserService(st.profiles, recorder, log)
	auditService := services.NewAuditService(st.audit, cfg.AuditListLimit)

	if cfg.BootstrapAdmin != "" {
		if err := bootstrapAdmin(ctx, cfg, st.profiles, recorder, os.Stdout, log); err != nil {
			log.Fatal("bootstrap failed", zap.Error(err))
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := apperr.HTTPStatus(err)
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{
				Error:     err.Error(),
				RequestID: middleware.GetRequestID(c),
			})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, st.profiles, apphttp.Handlers{
		Incident:      handlers.NewIncidentHandler(incidentService, log),
		Collaboration: handlers.NewCollaborationHandler(collabService, log),
		User:          handlers.NewUserHandler(userService, st.profiles, log),
		Audit:         handlers.NewAuditHandler(auditService, log),
		Meta:          handlers.NewMetaHandler(),
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server",
		zap.String("addr", addr),
		zap.String("storage", cfg.StorageDriver),
		zap.Bool("events", rdb != nil),
	)
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

// bootstrapAdmin ensures the configured admin profile exists. A token is written to out
// only when the profile was just created and only outside production; it never goes to
// the log. Use cmd/token for later tokens.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, profiles services.ProfileDirectory, recorder services.AuditRecorder, out io.Writer, log *zap.Logger) error {
	admin, created, err := services.EnsureProfile(ctx, profiles, recorder, cfg.BootstrapAdmin, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	log.Info("bootstrap admin ready", zap.String("username", admin.Username), zap.Bool("created", created))

	if admin.Role != models.RoleAdmin {
		log.Warn("bootstrap profile exists without admin role", zap.String("role", string(admin.Role)))
	}
	if !created || cfg.IsProduction() {
		return nil
	}
	token, err := auth.GenerateJWT(cfg.JWTSecret, cfg.JWTIssuer, admin.ID, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("bootstrap token: %w", err)
	}
	_, err = fmt.Fprintf(out, "bootstrap admin %s token: %s\n", admin.Username, token)
	return err
}
