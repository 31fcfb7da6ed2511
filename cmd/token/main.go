package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/incidentdesk/backend/internal/audit"
	"github.com/incidentdesk/backend/internal/auth"
	"github.com/incidentdesk/backend/internal/config"
	"github.com/incidentdesk/backend/internal/db"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/repositories"
	"github.com/incidentdesk/backend/internal/services"
	"go.uber.org/zap"
)

// token prints a signed bearer token for an existing profile, optionally provisioning it.
//
//	token -user alice
//	token -user bob -create -role responder

func main() {
	username := flag.String("user", "", "profile username")
	create := flag.Bool("create", false, "create the profile when it does not exist")
	role := flag.String("role", string(models.RoleReporter), "role for a created profile")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer log.Sync()

	if *username == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	profiles := repositories.NewProfileRepo(pool)

	var profile *models.Profile
	if *create {
		recorder := audit.NewRecorder(repositories.NewAuditRepo(pool), nil, cfg.AuditStream, log)
		profile, _, err = services.EnsureProfile(ctx, profiles, recorder, *username, models.Role(*role))
	} else {
		profile, err = profiles.GetByUsername(ctx, *username)
	}
	if err != nil {
		log.Fatal("resolve profile", zap.String("username", *username), zap.Error(err))
	}

	token, err := auth.GenerateJWT(cfg.JWTSecret, cfg.JWTIssuer, profile.ID, cfg.JWTExpiration)
	if err != nil {
		log.Fatal("sign token", zap.Error(err))
	}
	fmt.Println(token)
}
