package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/audit"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/auth"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/authz"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/config"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/database"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/events"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/generator"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/handlers"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/middleware"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/repositories"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/retry"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Host),
		zap.Bool("redis", cfg.Redis.Host != ""),
		zap.Bool("events", cfg.Events.URL != ""),
		zap.Bool("generator", cfg.Generator.IsAvailable()),
	)

	ctx := context.Background()

	// The database may still be starting when the engine comes up.
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUnavailable, err)
		}
		return db, nil
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// golang-migrate needs database/sql; the pool stays on pgx.
	sqlDB, err := sql.Open("postgres", cfg.Database.URL())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	idem := services.NewNopIdempotencyGuard()
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		idem = services.NewIdempotencyGuard(redisClient,
			time.Duration(cfg.Workflow.IdempotencyTTLHours)*time.Hour)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.URL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.Events.URL, cfg.Events.Exchange, logger)
		if err != nil {
			logger.Fatal("Failed to connect to event broker", zap.Error(err))
		}
		publisher = rabbit
	}
	defer publisher.Close()

	var drafter generator.Drafter
	if cfg.Generator.IsAvailable() {
		drafter, err = generator.NewClient(&generator.Config{
			Endpoint: cfg.Generator.Endpoint,
			Model:    cfg.Generator.Model,
			APIKey:   cfg.Generator.APIKey,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create draft generator", zap.Error(err))
		}
	}

	validator, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	defer validator.Close()
	authMiddleware := auth.NewMiddleware(validator, logger)

	auditor := audit.NewWorkflowAuditor(logger)
	gate := authz.NewGate(auditor, logger)

	projectRepo := repositories.NewProjectRepository(db)
	milestoneRepo := repositories.NewMilestoneRepository(db)
	contractRepo := repositories.NewContractRepository(db)
	scopeRepo := repositories.NewScopeRepository(db)
	progressRepo := repositories.NewProgressRepository(db)

	projectService := services.NewProjectService(db, projectRepo, contractRepo, scopeRepo,
		milestoneRepo, gate, auditor, publisher, drafter, &cfg.Workflow, logger)
	milestoneService := services.NewMilestoneService(db, projectRepo, milestoneRepo,
		gate, auditor, publisher, idem, &cfg.Workflow, logger)
	contractService := services.NewContractService(db, projectRepo, contractRepo,
		gate, publisher, logger)
	scopeService := services.NewScopeService(db, projectRepo, scopeRepo, gate, logger)
	progressService := services.NewProgressService(projectRepo, milestoneRepo, progressRepo,
		gate, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewProjectsHandler(projectService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewMilestonesHandler(milestoneService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewContractsHandler(contractService, scopeService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewProgressHandler(progressService, logger).RegisterRoutes(mux, authMiddleware)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting sitecrew-engine", zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
