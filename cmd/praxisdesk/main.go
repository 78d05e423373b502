package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/praxisdesk/praxisdesk/internal/app"
	"github.com/praxisdesk/praxisdesk/internal/auth"
	"github.com/praxisdesk/praxisdesk/internal/authz"
	"github.com/praxisdesk/praxisdesk/internal/consultancy"
	"github.com/praxisdesk/praxisdesk/internal/file"
	"github.com/praxisdesk/praxisdesk/internal/mailer"
	"github.com/praxisdesk/praxisdesk/internal/platform/db"
	"github.com/praxisdesk/praxisdesk/internal/project"
	"github.com/praxisdesk/praxisdesk/internal/rbac"
	"github.com/praxisdesk/praxisdesk/internal/shared"
	"github.com/praxisdesk/praxisdesk/internal/users"
	"github.com/praxisdesk/praxisdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	audit := shared.NewAuditLogger(pool, logger)

	roleRepo := rbac.NewRepository(pool)
	registry := rbac.NewRegistry(roleRepo)
	roleService := rbac.NewService(roleRepo)
	rolesHandler := rbac.NewHandler(logger, roleService, registry)

	engine := authz.NewEngine(registry)

	notifier := mailer.NewNotifier(jobsClient, cfg.TeamEmail, logger)

	authRepo := auth.NewRepository(pool)
	tokens := auth.NewTokenService([]byte(cfg.JWTSecret), cfg.JWTTTL)
	resetCodes := auth.NewRedisResetCodes(redisClient)
	authService := auth.NewService(authRepo, tokens, resetCodes, notifier, logger)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.Middleware{Service: authService, Logger: logger}

	fileRepo := file.NewRepository(pool)
	fileService := file.NewService(fileRepo, engine, logger)

	userRepo := users.NewRepository(pool)
	usersService := users.NewService(userRepo, registry, audit, logger)
	usersHandler := users.NewHandler(logger, usersService)

	consultancyRepo := consultancy.NewRepository(pool)
	consultancyService := consultancy.NewService(consultancyRepo, fileService, usersService,
		notifier, engine, registry, audit, logger)
	consultancyHandler := consultancy.NewHandler(logger, consultancyService)

	projectRepo := project.NewRepository(pool)
	statsCache := project.NewStatsCache(projectRepo, redisClient, logger)
	projectService := project.NewService(projectRepo, fileService, usersService,
		engine, registry, statsCache, audit, logger)
	projectHandler := project.NewHandler(logger, projectService)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthMiddleware:     authMiddleware,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		ConsultancyHandler: consultancyHandler,
		ProjectHandler:     projectHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
