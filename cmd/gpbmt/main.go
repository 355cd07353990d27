package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gpbmt-org/gpbmt/internal/app"
	"github.com/gpbmt-org/gpbmt/internal/audit"
	"github.com/gpbmt-org/gpbmt/internal/auth"
	"github.com/gpbmt-org/gpbmt/internal/observability"
	"github.com/gpbmt-org/gpbmt/internal/parishes"
	"github.com/gpbmt-org/gpbmt/internal/parishioners"
	"github.com/gpbmt-org/gpbmt/internal/platform/cache"
	"github.com/gpbmt-org/gpbmt/internal/platform/db"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/roles"
	"github.com/gpbmt-org/gpbmt/internal/shared"
	"github.com/gpbmt-org/gpbmt/internal/users"
	"github.com/gpbmt-org/gpbmt/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessions := shared.NewSessionStore(redisClient, "gpbmt_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	tokens := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenIssuer, cfg.SessionTTL)
	gate := rbac.NewGate(rbac.ChainResolver{
		rbac.BearerResolver{Parser: tokens, Logger: logger},
		rbac.SessionResolver{Store: sessions, Logger: logger},
	}, logger, metrics)

	auditRepo := audit.NewRepository(pool)
	auditStore := audit.NewStore(auditRepo)
	var recorder audit.Recorder = auditStore
	if cfg.AuditAsync {
		jobClient := jobs.NewClient(cache.AsynqOpt(cfg.RedisAddr))
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		recorder = audit.NewQueue(jobClient, jobs.QueueAudit, auditStore, logger)
	}
	recorder = audit.Safe(recorder, logger)

	authHandler := auth.NewHandler(auth.HandlerDeps{
		Logger:         logger,
		Service:        auth.NewService(auth.NewRepository(pool), logger),
		Tokens:         tokens,
		Sessions:       sessions,
		CSRF:           csrfManager,
		Audit:          recorder,
		Gate:           gate,
		LoginPerMinute: cfg.LoginRatePerMinute,
	})

	usersService := users.NewService(users.NewRepository(pool), recorder, users.DefaultHashCost)
	rolesService := roles.NewService(roles.NewRepository(pool), cache.NewJSONCache(redisClient, "roles", 10*time.Minute))
	parishesService := parishes.NewService(
		parishes.NewRepository(pool),
		recorder,
		cache.NewJSONCache(redisClient, "parishes", 5*time.Minute),
		logger,
	)
	parishionersService := parishioners.NewService(parishioners.NewRepository(pool), recorder)

	inspector := asynq.NewInspector(cache.AsynqOpt(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionStore:        sessions,
		CSRFManager:         csrfManager,
		Metrics:             metrics,
		TokenParser:         tokens,
		AuthHandler:         authHandler,
		UsersHandler:        users.NewHandler(logger, usersService, gate),
		RolesHandler:        roles.NewHandler(logger, rolesService, gate),
		ParishesHandler:     parishes.NewHandler(logger, parishesService, gate),
		ParishionersHandler: parishioners.NewHandler(logger, parishionersService, gate),
		AuditHandler:        audit.NewHandler(logger, audit.NewService(auditRepo), gate),
		JobHandler:          jobs.NewHandler(inspector, logger, gate),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
