package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sitdb/sitdb/internal/app"
	"github.com/sitdb/sitdb/internal/auth"
	"github.com/sitdb/sitdb/internal/dashboard"
	"github.com/sitdb/sitdb/internal/observability"
	"github.com/sitdb/sitdb/internal/platform/cache"
	"github.com/sitdb/sitdb/internal/platform/db"
	"github.com/sitdb/sitdb/internal/rbac"
	"github.com/sitdb/sitdb/internal/realtime"
	"github.com/sitdb/sitdb/internal/reports"
	"github.com/sitdb/sitdb/internal/shared"
	"github.com/sitdb/sitdb/internal/users"
	"github.com/sitdb/sitdb/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	applied, err := db.Migrate(ctx, dbpool, logger)
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}
	if applied > 0 {
		logger.Info("migrations applied", slog.Int("count", applied))
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "sitdb_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	tokenManager := shared.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	validator := shared.NewValidator()
	auditLogger := shared.NewAuditLogger()

	authz, err := rbac.NewEngine(ctx)
	if err != nil {
		logger.Error("compile policy", slog.Any("error", err))
		os.Exit(1)
	}
	rbacMiddleware := rbac.Middleware{Users: rbac.NewPrincipalLoader(dbpool), Tokens: tokenManager, Logger: logger}

	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool, auditLogger)
	authService := auth.NewService(authRepo, tokenManager, validator)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	usersRepo := users.NewRepository(dbpool, auditLogger)
	usersService := users.NewService(usersRepo, authz, validator)
	usersHandler := users.NewHandler(logger, usersService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	broker := realtime.NewBroker(redisClient, logger)
	statsCache := dashboard.NewCache(redisClient, cfg.StatsCacheTTL, logger)

	reportOpts := reports.Options{
		StrictTransitions: cfg.ReportStrictTransitions,
		Stats:             statsCache,
		Changes:           broker,
	}
	if cfg.MirrorEnabled {
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		reportOpts.Mirror = jobClient
	}
	reportsRepo := reports.NewRepository(dbpool, auditLogger)
	reportsService := reports.NewService(reportsRepo, authz, validator, logger, reportOpts)
	reportsHandler := reports.NewHandler(logger, reportsService)

	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool), reportsRepo, statsCache, authz, logger)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService)

	realtimeHandler := realtime.NewHandler(logger, authz, realtime.NewChangeLog(dbpool), broker, metrics.RealtimeConnections(), cfg.RealtimePollInterval)
	go func() {
		if err := broker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("realtime broker stopped", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, authz, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		RBACMiddleware:   rbacMiddleware,
		AuthHandler:      authHandler,
		ReportsHandler:   reportsHandler,
		UsersHandler:     usersHandler,
		DashboardHandler: dashboardHandler,
		RealtimeHandler:  realtimeHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("mirror", cfg.MirrorEnabled))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
