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

	"github.com/odyssey-erp/sentinel/internal/activity"
	"github.com/odyssey-erp/sentinel/internal/app"
	"github.com/odyssey-erp/sentinel/internal/auth"
	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/errorpage"
	"github.com/odyssey-erp/sentinel/internal/observability"
	"github.com/odyssey-erp/sentinel/internal/platform/cache"
	"github.com/odyssey-erp/sentinel/internal/platform/db"
	"github.com/odyssey-erp/sentinel/internal/queuemonitor"
	"github.com/odyssey-erp/sentinel/internal/rbac"
	"github.com/odyssey-erp/sentinel/internal/shared"
	"github.com/odyssey-erp/sentinel/internal/users"
	"github.com/odyssey-erp/sentinel/internal/view"
	"github.com/odyssey-erp/sentinel/jobs"
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

	dbpool, err := db.Connect(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "sentinel_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	metrics := observability.NewMetrics()
	errs := errorpage.NewHandler(cfg.ErrorPages(), templates, logger, metrics)

	engine, err := authz.NewDefaultEngine(authz.WithOverrideRole(cfg.OverrideRole))
	if err != nil {
		logger.Error("build authorization engine", slog.Any("error", err))
		os.Exit(1)
	}

	rbacRepo := rbac.NewPGRepository(dbpool)
	if err := rbac.ValidateEngine(ctx, engine, rbacRepo); err != nil {
		if cfg.IsProduction() {
			logger.Error("permission catalog incomplete", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Warn("permission catalog incomplete, run sentinelctl permissions seed", slog.Any("error", err))
	}
	principalCache := rbac.NewCache(redisClient, rbac.StoreLoader{Store: rbacRepo}, cfg.PrincipalCacheTTL, logger)

	activityService := activity.NewService(activity.NewRepository(dbpool), logger)
	rbacService := rbac.NewService(rbacRepo, principalCache, activityService, logger)
	rbacMiddleware := rbac.Middleware{
		Engine:   engine,
		Loader:   principalCache,
		Errors:   errs,
		Logger:   logger,
		Observer: metrics,
	}

	authService := auth.NewService(auth.NewRepository(dbpool),
		auth.WithThrottle(auth.NewThrottle(redisClient, cfg.LoginMaxAttempts, cfg.LoginDecay)),
		auth.WithRecorder(activityService, logger),
	)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, errs)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	queueService := queuemonitor.NewService(inspector, cfg.QueueMonitor(), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		CSRFManager:         csrfManager,
		Errors:              errs,
		RBACMiddleware:      rbacMiddleware,
		AuthHandler:         authHandler,
		AdminHandler:        rbac.NewHandler(rbacService, rbacMiddleware, errs),
		UsersHandler:        users.NewHandler(users.NewService(users.NewRepository(dbpool), activityService, logger, users.WithPrincipalCache(principalCache)), rbacMiddleware, errs),
		ActivityHandler:     activity.NewHandler(activityService, rbacMiddleware, errs),
		QueueMonitorHandler: queuemonitor.NewHandler(queueService, rbacMiddleware, errs, logger),
		JobHandler:          jobs.NewHandler(inspector, cfg.QueueNames, logger),
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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

