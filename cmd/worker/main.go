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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/sentinel/internal/activity"
	"github.com/odyssey-erp/sentinel/internal/app"
	jobmetrics "github.com/odyssey-erp/sentinel/internal/jobs"
	"github.com/odyssey-erp/sentinel/internal/platform/db"
	"github.com/odyssey-erp/sentinel/internal/queuemonitor"
	"github.com/odyssey-erp/sentinel/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.Connect(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	queueService := queuemonitor.NewService(inspector, cfg.QueueMonitor(), logger)
	activityService := activity.NewService(activity.NewRepository(pool), logger)

	queuePrune := jobs.NewQueuePruneJob(queueService, logger, metrics)
	activityPrune := jobs.NewActivityPruneJob(activityService, cfg.ActivityRetention(), logger, metrics)

	activityTask, err := jobs.NewActivityPruneTask(0)
	if err != nil {
		logger.Error("build activity prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.QueueConcurrency,
		Queues:      jobs.Priorities(cfg.QueueNames),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskQueuePrune, Handler: queuePrune.Handle},
			{Type: jobs.TaskActivityPrune, Handler: activityPrune.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.QueuePruneSchedule, Task: jobs.NewQueuePruneTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.ActivityPruneSchedule, Task: activityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go serveMetrics(ctx, srv, logger)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// serveMetrics exposes the default registry, where the job collectors live,
// until ctx is done.
func serveMetrics(ctx context.Context, srv *http.Server, logger *slog.Logger) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", slog.Any("error", err))
		}
	}()
	logger.Info("worker metrics listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("worker metrics", slog.Any("error", err))
	}
}
