package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/sentinel/internal/jobs"
)

// ActivityPruner deletes activity entries older than retention.
type ActivityPruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// ActivityPruneJob enforces the activity log retention.
type ActivityPruneJob struct {
	Pruner    ActivityPruner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewActivityPruneJob constructs the job handler.
func NewActivityPruneJob(pruner ActivityPruner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *ActivityPruneJob {
	return &ActivityPruneJob{Pruner: pruner, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle executes the prune.
func (j *ActivityPruneJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Pruner == nil {
		return errors.New("activity prune: dependencies not configured")
	}
	var payload ActivityPrunePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := j.Retention
	if payload.RetentionDays > 0 {
		retention = time.Duration(payload.RetentionDays) * 24 * time.Hour
	}
	if retention <= 0 {
		j.log().Info("activity retention disabled")
		return nil
	}

	return j.metrics().Observe(TaskActivityPrune, func() error {
		removed, err := j.Pruner.Prune(ctx, retention)
		if err != nil {
			j.log().Error("prune activity log", slog.Duration("retention", retention), slog.Any("error", err))
			return err
		}
		j.metrics().AddPruned("activity_log", removed)
		j.log().Info("pruned activity log", slog.Int64("removed", removed), slog.Duration("retention", retention))
		return nil
	})
}

func (j *ActivityPruneJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ActivityPruneJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskActivityPrune))
	}
	return slog.Default().With(slog.String("job", TaskActivityPrune))
}
