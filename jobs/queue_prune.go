package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/sentinel/internal/jobs"
)

// CompletedPruner deletes completed tasks on every monitored queue.
type CompletedPruner interface {
	PruneAll() (map[string]int, error)
}

// QueuePruneJob removes completed tasks so the monitor stays small.
type QueuePruneJob struct {
	Pruner  CompletedPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewQueuePruneJob constructs the job handler.
func NewQueuePruneJob(pruner CompletedPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *QueuePruneJob {
	return &QueuePruneJob{Pruner: pruner, Logger: logger, Metrics: metrics}
}

// Handle executes the prune.
func (j *QueuePruneJob) Handle(_ context.Context, _ *asynq.Task) error {
	if j == nil || j.Pruner == nil {
		return errors.New("queue prune: dependencies not configured")
	}
	return j.metrics().Observe(TaskQueuePrune, j.prune)
}

func (j *QueuePruneJob) prune() error {
	pruned, err := j.Pruner.PruneAll()
	for queue, n := range pruned {
		j.metrics().AddPruned(queue, int64(n))
	}
	if err != nil {
		j.log().Error("prune completed tasks", slog.Any("error", err))
		return err
	}
	total := 0
	for _, n := range pruned {
		total += n
	}
	j.log().Info("pruned completed tasks", slog.Int("queues", len(pruned)), slog.Int("deleted", total))
	return nil
}

func (j *QueuePruneJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *QueuePruneJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskQueuePrune))
	}
	return slog.Default().With(slog.String("job", TaskQueuePrune))
}
