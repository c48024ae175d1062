package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/sentinel/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMaintenance carries housekeeping tasks.
	QueueMaintenance = "maintenance"

	// TaskQueuePrune deletes completed tasks retained by asynq.
	TaskQueuePrune = "queue:prune"
	// TaskActivityPrune deletes activity log entries past retention.
	TaskActivityPrune = "activity:prune"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ActivityPrunePayload overrides the configured retention.
type ActivityPrunePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewQueuePruneTask builds a queue prune task.
func NewQueuePruneTask() *asynq.Task {
	return asynq.NewTask(TaskQueuePrune, nil, asynq.Queue(QueueMaintenance))
}

// NewActivityPruneTask builds an activity prune task. Zero days keeps the
// worker's configured retention.
func NewActivityPruneTask(retentionDays int) (*asynq.Task, error) {
	body, err := json.Marshal(ActivityPrunePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivityPrune, body, asynq.Queue(QueueMaintenance)), nil
}
