package queuemonitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

var (
	// ErrUnknownQueue is returned for queues outside the monitored set.
	ErrUnknownQueue = fmt.Errorf("queuemonitor: %w", httpx.ErrNotFound)
	// ErrTaskNotFound is returned when asynq has no such task.
	ErrTaskNotFound = fmt.Errorf("queuemonitor: task: %w", httpx.ErrNotFound)
	// ErrInvalidState rejects unknown task states.
	ErrInvalidState = errors.New("queuemonitor: invalid task state")
)

// States a task listing can be filtered by.
const (
	StatePending   = "pending"
	StateActive    = "active"
	StateScheduled = "scheduled"
	StateRetry     = "retry"
	StateArchived  = "archived"
	StateCompleted = "completed"
)

// States lists the accepted task states.
func States() []string {
	return []string{StatePending, StateActive, StateScheduled, StateRetry, StateArchived, StateCompleted}
}

// Stats are queue counters. Only returned to principals allowed to view
// queue statistics.
type Stats struct {
	Size      int           `json:"size"`
	Pending   int           `json:"pending"`
	Active    int           `json:"active"`
	Scheduled int           `json:"scheduled"`
	Retry     int           `json:"retry"`
	Archived  int           `json:"archived"`
	Completed int           `json:"completed"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	LatencyMS int64 `json:"latencyMs"`
}

// Queue summarises one asynq queue.
type Queue struct {
	Name   string `json:"name"`
	Paused bool   `json:"paused"`
	Stats  *Stats `json:"stats,omitempty"`
}

// Task is a redacted view of an asynq task.
type Task struct {
	ID            string     `json:"id"`
	Queue         string     `json:"queue"`
	Type          string     `json:"type"`
	State         string     `json:"state"`
	MaxRetry      int        `json:"maxRetry"`
	Retried       int        `json:"retried"`
	Payload       *string    `json:"payload,omitempty"`
	LastError     *string    `json:"lastError,omitempty"`
	LastFailedAt  *time.Time `json:"lastFailedAt,omitempty"`
	NextProcessAt *time.Time `json:"nextProcessAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Visibility controls which task fields leave the server.
type Visibility struct {
	Payload     bool
	FailureInfo bool
}

// Server describes a running worker process.
type Server struct {
	ID          string         `json:"id"`
	Host        string         `json:"host"`
	PID         int            `json:"pid"`
	Concurrency int            `json:"concurrency"`
	Queues      map[string]int `json:"queues"`
	Status      string         `json:"status"`
	Started     time.Time      `json:"started"`
	Active      int            `json:"active"`
}

// Config is the monitor configuration exposed to operators.
type Config struct {
	Queues        []string `json:"queues"`
	PageSize      int      `json:"pageSize"`
	PruneSchedule string   `json:"pruneSchedule"`
}

func statsFrom(info *asynq.QueueInfo) *Stats {
	return &Stats{
		Size:      info.Size,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Completed: info.Completed,
		Processed: info.Processed,
		Failed:    info.Failed,
		LatencyMS: info.Latency.Milliseconds(),
	}
}

func taskFrom(info *asynq.TaskInfo, vis Visibility) Task {
	task := Task{
		ID:       info.ID,
		Queue:    info.Queue,
		Type:     info.Type,
		State:    info.State.String(),
		MaxRetry: info.MaxRetry,
		Retried:  info.Retried,
	}
	if vis.Payload {
		payload := string(info.Payload)
		task.Payload = &payload
	}
	if vis.FailureInfo && info.LastErr != "" {
		lastErr := info.LastErr
		task.LastError = &lastErr
		if !info.LastFailedAt.IsZero() {
			failed := info.LastFailedAt
			task.LastFailedAt = &failed
		}
	}
	if !info.NextProcessAt.IsZero() {
		next := info.NextProcessAt
		task.NextProcessAt = &next
	}
	if !info.CompletedAt.IsZero() {
		done := info.CompletedAt
		task.CompletedAt = &done
	}
	return task
}

func serverFrom(info *asynq.ServerInfo) Server {
	return Server{
		ID:          info.ID,
		Host:        info.Host,
		PID:         info.PID,
		Concurrency: info.Concurrency,
		Queues:      info.Queues,
		Status:      info.Status,
		Started:     info.Started,
		Active:      len(info.ActiveWorkers),
	}
}
