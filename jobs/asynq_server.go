package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

// DefaultQueues are the queue priorities used when WorkerConfig.Queues is empty.
var DefaultQueues = map[string]int{
	QueueDefault:     3,
	QueueMaintenance: 1,
}

// Priorities weights queues by their position, the first name highest.
func Priorities(names []string) map[string]int {
	out := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			continue
		}
		out[name] = len(names) - i
	}
	return out
}

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Queues      map[string]int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker. Cron entries with an empty spec are skipped,
// which is how a schedule is switched off.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = DefaultQueues
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:  concurrency,
		Queues:       queues,
		Logger:       newAsynqLogger(logger),
		ErrorHandler: failureLogger(logger),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	for _, entry := range cfg.Cron {
		if entry.Spec == "" || entry.Task == nil {
			continue
		}
		if scheduler == nil {
			scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{
				Location: time.UTC,
				Logger:   newAsynqLogger(logger),
			})
		}
		if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
			return nil, err
		}
		logger.Info("scheduled task", slog.String("task", entry.Task.Type()), slog.String("spec", entry.Spec))
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// failureLogger reports every failed attempt with its retry position.
func failureLogger(logger *slog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logger.Error("task failed",
			slog.String("task", task.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.Any("error", err),
		)
	})
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
		defer w.scheduler.Shutdown()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueQueuePrune enqueues an immediate queue prune.
func (c *Client) EnqueueQueuePrune(ctx context.Context) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, NewQueuePruneTask(), asynq.MaxRetry(3))
}

// EnqueueActivityPrune enqueues an immediate activity prune.
func (c *Client) EnqueueActivityPrune(ctx context.Context, retentionDays int) (*asynq.TaskInfo, error) {
	task, err := NewActivityPruneTask(retentionDays)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueInfoReader reports queue state.
type QueueInfoReader interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes the unauthenticated queue health check.
type Handler struct {
	inspector QueueInfoReader
	queues    []string
	logger    *slog.Logger
}

// NewHandler constructs the health check for queues. An empty list checks the
// default queue only.
func NewHandler(inspector QueueInfoReader, queues []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if len(queues) == 0 {
		queues = []string{QueueDefault}
	}
	return &Handler{inspector: inspector, queues: queues, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue    string `json:"queue"`
	Pending  int    `json:"pending"`
	Active   int    `json:"active"`
	Archived int    `json:"archived"`
	Paused   bool   `json:"paused"`
}

type healthReport struct {
	Status string        `json:"status"`
	Queues []queueHealth `json:"queues"`
}

// A queue that has never received a task does not exist yet in Redis and is
// reported as empty. Any other inspector error fails the check.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	report := healthReport{Status: "ok", Queues: make([]queueHealth, 0, len(h.queues))}
	for _, queue := range h.queues {
		if h.inspector == nil {
			report.Queues = append(report.Queues, queueHealth{Queue: queue})
			continue
		}
		info, err := h.inspector.GetQueueInfo(queue)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			report.Queues = append(report.Queues, queueHealth{Queue: queue})
			continue
		}
		if err != nil {
			h.logger.Warn("jobs health", slog.String("queue", queue), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable), "queue backend unavailable")
			return
		}
		if info.Paused {
			report.Status = "degraded"
		}
		report.Queues = append(report.Queues, queueHealth{
			Queue:    info.Queue,
			Pending:  info.Pending,
			Active:   info.Active,
			Archived: info.Archived,
			Paused:   info.Paused,
		})
	}
	httpx.JSON(w, http.StatusOK, report)
}
