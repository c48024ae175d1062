package queuemonitor

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hibiken/asynq"
)

// Service wraps the inspector with queue scoping and redaction.
type Service struct {
	inspector Inspector
	config    Config
	logger    *slog.Logger
}

// NewService builds the service. When cfg.Queues is empty every queue known
// to redis is monitored.
func NewService(inspector Inspector, cfg Config, logger *slog.Logger) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{inspector: inspector, config: cfg, logger: logger}
}

// Config returns the monitor configuration.
func (s *Service) Config() Config {
	cfg := s.config
	cfg.Queues = append([]string(nil), cfg.Queues...)
	return cfg
}

// Queues lists monitored queues. Stats are attached when withStats is set.
func (s *Service) Queues(withStats bool) ([]Queue, error) {
	names, err := s.queueNames()
	if err != nil {
		return nil, err
	}
	out := make([]Queue, 0, len(names))
	for _, name := range names {
		info, err := s.inspector.GetQueueInfo(name)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				out = append(out, Queue{Name: name})
				continue
			}
			return nil, fmt.Errorf("queuemonitor: queue info %s: %w", name, err)
		}
		q := Queue{Name: name, Paused: info.Paused}
		if withStats {
			q.Stats = statsFrom(info)
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *Service) queueNames() ([]string, error) {
	if len(s.config.Queues) > 0 {
		return append([]string(nil), s.config.Queues...), nil
	}
	names, err := s.inspector.Queues()
	if err != nil {
		return nil, fmt.Errorf("queuemonitor: list queues: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

func (s *Service) checkQueue(queue string) error {
	if queue == "" {
		return ErrUnknownQueue
	}
	if len(s.config.Queues) > 0 && !slices.Contains(s.config.Queues, queue) {
		return ErrUnknownQueue
	}
	return nil
}

// Tasks lists tasks of queue in state. page is 1-based.
func (s *Service) Tasks(queue, state string, page int, vis Visibility) ([]Task, error) {
	if err := s.checkQueue(queue); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	opts := []asynq.ListOption{asynq.PageSize(s.config.PageSize), asynq.Page(page)}
	var (
		infos []*asynq.TaskInfo
		err   error
	)
	switch state {
	case StatePending, "":
		infos, err = s.inspector.ListPendingTasks(queue, opts...)
	case StateActive:
		infos, err = s.inspector.ListActiveTasks(queue, opts...)
	case StateScheduled:
		infos, err = s.inspector.ListScheduledTasks(queue, opts...)
	case StateRetry:
		infos, err = s.inspector.ListRetryTasks(queue, opts...)
	case StateArchived:
		infos, err = s.inspector.ListArchivedTasks(queue, opts...)
	case StateCompleted:
		infos, err = s.inspector.ListCompletedTasks(queue, opts...)
	default:
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, mapErr(err)
	}
	tasks := make([]Task, 0, len(infos))
	for _, info := range infos {
		tasks = append(tasks, taskFrom(info, vis))
	}
	return tasks, nil
}

// Retry runs an archived or retrying task immediately.
func (s *Service) Retry(queue, id string) error {
	if err := s.checkQueue(queue); err != nil {
		return err
	}
	return mapErr(s.inspector.RunTask(queue, id))
}

// Delete removes a task.
func (s *Service) Delete(queue, id string) error {
	if err := s.checkQueue(queue); err != nil {
		return err
	}
	return mapErr(s.inspector.DeleteTask(queue, id))
}

// ClearArchived deletes every archived task of queue.
func (s *Service) ClearArchived(queue string) (int, error) {
	if err := s.checkQueue(queue); err != nil {
		return 0, err
	}
	n, err := s.inspector.DeleteAllArchivedTasks(queue)
	return n, mapErr(err)
}

// PruneCompleted deletes completed tasks retained in queue.
func (s *Service) PruneCompleted(queue string) (int, error) {
	if err := s.checkQueue(queue); err != nil {
		return 0, err
	}
	n, err := s.inspector.DeleteAllCompletedTasks(queue)
	return n, mapErr(err)
}

// PruneAll prunes completed tasks on every monitored queue.
func (s *Service) PruneAll() (map[string]int, error) {
	names, err := s.queueNames()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(names))
	for _, name := range names {
		n, err := s.inspector.DeleteAllCompletedTasks(name)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return out, fmt.Errorf("queuemonitor: prune %s: %w", name, err)
		}
		out[name] = n
	}
	return out, nil
}

// SetPaused pauses or resumes processing of queue.
func (s *Service) SetPaused(queue string, paused bool) error {
	if err := s.checkQueue(queue); err != nil {
		return err
	}
	if paused {
		return mapErr(s.inspector.PauseQueue(queue))
	}
	return mapErr(s.inspector.UnpauseQueue(queue))
}

// Cancel signals the worker processing task id to stop.
func (s *Service) Cancel(id string) error {
	return mapErr(s.inspector.CancelProcessing(id))
}

// Servers lists worker processes.
func (s *Service) Servers() ([]Server, error) {
	infos, err := s.inspector.Servers()
	if err != nil {
		return nil, fmt.Errorf("queuemonitor: servers: %w", err)
	}
	out := make([]Server, 0, len(infos))
	for _, info := range infos {
		out = append(out, serverFrom(info))
	}
	return out, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, asynq.ErrQueueNotFound):
		return ErrUnknownQueue
	case errors.Is(err, asynq.ErrTaskNotFound):
		return ErrTaskNotFound
	}
	return fmt.Errorf("queuemonitor: %w", err)
}
