// Package queuemonitor exposes asynq queue inspection and control behind the
// queue monitor gates.
package queuemonitor

import "github.com/hibiken/asynq"

// Inspector is the subset of *asynq.Inspector used by the monitor.
type Inspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListPendingTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListActiveTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListRetryTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListCompletedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	RunTask(queue, id string) error
	DeleteTask(queue, id string) error
	DeleteAllArchivedTasks(queue string) (int, error)
	DeleteAllCompletedTasks(queue string) (int, error)
	PauseQueue(queue string) error
	UnpauseQueue(queue string) error
	CancelProcessing(id string) error
	Servers() ([]*asynq.ServerInfo, error)
}

var _ Inspector = (*asynq.Inspector)(nil)
