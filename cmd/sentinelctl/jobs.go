package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/sentinel/jobs"
)

// jobsOps is the queue surface the jobs commands need.
type jobsOps interface {
	Trigger(ctx context.Context, name string, retentionDays int) (*asynq.TaskInfo, error)
	QueueStats(queues []string) ([]QueueStats, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, retentionDays int) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskQueuePrune:
		return c.client.EnqueueQueuePrune(ctx)
	case jobs.TaskActivityPrune:
		return c.client.EnqueueActivityPrune(ctx, retentionDays)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Paused    bool
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
	Completed int
}

// QueueStats reports the metrics of each queue. Queues that do not exist
// yet are reported empty.
func (c *JobsCLI) QueueStats(queues []string) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	out := make([]QueueStats, 0, len(queues))
	for _, queue := range queues {
		info, err := c.inspector.GetQueueInfo(queue)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			out = append(out, QueueStats{Queue: queue})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", queue, err)
		}
		out = append(out, QueueStats{
			Queue:     queue,
			Paused:    info.Paused,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Completed: info.Completed,
		})
	}
	return out, nil
}

var (
	retentionDaysFlag int
	queuesFlag        []string
)

// openJobs is replaced in tests.
var openJobs = func() (jobsOps, error) {
	cfg, err := loadCtlConfig()
	if err != nil {
		return nil, err
	}
	return NewJobsCLI(cfg.RedisAddr)
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Trigger maintenance jobs and inspect queues",
}

var jobsTriggerCmd = &cobra.Command{
	Use:   "trigger [queue:prune|activity:prune]",
	Short: "Enqueue a maintenance job immediately",
	Example: `  sentinelctl jobs trigger queue:prune
  sentinelctl jobs trigger activity:prune --retention-days 30`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{jobs.TaskQueuePrune, jobs.TaskActivityPrune},
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, err := openJobs()
		if err != nil {
			return err
		}
		defer ops.Close()
		info, err := ops.Trigger(cmd.Context(), args[0], retentionDaysFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return nil
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task counts per queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ops, err := openJobs()
		if err != nil {
			return err
		}
		defer ops.Close()
		stats, err := ops.QueueStats(queuesFlag)
		if err != nil {
			return err
		}
		printQueueStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func printQueueStats(out io.Writer, stats []QueueStats) {
	fmt.Fprintf(out, "%-14s %-7s %8s %8s %9s %6s %8s %9s\n", "QUEUE", "PAUSED", "PENDING", "ACTIVE", "SCHEDULED", "RETRY", "ARCHIVED", "COMPLETED")
	for _, s := range stats {
		fmt.Fprintf(out, "%-14s %-7t %8d %8d %9d %6d %8d %9d\n", s.Queue, s.Paused, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived, s.Completed)
	}
}

func init() {
	jobsTriggerCmd.Flags().IntVar(&retentionDaysFlag, "retention-days", 0, "override the activity retention (activity:prune only)")
	jobsStatsCmd.Flags().StringSliceVar(&queuesFlag, "queue", []string{jobs.QueueDefault, jobs.QueueMaintenance}, "queues to report")

	jobsCmd.AddCommand(jobsTriggerCmd, jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}
