package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-stock/jobs"
)

// jobQueue is the slice of jobs.Client the commands use.
type jobQueue interface {
	Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error)
	InspectQueue() (jobs.QueueStats, error)
	Close() error
}

func newJobsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	open := func() (jobQueue, error) {
		if e.openQueue != nil {
			return e.openQueue()
		}
		cfg, err := e.loadConfig()
		if err != nil {
			return nil, err
		}
		return jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "trigger <name>",
		Short:     "Enqueue a job now",
		Long:      "Enqueue a job now. Known jobs: " + strings.Join(jobs.TaskNames(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs.TaskNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := open()
			if err != nil {
				return err
			}
			defer queue.Close()
			info, err := queue.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Show default queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, err := open()
			if err != nil {
				return err
			}
			defer queue.Close()
			stats, err := queue.InspectQueue()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			return nil
		},
	})
	return cmd
}
