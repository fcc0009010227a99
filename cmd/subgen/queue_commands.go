package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"subgen/internal/client"
	"subgen/internal/task"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and control the task queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueStartCommand(ctx))
	queueCmd.AddCommand(newQueuePauseCommand(ctx))
	queueCmd.AddCommand(newQueueResumeCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scheduler slots and task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				status, err := c.QueueStatus(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Running: %d\nWaiting: %d\n", status.Running, status.Waiting)
				rows := buildStatusRows(status.Counts)
				if len(rows) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				rendered := renderTable(out,
					[]string{"Status", "Count"}, rows,
					[]columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(out, rendered)
				return nil
			})
		},
	}
}

// buildStatusRows orders counts by the canonical status order so output is
// stable across runs.
func buildStatusRows(counts map[task.Status]int) [][]string {
	known := task.AllStatuses()
	index := make(map[task.Status]int, len(known))
	for i, status := range known {
		index[status] = i
	}

	statuses := make([]task.Status, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		ii, iok := index[statuses[i]]
		jj, jok := index[statuses[j]]
		if iok != jok {
			return iok
		}
		if !iok {
			return statuses[i] < statuses[j]
		}
		return ii < jj
	})

	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{string(status), fmt.Sprintf("%d", counts[status])})
	}
	return rows
}

func newQueueStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Submit every pending task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				submitted, err := c.QueueStart(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted %d tasks\n", submitted)
				return nil
			})
		},
	}
}

func newQueuePauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause admission and all running tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				if err := c.QueuePause(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue paused")
				return nil
			})
		},
	}
}

func newQueueResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume admission and paused tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				if err := c.QueueResume(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue resumed")
				return nil
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel every non-terminal task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				if err := c.QueueCancel(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue cancelled")
				return nil
			})
		},
	}
}
