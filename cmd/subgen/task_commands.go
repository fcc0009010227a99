package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"subgen/internal/api"
	"subgen/internal/client"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and control individual tasks",
	}

	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskShowCommand(ctx))
	taskCmd.AddCommand(newTaskActionCommand(ctx, "start", "Start a pending task",
		func(c *client.Client, cmd *cobra.Command, id string) (api.TaskView, error) {
			return c.StartTask(cmd.Context(), id)
		}))
	taskCmd.AddCommand(newTaskActionCommand(ctx, "pause", "Pause a running task",
		func(c *client.Client, cmd *cobra.Command, id string) (api.TaskView, error) {
			return c.PauseTask(cmd.Context(), id)
		}))
	taskCmd.AddCommand(newTaskActionCommand(ctx, "resume", "Resume a paused task",
		func(c *client.Client, cmd *cobra.Command, id string) (api.TaskView, error) {
			return c.ResumeTask(cmd.Context(), id)
		}))
	taskCmd.AddCommand(newTaskActionCommand(ctx, "cancel", "Cancel a task",
		func(c *client.Client, cmd *cobra.Command, id string) (api.TaskView, error) {
			return c.CancelTask(cmd.Context(), id)
		}))
	taskCmd.AddCommand(newTaskActionCommand(ctx, "retry", "Reset a failed task to pending",
		func(c *client.Client, cmd *cobra.Command, id string) (api.TaskView, error) {
			return c.RetryTask(cmd.Context(), id)
		}))
	taskCmd.AddCommand(newTaskDeleteCommand(ctx))

	return taskCmd
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				views, err := c.ListTasks(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				rendered := renderTable(out,
					[]string{"ID", "File", "Status", "Stage", "Progress", "Cues"},
					buildTaskRows(views),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				)
				fmt.Fprintln(out, rendered)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by task status (repeatable)")
	return cmd
}

func buildTaskRows(views []api.TaskView) [][]string {
	rows := make([][]string, 0, len(views))
	for _, view := range views {
		rows = append(rows, []string{
			shortID(view.ID),
			view.FileName,
			string(view.Status),
			string(view.Stage),
			fmt.Sprintf("%.0f%%", view.Progress),
			fmt.Sprintf("%d", len(view.Subtitles)),
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newTaskShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <taskID>",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				view, err := c.GetTask(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printTask(cmd, view)
				return nil
			})
		},
	}
}

func printTask(cmd *cobra.Command, view api.TaskView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", view.ID)
	fmt.Fprintf(out, "File:      %s\n", view.FilePath)
	fmt.Fprintf(out, "Status:    %s\n", view.Status)
	fmt.Fprintf(out, "Stage:     %s\n", view.Stage)
	fmt.Fprintf(out, "Progress:  %.1f%%", view.Progress)
	if view.ProgressMessage != "" {
		fmt.Fprintf(out, " (%s)", view.ProgressMessage)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Subtitles: %d\n", len(view.Subtitles))
	if view.Options.TargetLang != "" {
		fmt.Fprintf(out, "Target:    %s\n", view.Options.TargetLang)
	}
	if view.OutputPath != "" {
		fmt.Fprintf(out, "Output:    %s\n", view.OutputPath)
	}
	if view.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", view.Error)
	}
	fmt.Fprintf(out, "Created:   %s\n", view.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if view.CompletedAt != nil {
		fmt.Fprintf(out, "Completed: %s\n", view.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

type taskAction func(*client.Client, *cobra.Command, string) (api.TaskView, error)

func newTaskActionCommand(ctx *commandContext, verb, short string, action taskAction) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <taskID>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				view, err := action(c, cmd, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s is %s",
					shortID(view.ID), view.Status)
				if !strings.EqualFold(string(view.Stage), "idle") {
					fmt.Fprintf(cmd.OutOrStdout(), " (%s, %.0f%%)", view.Stage, view.Progress)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func newTaskDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <taskID>",
		Short: "Cancel and remove a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				if err := c.DeleteTask(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
