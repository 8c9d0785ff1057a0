package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gridflow/internal/ipc"
	"gridflow/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the task queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCompletedCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueRequeueCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				stats := make(map[string]int)
				if client != nil {
					resp, err := client.Status()
					if err != nil {
						return err
					}
					stats = resp.QueueStats
				} else {
					raw, err := store.Stats(cmd.Context())
					if err != nil {
						return err
					}
					for status, count := range raw {
						stats[string(status)] = count
					}
				}

				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{{title: "Status"}, {title: "Count", right: true}}, rows))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var tasks []ipc.TaskSummary
				if client != nil {
					resp, err := client.QueueList(listStatuses)
					if err != nil {
						return err
					}
					tasks = resp.Tasks
				} else {
					var statuses []queue.Status
					for _, raw := range listStatuses {
						parsed, ok := queue.ParseStatus(raw)
						if !ok {
							return fmt.Errorf("unknown status %q", raw)
						}
						statuses = append(statuses, parsed)
					}
					items, err := store.ListTasks(cmd.Context(), statuses...)
					if err != nil {
						return err
					}
					for _, item := range items {
						tasks = append(tasks, ipc.FromTask(item))
					}
				}

				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]column{
						{title: "Job"},
						{title: "Task"},
						{title: "Type"},
						{title: "Status"},
						{title: "Retries", right: true},
						{title: "Created"},
					},
					buildQueueListRows(tasks),
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by task status (repeatable)")
	return cmd
}

func buildQueueListRows(tasks []ipc.TaskSummary) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			task.JobID,
			task.Name,
			task.Type,
			statusLabel(task.Status),
			fmt.Sprintf("%d", task.RetryCount),
			task.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return rows
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry failed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var updated int64
				var err error
				if client != nil {
					var resp *ipc.QueueRetryResponse
					resp, err = client.QueueRetry(jobID)
					if err == nil {
						updated = resp.Updated
					}
				} else {
					updated, err = store.RetryFailed(cmd.Context(), jobID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed tasks\n", updated)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&jobID, "job", "j", "", "Limit the retry to one job")
	return cmd
}

func newQueueClearCompletedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove completed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var removed int64
				var err error
				if client != nil {
					var resp *ipc.QueueClearCompletedResponse
					resp, err = client.QueueClearCompleted()
					if err == nil {
						removed = resp.Removed
					}
				} else {
					removed, err = store.ClearCompleted(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed tasks\n", removed)
				return nil
			})
		},
	}
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return running tasks to queued",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var updated int64
				var err error
				if client != nil {
					var resp *ipc.QueueResetResponse
					resp, err = client.QueueReset()
					if err == nil {
						updated = resp.Updated
					}
				} else {
					updated, err = store.ResetStuckRunning(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d tasks\n", updated)
				return nil
			})
		},
	}
}

func newQueueRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <jobID> <task>",
		Short: "Re-admit one task for another attempt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, task := args[0], args[1]
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var err error
				if client != nil {
					_, err = client.QueueRequeue(jobID, task)
				} else {
					err = store.RequeueTask(cmd.Context(), jobID, task)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued task %s/%s\n", jobID, task)
				return nil
			})
		},
	}
}
