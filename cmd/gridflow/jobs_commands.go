package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gridflow/internal/ipc"
	"gridflow/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect submitted jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var jobList []ipc.JobSummary
				if client != nil {
					resp, err := client.JobList()
					if err != nil {
						return err
					}
					jobList = resp.Jobs
				} else {
					items, err := store.ListJobs(cmd.Context())
					if err != nil {
						return err
					}
					for _, job := range items {
						jobList = append(jobList, ipc.FromJob(job))
					}
				}

				if len(jobList) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs submitted")
					return nil
				}
				rows := make([][]string, 0, len(jobList))
				for _, job := range jobList {
					rows = append(rows, []string{
						job.ID,
						job.Label,
						statusLabel(job.Status),
						job.CreatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]column{{title: "Job"}, {title: "Label"}, {title: "Status"}, {title: "Created"}},
					rows,
				))
				return nil
			})
		},
	}
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <jobID>",
		Short: "Show a job and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var job ipc.JobSummary
				var tasks []ipc.TaskSummary
				if client != nil {
					resp, err := client.JobShow(jobID)
					if err != nil {
						return err
					}
					job = resp.Job
					tasks = resp.Tasks
				} else {
					stored, err := store.GetJob(cmd.Context(), jobID)
					if err != nil {
						return err
					}
					if stored == nil {
						return fmt.Errorf("job %s not found", jobID)
					}
					job = ipc.FromJob(stored)
					items, err := store.TasksForJob(cmd.Context(), jobID)
					if err != nil {
						return err
					}
					for _, task := range items {
						tasks = append(tasks, ipc.FromTask(task))
					}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job:     %s\n", job.ID)
				if job.Label != "" {
					fmt.Fprintf(out, "Label:   %s\n", job.Label)
				}
				fmt.Fprintf(out, "Status:  %s\n", statusLabel(job.Status))
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:   %s\n", job.ErrorMessage)
				}
				fmt.Fprintf(out, "Created: %s\n", job.CreatedAt.Local().Format(time.DateTime))
				if job.CompletedAt != nil {
					fmt.Fprintf(out, "Done:    %s\n", job.CompletedAt.Local().Format(time.DateTime))
				}
				fmt.Fprintln(out)

				if len(tasks) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					detail := task.ErrorMessage
					if detail == "" {
						detail = task.LogPath
					}
					rows = append(rows, []string{
						task.Name,
						task.Type,
						statusLabel(task.Status),
						fmt.Sprintf("%d", task.RetryCount),
						detail,
					})
				}
				fmt.Fprint(out, renderTable(
					[]column{
						{title: "Task"},
						{title: "Type"},
						{title: "Status"},
						{title: "Retries", right: true},
						{title: "Detail"},
					},
					rows,
				))
				return nil
			})
		},
	}
}
