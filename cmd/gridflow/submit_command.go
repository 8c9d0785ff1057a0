package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gridflow/internal/ipc"
	"gridflow/internal/jobs"
	"gridflow/internal/logging"
	"gridflow/internal/notifications"
	"gridflow/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <definition.toml>",
		Short: "Submit a job definition to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read job definition: %w", err)
			}
			def, err := jobs.ParseDefinition(data)
			if err != nil {
				return err
			}

			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				if client != nil {
					req := ipc.SubmitRequest{
						ID:    def.ID,
						Label: def.Label,
						Spec:  def.Spec,
					}
					for _, task := range def.Tasks {
						req.Tasks = append(req.Tasks, ipc.TaskSpec{
							Name: task.Name,
							Type: string(task.Type),
							Spec: task.Spec,
						})
					}
					resp, err := client.Submit(req)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s with %d tasks\n", resp.Job.ID, len(def.Tasks))
					return nil
				}

				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				manager := jobs.NewManager(cfg, store, notifications.NewService(cfg), logging.NewNop())
				job, err := manager.Submit(cmd.Context(), def)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s with %d tasks\n", job.ID, len(def.Tasks))
				return nil
			})
		},
	}
}
