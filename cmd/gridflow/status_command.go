package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"gridflow/internal/ipc"
	"gridflow/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}

			var stats map[string]int
			client, dialErr := ipc.Dial(ctx.socketPath())
			if dialErr == nil {
				defer client.Close()
				resp, err := client.Status()
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, renderStatusLine("Running", statusOK, fmt.Sprintf("pid %d, %d workers", resp.PID, resp.Workers), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Socket", statusInfo, ctx.socketPath(), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Queue DB", statusInfo, resp.QueueDBPath, colorize))
				stats = resp.QueueStats
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Running", statusWarn, "daemon not reachable", colorize))
				store, err := queue.Open(cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				raw, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				stats = make(map[string]int, len(raw))
				for status, count := range raw {
					stats[string(status)] = count
				}
				fmt.Fprintln(stdout, renderStatusLine("Queue DB", statusInfo, store.Path(), colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Queue", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildQueueStatusRows(stats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, statusIndent+"Queue is empty")
				return nil
			}
			fmt.Fprint(stdout, renderTable([]column{{title: "Status"}, {title: "Count", right: true}}, rows))
			return nil
		},
	}
}

// buildQueueStatusRows orders known statuses first and drops zero counts.
func buildQueueStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	seen := make(map[string]struct{}, len(stats))
	for _, status := range queue.AllStatuses() {
		if count, ok := stats[string(status)]; ok && count > 0 {
			rows = append(rows, []string{statusLabel(string(status)), fmt.Sprintf("%d", count)})
			seen[string(status)] = struct{}{}
		}
	}
	extras := make([]string, 0)
	for status, count := range stats {
		if _, ok := seen[status]; ok || count == 0 {
			continue
		}
		extras = append(extras, status)
	}
	sort.Strings(extras)
	for _, status := range extras {
		rows = append(rows, []string{statusLabel(status), fmt.Sprintf("%d", stats[status])})
	}
	return rows
}
