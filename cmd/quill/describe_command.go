package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/api"
	"quill/internal/ipc"
	"quill/internal/queue"
)

func newDescribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <job-id>",
		Short: "Show details for a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var item ipc.JobItem

				if client != nil {
					// Use IPC if daemon is running
					resp, descErr := client.QueueDescribe(id)
					if descErr != nil {
						return descErr
					}
					item = resp.Item
				} else {
					// Use direct store access
					job, getErr := store.GetByID(cmd.Context(), id)
					if getErr != nil {
						return getErr
					}
					if job == nil {
						return fmt.Errorf("job %d not found", id)
					}
					item = api.FromJob(job)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job #%d\n", item.ID)
				fmt.Fprintf(out, "  Owner:     %s\n", item.OwnerID)
				fmt.Fprintf(out, "  Source:    %s\n", item.SourceRef)
				fmt.Fprintf(out, "  Status:    %s\n", formatStatusLabel(item.Status))
				if item.Strategy != "" {
					fmt.Fprintf(out, "  Strategy:  %s\n", item.Strategy)
				}
				if item.DeclaredSize > 0 {
					fmt.Fprintf(out, "  Size:      %s\n", formatSize(item.DeclaredSize))
				}
				if item.DurationSeconds > 0 {
					fmt.Fprintf(out, "  Duration:  %.1fs\n", item.DurationSeconds)
				}
				if stage := strings.TrimSpace(item.Progress.Stage); stage != "" {
					fmt.Fprintf(out, "  Progress:  %s %.0f%% %s\n", stage, item.Progress.Percent, item.Progress.Message)
				}
				if item.DeliveryChannel != "" {
					fmt.Fprintf(out, "  Delivery:  %s (%s)\n", item.DeliveryChannel, item.DeliveryRef)
				}
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:     %s\n", item.ErrorMessage)
				}
				fmt.Fprintf(out, "  Cancel requested: %s\n", yesNo(item.CancelRequested))
				if created := formatDisplayTime(item.CreatedAt); created != "" {
					fmt.Fprintf(out, "  Created:   %s\n", created)
				}
				if updated := formatDisplayTime(item.UpdatedAt); updated != "" {
					fmt.Fprintf(out, "  Updated:   %s\n", updated)
				}
				return nil
			})
		},
	}
}
