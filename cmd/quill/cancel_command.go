package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"quill/internal/ipc"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a queued or in-flight job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel(id)
				if err != nil {
					return err
				}
				if resp != nil && resp.Cancelled {
					fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %d\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %d is not cancellable\n", id)
				}
				return nil
			})
		},
	}
}
