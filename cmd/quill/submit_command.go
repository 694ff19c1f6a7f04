package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var declaredSize int64

	cmd := &cobra.Command{
		Use:   "submit <owner-id> <source-ref>",
		Short: "Submit a media source for transcription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID := strings.TrimSpace(args[0])
			sourceRef := strings.TrimSpace(args[1])
			if ownerID == "" {
				return errors.New("owner id is required")
			}
			if sourceRef == "" {
				return errors.New("source ref is required")
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(ownerID, sourceRef, declaredSize)
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("empty response from daemon")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job #%d (%s)\n", resp.Job.ID, sourceRef)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&declaredSize, "size", 0, "Declared source size in bytes, when known")
	return cmd
}
