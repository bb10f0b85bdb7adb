package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"melt/internal/scanner"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <path>...",
		Short: "Discover containers and audio files and add them to the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			logger, cleanup, err := ctx.newLogger(true)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := scanner.New(cfg, store, logger).Scan(cmd.Context(), args...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Containers", "Audio files", "Enqueued", "Duplicates", "Skipped"},
				[][]string{{
					fmt.Sprintf("%d", result.Containers),
					fmt.Sprintf("%d", result.AudioFiles),
					fmt.Sprintf("%d", result.Enqueued),
					fmt.Sprintf("%d", result.Duplicates),
					fmt.Sprintf("%d", result.Skipped),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			if result.Enqueued > 0 {
				fmt.Fprintf(out, "Run `melt run` or `melt convert` to process %d queued item(s)\n", result.Enqueued)
			}
			return nil
		},
	}
}
