package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"melt/internal/converter"
	"melt/internal/organizer"
	"melt/internal/queue"
	"melt/internal/scanner"
	"melt/internal/tagging"
	"melt/internal/workflow"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var (
		noProgress bool
		workers    int
		target     string
		embedMeta  bool
	)

	cmd := &cobra.Command{
		Use:   "convert <path>...",
		Short: "Scan the given paths and process the queue until it drains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.Conversion.Workers = workers
			}
			if cmd.Flags().Changed("embed-meta") {
				cfg.Conversion.EmbedMetadata = embedMeta
			}
			if target != "" {
				abs, err := filepath.Abs(target)
				if err != nil {
					return fmt.Errorf("resolve target path: %w", err)
				}
				cfg.Paths.LibraryDir = abs
				if err := cfg.EnsureDirectories(); err != nil {
					return err
				}
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

			scanResult, err := scanner.New(cfg, store, logger).Scan(cmd.Context(), args...)
			if err != nil {
				return err
			}

			before, err := store.Summary(cmd.Context())
			if err != nil {
				return err
			}
			if before.Pending == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to convert")
				return nil
			}

			mgr := workflow.NewManager(cfg, store, logger, workflow.StageSet{
				Converter: converter.New(cfg, store, logger),
				Tagger:    tagging.NewTagger(cfg, store, logger),
				Organizer: organizer.New(cfg, store, logger),
			})

			bar := newConvertBar(before.Pending, noProgress)
			if bar != nil {
				seen := make(map[int64]bool)
				mgr.SetProgressFunc(func(item *queue.Item) {
					if item.IsTerminal() && !seen[item.ID] {
						seen[item.ID] = true
						_ = bar.Add(1)
					}
				})
			}

			stats, err := mgr.Run(cmd.Context())
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(cmd.OutOrStdout())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Enqueued", "Completed", "Failed", "Review"},
				[][]string{{
					fmt.Sprintf("%d", scanResult.Enqueued),
					fmt.Sprintf("%d", stats.Completed),
					fmt.Sprintf("%d", stats.Failed),
					fmt.Sprintf("%d", stats.Review),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			if stats.Failed > 0 {
				return fmt.Errorf("%d item(s) failed; inspect them with `melt queue list --status failed`", stats.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers (0 uses the configured value)")
	cmd.Flags().StringVarP(&target, "target", "t", "", "Library directory override for this run")
	cmd.Flags().BoolVar(&embedMeta, "embed-meta", true, "Embed tags and cover art into decoded audio")
	return cmd
}

// newConvertBar returns nil when progress output is disabled or stdout is not
// a terminal; callers must handle the nil bar.
func newConvertBar(total int, noProgress bool) *progressbar.ProgressBar {
	if noProgress || total <= 0 {
		return nil
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer: "=", SaucerHead: ">", SaucerPadding: " ", BarStart: "[", BarEnd: "]",
		}),
	)
}
