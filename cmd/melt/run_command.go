package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"melt/internal/converter"
	"melt/internal/organizer"
	"melt/internal/staging"
	"melt/internal/tagging"
	"melt/internal/workflow"
)

// staleArtifactAge is how long conversion byproducts may sit in staging
// before a new run sweeps them.
const staleArtifactAge = 24 * time.Hour

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the queue continuously until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			lockPath, err := ctx.lockPath()
			if err != nil {
				return err
			}
			lock := flock.New(lockPath)
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire run lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another melt instance is already running (lock: %s)", lockPath)
			}
			defer func() { _ = lock.Unlock() }()

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			logger, cleanup, err := ctx.newLogger(false)
			if err != nil {
				return err
			}
			defer cleanup()

			if result := staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, staleArtifactAge, logger); len(result.Removed) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleaned %d stale staging artifact(s)\n", len(result.Removed))
			}

			mgr := workflow.NewManager(cfg, store, logger, workflow.StageSet{
				Converter: converter.New(cfg, store, logger),
				Tagger:    tagging.NewTagger(cfg, store, logger),
				Organizer: organizer.New(cfg, store, logger),
			})

			for _, health := range mgr.Health(cmd.Context()) {
				if !health.Ready {
					return fmt.Errorf("stage %s not ready: %s", health.Name, health.Detail)
				}
			}

			if err := mgr.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processing queue with %d worker(s); press Ctrl-C to stop\n", mgr.Workers())

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(signals)

			select {
			case sig := <-signals:
				fmt.Fprintf(cmd.OutOrStdout(), "Received %s, shutting down\n", sig)
			case <-cmd.Context().Done():
			}
			mgr.Stop()
			return nil
		},
	}
}
