package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"melt/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the processing queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var statuses []queue.Status
			if trimmed := strings.TrimSpace(statusFlag); trimmed != "" {
				status, ok := queue.ParseStatus(trimmed)
				if !ok {
					return fmt.Errorf("unknown status %q", trimmed)
				}
				statuses = append(statuses, status)
			}

			items, err := store.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, item := range items {
				detail := item.ProgressMessage
				if item.Status == queue.StatusFailed || item.Status == queue.StatusReview {
					if msg := strings.TrimSpace(item.ErrorMessage); msg != "" {
						detail = msg
					}
				}
				rows = append(rows, []string{
					strconv.FormatInt(item.ID, 10),
					item.DisplayName(),
					string(item.Kind),
					string(item.Status),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Item", "Kind", "Status", "Detail"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Only show items with this status")
	return cmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue summary counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Summary(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Total", "Pending", "Processing", "Completed", "Failed", "Review"},
				[][]string{{
					fmt.Sprintf("%d", stats.Total),
					fmt.Sprintf("%d", stats.Pending),
					fmt.Sprintf("%d", stats.Processing),
					fmt.Sprintf("%d", stats.Completed),
					fmt.Sprintf("%d", stats.Failed),
					fmt.Sprintf("%d", stats.Review),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Reset failed and review items back to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			retried, err := store.RetryFailed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d item(s) to pending\n", retried)
			return nil
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearAll bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove completed items from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var statuses []queue.Status
			switch {
			case clearAll:
				// Clear with no statuses removes everything.
			case clearFailed:
				statuses = []queue.Status{queue.StatusFailed, queue.StatusReview}
			default:
				statuses = []queue.Status{queue.StatusCompleted}
			}

			removed, err := store.Clear(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d item(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every item regardless of status")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed and review items instead of completed ones")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a single item from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Remove(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no queue item with id %d", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed item %d\n", id)
			return nil
		},
	}
}
