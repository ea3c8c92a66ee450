package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync against the configured SharePoint document library",
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx := context.Background()
		a, err := newApp(ctx, "sync")
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := a.Sync(ctx, full, dryRun)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("Run #%d: %s\n", run.ID, run.Status)
		fmt.Printf("  added:     %d\n", run.Counters.Added)
		fmt.Printf("  modified:  %d\n", run.Counters.Modified)
		fmt.Printf("  removed:   %d\n", run.Counters.Removed)
		fmt.Printf("  unchanged: %d\n", run.Counters.Unchanged)
		fmt.Printf("  skipped:   %d\n", run.Counters.Skipped)
		fmt.Printf("  bytes:     %d\n", run.Counters.BytesDownloaded)
		if run.ErrorMessage != "" {
			return fmt.Errorf("sync failed: %s", run.ErrorMessage)
		}
		return nil
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run sync on a recurring interval until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			return configErr(fmt.Errorf("--interval is required and must be positive"))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "worker")
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("Sync worker started (interval=%s)\n", interval)
		err = a.Worker(ctx, interval)
		if err == context.Canceled {
			fmt.Println("Sync worker stopped.")
			return nil
		}
		return err
	},
}
