package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current or most recent sync run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, "status")
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := a.Status()
		if err != nil {
			return err
		}
		if run == nil {
			fmt.Println("No sync has run yet.")
			return nil
		}

		fmt.Printf("Run #%d: %s (full=%v)\n", run.ID, run.Status, run.IsFull)
		fmt.Printf("  started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
		if run.CompletedAt != nil {
			fmt.Printf("  completed: %s\n", run.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("  added:     %d\n", run.Counters.Added)
		fmt.Printf("  modified:  %d\n", run.Counters.Modified)
		fmt.Printf("  removed:   %d\n", run.Counters.Removed)
		fmt.Printf("  unchanged: %d\n", run.Counters.Unchanged)
		fmt.Printf("  skipped:   %d\n", run.Counters.Skipped)
		if run.ErrorMessage != "" {
			fmt.Printf("  error:     %s\n", run.ErrorMessage)
		}
		return nil
	},
}
