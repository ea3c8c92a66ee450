package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Verify Graph authentication and site resolution without syncing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, "test-connection")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.TestConnection(ctx); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}
		fmt.Println("Connection OK.")
		return nil
	},
}

var clearDeltaCursorsCmd = &cobra.Command{
	Use:   "clear-delta-cursors",
	Short: "Drop every drive's persisted delta cursor, forcing a full enumeration next sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, "clear-delta-cursors")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ClearDeltaCursors(); err != nil {
			return err
		}
		fmt.Println("Delta cursors cleared.")
		return nil
	},
}

var verifyStorageCmd = &cobra.Command{
	Use:   "verify-storage",
	Short: "Check every referenced blob against the blob store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, "verify-storage")
		if err != nil {
			return err
		}
		defer a.Close()

		problems, err := a.VerifyStorage()
		if err != nil {
			return err
		}

		if len(problems) == 0 {
			fmt.Println("All blobs verified OK.")
			return nil
		}

		for _, p := range problems {
			fmt.Printf("%s: %s\n", p.SHA256, p.Result)
		}
		return fmt.Errorf("%d blob(s) failed verification", len(problems))
	},
}
