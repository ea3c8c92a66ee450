package main

import (
	"context"
	"fmt"
	"os"

	"spmirror/internal/app"
	"spmirror/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// command identifies the CLI command being run, for log correlation.
func newApp(ctx context.Context, command string) (*app.App, error) {
	defaults, err := app.Defaults()
	if err != nil {
		return nil, configErr(fmt.Errorf("getting defaults: %w", err))
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, configErr(fmt.Errorf("reading config: %w", err))
	}

	a, err := app.New(ctx, cfg, command)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "spmirror",
	Short: "SharePoint document library mirror",
}

func init() {
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(testConnectionCmd)
	rootCmd.AddCommand(clearDeltaCursorsCmd)
	rootCmd.AddCommand(verifyStorageCmd)
	rootCmd.AddCommand(workerCmd)

	syncCmd.Flags().Bool("full", false, "force a full re-enumeration of every drive")
	syncCmd.Flags().Bool("dry-run", false, "evaluate the sync without writing to the catalog or blob store")

	listCmd.Flags().String("search", "", "full-text search over document name and path")
	listCmd.Flags().Int("limit", 0, "maximum number of documents to return (0 = no limit)")
	listCmd.Flags().Bool("include-deleted", false, "include soft-deleted documents")

	exportCmd.Flags().String("format", "jsonl", "output format: jsonl or json")
	exportCmd.Flags().String("out", "", "output file (default: stdout)")
	exportCmd.Flags().Bool("include-blob-path", false, "include each document's content-addressed blob path")
	exportCmd.Flags().Bool("include-deleted", false, "include soft-deleted documents")
	exportCmd.Flags().String("encrypt-recipient", "", "age public key to encrypt the export with (overrides configured default)")

	workerCmd.Flags().Duration("interval", 0, "poll interval between sync attempts (required)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
}
