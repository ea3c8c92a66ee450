package main

import (
	"context"
	"fmt"
	"os"

	"spmirror/internal/export"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export document metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")
		includeBlobPath, _ := cmd.Flags().GetBool("include-blob-path")
		includeDeleted, _ := cmd.Flags().GetBool("include-deleted")
		recipient, _ := cmd.Flags().GetString("encrypt-recipient")

		ctx := context.Background()
		a, err := newApp(ctx, "export")
		if err != nil {
			return err
		}
		defer a.Close()

		out := os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		err = a.ExportMetadata(out, export.Options{
			Format:           export.Format(format),
			IncludeBlobPath:  includeBlobPath,
			IncludeDeleted:   includeDeleted,
			EncryptRecipient: recipient,
		})
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		return nil
	},
}
