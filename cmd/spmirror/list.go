package main

import (
	"context"
	"fmt"

	"spmirror/internal/core"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List mirrored documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		includeDeleted, _ := cmd.Flags().GetBool("include-deleted")

		ctx := context.Background()
		a, err := newApp(ctx, "list")
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.List(core.ListOptions{Search: search, Limit: limit, IncludeDeleted: includeDeleted})
		if err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		for _, d := range docs {
			marker := " "
			if d.IsDeleted {
				marker = "D"
			}
			fmt.Printf("%s  %10d  %s\n", marker, d.Size, d.Path)
		}
		return nil
	},
}
