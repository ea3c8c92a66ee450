package main

import (
	"fmt"

	"spmirror/internal/app"
	"spmirror/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.Defaults()
		if err != nil {
			return configErr(fmt.Errorf("getting defaults: %w", err))
		}

		cfg := config.New(defaults["base_dir"])

		fmt.Print("SharePoint hostname (e.g. contoso.sharepoint.com): ")
		fmt.Scanln(&cfg.SharePoint.Hostname)
		fmt.Print("Site path (e.g. /sites/eng): ")
		fmt.Scanln(&cfg.SharePoint.SitePath)
		fmt.Print("Document library name: ")
		fmt.Scanln(&cfg.SharePoint.LibraryName)
		fmt.Print("Azure AD tenant ID: ")
		fmt.Scanln(&cfg.SharePoint.TenantID)
		fmt.Print("Azure AD application (client) ID: ")
		fmt.Scanln(&cfg.SharePoint.ClientID)

		fmt.Print("Client secret (input hidden): ")
		secret, err := term.ReadPassword(0)
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading client secret: %w", err)
		}
		cfg.SharePoint.ClientSecret = string(secret)

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return configErr(fmt.Errorf("initializing config: %w", err))
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Catalog:   %s\n", cfg.Storage.CatalogPath)
		fmt.Printf("Blob root: %s\n", cfg.Storage.BlobRoot)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.Defaults()
		if err != nil {
			return configErr(fmt.Errorf("getting defaults: %w", err))
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return configErr(fmt.Errorf("reading config: %w", err))
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("SharePoint hostname: %s\n", cfg.SharePoint.Hostname)
		fmt.Printf("Site path:           %s\n", cfg.SharePoint.SitePath)
		fmt.Printf("Library:             %s\n", cfg.SharePoint.LibraryName)
		fmt.Printf("Tenant ID:           %s\n", cfg.SharePoint.TenantID)
		fmt.Printf("Client ID:           %s\n", cfg.SharePoint.ClientID)
		fmt.Printf("Catalog path:        %s\n", cfg.Storage.CatalogPath)
		fmt.Printf("Blob root:           %s\n", cfg.Storage.BlobRoot)
		fmt.Printf("Max parallel drives: %d\n", cfg.Sync.MaxParallelDrives)
		fmt.Printf("Log dir:             %s\n", cfg.LogDir)
		return nil
	},
}
