// Package app is the wiring layer between the CLI and the sync engine.
// It constructs the catalog, blob store, Graph client, and filter from
// config, exposes high-level operations the CLI commands call directly,
// and owns the resource lifecycle on Close.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"spmirror/internal/catalog"
	"spmirror/internal/config"
	"spmirror/internal/core"
	"spmirror/internal/export"
	"spmirror/internal/filter"
	"spmirror/internal/graph"
	"spmirror/internal/model"
	"spmirror/internal/syncengine"

	blobstorepkg "spmirror/internal/blobstore"
)

// App is the fully wired application. The caller must call Close when done.
type App struct {
	cfg       *config.Config
	cat       core.Catalog
	blobs     core.BlobStore
	graph     core.GraphClient
	filter    *filter.Filter
	logger    core.Logger
	engine    *syncengine.Orchestrator
	engineCfg syncengine.Config
	logFile   *os.File
}

// New constructs a fully wired App from cfg. command identifies the CLI
// command being run, used only to correlate log lines for this
// invocation.
func New(ctx context.Context, cfg *config.Config, command string) (*App, error) {
	runID := core.UUIDGenerator{}.New()
	logger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	slogLogger := &slogAdapter{l: logger.With(slog.String("command", command))}

	cat, err := catalog.NewSQLiteCatalog(cfg.Storage.CatalogPath)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	blobs, err := blobstorepkg.NewFromBlobRoot(ctx, cfg.Storage.BlobRoot, cfg.Storage.S3Region, cfg.Storage.S3AccessKeyID, cfg.Storage.S3SecretKey)
	if err != nil {
		cat.Close()
		logFile.Close()
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	gc := graph.NewClient(graph.Config{
		TenantID:     cfg.SharePoint.TenantID,
		ClientID:     cfg.SharePoint.ClientID,
		ClientSecret: cfg.SharePoint.ClientSecret,
		Hostname:     cfg.SharePoint.Hostname,
		SitePath:     cfg.SharePoint.SitePath,
		Logger:       slogLogger,
	})

	f := filter.New(filter.Config{
		MaxSizeBytes:      cfg.Sync.MaxSizeBytes,
		IncludeExtensions: cfg.Sync.IncludeExtensions,
		ExcludeExtensions: cfg.Sync.ExcludeExtensions,
		IncludePaths:      cfg.Sync.IncludePaths,
		PathPatterns:      cfg.Sync.PathPatterns,
	})

	engineCfg := syncengine.Config{
		MaxParallelDrives:  cfg.Sync.MaxParallelDrives,
		Hostname:           cfg.SharePoint.Hostname,
		SitePath:           cfg.SharePoint.SitePath,
		LibraryName:        cfg.SharePoint.LibraryName,
		MetadataOnly:       cfg.Sync.MetadataOnly,
		VerifyQuickXorHash: cfg.Sync.VerifyQuickXorHash,
	}
	engine := syncengine.New(cat, blobs, gc, f, slogLogger, core.RealClock{}, engineCfg)

	return &App{
		cfg: cfg, cat: cat, blobs: blobs, graph: gc, filter: f, logger: slogLogger,
		engine: engine, engineCfg: engineCfg, logFile: logFile,
	}, nil
}

// Sync runs one sync and returns the resulting run report. dryRun
// applies to this run only.
func (a *App) Sync(ctx context.Context, isFull, dryRun bool) (*model.SyncRun, error) {
	cfg := a.engineCfg
	cfg.DryRun = dryRun
	engine := syncengine.New(a.cat, a.blobs, a.graph, a.filter, a.logger, core.RealClock{}, cfg)
	return engine.Run(ctx, isFull)
}

// Status returns the current or most recent run.
func (a *App) Status() (*model.SyncRun, error) { return a.engine.Status() }

// List returns mirrored documents matching opts.
func (a *App) List(opts core.ListOptions) ([]*model.Document, error) { return a.engine.List(opts) }

// TestConnection verifies Graph connectivity without syncing.
func (a *App) TestConnection(ctx context.Context) error { return a.engine.TestConnection(ctx) }

// ClearDeltaCursors drops every drive's persisted delta cursor.
func (a *App) ClearDeltaCursors() error { return a.engine.ClearDeltaCursors() }

// VerifyStorage checks every referenced blob against the blob store.
func (a *App) VerifyStorage() ([]syncengine.VerifyResult, error) { return a.engine.VerifyStorage() }

// Worker runs sync on a recurring interval until ctx is cancelled.
func (a *App) Worker(ctx context.Context, interval time.Duration) error {
	return a.engine.Worker(ctx, interval)
}

// ExportMetadata streams document metadata to w, using the configured
// export recipient for encryption unless opts.EncryptRecipient is
// already set.
func (a *App) ExportMetadata(w io.Writer, opts export.Options) error {
	if opts.EncryptRecipient == "" {
		opts.EncryptRecipient = a.cfg.Storage.ExportRecipient
	}
	return export.Metadata(a.cat, w, opts)
}

// Close releases the catalog connection and log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.cat.Close(); err != nil {
		firstErr = fmt.Errorf("closing catalog: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
