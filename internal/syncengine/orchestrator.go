// Package syncengine is the orchestration layer that drives a sync run:
// enumerating drives, walking each drive's delta feed, applying the
// filter, reconciling catalog state, and reporting results. It
// coordinates the core.Catalog, core.BlobStore, core.GraphClient, and
// filter.Filter components the way the teacher's bt.BTService
// coordinates its Database, StagingArea, Vault, and FilesystemManager.
package syncengine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
	"sync"

	"spmirror/internal/core"
	"spmirror/internal/filter"
	"spmirror/internal/model"
)

// Config bounds orchestrator behavior independent of sync.* filter
// settings: how many drives to reconcile concurrently and whether to
// apply mutations.
type Config struct {
	MaxParallelDrives int
	DryRun            bool
	Hostname          string
	SitePath          string
	LibraryName       string

	// MetadataOnly, when set, upserts document metadata without ever
	// downloading content: every document is stored with blob_id = null.
	MetadataOnly bool
	// VerifyQuickXorHash, when set, computes the QuickXorHash of
	// downloaded content and compares it against the server-reported
	// value, in addition to the SHA-256 check, which runs whenever the
	// server reports a SHA-256.
	VerifyQuickXorHash bool
}

// Orchestrator is the sync engine's top-level coordinator.
type Orchestrator struct {
	catalog core.Catalog
	blobs   core.BlobStore
	graph   core.GraphClient
	filter  *filter.Filter
	logger  core.Logger
	clock   core.Clock
	cfg     Config

	// dryRunMu guards dryRunCounters, the in-memory accumulator
	// bumpCounters writes to instead of the run row when cfg.DryRun is
	// set, since a dry run must still report what it would have done
	// (spec §4.5) without persisting any mutation.
	dryRunMu       sync.Mutex
	dryRunCounters model.Counters
}

// New builds an Orchestrator from its dependencies.
func New(catalog core.Catalog, blobs core.BlobStore, graph core.GraphClient, f *filter.Filter, logger core.Logger, clock core.Clock, cfg Config) *Orchestrator {
	if logger == nil {
		logger = &core.NopLogger{}
	}
	if clock == nil {
		clock = core.RealClock{}
	}
	if cfg.MaxParallelDrives <= 0 {
		cfg.MaxParallelDrives = 4
	}
	return &Orchestrator{catalog: catalog, blobs: blobs, graph: graph, filter: f, logger: logger, clock: clock, cfg: cfg}
}

// Run executes one sync: acquire the latch, enumerate drives, reconcile
// each drive's delta feed (bounded by cfg.MaxParallelDrives), and
// finalize the run. isFull forces every drive's delta cursor to be
// dropped before enumeration, producing a cold-start-style full walk.
func (o *Orchestrator) Run(ctx context.Context, isFull bool) (*model.SyncRun, error) {
	if isFull {
		if err := o.catalog.ClearDeltaLinks(); err != nil {
			return nil, err
		}
	}

	runID, err := o.catalog.StartRun(isFull)
	if err != nil {
		return nil, err
	}

	o.dryRunMu.Lock()
	o.dryRunCounters = model.Counters{}
	o.dryRunMu.Unlock()

	runErr := o.reconcileAllDrives(ctx, runID)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if finishErr := o.catalog.FinishRun(runID, errMsg); finishErr != nil {
		o.logger.Error("finishing run", "run_id", runID, "error", finishErr)
	}

	run, getErr := o.catalog.GetRun(runID)
	if getErr != nil {
		return nil, getErr
	}
	if o.cfg.DryRun {
		o.dryRunMu.Lock()
		run.Counters = o.dryRunCounters
		o.dryRunMu.Unlock()
	}
	return run, runErr
}

func (o *Orchestrator) reconcileAllDrives(ctx context.Context, runID int64) error {
	site, err := o.graph.ResolveSite(ctx, o.cfg.Hostname, o.cfg.SitePath)
	if err != nil {
		return err
	}

	drives, err := o.graph.ListDrives(ctx, site.ID, o.cfg.LibraryName)
	if err != nil {
		return err
	}

	for _, d := range drives {
		if err := o.catalog.UpsertDrive(model.Drive{ID: d.ID, Name: d.Name, WebURL: d.WebURL}); err != nil {
			return err
		}
	}

	sem := make(chan struct{}, o.cfg.MaxParallelDrives)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, d := range drives {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(d core.DriveInfo) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := o.reconcileDrive(ctx, runID, d.ID); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(d)
	}
	wg.Wait()

	return firstErr
}

// reconcileDrive walks one drive's delta feed to completion, persisting
// the cursor after each page and observing context cancellation between
// pages and entries (spec §4.5: cancellation is checked at those
// boundaries, not mid-download).
func (o *Orchestrator) reconcileDrive(ctx context.Context, runID int64, driveID string) error {
	link, _, err := o.catalog.GetDeltaLink(driveID)
	if err != nil {
		return err
	}

	for page, err := range o.graph.Delta(ctx, driveID, link) {
		if err != nil {
			if core.IsKind(err, core.KindNotFound) {
				// Expired delta cursor (410 Gone): reset and restart this
				// drive from a full enumeration.
				if clearErr := o.catalog.SetDeltaLink(driveID, ""); clearErr != nil {
					return clearErr
				}
				return o.reconcileDrive(ctx, runID, driveID)
			}
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		for _, entry := range page.Entries {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := o.reconcileEntry(ctx, runID, driveID, entry); err != nil {
				return err
			}
		}

		cursor := page.DeltaLink
		if cursor == "" {
			cursor = page.NextLink
		}
		if cursor != "" && !o.cfg.DryRun {
			if err := o.catalog.SetDeltaLink(driveID, cursor); err != nil {
				return err
			}
		}
	}

	return nil
}

func (o *Orchestrator) reconcileEntry(ctx context.Context, runID int64, driveID string, entry core.ChangeEntry) error {
	if entry.Deleted {
		return o.applyDeletion(runID, driveID, entry.ItemID)
	}

	item := entry.Item
	if item.Kind == core.ItemFolder {
		return nil
	}

	existing, err := o.catalog.GetDocument(item.ItemID, driveID)
	if err != nil {
		return err
	}

	included, reason := o.filter.Evaluate(item.Path, item.Name, item.Size)
	if !included {
		if existing != nil && !existing.IsDeleted {
			o.logger.Info("retracting previously mirrored item", "item_id", item.ItemID, "reason", reason)
			return o.applyDeletion(runID, driveID, item.ItemID)
		}
		o.logger.Debug("skipping filtered item", "item_id", item.ItemID, "reason", reason)
		return o.bumpCounters(runID, model.Counters{Skipped: 1})
	}

	return o.applyUpsert(ctx, runID, driveID, item, existing)
}

func (o *Orchestrator) applyDeletion(runID int64, driveID, itemID string) error {
	if o.cfg.DryRun {
		doc, err := o.catalog.GetDocument(itemID, driveID)
		if err != nil {
			return err
		}
		if doc == nil || doc.IsDeleted {
			return nil
		}
		return o.bumpCounters(runID, model.Counters{Removed: 1})
	}

	return o.catalog.WithTx(func(tx core.Tx) error {
		result, err := tx.SoftDelete(itemID, driveID)
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}

		snap := model.EventSnapshot{ItemID: itemID, Name: result.OldDoc.Name, Path: result.OldDoc.Path, Size: result.OldDoc.Size}
		if _, err := tx.LogEvent(runID, &result.OldDoc.ID, model.EventRemove, snap); err != nil {
			return err
		}
		if err := tx.BumpCounters(runID, model.Counters{Removed: 1}); err != nil {
			return err
		}

		if result.HadBlob && result.NewRefCount == 0 {
			if err := o.blobs.Delete(result.SHA256); err != nil {
				o.logger.Warn("deleting orphaned blob", "sha256", result.SHA256, "error", err)
			}
		}
		return nil
	})
}

// applyUpsert reconciles one non-deleted, non-folder item against the
// catalog. Metadata-only mode skips content entirely; otherwise it
// downloads (or reuses) the item's blob and applies the document
// upsert, old-blob release, event log, and counter bump as one atomic
// transaction (spec §1/§4.2: mutations spanning multiple rows for a
// single item's reconciliation execute together or not at all).
func (o *Orchestrator) applyUpsert(ctx context.Context, runID int64, driveID string, item *core.DriveItem, existing *model.Document) error {
	if o.cfg.MetadataOnly {
		return o.applyMetadataOnlyUpsert(runID, driveID, item, existing)
	}

	dl, err := o.materializeBlob(ctx, driveID, item, existing)
	if err != nil {
		return o.handleItemFailure(runID, item, existing, err)
	}

	if o.cfg.DryRun {
		action := model.ActionUpdatedMetadata
		if existing == nil {
			action = model.ActionInserted
		} else if dl.reuseBlobID == nil {
			action = model.ActionUpdatedContent
		}
		return o.bumpCounters(runID, countersForAction(action, dl.bytesDownloaded))
	}

	var action model.UpsertAction
	err = o.catalog.WithTx(func(tx core.Tx) error {
		var blobID *int64
		switch {
		case dl.reuseBlobID != nil:
			blobID = dl.reuseBlobID
		case dl.sha256 != "":
			id, err := tx.AcquireBlob(dl.sha256, dl.size, dl.mime)
			if err != nil {
				return err
			}
			blobID = &id
		}

		fields := model.UpsertFields{
			Name: item.Name, Path: item.Path, MIME: "", Size: item.Size, WebURL: item.WebURL,
			CreatedBy: item.CreatedBy, LastModifiedBy: item.LastModifiedBy,
			RemoteCreatedAt: item.RemoteCreatedAt, RemoteModifiedAt: item.RemoteModifiedAt,
			BlobID: blobID,
		}

		doc, a, err := tx.UpsertDocument(item.ItemID, driveID, fields, false)
		if err != nil {
			return err
		}
		action = a

		if action == model.ActionUpdatedContent && existing != nil && existing.BlobID != nil {
			if err := o.releaseBlobInTx(tx, *existing.BlobID); err != nil {
				return err
			}
		}

		if err := o.logUpsertEvents(tx, runID, existing, doc, action); err != nil {
			return err
		}
		return tx.BumpCounters(runID, countersForAction(action, dl.bytesDownloaded))
	})
	return err
}

// applyMetadataOnlyUpsert upserts item's metadata with blob_id cleared,
// releasing whatever blob the document previously referenced (spec
// §4.5 step 3.a).
func (o *Orchestrator) applyMetadataOnlyUpsert(runID int64, driveID string, item *core.DriveItem, existing *model.Document) error {
	if o.cfg.DryRun {
		action := model.ActionUpdatedMetadata
		if existing == nil {
			action = model.ActionInserted
		}
		return o.bumpCounters(runID, countersForAction(action, 0))
	}

	var action model.UpsertAction
	err := o.catalog.WithTx(func(tx core.Tx) error {
		fields := model.UpsertFields{
			Name: item.Name, Path: item.Path, MIME: "", Size: item.Size, WebURL: item.WebURL,
			CreatedBy: item.CreatedBy, LastModifiedBy: item.LastModifiedBy,
			RemoteCreatedAt: item.RemoteCreatedAt, RemoteModifiedAt: item.RemoteModifiedAt,
		}

		doc, a, err := tx.UpsertDocument(item.ItemID, driveID, fields, true)
		if err != nil {
			return err
		}
		action = a

		if existing != nil && existing.BlobID != nil {
			if err := o.releaseBlobInTx(tx, *existing.BlobID); err != nil {
				return err
			}
		}

		if err := o.logUpsertEvents(tx, runID, existing, doc, action); err != nil {
			return err
		}
		return tx.BumpCounters(runID, countersForAction(action, 0))
	})
	return err
}

// handleItemFailure classifies a materializeBlob error. A hash
// mismatch or a missing remote item (core.KindHashMismatch,
// core.KindNotFound) is scoped to this item: log a failed event,
// increment skipped, and let the run continue (spec §4.5, §7; the
// original wraps per-item processing in try/except). Any other error
// is fatal to the run and propagates unchanged.
func (o *Orchestrator) handleItemFailure(runID int64, item *core.DriveItem, existing *model.Document, itemErr error) error {
	var ce *core.Error
	if !errors.As(itemErr, &ce) || core.Fatal(ce.Kind) {
		return itemErr
	}

	o.logger.Warn("skipping item after per-item failure", "item_id", item.ItemID, "path", item.Path, "error", itemErr)

	if o.cfg.DryRun {
		return o.bumpCounters(runID, model.Counters{Skipped: 1})
	}

	return o.catalog.WithTx(func(tx core.Tx) error {
		var docID *int64
		if existing != nil {
			docID = &existing.ID
		}
		snap := model.EventSnapshot{ItemID: item.ItemID, Name: item.Name, Path: item.Path, Size: item.Size}
		if _, err := tx.LogEvent(runID, docID, model.EventFailed, snap); err != nil {
			return err
		}
		return tx.BumpCounters(runID, model.Counters{Skipped: 1})
	})
}

// releaseBlobInTx decrements blobID's refcount and, if it reached
// zero, deletes the underlying file. Matches applyDeletion's existing
// delete-inside-the-transaction-closure pattern.
func (o *Orchestrator) releaseBlobInTx(tx core.Tx, blobID int64) error {
	rel, err := tx.ReleaseBlob(blobID)
	if err != nil {
		return err
	}
	if rel.RefCount == 0 {
		if err := o.blobs.Delete(rel.SHA256); err != nil {
			o.logger.Warn("deleting orphaned blob", "sha256", rel.SHA256, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) logUpsertEvents(tx core.Tx, runID int64, existing *model.Document, doc *model.Document, action model.UpsertAction) error {
	snap := model.EventSnapshot{ItemID: doc.ItemID, Name: doc.Name, Path: doc.Path, Size: doc.Size, BlobID: doc.BlobID}

	switch action {
	case model.ActionInserted:
		_, err := tx.LogEvent(runID, &doc.ID, model.EventAdd, snap)
		return err
	case model.ActionUpdatedContent:
		oldSnap := snap
		if existing != nil {
			oldSnap = model.EventSnapshot{ItemID: existing.ItemID, Name: existing.Name, Path: existing.Path, Size: existing.Size, BlobID: existing.BlobID}
		}
		if _, err := tx.LogEvent(runID, &doc.ID, model.EventModifyRemove, oldSnap); err != nil {
			return err
		}
		_, err := tx.LogEvent(runID, &doc.ID, model.EventModifyAdd, snap)
		return err
	default:
		// ActionUpdatedMetadata and ActionUnchanged are not audited: a
		// same-hash rename or a no-op is not a content change (spec
		// §4.5 step 3.d).
		return nil
	}
}

// downloadedBlob is the outcome of materializeBlob: either a pointer
// at an already-cataloged blob to reuse, or the verified SHA-256 of
// freshly downloaded content still waiting to be acquired inside the
// upsert's transaction.
type downloadedBlob struct {
	reuseBlobID     *int64
	sha256          string
	size            int64
	mime            string
	bytesDownloaded int64
}

// materializeBlob reuses an existing blob when the server-reported
// content hash matches one already in the catalog, otherwise downloads
// the item and verifies its content against the server's SHA-256 (and,
// when cfg.VerifyQuickXorHash is set, its QuickXorHash) before handing
// the verified content back for the caller to acquire. It never opens
// a transaction itself: acquisition happens alongside the document
// upsert so both commit or roll back together.
func (o *Orchestrator) materializeBlob(ctx context.Context, driveID string, item *core.DriveItem, existing *model.Document) (*downloadedBlob, error) {
	if item.QuickXorHash == "" && item.SHA256Hash == "" {
		o.logger.Warn("item reported no content hash, accepting without verification", "item_id", item.ItemID)
	}

	if existing != nil && existing.BlobID != nil && !o.contentChanged(existing, item) {
		id := *existing.BlobID
		return &downloadedBlob{reuseBlobID: &id}, nil
	}

	rc, err := o.graph.Download(ctx, driveID, item.ItemID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	if o.cfg.DryRun {
		io.Copy(io.Discard, rc)
		return &downloadedBlob{bytesDownloaded: item.Size}, nil
	}

	var qx hash.Hash
	src := io.Reader(rc)
	if o.cfg.VerifyQuickXorHash && item.QuickXorHash != "" {
		qx = newQuickXorHash()
		src = io.TeeReader(rc, qx)
	}

	sha256Hex, size, mime, err := o.blobs.Put(src, "")
	if err != nil {
		return nil, err
	}

	if item.SHA256Hash != "" && !equalHexFold(sha256Hex, item.SHA256Hash) {
		o.discardBlob(sha256Hex)
		return nil, core.HashMismatchError("materializeBlob", fmt.Errorf("item %s: downloaded sha256 %s != reported %s", item.ItemID, sha256Hex, item.SHA256Hash))
	}

	if qx != nil {
		gotQuickXor := base64.StdEncoding.EncodeToString(qx.Sum(nil))
		if !strings.EqualFold(gotQuickXor, item.QuickXorHash) {
			o.discardBlob(sha256Hex)
			return nil, core.HashMismatchError("materializeBlob", fmt.Errorf("item %s: downloaded quickxorhash %s != reported %s", item.ItemID, gotQuickXor, item.QuickXorHash))
		}
	}

	return &downloadedBlob{sha256: sha256Hex, size: size, mime: mime, bytesDownloaded: size}, nil
}

// discardBlob removes a just-Put file that failed verification, so a
// rejected download never lingers as an unreferenced file on disk.
func (o *Orchestrator) discardBlob(sha256Hex string) {
	if err := o.blobs.Delete(sha256Hex); err != nil {
		o.logger.Warn("discarding blob that failed verification", "sha256", sha256Hex, "error", err)
	}
}

// contentChanged reports whether item's server-reported hash differs
// from what the catalog last recorded. Since the catalog stores a
// SHA-256 per blob (not the drive's QuickXorHash), the comparison is
// against the server's own reported SHA256Hash when present; absent
// that, any upsert with an existing blob is treated as metadata-only
// (no redownload) per the accept-and-warn resolution for missing
// hashes.
func (o *Orchestrator) contentChanged(existing *model.Document, item *core.DriveItem) bool {
	if item.SHA256Hash == "" {
		return false
	}
	blob, err := o.catalog.GetBlob(*existing.BlobID)
	if err != nil || blob == nil {
		return true
	}
	return !equalHexFold(blob.SHA256, item.SHA256Hash)
}

func equalHexFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

func countersForAction(action model.UpsertAction, bytesDownloaded int64) model.Counters {
	c := model.Counters{BytesDownloaded: bytesDownloaded}
	switch action {
	case model.ActionInserted:
		c.Added = 1
	case model.ActionUpdatedContent:
		c.Modified = 1
	case model.ActionUpdatedMetadata, model.ActionUnchanged:
		// A same-hash rename or no-op is reported as unchanged, matching
		// the original's reclassification of metadata-only changes.
		c.Unchanged = 1
	}
	return c
}

func (o *Orchestrator) bumpCounters(runID int64, delta model.Counters) error {
	if o.cfg.DryRun {
		o.dryRunMu.Lock()
		o.dryRunCounters.Add(delta)
		o.dryRunMu.Unlock()
		return nil
	}
	return o.catalog.WithTx(func(tx core.Tx) error {
		return tx.BumpCounters(runID, delta)
	})
}
