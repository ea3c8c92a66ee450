package syncengine

import (
	"context"
	"time"

	"spmirror/internal/core"
	"spmirror/internal/model"
)

// Status reports the currently running sync, if any, else the most
// recently completed or failed one.
func (o *Orchestrator) Status() (*model.SyncRun, error) {
	if run, err := o.catalog.CurrentRun(); err != nil {
		return nil, err
	} else if run != nil {
		return run, nil
	}
	return o.catalog.LastRun()
}

// List returns mirrored documents matching opts.
func (o *Orchestrator) List(opts core.ListOptions) ([]*model.Document, error) {
	return o.catalog.ListDocuments(opts)
}

// TestConnection verifies Graph authentication and site resolution
// without performing a sync.
func (o *Orchestrator) TestConnection(ctx context.Context) error {
	return o.graph.TestConnection(ctx)
}

// ClearDeltaCursors drops all persisted per-drive delta cursors so the
// next run performs a full enumeration of every drive.
func (o *Orchestrator) ClearDeltaCursors() error {
	return o.catalog.ClearDeltaLinks()
}

// VerifyResult is one blob's outcome from VerifyStorage.
type VerifyResult struct {
	SHA256 string
	Result core.VerifyResult
}

// Worker runs a sync every interval until ctx is cancelled, skipping a
// tick if a run completed within the last interval (so a slow sync
// doesn't pile up back-to-back runs) or if one is already in
// progress — the latter is also enforced by the StartRun latch, so a
// concurrently-started `sync` never races the worker's own tick.
func (o *Orchestrator) Worker(ctx context.Context, interval time.Duration) error {
	for {
		due := false
		last, err := o.catalog.LastRun()
		if err != nil {
			o.logger.Error("worker: checking last run", "error", err)
		} else if last == nil {
			due = true
		} else {
			finished := last.StartedAt
			if last.CompletedAt != nil {
				finished = *last.CompletedAt
			}
			due = o.clock.Now().Sub(finished) >= interval
		}
		if due {
			if current, err := o.catalog.CurrentRun(); err != nil {
				o.logger.Error("worker: checking current run", "error", err)
			} else if current != nil {
				o.logger.Info("worker: sync already in progress, skipping tick")
			} else {
				o.logger.Info("worker: starting sync")
				run, err := o.Run(ctx, false)
				if err != nil {
					o.logger.Error("worker: sync failed", "error", err)
				} else {
					o.logger.Info("worker: sync completed",
						"added", run.Counters.Added, "modified", run.Counters.Modified, "removed", run.Counters.Removed)
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// VerifyStorage checks every blob referenced by the catalog against the
// blob store, reporting any that are missing or have drifted from their
// recorded checksum and size.
func (o *Orchestrator) VerifyStorage() ([]VerifyResult, error) {
	blobs, err := o.catalog.ListBlobs()
	if err != nil {
		return nil, err
	}

	var problems []VerifyResult
	for _, b := range blobs {
		result, err := o.blobs.Verify(b.SHA256, b.Size)
		if err != nil {
			return nil, err
		}
		if result != core.VerifyOK {
			problems = append(problems, VerifyResult{SHA256: b.SHA256, Result: result})
		}
	}
	return problems, nil
}
