package catalog

import (
	"testing"

	"spmirror/internal/core"
	"spmirror/internal/model"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewSQLiteCatalog(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteCatalog() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteCatalog_UpsertDocument_Insert(t *testing.T) {
	c := newTestCatalog(t)

	var doc *model.Document
	var action model.UpsertAction
	err := c.WithTx(func(tx core.Tx) error {
		var err error
		doc, action, err = tx.UpsertDocument("item-1", "drive-1", model.UpsertFields{
			Name: "report.docx",
			Path: "/reports/report.docx",
			Size: 1024,
		}, false)
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	if action != model.ActionInserted {
		t.Errorf("action = %v, want inserted", action)
	}
	if doc.ItemID != "item-1" {
		t.Errorf("doc.ItemID = %q", doc.ItemID)
	}
}

func TestSQLiteCatalog_UpsertDocument_Unchanged(t *testing.T) {
	c := newTestCatalog(t)

	fields := model.UpsertFields{Name: "x.txt", Path: "/x.txt", Size: 5}
	if err := c.WithTx(func(tx core.Tx) error {
		_, _, err := tx.UpsertDocument("item-1", "drive-1", fields, false)
		return err
	}); err != nil {
		t.Fatalf("first upsert error = %v", err)
	}

	var action model.UpsertAction
	if err := c.WithTx(func(tx core.Tx) error {
		var err error
		_, action, err = tx.UpsertDocument("item-1", "drive-1", fields, false)
		return err
	}); err != nil {
		t.Fatalf("second upsert error = %v", err)
	}
	if action != model.ActionUnchanged {
		t.Errorf("action = %v, want unchanged", action)
	}
}

func TestSQLiteCatalog_AcquireAndReleaseBlob_RefCount(t *testing.T) {
	c := newTestCatalog(t)

	var blobID int64
	if err := c.WithTx(func(tx core.Tx) error {
		var err error
		blobID, err = tx.AcquireBlob("abc123", 100, "text/plain")
		return err
	}); err != nil {
		t.Fatalf("AcquireBlob() error = %v", err)
	}

	if err := c.WithTx(func(tx core.Tx) error {
		_, err := tx.AcquireBlob("abc123", 100, "text/plain")
		return err
	}); err != nil {
		t.Fatalf("second AcquireBlob() error = %v", err)
	}

	blob, err := c.GetBlob(blobID)
	if err != nil {
		t.Fatalf("GetBlob() error = %v", err)
	}
	if blob.RefCount != 2 {
		t.Errorf("refcount = %d, want 2", blob.RefCount)
	}

	var rel *core.ReleaseResult
	if err := c.WithTx(func(tx core.Tx) error {
		var err error
		rel, err = tx.ReleaseBlob(blobID)
		return err
	}); err != nil {
		t.Fatalf("ReleaseBlob() error = %v", err)
	}
	if rel.RefCount != 1 {
		t.Errorf("refcount after release = %d, want 1", rel.RefCount)
	}
}

func TestSQLiteCatalog_SoftDelete_ReleasesBlob(t *testing.T) {
	c := newTestCatalog(t)

	var blobID int64
	if err := c.WithTx(func(tx core.Tx) error {
		var err error
		blobID, err = tx.AcquireBlob("sha-1", 50, "")
		if err != nil {
			return err
		}
		id := blobID
		_, _, err = tx.UpsertDocument("item-1", "drive-1", model.UpsertFields{Name: "a", BlobID: &id}, false)
		return err
	}); err != nil {
		t.Fatalf("setup error = %v", err)
	}

	var result *core.SoftDeleteResult
	if err := c.WithTx(func(tx core.Tx) error {
		var err error
		result, err = tx.SoftDelete("item-1", "drive-1")
		return err
	}); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	if !result.HadBlob {
		t.Fatal("expected HadBlob = true")
	}
	if result.NewRefCount != 0 {
		t.Errorf("refcount after soft delete = %d, want 0", result.NewRefCount)
	}

	doc, err := c.GetDocument("item-1", "drive-1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if !doc.IsDeleted {
		t.Error("document should be marked deleted")
	}
}

func TestSQLiteCatalog_StartRun_AlreadyRunning(t *testing.T) {
	c := newTestCatalog(t)

	runID, err := c.StartRun(false)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if runID == 0 {
		t.Fatal("expected non-zero run id")
	}

	if _, err := c.StartRun(false); !core.IsKind(err, core.KindAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	if err := c.FinishRun(runID, ""); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	if _, err := c.StartRun(false); err != nil {
		t.Errorf("StartRun() after finish error = %v", err)
	}
}

func TestSQLiteCatalog_DeltaLinkRoundtrip(t *testing.T) {
	c := newTestCatalog(t)

	if _, ok, err := c.GetDeltaLink("drive-1"); err != nil || ok {
		t.Fatalf("expected no delta link yet, ok=%v err=%v", ok, err)
	}

	if err := c.SetDeltaLink("drive-1", "https://graph/delta?token=abc"); err != nil {
		t.Fatalf("SetDeltaLink() error = %v", err)
	}

	link, ok, err := c.GetDeltaLink("drive-1")
	if err != nil || !ok {
		t.Fatalf("GetDeltaLink() ok=%v err=%v", ok, err)
	}
	if link != "https://graph/delta?token=abc" {
		t.Errorf("link = %q", link)
	}

	if err := c.ClearDeltaLinks(); err != nil {
		t.Fatalf("ClearDeltaLinks() error = %v", err)
	}
	if _, ok, _ := c.GetDeltaLink("drive-1"); ok {
		t.Error("expected delta link cleared")
	}
}

func TestSQLiteCatalog_LogEventAndBumpCounters(t *testing.T) {
	c := newTestCatalog(t)

	runID, err := c.StartRun(true)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	if err := c.WithTx(func(tx core.Tx) error {
		if _, err := tx.LogEvent(runID, nil, model.EventAdd, model.EventSnapshot{ItemID: "item-1", Name: "a.txt"}); err != nil {
			return err
		}
		return tx.BumpCounters(runID, model.Counters{Added: 1, BytesDownloaded: 42})
	}); err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	run, err := c.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Counters.Added != 1 || run.Counters.BytesDownloaded != 42 {
		t.Errorf("counters = %+v", run.Counters)
	}
}
