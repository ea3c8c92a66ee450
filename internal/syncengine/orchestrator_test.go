package syncengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"spmirror/internal/blobstore"
	"spmirror/internal/core"
	"spmirror/internal/filter"
	"spmirror/internal/testutil"
)

func newTestOrchestrator(t *testing.T, graph *testutil.FakeGraphClient) (*Orchestrator, core.Catalog) {
	t.Helper()
	cat := testutil.NewTestCatalog(t)
	blobs := blobstore.NewMemoryBlobStore()
	f := filter.New(filter.Config{})
	o := New(cat, blobs, graph, f, &core.NopLogger{}, testutil.FixedClock(), Config{LibraryName: "Documents"})
	return o, cat
}

func fakeGraphWithDrive(driveID string) *testutil.FakeGraphClient {
	g := testutil.NewFakeGraphClient()
	g.Site = core.Site{ID: "site-1"}
	g.Drive = core.DriveInfo{ID: driveID, Name: "Documents"}
	return g
}

func TestOrchestrator_ColdStart_ThreeFiles(t *testing.T) {
	g := fakeGraphWithDrive("drive-1")
	g.Content["item-1"] = []byte("alpha")
	g.Content["item-2"] = []byte("beta")
	g.Content["item-3"] = []byte("gamma")
	g.Pages["drive-1"] = []core.Page{{
		Entries: []core.ChangeEntry{
			{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5}},
			{ItemID: "item-2", Item: &core.DriveItem{ItemID: "item-2", Kind: core.ItemFile, Name: "b.txt", Path: "/b.txt", Size: 4}},
			{ItemID: "item-3", Item: &core.DriveItem{ItemID: "item-3", Kind: core.ItemFile, Name: "c.txt", Path: "/c.txt", Size: 5}},
		},
		DeltaLink: "https://graph/delta?token=1",
	}}

	o, cat := newTestOrchestrator(t, g)

	run, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Counters.Added != 3 {
		t.Errorf("Added = %d, want 3", run.Counters.Added)
	}

	docs, err := cat.ListDocuments(core.ListOptions{})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("got %d documents, want 3", len(docs))
	}
}

func TestOrchestrator_IncrementalNoOp(t *testing.T) {
	g := fakeGraphWithDrive("drive-1")
	g.Content["item-1"] = []byte("alpha")
	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5, SHA256Hash: shaHex("alpha")}}},
		DeltaLink: "https://graph/delta?token=1",
	}}

	o, _ := newTestOrchestrator(t, g)
	if _, err := o.Run(context.Background(), true); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5, SHA256Hash: shaHex("alpha")}}},
		DeltaLink: "https://graph/delta?token=2",
	}}

	run, err := o.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if run.Counters.Unchanged != 1 || run.Counters.Added != 0 {
		t.Errorf("counters = %+v, want unchanged=1 added=0", run.Counters)
	}
}

func TestOrchestrator_Deletion(t *testing.T) {
	g := fakeGraphWithDrive("drive-1")
	g.Content["item-1"] = []byte("alpha")
	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5}}},
		DeltaLink: "https://graph/delta?token=1",
	}}

	o, cat := newTestOrchestrator(t, g)
	if _, err := o.Run(context.Background(), true); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Deleted: true}},
		DeltaLink: "https://graph/delta?token=2",
	}}

	run, err := o.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if run.Counters.Removed != 1 {
		t.Errorf("Removed = %d, want 1", run.Counters.Removed)
	}

	doc, err := cat.GetDocument("item-1", "drive-1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if !doc.IsDeleted {
		t.Error("expected document marked deleted")
	}
	if doc.BlobID != nil {
		t.Errorf("expected blob_id cleared on soft delete, got %v", *doc.BlobID)
	}

	blobs, err := cat.ListBlobs()
	if err != nil {
		t.Fatalf("ListBlobs() error = %v", err)
	}
	if len(blobs) != 0 {
		t.Errorf("blobs = %+v, want none left once refcount reaches 0", blobs)
	}
}

func TestOrchestrator_FilterRetraction(t *testing.T) {
	g := fakeGraphWithDrive("drive-1")
	g.Content["item-1"] = []byte("alpha")
	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5}}},
		DeltaLink: "https://graph/delta?token=1",
	}}

	cat := testutil.NewTestCatalog(t)
	blobs := blobstore.NewMemoryBlobStore()
	o := New(cat, blobs, g, filter.New(filter.Config{}), &core.NopLogger{}, testutil.FixedClock(), Config{})
	if _, err := o.Run(context.Background(), true); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	o.filter = filter.New(filter.Config{ExcludeExtensions: []string{"txt"}})
	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5}}},
		DeltaLink: "https://graph/delta?token=2",
	}}

	run, err := o.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if run.Counters.Removed != 1 {
		t.Errorf("Removed = %d, want 1 (retraction)", run.Counters.Removed)
	}
}

func TestOrchestrator_DryRun_NoMutation(t *testing.T) {
	g := fakeGraphWithDrive("drive-1")
	g.Content["item-1"] = []byte("alpha")
	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5}}},
		DeltaLink: "https://graph/delta?token=1",
	}}

	cat := testutil.NewTestCatalog(t)
	blobs := blobstore.NewMemoryBlobStore()
	o := New(cat, blobs, g, filter.New(filter.Config{}), &core.NopLogger{}, testutil.FixedClock(), Config{DryRun: true})

	run, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Counters.Added != 1 {
		t.Errorf("dry run Added = %d, want 1 (counters must reflect what would happen)", run.Counters.Added)
	}

	docs, err := cat.ListDocuments(core.ListOptions{})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("dry run should not persist documents, got %d", len(docs))
	}

	if _, ok, _ := cat.GetDeltaLink("drive-1"); ok {
		t.Error("dry run should not persist delta cursor")
	}
}

func TestOrchestrator_ContentChange_ReleasesOldBlob(t *testing.T) {
	g := fakeGraphWithDrive("drive-1")
	g.Content["item-1"] = []byte("alpha")
	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5, SHA256Hash: shaHex("alpha")}}},
		DeltaLink: "https://graph/delta?token=1",
	}}

	cat := testutil.NewTestCatalog(t)
	blobs := blobstore.NewMemoryBlobStore()
	o := New(cat, blobs, g, filter.New(filter.Config{}), &core.NopLogger{}, testutil.FixedClock(), Config{})
	if _, err := o.Run(context.Background(), true); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	g.Content["item-1"] = []byte("beta")
	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 4, SHA256Hash: shaHex("beta")}}},
		DeltaLink: "https://graph/delta?token=2",
	}}

	run, err := o.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if run.Counters.Modified != 1 {
		t.Errorf("Modified = %d, want 1", run.Counters.Modified)
	}

	blobList, err := cat.ListBlobs()
	if err != nil {
		t.Fatalf("ListBlobs() error = %v", err)
	}
	if len(blobList) != 1 {
		t.Fatalf("got %d blobs, want 1 (old row deleted once refcount hit 0, new acquired)", len(blobList))
	}
	if blobList[0].SHA256 != shaHex("beta") || blobList[0].RefCount != 1 {
		t.Errorf("surviving blob = %+v, want beta with refcount 1", blobList[0])
	}

	if _, err := blobs.Open(shaHex("alpha")); !core.IsKind(err, core.KindNotFound) {
		t.Errorf("expected old blob file to be deleted, Open() error = %v", err)
	}
}

func TestOrchestrator_MetadataRename_CountsUnchanged(t *testing.T) {
	g := fakeGraphWithDrive("drive-1")
	g.Content["item-1"] = []byte("alpha")
	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5, SHA256Hash: shaHex("alpha")}}},
		DeltaLink: "https://graph/delta?token=1",
	}}

	o, _ := newTestOrchestrator(t, g)
	if _, err := o.Run(context.Background(), true); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "renamed.txt", Path: "/renamed.txt", Size: 5, SHA256Hash: shaHex("alpha")}}},
		DeltaLink: "https://graph/delta?token=2",
	}}

	run, err := o.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if run.Counters.Unchanged != 1 || run.Counters.Modified != 0 {
		t.Errorf("counters = %+v, want unchanged=1 modified=0", run.Counters)
	}
}

func TestOrchestrator_HashMismatch_SkipsItemButRunSucceeds(t *testing.T) {
	g := fakeGraphWithDrive("drive-1")
	g.Content["item-1"] = []byte("alpha")
	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5, SHA256Hash: shaHex("not-alpha")}}},
		DeltaLink: "https://graph/delta?token=1",
	}}

	o, cat := newTestOrchestrator(t, g)
	run, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Counters.Skipped != 1 || run.Counters.Added != 0 {
		t.Errorf("counters = %+v, want skipped=1 added=0", run.Counters)
	}

	doc, err := cat.GetDocument("item-1", "drive-1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc != nil {
		t.Errorf("expected no document persisted for a hash-mismatched item, got %+v", doc)
	}

	blobList, err := cat.ListBlobs()
	if err != nil {
		t.Fatalf("ListBlobs() error = %v", err)
	}
	if len(blobList) != 0 {
		t.Errorf("expected no orphaned blob rows, got %+v", blobList)
	}
}

func TestOrchestrator_DownloadNotFound_SkipsItemButRunSucceeds(t *testing.T) {
	g := fakeGraphWithDrive("drive-1")
	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5}}},
		DeltaLink: "https://graph/delta?token=1",
	}}

	o, _ := newTestOrchestrator(t, g)
	run, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Counters.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", run.Counters.Skipped)
	}
}

func TestOrchestrator_MetadataOnly_UpsertsWithNullBlob(t *testing.T) {
	g := fakeGraphWithDrive("drive-1")
	g.Content["item-1"] = []byte("alpha")
	g.Pages["drive-1"] = []core.Page{{
		Entries:   []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5, SHA256Hash: shaHex("alpha")}}},
		DeltaLink: "https://graph/delta?token=1",
	}}

	cat := testutil.NewTestCatalog(t)
	blobs := blobstore.NewMemoryBlobStore()
	o := New(cat, blobs, g, filter.New(filter.Config{}), &core.NopLogger{}, testutil.FixedClock(), Config{MetadataOnly: true})

	run, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Counters.Added != 1 {
		t.Errorf("Added = %d, want 1", run.Counters.Added)
	}

	doc, err := cat.GetDocument("item-1", "drive-1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc == nil || doc.BlobID != nil {
		t.Errorf("expected document with nil blob_id, got %+v", doc)
	}

	blobList, err := cat.ListBlobs()
	if err != nil {
		t.Fatalf("ListBlobs() error = %v", err)
	}
	if len(blobList) != 0 {
		t.Errorf("metadata_only mode should never acquire a blob, got %+v", blobList)
	}
}

func TestOrchestrator_QuickXorHashMismatch_SkipsItem(t *testing.T) {
	g := fakeGraphWithDrive("drive-1")
	g.Content["item-1"] = []byte("alpha")
	g.Pages["drive-1"] = []core.Page{{
		Entries: []core.ChangeEntry{{ItemID: "item-1", Item: &core.DriveItem{
			ItemID: "item-1", Kind: core.ItemFile, Name: "a.txt", Path: "/a.txt", Size: 5,
			SHA256Hash:   shaHex("alpha"),
			QuickXorHash: "not-the-real-quickxorhash",
		}}},
		DeltaLink: "https://graph/delta?token=1",
	}}

	cat := testutil.NewTestCatalog(t)
	blobs := blobstore.NewMemoryBlobStore()
	o := New(cat, blobs, g, filter.New(filter.Config{}), &core.NopLogger{}, testutil.FixedClock(), Config{VerifyQuickXorHash: true})

	run, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Counters.Skipped != 1 || run.Counters.Added != 0 {
		t.Errorf("counters = %+v, want skipped=1 added=0", run.Counters)
	}

	blobList, err := cat.ListBlobs()
	if err != nil {
		t.Fatalf("ListBlobs() error = %v", err)
	}
	if len(blobList) != 0 {
		t.Errorf("expected no orphaned blob rows, got %+v", blobList)
	}
}

func shaHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
