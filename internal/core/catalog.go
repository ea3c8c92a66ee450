package core

import "spmirror/internal/model"

// ListOptions filters the document listing exposed to the CLI/HTTP layer.
type ListOptions struct {
	Search         string
	Limit          int
	IncludeDeleted bool
}

// SoftDeleteResult is returned by Tx.SoftDelete. OldBlobID and SHA256 are
// set only when the document referenced a blob, so the caller can garbage
// collect the blob file if NewRefCount reached zero.
type SoftDeleteResult struct {
	OldDoc      *model.Document
	OldBlobID   *int64
	SHA256      string
	NewRefCount int64
	HadBlob     bool
}

// ReleaseResult is returned by Tx.ReleaseBlob.
type ReleaseResult struct {
	RefCount int64
	SHA256   string
}

// Tx groups the catalog mutations that must be applied atomically while
// reconciling a single delta change entry: document upsert, blob
// acquire/release, event logging, and the run's running counters.
type Tx interface {
	UpsertDocument(itemID, driveID string, fields model.UpsertFields, clearBlob bool) (*model.Document, model.UpsertAction, error)
	SoftDelete(itemID, driveID string) (*SoftDeleteResult, error)
	AcquireBlob(sha256 string, size int64, mime string) (blobID int64, err error)
	ReleaseBlob(blobID int64) (*ReleaseResult, error)
	LogEvent(runID int64, documentID *int64, typ model.EventType, snap model.EventSnapshot) (int64, error)
	BumpCounters(runID int64, delta model.Counters) error
}

// Catalog is the durable relational store of record: documents, blobs,
// delta cursors, runs, and the event log. It is single-writer; readers
// may run concurrently with the active writer transaction.
type Catalog interface {
	// WithTx runs fn inside a single database transaction, committing on
	// a nil return and rolling back otherwise.
	WithTx(fn func(Tx) error) error

	GetDeltaLink(driveID string) (link string, ok bool, err error)
	SetDeltaLink(driveID, link string) error
	ClearDeltaLinks() error

	UpsertDrive(d model.Drive) error
	ListDrives() ([]model.Drive, error)

	GetDocument(itemID, driveID string) (*model.Document, error)
	ListDocuments(opts ListOptions) ([]*model.Document, error)

	GetBlob(id int64) (*model.FileBlob, error)
	GetBlobBySHA256(sha256 string) (*model.FileBlob, error)
	ListBlobs() ([]*model.FileBlob, error)

	// StartRun atomically checks and sets the sync_in_progress latch and
	// inserts a new running SyncRun row. Returns ErrAlreadyRunning if the
	// latch is already held.
	StartRun(isFull bool) (runID int64, err error)
	// FinishRun clears the latch and stamps the run as completed or
	// failed (failed when errMsg is non-empty).
	FinishRun(runID int64, errMsg string) error
	GetRun(id int64) (*model.SyncRun, error)
	CurrentRun() (*model.SyncRun, error)
	LastRun() (*model.SyncRun, error)

	Close() error
}
