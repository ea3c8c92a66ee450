// Package model defines the data model persisted by the catalog:
// content-addressed blobs, the documents that reference them, per-drive
// delta cursors, sync runs, and the append-only event log.
package model

import "time"

// FileBlob is a unique content body, addressed by its SHA-256 checksum.
type FileBlob struct {
	ID        int64
	SHA256    string // 64 lowercase hex characters
	Size      int64
	MIME      string
	RefCount  int64
	CreatedAt time.Time
}

// Document is a logical SharePoint item mirrored from a drive.
// BlobID is nil for metadata-only documents, deleted documents, and
// placeholders that have not yet had content fetched.
type Document struct {
	ID               int64
	ItemID           string
	DriveID          string
	Name             string
	Path             string
	MIME             string
	Size             int64
	WebURL           string
	CreatedBy        string
	LastModifiedBy   string
	RemoteCreatedAt  time.Time
	RemoteModifiedAt time.Time
	BlobID           *int64
	IsDeleted        bool
	SyncedAt         time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UpsertAction describes what upsert_document did to a document row.
type UpsertAction string

const (
	ActionInserted        UpsertAction = "inserted"
	ActionUpdatedMetadata UpsertAction = "updated_metadata"
	ActionUpdatedContent  UpsertAction = "updated_content"
	ActionUnchanged       UpsertAction = "unchanged"
)

// UpsertFields carries the mutable metadata passed to upsert_document.
// BlobID is a pointer so "leave unchanged" (nil) can be distinguished
// from "set to null" — callers that want to null it pass clearBlob=true
// to Tx.UpsertDocument.
type UpsertFields struct {
	Name             string
	Path             string
	MIME             string
	Size             int64
	WebURL           string
	CreatedBy        string
	LastModifiedBy   string
	RemoteCreatedAt  time.Time
	RemoteModifiedAt time.Time
	BlobID           *int64
}

// DeltaCursor is the per-drive Graph delta resumption point.
type DeltaCursor struct {
	DriveID   string
	DeltaLink string
	UpdatedAt time.Time
}

// Drive is a lookup-table row for a SharePoint document library drive.
type Drive struct {
	ID        string
	Name      string
	WebURL    string
	UpdatedAt time.Time
}

// RunStatus is the lifecycle state of a SyncRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Counters accumulates the per-run tallies reported in a RunReport.
type Counters struct {
	Added            int64
	Modified         int64
	Removed          int64
	Unchanged        int64
	Skipped          int64
	BytesDownloaded  int64
}

// Add accumulates another Counters into the receiver.
func (c *Counters) Add(o Counters) {
	c.Added += o.Added
	c.Modified += o.Modified
	c.Removed += o.Removed
	c.Unchanged += o.Unchanged
	c.Skipped += o.Skipped
	c.BytesDownloaded += o.BytesDownloaded
}

// SyncRun is one invocation of the orchestrator.
type SyncRun struct {
	ID           int64
	Status       RunStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	IsFull       bool
	Counters     Counters
	ErrorMessage string
}

// EventType is the kind of audit event recorded for a document change.
type EventType string

const (
	EventAdd          EventType = "add"
	EventRemove       EventType = "remove"
	EventModifyRemove EventType = "modify_remove"
	EventModifyAdd    EventType = "modify_add"
	EventFailed       EventType = "failed"
)

// EventSnapshot is the item state captured alongside a SyncEvent.
type EventSnapshot struct {
	ItemID string
	Name   string
	Path   string
	Size   int64
	BlobID *int64
}

// SyncEvent is an append-only audit row describing a document change
// observed during a run.
type SyncEvent struct {
	ID         int64
	RunID      int64
	DocumentID *int64
	Type       EventType
	Snapshot   EventSnapshot
	LoggedAt   time.Time
}
