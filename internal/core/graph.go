package core

import (
	"context"
	"io"
	"time"
)

// Site identifies a resolved SharePoint site.
type Site struct {
	ID string
}

// DriveInfo describes one document library drive within a site.
type DriveInfo struct {
	ID     string
	Name   string
	WebURL string
}

// ItemKind distinguishes files and folders within a delta page. Folders
// are ignored by the orchestrator (spec §4.5).
type ItemKind string

const (
	ItemFile   ItemKind = "file"
	ItemFolder ItemKind = "folder"
)

// DriveItem is the upsert payload carried by a non-deletion change
// entry: post-change metadata for a file or folder.
type DriveItem struct {
	ItemID           string
	Kind             ItemKind
	Name             string
	Path             string // server-reported absolute path within the drive
	Size             int64
	WebURL           string
	CreatedBy        string
	LastModifiedBy   string
	RemoteCreatedAt  time.Time
	RemoteModifiedAt time.Time
	SHA256Hash       string // server-reported, when available
	QuickXorHash     string // server-reported, when available (base64)
}

// ChangeEntry is one entry in a Graph delta page: either an upsert
// (Item non-nil) or a deletion (Deleted true, only ItemID populated).
type ChangeEntry struct {
	ItemID  string
	Deleted bool
	Item    *DriveItem
}

// Page is one fully-materialized page of a delta traversal. Exactly one
// of NextLink/DeltaLink is non-empty: NextLink means more pages follow;
// DeltaLink is the terminal, persistable cursor.
type Page struct {
	Entries   []ChangeEntry
	NextLink  string
	DeltaLink string
}

// GraphClient is the authenticated Microsoft Graph surface the
// orchestrator drives: site/drive resolution, delta traversal, and
// content download. Implementations own token acquisition, pagination,
// throttling, and retry.
type GraphClient interface {
	ResolveSite(ctx context.Context, hostname, sitePath string) (Site, error)
	ListDrives(ctx context.Context, siteID string, libraryName string) ([]DriveInfo, error)

	// Delta returns a pull-driven iterator over delta pages for drive,
	// resuming from link (empty for a full enumeration). Each page is
	// fully materialized before being yielded — no partial pages.
	Delta(ctx context.Context, driveID, link string) func(yield func(Page, error) bool)

	// Download streams the content of itemID. Transient failures are
	// retried internally before returning an error.
	Download(ctx context.Context, driveID, itemID string) (io.ReadCloser, error)

	// TestConnection verifies that authentication and site resolution
	// succeed without performing a sync.
	TestConnection(ctx context.Context) error
}
