// Package export streams the catalog's document metadata to a writer,
// for downstream pipelines that want a snapshot of what was mirrored
// without talking to the catalog directly. Grounded on the teacher's
// internal/encryption package for the optional at-rest encryption: a
// recipient-only, one-way wrapping (no passphrase unlock, since export
// output is write-once and never decrypted by this binary).
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"filippo.io/age"

	"spmirror/internal/core"
	"spmirror/internal/model"
)

// Format selects the output encoding for Metadata.
type Format string

const (
	// FormatJSON writes a single JSON array of records.
	FormatJSON Format = "json"
	// FormatJSONL writes one JSON object per line.
	FormatJSONL Format = "jsonl"
)

// Options configures a metadata export.
type Options struct {
	Format Format
	// IncludeBlobPath adds each record's content-addressed relative
	// path under the blob store root (sha256[0:2]/sha256[2:4]/sha256).
	IncludeBlobPath bool
	// IncludeDeleted includes soft-deleted documents in the export.
	IncludeDeleted bool
	// EncryptRecipient, if non-empty, is an age X25519 public key
	// (as produced by `age-keygen`); the output stream is wrapped with
	// age.Encrypt before any bytes reach w.
	EncryptRecipient string
}

// Record is one exported document.
type Record struct {
	ItemID           string `json:"item_id"`
	DriveID          string `json:"drive_id"`
	Name             string `json:"name"`
	Path             string `json:"path"`
	MIME             string `json:"mime,omitempty"`
	Size             int64  `json:"size"`
	WebURL           string `json:"web_url,omitempty"`
	SHA256           string `json:"sha256,omitempty"`
	BlobPath         string `json:"blob_path,omitempty"`
	IsDeleted        bool   `json:"is_deleted"`
	RemoteModifiedAt string `json:"remote_modified_at,omitempty"`
}

// Metadata writes every document the catalog knows about (subject to
// opts.IncludeDeleted) to w, in opts.Format, optionally age-encrypting
// the stream for opts.EncryptRecipient.
func Metadata(cat core.Catalog, w io.Writer, opts Options) error {
	docs, err := cat.ListDocuments(core.ListOptions{IncludeDeleted: opts.IncludeDeleted})
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	dest := w
	var encWriter io.WriteCloser
	if opts.EncryptRecipient != "" {
		recipient, err := age.ParseX25519Recipient(opts.EncryptRecipient)
		if err != nil {
			return fmt.Errorf("parsing export recipient: %w", err)
		}
		encWriter, err = age.Encrypt(w, recipient)
		if err != nil {
			return fmt.Errorf("opening encrypted export stream: %w", err)
		}
		dest = encWriter
	}

	bufWriter := bufio.NewWriter(dest)

	var blobByID map[int64]*model.FileBlob
	if opts.IncludeBlobPath {
		blobByID, err = loadBlobsByID(cat)
		if err != nil {
			return err
		}
	}

	writeErr := writeRecords(bufWriter, docs, blobByID, opts)

	if flushErr := bufWriter.Flush(); writeErr == nil {
		writeErr = flushErr
	}
	if encWriter != nil {
		if closeErr := encWriter.Close(); writeErr == nil {
			writeErr = closeErr
		}
	}
	return writeErr
}

func writeRecords(w io.Writer, docs []*model.Document, blobByID map[int64]*model.FileBlob, opts Options) error {
	switch opts.Format {
	case FormatJSONL, "":
		enc := json.NewEncoder(w)
		for _, d := range docs {
			if err := enc.Encode(toRecord(d, blobByID, opts.IncludeBlobPath)); err != nil {
				return err
			}
		}
		return nil
	case FormatJSON:
		records := make([]Record, len(docs))
		for i, d := range docs {
			records[i] = toRecord(d, blobByID, opts.IncludeBlobPath)
		}
		return json.NewEncoder(w).Encode(records)
	default:
		return fmt.Errorf("unknown export format %q", opts.Format)
	}
}

func toRecord(d *model.Document, blobByID map[int64]*model.FileBlob, includeBlobPath bool) Record {
	r := Record{
		ItemID: d.ItemID, DriveID: d.DriveID, Name: d.Name, Path: d.Path,
		MIME: d.MIME, Size: d.Size, WebURL: d.WebURL, IsDeleted: d.IsDeleted,
	}
	if !d.RemoteModifiedAt.IsZero() {
		r.RemoteModifiedAt = d.RemoteModifiedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	if d.BlobID != nil {
		if blob, ok := blobByID[*d.BlobID]; ok {
			r.SHA256 = blob.SHA256
			if includeBlobPath {
				r.BlobPath = blobRelPath(blob.SHA256)
			}
		}
	}
	return r
}

func loadBlobsByID(cat core.Catalog) (map[int64]*model.FileBlob, error) {
	blobs, err := cat.ListBlobs()
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}
	byID := make(map[int64]*model.FileBlob, len(blobs))
	for _, b := range blobs {
		byID[b.ID] = b
	}
	return byID, nil
}

// blobRelPath mirrors the sha256[0:2]/sha256[2:4]/sha256 sharding
// convention used by both the filesystem and S3 blob store backends.
func blobRelPath(sha256hex string) string {
	if len(sha256hex) < 4 {
		return sha256hex
	}
	return sha256hex[0:2] + "/" + sha256hex[2:4] + "/" + sha256hex
}
