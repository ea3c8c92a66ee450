// Package catalog implements the durable relational store of record
// (documents, blobs, delta cursors, runs, and the audit event log) on
// top of SQLite. The teacher generates its query layer with sqlc; that
// generator cannot run in this environment, so the equivalent methods
// are hand-written directly against database/sql, keeping the
// teacher's one-exported-method-per-query shape and its
// errors.Is(sql.ErrNoRows) "not found" convention.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"spmirror/internal/catalog/migrations"
	"spmirror/internal/core"
	"spmirror/internal/model"
)

// SQLiteCatalog implements core.Catalog on top of a single *sql.DB.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

// NewSQLiteCatalog opens (creating if necessary) the SQLite catalog at
// path, applying pragmas and running migrations up to the latest
// version. path may be ":memory:" for ephemeral catalogs used in tests.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, core.CatalogError("NewSQLiteCatalog", fmt.Errorf("running migrations: %w", err))
	}

	return &SQLiteCatalog{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with the
// pragmas the catalog requires: foreign keys on, WAL journaling for
// concurrent readers during a writer transaction, and a busy timeout
// so readers don't fail outright while a sync run holds the writer.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	return db, nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// --- delta cursors ---------------------------------------------------

func (c *SQLiteCatalog) GetDeltaLink(driveID string) (string, bool, error) {
	var link string
	err := c.db.QueryRow(`SELECT delta_link FROM delta_cursors WHERE drive_id = ?`, driveID).Scan(&link)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, core.CatalogError("GetDeltaLink", err)
	}
	return link, true, nil
}

func (c *SQLiteCatalog) SetDeltaLink(driveID, link string) error {
	_, err := c.db.Exec(`
		INSERT INTO delta_cursors (drive_id, delta_link, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(drive_id) DO UPDATE SET delta_link = excluded.delta_link, updated_at = excluded.updated_at
	`, driveID, link, time.Now())
	if err != nil {
		return core.CatalogError("SetDeltaLink", err)
	}
	return nil
}

func (c *SQLiteCatalog) ClearDeltaLinks() error {
	if _, err := c.db.Exec(`DELETE FROM delta_cursors`); err != nil {
		return core.CatalogError("ClearDeltaLinks", err)
	}
	return nil
}

// --- drives -----------------------------------------------------------

func (c *SQLiteCatalog) UpsertDrive(d model.Drive) error {
	_, err := c.db.Exec(`
		INSERT INTO drives (id, name, web_url, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, web_url = excluded.web_url, updated_at = excluded.updated_at
	`, d.ID, d.Name, d.WebURL, time.Now())
	if err != nil {
		return core.CatalogError("UpsertDrive", err)
	}
	return nil
}

func (c *SQLiteCatalog) ListDrives() ([]model.Drive, error) {
	rows, err := c.db.Query(`SELECT id, name, web_url, updated_at FROM drives ORDER BY name`)
	if err != nil {
		return nil, core.CatalogError("ListDrives", err)
	}
	defer rows.Close()

	var out []model.Drive
	for rows.Next() {
		var d model.Drive
		if err := rows.Scan(&d.ID, &d.Name, &d.WebURL, &d.UpdatedAt); err != nil {
			return nil, core.CatalogError("ListDrives", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- documents ----------------------------------------------------------

const documentColumns = `id, item_id, drive_id, name, path, mime, size, web_url, created_by, last_modified_by,
	remote_created_at, remote_modified_at, blob_id, is_deleted, synced_at, created_at, updated_at`

func scanDocument(row rowScanner) (*model.Document, error) {
	var d model.Document
	var blobID sql.NullInt64
	var syncedAt sql.NullTime
	var isDeleted int
	err := row.Scan(
		&d.ID, &d.ItemID, &d.DriveID, &d.Name, &d.Path, &d.MIME, &d.Size, &d.WebURL,
		&d.CreatedBy, &d.LastModifiedBy, &d.RemoteCreatedAt, &d.RemoteModifiedAt,
		&blobID, &isDeleted, &syncedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if blobID.Valid {
		id := blobID.Int64
		d.BlobID = &id
	}
	if syncedAt.Valid {
		d.SyncedAt = syncedAt.Time
	}
	d.IsDeleted = isDeleted != 0
	return &d, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (c *SQLiteCatalog) GetDocument(itemID, driveID string) (*model.Document, error) {
	row := c.db.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE item_id = ? AND drive_id = ?`, itemID, driveID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.CatalogError("GetDocument", err)
	}
	return doc, nil
}

func (c *SQLiteCatalog) ListDocuments(opts core.ListOptions) ([]*model.Document, error) {
	var query string
	var args []any

	if opts.Search != "" {
		cols := `d.id, d.item_id, d.drive_id, d.name, d.path, d.mime, d.size, d.web_url, d.created_by,
			d.last_modified_by, d.remote_created_at, d.remote_modified_at, d.blob_id, d.is_deleted, d.synced_at,
			d.created_at, d.updated_at`
		query = `SELECT ` + cols + ` FROM documents_fts JOIN documents d ON d.id = documents_fts.rowid WHERE documents_fts MATCH ?`
		args = append(args, opts.Search)
		if !opts.IncludeDeleted {
			query += " AND d.is_deleted = 0"
		}
		query += " ORDER BY d.name"
	} else {
		query = `SELECT ` + documentColumns + ` FROM documents`
		if !opts.IncludeDeleted {
			query += " WHERE is_deleted = 0"
		}
		query += " ORDER BY name"
	}

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, core.CatalogError("ListDocuments", err)
	}
	defer rows.Close()

	var out []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, core.CatalogError("ListDocuments", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- blobs --------------------------------------------------------------

func scanBlob(row rowScanner) (*model.FileBlob, error) {
	var b model.FileBlob
	if err := row.Scan(&b.ID, &b.SHA256, &b.Size, &b.MIME, &b.RefCount, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *SQLiteCatalog) GetBlob(id int64) (*model.FileBlob, error) {
	row := c.db.QueryRow(`SELECT id, sha256, size, mime, refcount, created_at FROM blobs WHERE id = ?`, id)
	b, err := scanBlob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.CatalogError("GetBlob", err)
	}
	return b, nil
}

func (c *SQLiteCatalog) GetBlobBySHA256(sha256 string) (*model.FileBlob, error) {
	row := c.db.QueryRow(`SELECT id, sha256, size, mime, refcount, created_at FROM blobs WHERE sha256 = ?`, sha256)
	b, err := scanBlob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.CatalogError("GetBlobBySHA256", err)
	}
	return b, nil
}

func (c *SQLiteCatalog) ListBlobs() ([]*model.FileBlob, error) {
	rows, err := c.db.Query(`SELECT id, sha256, size, mime, refcount, created_at FROM blobs ORDER BY id`)
	if err != nil {
		return nil, core.CatalogError("ListBlobs", err)
	}
	defer rows.Close()

	var out []*model.FileBlob
	for rows.Next() {
		b, err := scanBlob(rows)
		if err != nil {
			return nil, core.CatalogError("ListBlobs", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- runs ---------------------------------------------------------------

const syncInProgressKey = "sync_in_progress"

func (c *SQLiteCatalog) StartRun(isFull bool) (int64, error) {
	var runID int64
	err := c.withTx(func(tx *sql.Tx) error {
		var held string
		err := tx.QueryRow(`SELECT value FROM app_settings WHERE key = ?`, syncInProgressKey).Scan(&held)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking latch: %w", err)
		}
		if err == nil && held == "1" {
			return core.ErrAlreadyRunning
		}

		if _, err := tx.Exec(`
			INSERT INTO app_settings (key, value) VALUES (?, '1')
			ON CONFLICT(key) DO UPDATE SET value = '1'
		`, syncInProgressKey); err != nil {
			return fmt.Errorf("setting latch: %w", err)
		}

		res, err := tx.Exec(`
			INSERT INTO sync_runs (status, started_at, is_full)
			VALUES (?, ?, ?)
		`, model.RunRunning, time.Now(), boolToInt(isFull))
		if err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}
		runID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		if errors.Is(err, core.ErrAlreadyRunning) {
			return 0, core.ErrAlreadyRunning
		}
		return 0, core.CatalogError("StartRun", err)
	}
	return runID, nil
}

func (c *SQLiteCatalog) FinishRun(runID int64, errMsg string) error {
	status := model.RunCompleted
	if errMsg != "" {
		status = model.RunFailed
	}
	err := c.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			UPDATE sync_runs SET status = ?, completed_at = ?, error_message = ? WHERE id = ?
		`, status, time.Now(), errMsg, runID); err != nil {
			return fmt.Errorf("updating run: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM app_settings WHERE key = ?`, syncInProgressKey); err != nil {
			return fmt.Errorf("clearing latch: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.CatalogError("FinishRun", err)
	}
	return nil
}

func scanRun(row rowScanner) (*model.SyncRun, error) {
	var r model.SyncRun
	var completedAt sql.NullTime
	var isFull int
	err := row.Scan(
		&r.ID, &r.Status, &r.StartedAt, &completedAt, &isFull,
		&r.Counters.Added, &r.Counters.Modified, &r.Counters.Removed,
		&r.Counters.Unchanged, &r.Counters.Skipped, &r.Counters.BytesDownloaded,
		&r.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	r.IsFull = isFull != 0
	return &r, nil
}

const runColumns = `id, status, started_at, completed_at, is_full, added, modified, removed, unchanged, skipped, bytes_downloaded, error_message`

func (c *SQLiteCatalog) GetRun(id int64) (*model.SyncRun, error) {
	row := c.db.QueryRow(`SELECT `+runColumns+` FROM sync_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.CatalogError("GetRun", err)
	}
	return r, nil
}

func (c *SQLiteCatalog) CurrentRun() (*model.SyncRun, error) {
	row := c.db.QueryRow(`SELECT ` + runColumns + ` FROM sync_runs WHERE status = 'running' ORDER BY id DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.CatalogError("CurrentRun", err)
	}
	return r, nil
}

func (c *SQLiteCatalog) LastRun() (*model.SyncRun, error) {
	row := c.db.QueryRow(`SELECT ` + runColumns + ` FROM sync_runs WHERE status != 'running' ORDER BY id DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.CatalogError("LastRun", err)
	}
	return r, nil
}

// --- transactions ---------------------------------------------------------

func (c *SQLiteCatalog) withTx(fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// WithTx runs fn inside a single database transaction.
func (c *SQLiteCatalog) WithTx(fn func(core.Tx) error) error {
	err := c.withTx(func(tx *sql.Tx) error {
		return fn(&sqliteTx{tx: tx})
	})
	if err != nil && !errors.Is(err, core.ErrAlreadyRunning) {
		return core.CatalogError("WithTx", err)
	}
	return err
}

// sqliteTx implements core.Tx on top of an open *sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) UpsertDocument(itemID, driveID string, fields model.UpsertFields, clearBlob bool) (*model.Document, model.UpsertAction, error) {
	existing, err := t.getDocument(itemID, driveID)
	if err != nil {
		return nil, "", fmt.Errorf("loading existing document: %w", err)
	}

	now := time.Now()

	if existing == nil {
		res, err := t.tx.Exec(`
			INSERT INTO documents (item_id, drive_id, name, path, mime, size, web_url, created_by, last_modified_by,
				remote_created_at, remote_modified_at, blob_id, is_deleted, synced_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		`, itemID, driveID, fields.Name, fields.Path, fields.MIME, fields.Size, fields.WebURL,
			fields.CreatedBy, fields.LastModifiedBy, fields.RemoteCreatedAt, fields.RemoteModifiedAt,
			nullableInt64(fields.BlobID), now, now, now)
		if err != nil {
			return nil, "", fmt.Errorf("inserting document: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, "", err
		}
		doc, err := t.getDocumentByID(id)
		return doc, model.ActionInserted, err
	}

	contentChanged := fields.BlobID != nil && (existing.BlobID == nil || *existing.BlobID != *fields.BlobID)
	metaChanged := existing.Name != fields.Name || existing.Path != fields.Path || existing.MIME != fields.MIME ||
		existing.Size != fields.Size || existing.WebURL != fields.WebURL || existing.CreatedBy != fields.CreatedBy ||
		existing.LastModifiedBy != fields.LastModifiedBy ||
		!existing.RemoteCreatedAt.Equal(fields.RemoteCreatedAt) || !existing.RemoteModifiedAt.Equal(fields.RemoteModifiedAt) ||
		existing.IsDeleted

	blobID := existing.BlobID
	if clearBlob {
		blobID = nil
	} else if fields.BlobID != nil {
		blobID = fields.BlobID
	}

	if !contentChanged && !metaChanged && !clearBlob {
		return existing, model.ActionUnchanged, nil
	}

	_, err = t.tx.Exec(`
		UPDATE documents SET name = ?, path = ?, mime = ?, size = ?, web_url = ?, created_by = ?, last_modified_by = ?,
			remote_created_at = ?, remote_modified_at = ?, blob_id = ?, is_deleted = 0, synced_at = ?, updated_at = ?
		WHERE item_id = ? AND drive_id = ?
	`, fields.Name, fields.Path, fields.MIME, fields.Size, fields.WebURL, fields.CreatedBy, fields.LastModifiedBy,
		fields.RemoteCreatedAt, fields.RemoteModifiedAt, nullableInt64(blobID), now, now, itemID, driveID)
	if err != nil {
		return nil, "", fmt.Errorf("updating document: %w", err)
	}

	doc, err := t.getDocument(itemID, driveID)
	if err != nil {
		return nil, "", err
	}

	action := model.ActionUpdatedMetadata
	if contentChanged {
		action = model.ActionUpdatedContent
	}
	return doc, action, nil
}

func (t *sqliteTx) getDocument(itemID, driveID string) (*model.Document, error) {
	row := t.tx.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE item_id = ? AND drive_id = ?`, itemID, driveID)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (t *sqliteTx) getDocumentByID(id int64) (*model.Document, error) {
	row := t.tx.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

func (t *sqliteTx) SoftDelete(itemID, driveID string) (*core.SoftDeleteResult, error) {
	doc, err := t.getDocument(itemID, driveID)
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if doc == nil || doc.IsDeleted {
		return nil, nil
	}

	now := time.Now()
	if _, err := t.tx.Exec(`UPDATE documents SET is_deleted = 1, blob_id = NULL, updated_at = ? WHERE item_id = ? AND drive_id = ?`, now, itemID, driveID); err != nil {
		return nil, fmt.Errorf("soft-deleting document: %w", err)
	}

	result := &core.SoftDeleteResult{OldDoc: doc}
	if doc.BlobID == nil {
		return result, nil
	}

	rel, err := t.ReleaseBlob(*doc.BlobID)
	if err != nil {
		return nil, fmt.Errorf("releasing blob: %w", err)
	}
	result.HadBlob = true
	result.OldBlobID = doc.BlobID
	result.SHA256 = rel.SHA256
	result.NewRefCount = rel.RefCount
	return result, nil
}

func (t *sqliteTx) AcquireBlob(sha256 string, size int64, mime string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(`SELECT id FROM blobs WHERE sha256 = ?`, sha256).Scan(&id)
	if err == nil {
		if _, err := t.tx.Exec(`UPDATE blobs SET refcount = refcount + 1 WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("incrementing refcount: %w", err)
		}
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up blob: %w", err)
	}

	res, err := t.tx.Exec(`INSERT INTO blobs (sha256, size, mime, refcount, created_at) VALUES (?, ?, ?, 1, ?)`,
		sha256, size, mime, time.Now())
	if err != nil {
		return 0, fmt.Errorf("inserting blob: %w", err)
	}
	return res.LastInsertId()
}

// ReleaseBlob decrements a blob's refcount. Callers must have already
// cleared any documents.blob_id pointing at blobID in this transaction;
// once the refcount reaches zero the row itself is deleted here, so the
// catalog never carries a blob record with no referencing document and
// no on-disk file for the orchestrator to clean up.
func (t *sqliteTx) ReleaseBlob(blobID int64) (*core.ReleaseResult, error) {
	if _, err := t.tx.Exec(`UPDATE blobs SET refcount = refcount - 1 WHERE id = ?`, blobID); err != nil {
		return nil, fmt.Errorf("decrementing refcount: %w", err)
	}

	var sha256 string
	var refcount int64
	if err := t.tx.QueryRow(`SELECT sha256, refcount FROM blobs WHERE id = ?`, blobID).Scan(&sha256, &refcount); err != nil {
		return nil, fmt.Errorf("reading blob after release: %w", err)
	}

	if refcount <= 0 {
		if _, err := t.tx.Exec(`DELETE FROM blobs WHERE id = ?`, blobID); err != nil {
			return nil, fmt.Errorf("deleting released blob: %w", err)
		}
	}

	return &core.ReleaseResult{RefCount: refcount, SHA256: sha256}, nil
}

func (t *sqliteTx) LogEvent(runID int64, documentID *int64, typ model.EventType, snap model.EventSnapshot) (int64, error) {
	res, err := t.tx.Exec(`
		INSERT INTO sync_events (run_id, document_id, type, item_id, name, path, size, blob_id, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, nullableInt64(documentID), typ, snap.ItemID, snap.Name, snap.Path, snap.Size, nullableInt64(snap.BlobID), time.Now())
	if err != nil {
		return 0, fmt.Errorf("inserting event: %w", err)
	}
	return res.LastInsertId()
}

func (t *sqliteTx) BumpCounters(runID int64, delta model.Counters) error {
	_, err := t.tx.Exec(`
		UPDATE sync_runs SET added = added + ?, modified = modified + ?, removed = removed + ?,
			unchanged = unchanged + ?, skipped = skipped + ?, bytes_downloaded = bytes_downloaded + ?
		WHERE id = ?
	`, delta.Added, delta.Modified, delta.Removed, delta.Unchanged, delta.Skipped, delta.BytesDownloaded, runID)
	if err != nil {
		return fmt.Errorf("bumping counters: %w", err)
	}
	return nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ core.Catalog = (*SQLiteCatalog)(nil)
var _ core.Tx = (*sqliteTx)(nil)
