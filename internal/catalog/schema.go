package catalog

// Schema is the catalog's table definition, duplicated from the
// 000001_init migration (without its schema_version row) so an
// in-memory database can be bootstrapped in one Exec. The test helpers
// do not use it: testutil.NewTestCatalog runs the migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS db_metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS app_settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS drives (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    web_url    TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS blobs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    sha256     TEXT NOT NULL UNIQUE,
    size       INTEGER NOT NULL,
    mime       TEXT NOT NULL DEFAULT '',
    refcount   INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blobs_refcount ON blobs(refcount);

CREATE TABLE IF NOT EXISTS documents (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id            TEXT NOT NULL,
    drive_id           TEXT NOT NULL,
    name               TEXT NOT NULL DEFAULT '',
    path               TEXT NOT NULL DEFAULT '',
    mime               TEXT NOT NULL DEFAULT '',
    size               INTEGER NOT NULL DEFAULT 0,
    web_url            TEXT NOT NULL DEFAULT '',
    created_by         TEXT NOT NULL DEFAULT '',
    last_modified_by   TEXT NOT NULL DEFAULT '',
    remote_created_at  DATETIME,
    remote_modified_at DATETIME,
    blob_id            INTEGER REFERENCES blobs(id),
    is_deleted         INTEGER NOT NULL DEFAULT 0,
    synced_at          DATETIME,
    created_at         DATETIME NOT NULL,
    updated_at         DATETIME NOT NULL,
    UNIQUE (item_id, drive_id)
);

CREATE INDEX IF NOT EXISTS idx_documents_blob_id ON documents(blob_id);
CREATE INDEX IF NOT EXISTS idx_documents_drive_id ON documents(drive_id);
CREATE INDEX IF NOT EXISTS idx_documents_is_deleted ON documents(is_deleted);

CREATE TABLE IF NOT EXISTS delta_cursors (
    drive_id   TEXT PRIMARY KEY,
    delta_link TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_runs (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    status           TEXT NOT NULL,
    started_at       DATETIME NOT NULL,
    completed_at     DATETIME,
    is_full          INTEGER NOT NULL DEFAULT 0,
    added            INTEGER NOT NULL DEFAULT 0,
    modified         INTEGER NOT NULL DEFAULT 0,
    removed          INTEGER NOT NULL DEFAULT 0,
    unchanged        INTEGER NOT NULL DEFAULT 0,
    skipped          INTEGER NOT NULL DEFAULT 0,
    bytes_downloaded INTEGER NOT NULL DEFAULT 0,
    error_message    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      INTEGER NOT NULL REFERENCES sync_runs(id),
    document_id INTEGER REFERENCES documents(id),
    type        TEXT NOT NULL,
    item_id     TEXT NOT NULL DEFAULT '',
    name        TEXT NOT NULL DEFAULT '',
    path        TEXT NOT NULL DEFAULT '',
    size        INTEGER NOT NULL DEFAULT 0,
    blob_id     INTEGER,
    logged_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_events_run_id ON sync_events(run_id);
CREATE INDEX IF NOT EXISTS idx_sync_events_document_id ON sync_events(document_id);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    name,
    path,
    content='documents',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS documents_fts_insert AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, name, path) VALUES (new.id, new.name, new.path);
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_delete AFTER DELETE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, name, path) VALUES ('delete', old.id, old.name, old.path);
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_update AFTER UPDATE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, name, path) VALUES ('delete', old.id, old.name, old.path);
    INSERT INTO documents_fts(rowid, name, path) VALUES (new.id, new.name, new.path);
END;
`
