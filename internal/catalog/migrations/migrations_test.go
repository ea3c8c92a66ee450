package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	return db
}

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{"drives", "blobs", "documents", "delta_cursors", "sync_runs", "sync_events", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Error("expected error for fresh database, got nil")
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() failed: %v (should be idempotent)", err)
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`
		INSERT INTO documents (item_id, drive_id, blob_id, created_at, updated_at)
		VALUES ('item-1', 'drive-1', 999, datetime('now'), datetime('now'))
	`)
	if err == nil {
		t.Error("expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_DocumentsUniqueItemDrive(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO documents (item_id, drive_id, created_at, updated_at) VALUES ('item-1', 'drive-1', datetime('now'), datetime('now'))`)
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	_, err = db.Exec(`INSERT INTO documents (item_id, drive_id, created_at, updated_at) VALUES ('item-1', 'drive-1', datetime('now'), datetime('now'))`)
	if err == nil {
		t.Error("expected unique constraint violation for duplicate (item_id, drive_id), but insert succeeded")
	}
}

func TestSchema_BlobsUniqueSHA256(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO blobs (sha256, size, created_at) VALUES ('abc123', 10, datetime('now'))`)
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	_, err = db.Exec(`INSERT INTO blobs (sha256, size, created_at) VALUES ('abc123', 20, datetime('now'))`)
	if err == nil {
		t.Error("expected unique constraint violation for duplicate sha256, but insert succeeded")
	}
}
