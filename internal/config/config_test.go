package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		LogDir: "/data/spmirror/log",
		SharePoint: SharePointConfig{
			Hostname:    "contoso.sharepoint.com",
			SitePath:    "/sites/eng",
			LibraryName: "Documents",
			TenantID:    "tenant-1",
			ClientID:    "client-1",
		},
		Sync: SyncConfig{
			MaxSizeBytes:      1 << 20,
			ExcludeExtensions: []string{"tmp", "log"},
			MaxParallelDrives: 4,
		},
		Storage: StorageConfig{
			CatalogPath: "/data/spmirror/catalog.db",
			BlobRoot:    "/data/spmirror/blobs",
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.SharePoint.Hostname != original.SharePoint.Hostname {
		t.Errorf("Hostname = %q, want %q", got.SharePoint.Hostname, original.SharePoint.Hostname)
	}
	if got.Sync.MaxSizeBytes != original.Sync.MaxSizeBytes {
		t.Errorf("MaxSizeBytes = %d, want %d", got.Sync.MaxSizeBytes, original.Sync.MaxSizeBytes)
	}
	if len(got.Sync.ExcludeExtensions) != 2 {
		t.Fatalf("len(ExcludeExtensions) = %d, want 2", len(got.Sync.ExcludeExtensions))
	}
	if got.Storage.CatalogPath != original.Storage.CatalogPath {
		t.Errorf("CatalogPath = %q, want %q", got.Storage.CatalogPath, original.Storage.CatalogPath)
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := New("/data/spmirror")

	if cfg.Storage.CatalogPath != filepath.Join("/data/spmirror", "catalog.db") {
		t.Errorf("CatalogPath = %q", cfg.Storage.CatalogPath)
	}
	if cfg.Sync.MaxParallelDrives != 4 {
		t.Errorf("MaxParallelDrives = %d, want 4", cfg.Sync.MaxParallelDrives)
	}
}

func TestInit_RefusesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := os.WriteFile(path, []byte("log_dir = \"/x\"\n"), 0644); err != nil {
		t.Fatalf("seeding existing file: %v", err)
	}

	err := Init(path, New(dir))
	if err == nil {
		t.Error("expected Init() to refuse an existing config file")
	}
}

func TestInit_ThenReadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := New(dir)
	cfg.SharePoint.Hostname = "contoso.sharepoint.com"

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if got.SharePoint.Hostname != "contoso.sharepoint.com" {
		t.Errorf("Hostname = %q", got.SharePoint.Hostname)
	}
}
