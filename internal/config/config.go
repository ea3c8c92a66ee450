// Package config loads and persists the TOML configuration that wires
// together the SharePoint connection, the sync engine's filter
// settings, and the storage backends, following the teacher's
// Manager/ReadFromFile/Init pattern built on BurntSushi/toml.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the root of a spmirror configuration file.
type Config struct {
	SharePoint SharePointConfig `toml:"sharepoint"`
	Sync       SyncConfig       `toml:"sync"`
	Storage    StorageConfig    `toml:"storage"`
	LogDir     string           `toml:"log_dir"`
}

// SharePointConfig holds the site, library, and app-registration
// credentials used to authenticate against Microsoft Graph.
type SharePointConfig struct {
	Hostname     string `toml:"hostname"`
	SitePath     string `toml:"site_path"`
	LibraryName  string `toml:"library_name"`
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// SyncConfig carries the filter.Config fields plus orchestration knobs.
type SyncConfig struct {
	MaxSizeBytes       int64    `toml:"max_size_bytes"`
	IncludeExtensions  []string `toml:"include_extensions,omitempty"`
	ExcludeExtensions  []string `toml:"exclude_extensions,omitempty"`
	IncludePaths       []string `toml:"include_paths,omitempty"`
	PathPatterns       []string `toml:"path_patterns,omitempty"`
	MaxParallelDrives  int      `toml:"max_parallel_drives"`
	MetadataOnly       bool     `toml:"metadata_only,omitempty"`
	VerifyQuickXorHash bool     `toml:"verify_quickxor_hash,omitempty"`
}

// StorageConfig locates the catalog database and the blob store.
type StorageConfig struct {
	CatalogPath     string `toml:"catalog_path"`
	BlobRoot        string `toml:"blob_root"` // local path, or "s3://bucket/prefix"
	S3Region        string `toml:"s3_region,omitempty"`
	S3AccessKeyID   string `toml:"s3_access_key_id,omitempty"`
	S3SecretKey     string `toml:"s3_secret_access_key,omitempty"`
	ExportRecipient string `toml:"export_age_recipient,omitempty"` // age public key; empty disables export encryption
}

// New builds a Config with sensible defaults rooted at baseDir.
func New(baseDir string) *Config {
	return &Config{
		LogDir: filepath.Join(baseDir, "log"),
		Storage: StorageConfig{
			CatalogPath: filepath.Join(baseDir, "catalog.db"),
			BlobRoot:    filepath.Join(baseDir, "blobs"),
		},
		Sync: SyncConfig{
			MaxParallelDrives: 4,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes cfg to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file at path, failing if one already exists.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
