package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("SPMIRROR_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("SPMIRROR_HOME", "/custom/spmirror")

		defaults, err := Defaults()
		if err != nil {
			t.Fatalf("Defaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/spmirror" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/spmirror")
		}
		if defaults["log_dir"] != "/custom/spmirror/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/spmirror/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("SPMIRROR_CONFIG_PATH", "")
		t.Setenv("SPMIRROR_HOME", "")

		defaults, err := Defaults()
		if err != nil {
			t.Fatalf("Defaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "spmirror.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "spmirror")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}

		wantLog := filepath.Join(wantBase, "log")
		if defaults["log_dir"] != wantLog {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], wantLog)
		}
	})
}
