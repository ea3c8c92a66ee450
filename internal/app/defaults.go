package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults returns application default paths, checking environment
// variables first.
//
// Environment variables:
//   - SPMIRROR_CONFIG_PATH: config file location (default: ~/.config/spmirror.toml)
//   - SPMIRROR_HOME: base directory for spmirror data (default: ~/.local/share/spmirror)
func Defaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv("SPMIRROR_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "spmirror.toml"), nil
}

func getBaseDir() (string, error) {
	if path := os.Getenv("SPMIRROR_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "spmirror"), nil
}
