// Package config loads tool configuration from an optional JSON file with
// environment variable overrides. A .env file in the working directory is
// honoured so local setups don't need exported variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultDatabasePath = "aad_working.db"
	DefaultSnapshotsDir = "snapshots"
	DefaultExportsDir   = "exports"
	DefaultLogsDir      = "logs"

	// DefaultDeletionThreshold is the number of attacks that may disappear
	// between two versions before the diff flags the change as a likely
	// regression instead of a correction.
	DefaultDeletionThreshold = 5
)

// Config holds the paths and thresholds the CLI operates with.
type Config struct {
	// DatabasePath is the mutable working database maintainers edit
	// between releases.
	DatabasePath string `json:"database_path,omitempty"`

	// SnapshotsDir receives published snapshot files. Files under it are
	// never modified after publication.
	SnapshotsDir string `json:"snapshots_dir,omitempty"`

	// ExportsDir receives CSV/YAML export output.
	ExportsDir string `json:"exports_dir,omitempty"`

	// LogsDir receives timestamped analysis log files.
	LogsDir string `json:"logs_dir,omitempty"`

	// DeletionThreshold tunes the cross-version regression heuristic.
	DeletionThreshold int `json:"deletion_threshold,omitempty"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		DatabasePath:      DefaultDatabasePath,
		SnapshotsDir:      DefaultSnapshotsDir,
		ExportsDir:        DefaultExportsDir,
		LogsDir:           DefaultLogsDir,
		DeletionThreshold: DefaultDeletionThreshold,
	}
}

// Load builds the effective configuration: defaults, then the JSON file at
// path (if path is empty or the file is absent the defaults stand), then
// environment variables. A .env file is loaded first so its values are
// visible as environment variables; a missing .env is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.mergeEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal over the defaults so omitted fields keep their values.
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cleanPath, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	if v := os.Getenv("AAD_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("AAD_SNAPSHOTS_DIR"); v != "" {
		c.SnapshotsDir = v
	}
	if v := os.Getenv("AAD_EXPORTS_DIR"); v != "" {
		c.ExportsDir = v
	}
	if v := os.Getenv("AAD_LOGS_DIR"); v != "" {
		c.LogsDir = v
	}
	if v := os.Getenv("AAD_DELETION_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DeletionThreshold = n
		}
	}
}

// Validate checks the configuration for values the tool cannot run with.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.DeletionThreshold < 0 {
		return fmt.Errorf("deletion threshold must not be negative, got %d", c.DeletionThreshold)
	}
	return nil
}
