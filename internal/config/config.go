// Package config holds application configuration for the skimsync
// CLI and embedders.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all application configuration.
type Config struct {
	Remote  RemoteConfig  `json:"remote"`
	Storage StorageConfig `json:"storage"`
	Log     LogConfig     `json:"log"`
}

// RemoteConfig selects and parameterizes the remote backend.
type RemoteConfig struct {
	Provider string `json:"provider"` // "folder" or "s3"

	// Folder provider
	FolderPath string `json:"folder_path,omitempty"`

	// S3 provider
	S3Bucket string `json:"s3_bucket,omitempty"`
	S3Prefix string `json:"s3_prefix,omitempty"`
	S3Region string `json:"s3_region,omitempty"`
}

// StorageConfig for local paths.
type StorageConfig struct {
	DataDir string `json:"data_dir"` // base directory
	DBPath  string `json:"db_path"`  // snapshot database
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
	File   string `json:"file"`   // log file path (empty = stderr)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".skimsync"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".skimsync")
	}

	return &Config{
		Storage: StorageConfig{
			DataDir: dataDir,
			DBPath:  filepath.Join(dataDir, "snapshot.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Remote.Provider {
	case "", "folder", "s3":
	default:
		return fmt.Errorf("unknown remote provider: %q", c.Remote.Provider)
	}
	if c.Remote.Provider == "folder" && c.Remote.FolderPath == "" {
		return fmt.Errorf("folder provider requires folder_path")
	}
	if c.Remote.Provider == "s3" && c.Remote.S3Bucket == "" {
		return fmt.Errorf("s3 provider requires s3_bucket")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}
	return nil
}
