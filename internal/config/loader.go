package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Loader reads configuration from a JSON file with environment
// variable overrides.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a config loader. An empty path searches the
// default locations.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  "SKIMSYNC_",
	}
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFile(cfg, l.configPath); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		for _, path := range l.defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				l.configPath = path
				if err := l.loadFile(cfg, path); err != nil {
					return nil, fmt.Errorf("load config file %s: %w", path, err)
				}
				break
			}
		}
	}

	l.loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) defaultPaths() []string {
	paths := []string{
		"skimsync.json",
		".skimsync.json",
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "skimsync", "config.json"),
			filepath.Join(home, ".skimsync", "config.json"),
		)
	}
	return paths
}

func (l *Loader) loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (l *Loader) loadEnv(cfg *Config) {
	set := func(key string, target *string) {
		if v := os.Getenv(l.envPrefix + key); v != "" {
			*target = v
		}
	}

	set("REMOTE_PROVIDER", &cfg.Remote.Provider)
	set("FOLDER_PATH", &cfg.Remote.FolderPath)
	set("S3_BUCKET", &cfg.Remote.S3Bucket)
	set("S3_PREFIX", &cfg.Remote.S3Prefix)
	set("S3_REGION", &cfg.Remote.S3Region)
	set("DATA_DIR", &cfg.Storage.DataDir)
	set("DB_PATH", &cfg.Storage.DBPath)
	set("LOG_LEVEL", &cfg.Log.Level)
	set("LOG_FORMAT", &cfg.Log.Format)
	set("LOG_FILE", &cfg.Log.File)
}
