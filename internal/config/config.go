// Package config provides TOML file configuration layered under CLI flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Storage  StorageConfig  `toml:"storage"`
	Download DownloadConfig `toml:"download"`
	Service  ServiceConfig  `toml:"service"`
}

// StorageConfig maps persistence settings.
type StorageConfig struct {
	DBPath     string `toml:"db_path"`
	DatasetDir string `toml:"dataset_dir"`
}

// DownloadConfig maps downloader settings.
type DownloadConfig struct {
	TimeoutSecs int    `toml:"timeout_secs"`
	MaxAttempts int    `toml:"max_attempts"`
	RetryCap    int    `toml:"retry_cap"`
	CatalogPath string `toml:"catalog"`
}

// ServiceConfig maps statistics service settings.
type ServiceConfig struct {
	CacheSize int `toml:"cache_size"`
}

// Default returns the baseline configuration.
func Default() FileConfig {
	return FileConfig{
		Storage: StorageConfig{
			DBPath:     "data/stats.db",
			DatasetDir: "data/datasets",
		},
		Download: DownloadConfig{
			TimeoutSecs: 60,
			MaxAttempts: 3,
			RetryCap:    3,
		},
		Service: ServiceConfig{
			CacheSize: 512,
		},
	}
}

// Load reads a TOML config from the given path over the defaults. A missing
// file is not an error.
func Load(path string) (FileConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("stat config: %w", err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Timeout returns the per-attempt download timeout.
func (c DownloadConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}
