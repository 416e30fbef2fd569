package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg != def {
		t.Errorf("cfg = %+v, want defaults %+v", cfg, def)
	}
	if cfg.Download.Timeout() != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", cfg.Download.Timeout())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movebook.toml")
	body := `
[storage]
db_path = "/tmp/other.db"

[download]
timeout_secs = 5

[service]
cache_size = 32
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DBPath != "/tmp/other.db" {
		t.Errorf("DBPath = %q", cfg.Storage.DBPath)
	}
	if cfg.Download.Timeout() != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Download.Timeout())
	}
	if cfg.Service.CacheSize != 32 {
		t.Errorf("CacheSize = %d, want 32", cfg.Service.CacheSize)
	}
	// Untouched sections keep their defaults.
	if cfg.Storage.DatasetDir != "data/datasets" {
		t.Errorf("DatasetDir = %q", cfg.Storage.DatasetDir)
	}
	if cfg.Download.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Download.MaxAttempts)
	}
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[storage\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed TOML accepted")
	}
}
