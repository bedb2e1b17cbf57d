package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Media.CacheSize != 500 {
		t.Errorf("cache_size = %d, want 500", cfg.Media.CacheSize)
	}
	if cfg.Sync.FlushIntervalSec != 10 || cfg.Sync.PushIntervalSec != 300 {
		t.Errorf("sync intervals = %d/%d, want 10/300", cfg.Sync.FlushIntervalSec, cfg.Sync.PushIntervalSec)
	}
	if cfg.RateLimits.RequestsPerMin != 6000 {
		t.Errorf("requests_per_min = %d, want 6000", cfg.RateLimits.RequestsPerMin)
	}

	// The defaults were persisted for the user to edit.
	if _, err := os.Stat(filepath.Join(dir, "server_config.json")); err != nil {
		t.Errorf("server_config.json not created: %v", err)
	}

	// Relative paths resolve under the data directory.
	if want := filepath.Join(dir, "media.db"); cfg.Media.DBPath != want {
		t.Errorf("db_path = %q, want %q", cfg.Media.DBPath, want)
	}
	if want := filepath.Join(dir, "state.json"); cfg.State.StateFile != want {
		t.Errorf("state_file = %q, want %q", cfg.State.StateFile, want)
	}
}

func TestLoadExistingConfig(t *testing.T) {
	dir := t.TempDir()
	content := `{
  "media": {"cache_size": 900, "db_path": "/srv/kioku/media.db"},
  "sync": {"state_gist_id": "abc123", "push_interval_s": 60}
}`
	if err := os.WriteFile(filepath.Join(dir, "server_config.json"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Media.CacheSize != 900 {
		t.Errorf("cache_size = %d, want 900", cfg.Media.CacheSize)
	}
	// Absolute paths are kept as-is.
	if cfg.Media.DBPath != "/srv/kioku/media.db" {
		t.Errorf("db_path = %q", cfg.Media.DBPath)
	}
	if cfg.Sync.StateGistID != "abc123" {
		t.Errorf("state_gist_id = %q", cfg.Sync.StateGistID)
	}
	if cfg.Sync.PushIntervalSec != 60 {
		t.Errorf("push_interval_s = %d, want 60", cfg.Sync.PushIntervalSec)
	}
	// Untouched sections keep their defaults.
	if cfg.Sync.FlushIntervalSec != 10 {
		t.Errorf("flush_interval_s = %d, want the default 10", cfg.Sync.FlushIntervalSec)
	}
	if len(cfg.Media.Extensions) != 4 {
		t.Errorf("extensions = %v, want the default four", cfg.Media.Extensions)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "server_config.json"),
		[]byte(`{"media": {"cache_size": -5}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "cache_size") {
		t.Errorf("err = %v, want a cache_size complaint", err)
	}
}

func TestValidateExtensions(t *testing.T) {
	m := DefaultMediaConfig()
	m.Extensions = []string{"opus"}
	if err := m.Validate(); err == nil {
		t.Error("expected error for extension without a dot")
	}
	m.Extensions = nil
	if err := m.Validate(); err == nil {
		t.Error("expected error for empty extension list")
	}
}
