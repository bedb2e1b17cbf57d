// Manages server configuration stored in server_config.json.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ServerConfig stores all server-wide configuration.
// Loaded from server_config.json, created with defaults if missing.
// Relative paths resolve under the data directory.
type ServerConfig struct {
	// Media configures the audio resolution tiers.
	Media MediaConfig `json:"media"`

	// State names the snapshot files for the persistent stores.
	State StateConfig `json:"state"`

	// Sync configures snapshot flushing and gist replication.
	Sync SyncConfig `json:"sync"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `json:"rate_limits"`
}

// MediaConfig configures the audio resolution tiers.
type MediaConfig struct {
	// DBPath is the pre-built read-only media database. A missing file
	// disables the database tier.
	DBPath string `json:"db_path"`

	// Dirs are the filesystem fallback directories in precedence order.
	Dirs []string `json:"dirs"`

	// Extensions is the substitution order for filename-stem lookups.
	Extensions []string `json:"extensions"`

	// CacheSize bounds the in-memory blob cache, in entries.
	CacheSize int `json:"cache_size"`
}

// Validate checks the media configuration.
func (m *MediaConfig) Validate() error {
	if m.CacheSize <= 0 {
		return errors.New("cache_size must be positive")
	}
	if len(m.Extensions) == 0 {
		return errors.New("extensions must not be empty")
	}
	for _, ext := range m.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	return nil
}

// DefaultMediaConfig returns the default media configuration.
func DefaultMediaConfig() MediaConfig {
	return MediaConfig{
		DBPath:     "media.db",
		Dirs:       []string{"media", "media-bulk"},
		Extensions: []string{".opus", ".ogg", ".mp3", ".wav"},
		CacheSize:  500,
	}
}

// StateConfig names the snapshot files for the persistent stores.
type StateConfig struct {
	// StateFile holds the main review counters.
	StateFile string `json:"state_file"`

	// WKStateFile holds the vocabulary review counters.
	WKStateFile string `json:"wk_state_file"`

	// BookmarksFile holds the per-episode bookmark document.
	BookmarksFile string `json:"bookmarks_file"`
}

// Validate checks that every snapshot file is named.
func (s *StateConfig) Validate() error {
	if s.StateFile == "" {
		return errors.New("state_file must not be empty")
	}
	if s.WKStateFile == "" {
		return errors.New("wk_state_file must not be empty")
	}
	if s.BookmarksFile == "" {
		return errors.New("bookmarks_file must not be empty")
	}
	return nil
}

// DefaultStateConfig returns the default snapshot file names.
func DefaultStateConfig() StateConfig {
	return StateConfig{
		StateFile:     "state.json",
		WKStateFile:   "wk_state.json",
		BookmarksFile: "bookmarks.json",
	}
}

// SyncConfig configures snapshot flushing and gist replication.
// An empty gist ID disables replication for that dataset; the GITHUB_TOKEN
// environment variable gates replication as a whole.
type SyncConfig struct {
	// GitHubAPIURL is the GitHub API base URL.
	GitHubAPIURL string `json:"github_api_url"`

	// StateGistID replicates the main review counters.
	StateGistID string `json:"state_gist_id"`

	// WKStateGistID replicates the vocabulary review counters.
	WKStateGistID string `json:"wk_state_gist_id"`

	// BookmarksGistID replicates the bookmark document.
	BookmarksGistID string `json:"bookmarks_gist_id"`

	// FlushIntervalSec is how often dirty counters are snapshotted to disk.
	FlushIntervalSec int `json:"flush_interval_s"`

	// PushIntervalSec is how often snapshots are pushed to their gists.
	PushIntervalSec int `json:"push_interval_s"`

	// HTTPTimeoutSec bounds each GitHub API call.
	HTTPTimeoutSec int `json:"http_timeout_s"`
}

// Validate checks the sync configuration.
func (s *SyncConfig) Validate() error {
	if s.GitHubAPIURL == "" {
		return errors.New("github_api_url must not be empty")
	}
	if s.FlushIntervalSec <= 0 {
		return errors.New("flush_interval_s must be positive")
	}
	if s.PushIntervalSec <= 0 {
		return errors.New("push_interval_s must be positive")
	}
	if s.HTTPTimeoutSec <= 0 {
		return errors.New("http_timeout_s must be positive")
	}
	return nil
}

// DefaultSyncConfig returns the default sync configuration.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		GitHubAPIURL:     "https://api.github.com",
		FlushIntervalSec: 10,
		PushIntervalSec:  300,
		HTTPTimeoutSec:   10,
	}
}

// FlushInterval returns the flush cadence as a duration.
func (s *SyncConfig) FlushInterval() time.Duration {
	return time.Duration(s.FlushIntervalSec) * time.Second
}

// PushInterval returns the push cadence as a duration.
func (s *SyncConfig) PushInterval() time.Duration {
	return time.Duration(s.PushIntervalSec) * time.Second
}

// HTTPTimeout returns the per-call GitHub API timeout as a duration.
func (s *SyncConfig) HTTPTimeout() time.Duration {
	return time.Duration(s.HTTPTimeoutSec) * time.Second
}

// RateLimits defines rate limiting configuration (requests per minute).
type RateLimits struct {
	// RequestsPerMin limits requests per client IP. 0 means unlimited.
	RequestsPerMin int `json:"requests_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.RequestsPerMin < 0 {
		return errors.New("requests_per_min must be non-negative")
	}
	return nil
}

// DefaultRateLimits returns the default rate limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		RequestsPerMin: 6000, // far above one learner's request rate
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if err := c.Media.Validate(); err != nil {
		return fmt.Errorf("media: %w", err)
	}
	if err := c.State.Validate(); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	return nil
}

// Load loads configuration from dataDir/server_config.json.
// Creates the file with defaults if it doesn't exist. Relative paths in the
// result are resolved against dataDir.
func Load(dataDir string) (*ServerConfig, error) {
	path := filepath.Join(dataDir, "server_config.json")

	cfg := ServerConfig{
		Media:      DefaultMediaConfig(),
		State:      DefaultStateConfig(),
		Sync:       DefaultSyncConfig(),
		RateLimits: DefaultRateLimits(),
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read server_config.json: %w", err)
		}
		// File doesn't exist, will create with defaults
	} else {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse server_config.json: %w", err)
		}
	}

	if errors.Is(err, os.ErrNotExist) {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server_config.json: %w", err)
	}

	cfg.resolvePaths(dataDir)
	return &cfg, nil
}

// Save saves configuration to dataDir/server_config.json.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dataDir, "server_config.json"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write server_config.json: %w", err)
	}
	return nil
}

func (c *ServerConfig) resolvePaths(dataDir string) {
	c.Media.DBPath = resolvePath(dataDir, c.Media.DBPath)
	for i, dir := range c.Media.Dirs {
		c.Media.Dirs[i] = resolvePath(dataDir, dir)
	}
	c.State.StateFile = resolvePath(dataDir, c.State.StateFile)
	c.State.WKStateFile = resolvePath(dataDir, c.State.WKStateFile)
	c.State.BookmarksFile = resolvePath(dataDir, c.State.BookmarksFile)
}

func resolvePath(dataDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}
