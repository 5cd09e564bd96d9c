// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Draft backends
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

var backends = []string{BackendMemory, BackendFile, BackendSQLite}

// Config is the assessment client configuration, loaded from painmap.toml or a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	ServerURL string `toml:"server_url" json:"server_url,omitempty"` // Summarization backend base URL

	DraftBackend string `toml:"draft_backend" json:"draft_backend,omitempty"` // memory, file or sqlite
	DraftPath    string `toml:"draft_path" json:"draft_path,omitempty"`       // Directory (file) or database path (sqlite)

	DebounceMS            int `toml:"debounce_ms" json:"debounce_ms,omitempty"`                         // Autosave quiet period
	MinVisibleMS          int `toml:"min_visible_ms" json:"min_visible_ms,omitempty"`                   // Saving indicator floor
	PersistTimeoutSeconds int `toml:"persist_timeout_seconds" json:"persist_timeout_seconds,omitempty"` // Bound on one draft write
	ReadTimeoutSeconds    int `toml:"read_timeout_seconds" json:"read_timeout_seconds,omitempty"`       // Bound on one submission stream

	Verbose bool `toml:"verbose" json:"verbose,omitempty"` // Print detailed debug information
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		ServerURL:             "http://localhost:8080",
		DraftBackend:          BackendFile,
		DraftPath:             filepath.Join(".painmap", "drafts"),
		DebounceMS:            750,
		MinVisibleMS:          300,
		PersistTimeoutSeconds: 10,
		ReadTimeoutSeconds:    90,
	}
}

// LoadConfig loads configuration from a TOML or JSON file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
		return &cfg, nil
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config TOML: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.DraftBackend != "" && !slices.Contains(backends, c.DraftBackend) {
		return fmt.Errorf("config error: 'draft_backend' must be one of %s", strings.Join(backends, ", "))
	}
	if (c.DraftBackend == BackendFile || c.DraftBackend == BackendSQLite) && c.DraftPath == "" {
		return fmt.Errorf("config error: 'draft_path' is required for the %s backend", c.DraftBackend)
	}

	// Validate numeric ranges
	for name, v := range map[string]int{
		"debounce_ms":             c.DebounceMS,
		"min_visible_ms":          c.MinVisibleMS,
		"persist_timeout_seconds": c.PersistTimeoutSeconds,
		"read_timeout_seconds":    c.ReadTimeoutSeconds,
	} {
		if v < 0 {
			return fmt.Errorf("config error: '%s' must be non-negative", name)
		}
	}

	if c.ServerURL != "" && !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("config error: 'server_url' must be an http(s) URL")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.ServerURL == "" {
		result.ServerURL = defaults.ServerURL
	}
	if result.DraftBackend == "" {
		result.DraftBackend = defaults.DraftBackend
	}
	if result.DraftPath == "" {
		result.DraftPath = defaults.DraftPath
		if result.DraftBackend == BackendSQLite && defaults.DraftBackend != BackendSQLite {
			result.DraftPath = filepath.Join(".painmap", "drafts.db")
		}
	}

	// Int fields: use default if zero
	if result.DebounceMS == 0 {
		result.DebounceMS = defaults.DebounceMS
	}
	if result.MinVisibleMS == 0 {
		result.MinVisibleMS = defaults.MinVisibleMS
	}
	if result.PersistTimeoutSeconds == 0 {
		result.PersistTimeoutSeconds = defaults.PersistTimeoutSeconds
	}
	if result.ReadTimeoutSeconds == 0 {
		result.ReadTimeoutSeconds = defaults.ReadTimeoutSeconds
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// Debounce returns the autosave quiet period.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// MinVisible returns the saving indicator floor.
func (c *Config) MinVisible() time.Duration {
	return time.Duration(c.MinVisibleMS) * time.Millisecond
}

// PersistTimeout returns the bound on one draft write.
func (c *Config) PersistTimeout() time.Duration {
	return time.Duration(c.PersistTimeoutSeconds) * time.Second
}

// ReadTimeout returns the bound on one submission stream.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}
