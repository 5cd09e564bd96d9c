package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jonathan/pain-assessment/internal/config"
	"github.com/jonathan/pain-assessment/internal/draft"
)

// defaultConfigFile is read when --config is not given and the file exists.
const defaultConfigFile = "painmap.toml"

// loadClientConfig reads the client config, fills defaults and validates the result.
func loadClientConfig(path string) (config.Config, error) {
	defaults := config.Defaults()
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); errors.Is(err, fs.ErrNotExist) {
			return defaults, nil
		}
		path = defaultConfigFile
	}

	loaded, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, err
	}
	cfg := loaded.MergeWithDefaults(defaults)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// openDraftStore opens the configured draft backend. The returned close func is never nil.
func openDraftStore(cfg config.Config) (draft.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.DraftBackend {
	case config.BackendMemory:
		return draft.NewMemoryStore(), noop, nil
	case config.BackendSQLite:
		s, err := draft.NewSQLiteStore(draft.WithDSN(cfg.DraftPath))
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		s, err := draft.NewFileStore(draft.WithDSN(cfg.DraftPath))
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}
}
