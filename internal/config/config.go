// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dotandev/stache/internal/errors"
)

// Config represents the general configuration for stache
type Config struct {
	// TemplateRoot is prepended to relative template paths given on the
	// command line (render, check). The daemon uses its --root flag instead.
	TemplateRoot string `json:"template_root,omitempty"`
	// CachePath holds compiled program artifacts (.mustb files).
	CachePath string `json:"cache_path,omitempty"`
	// CacheMaxBytes caps the compiled program cache before LRU cleanup.
	CacheMaxBytes int64  `json:"cache_max_bytes,omitempty"`
	LogLevel      string `json:"log_level,omitempty"`
	LogFormat     string `json:"log_format,omitempty"`
	// History enables the sqlite render-history store.
	History     bool   `json:"history,omitempty"`
	HistoryPath string `json:"history_path,omitempty"`
	DaemonPort  string `json:"daemon_port,omitempty"`
	DaemonToken string `json:"daemon_token,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	base := baseDir()
	return &Config{
		TemplateRoot:  "",
		CachePath:     filepath.Join(base, "cache"),
		CacheMaxBytes: 256 * 1024 * 1024, // 256MB
		LogLevel:      "info",
		LogFormat:     "text",
		History:       true,
		HistoryPath:   filepath.Join(base, "history.db"),
		DaemonPort:    "8080",
	}
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".stache")
}

// Path returns the location of the configuration file.
func Path() string {
	return filepath.Join(baseDir(), "config.json")
}

// Load reads the configuration file, falling back to defaults when it does
// not exist, then applies STACHE_* environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path())
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, errors.WrapConfigError("failed to read config file", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapConfigError("failed to parse config file", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STACHE_TEMPLATE_ROOT"); v != "" {
		cfg.TemplateRoot = v
	}
	if v := os.Getenv("STACHE_CACHE_DIR"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("STACHE_CACHE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.CacheMaxBytes = n
		}
	}
	if v := os.Getenv("STACHE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STACHE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("STACHE_DAEMON_TOKEN"); v != "" {
		cfg.DaemonToken = v
	}
}

// Save writes the configuration file, creating the directory on first use.
func Save(cfg *Config) error {
	if err := os.MkdirAll(baseDir(), 0755); err != nil {
		return errors.WrapConfigError("failed to create config directory", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.WrapConfigError("failed to encode config", err)
	}
	if err := os.WriteFile(Path(), data, 0644); err != nil {
		return errors.WrapConfigError("failed to write config file", err)
	}
	return nil
}
