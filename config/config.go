// Package config provides the YAML-based application configuration.
//
// Core pipeline components never read this directly; main resolves the
// file and hands plain parameter values down.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SourceConfig holds the remote planning source settings.
type SourceConfig struct {
	BaseURL     string `yaml:"base_url"`
	Username    string `yaml:"username"`
	BearerToken string `yaml:"bearer_token"`
}

// CalendarConfig holds the CalDAV push target.
type CalendarConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SyncConfig holds the window and job intervals.
type SyncConfig struct {
	HorizonDays             int `yaml:"horizon_days"`
	FetchIntervalMinutes    int `yaml:"fetch_interval_minutes"`
	CalendarIntervalMinutes int `yaml:"calendar_interval_minutes"`
	NotifyIntervalMinutes   int `yaml:"notify_interval_minutes"`
}

// NotifyConfig holds the push notification settings.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Server  string `yaml:"server"`
	Topic   string `yaml:"topic"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	Database string `yaml:"database"`
	// LegacyStatePath, when set, points at an old JSON snapshot file
	// imported once as the change-detection baseline.
	LegacyStatePath string         `yaml:"legacy_state_path"`
	Source          SourceConfig   `yaml:"source"`
	Calendar        CalendarConfig `yaml:"calendar"`
	Sync            SyncConfig     `yaml:"sync"`
	Notify          NotifyConfig   `yaml:"notify"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8000",
		Database: "planning_sync.db",
		Sync: SyncConfig{
			HorizonDays:             90,
			FetchIntervalMinutes:    60,
			CalendarIntervalMinutes: 15,
			NotifyIntervalMinutes:   17,
		},
		Notify: NotifyConfig{
			Server: "https://ntfy.sh",
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8000"
	}
	if c.Database == "" {
		c.Database = "planning_sync.db"
	}
	if c.Sync.HorizonDays <= 0 {
		c.Sync.HorizonDays = 90
	}
	if c.Sync.FetchIntervalMinutes <= 0 {
		c.Sync.FetchIntervalMinutes = 60
	}
	if c.Sync.CalendarIntervalMinutes <= 0 {
		c.Sync.CalendarIntervalMinutes = 15
	}
	if c.Sync.NotifyIntervalMinutes <= 0 {
		// Slightly offset from the calendar interval so the two jobs
		// don't always observe the same store state.
		c.Sync.NotifyIntervalMinutes = c.Sync.CalendarIntervalMinutes + 2
	}
	if c.Notify.Server == "" {
		c.Notify.Server = "https://ntfy.sh"
	}
}

// Validate checks the settings required to actually run.
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return errors.New("source.base_url is required")
	}
	if c.Source.Username == "" {
		return errors.New("source.username is required")
	}
	if c.Notify.Enabled && c.Notify.Topic == "" {
		return errors.New("notify.topic is required when notifications are enabled")
	}
	return nil
}

// Load reads the configuration from a YAML file. A missing file yields
// a freshly written default config so first runs have something to edit.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes the configuration atomically with 0600 permissions; the
// file carries credentials.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".planning-sync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
