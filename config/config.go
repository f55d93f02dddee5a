package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pelletier/go-toml/v2"
)

// Config is the settings file (config.toml).
type Config struct {
	Log         Log        `toml:"log"`
	Connections string     `toml:"connections"`  // path of the connection profile store
	History     string     `toml:"history"`      // what scheduled downloads already fetched
	DownloadDir string     `toml:"download_dir"` // default destination for downloads
	Schedules   []Schedule `toml:"schedules"`
}

type Log struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, console
	Output string `toml:"output"` // stderr, stdout or a file path
}

// Schedule periodically downloads the files of one remote directory.
type Schedule struct {
	Name            string `toml:"name"`
	Cron            string `toml:"cron"`
	Connection      string `toml:"connection"` // profile id or name
	SourcePath      string `toml:"source_path"`
	SourceRegex     string `toml:"source_regex"`
	SourceNewerDays int    `toml:"source_newer_days"` // only files modified within this many days
	Recursive       bool   `toml:"recursive"`         // walk subdirectories into matching target subdirectories
	TargetPath      string `toml:"target_path"`
	RetentionDays   int    `toml:"retention_days"` // delete local copies downloaded more than this many days ago
	RunOnStart      bool   `toml:"run_on_start"`
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	dir := "."
	if d, err := os.UserConfigDir(); err == nil {
		dir = filepath.Join(d, "yaami")
	}
	downloads := "."
	if h, err := os.UserHomeDir(); err == nil {
		downloads = filepath.Join(h, "Downloads")
	}
	return &Config{
		Log:         Log{Level: "info", Format: "console", Output: "stderr"},
		Connections: filepath.Join(dir, "connections.json"),
		History:     filepath.Join(dir, "history.json"),
		DownloadDir: downloads,
	}
}

// LoadConfig reads the settings file at path over the defaults. A missing
// file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the schedules. Cron expressions are checked when they are
// scheduled.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("schedule %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("schedule %s: duplicate name", s.Name)
		}
		seen[s.Name] = true

		switch {
		case s.Cron == "":
			return fmt.Errorf("schedule %s: cron is required", s.Name)
		case s.Connection == "":
			return fmt.Errorf("schedule %s: connection is required", s.Name)
		case s.TargetPath == "":
			return fmt.Errorf("schedule %s: target_path is required", s.Name)
		case s.SourceNewerDays < 0, s.RetentionDays < 0:
			return fmt.Errorf("schedule %s: day counts cannot be negative", s.Name)
		}
		if _, err := regexp.Compile(s.SourceRegex); err != nil {
			return fmt.Errorf("schedule %s: invalid source_regex: %w", s.Name, err)
		}
	}
	return nil
}

// Save writes c to path as TOML.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Set assigns one settings key, named as in the file.
func (c *Config) Set(key, value string) error {
	switch key {
	case "download_dir":
		c.DownloadDir = value
	case "connections":
		c.Connections = value
	case "history":
		c.History = value
	case "log.level":
		c.Log.Level = value
	case "log.format":
		c.Log.Format = value
	case "log.output":
		c.Log.Output = value
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}
	return nil
}
