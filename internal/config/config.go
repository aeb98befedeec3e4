// Package config loads bot configuration from defaults, an optional
// YAML file, and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the bot core. The super-user list is
// deliberately config-only: it is never read from or written to the
// database, so it cannot be escalated at runtime.
type Config struct {
	// DBPath is the SQLite database file. Defaults to
	// ~/.glmbot/glmbot.db.
	DBPath string

	// HistoryLimit caps the number of turns kept per session.
	HistoryLimit int

	// SessionTimeout is the idle threshold after which a session is
	// reclaimed by the sweeper.
	SessionTimeout time.Duration

	// SweepInterval is how often the idle sweeper runs.
	SweepInterval time.Duration

	// TickInterval is the scheduler evaluation period. Must be at most
	// one minute, the finest schedule granularity.
	TickInterval time.Duration

	// DispatchTimeout bounds a single scheduled delivery.
	DispatchTimeout time.Duration

	// RateLimit and RateWindow allow RateLimit requests per actor per
	// sliding RateWindow.
	RateLimit  int
	RateWindow time.Duration

	// SuperUsers hold the bypass-all tier. Settable only here or via
	// GLMBOT_SUPER_USERS (comma-separated actor IDs).
	SuperUsers []string

	// DefaultCapabilities are granted to every actor. Names must parse
	// as capabilities; unknown names are rejected at load time.
	DefaultCapabilities []string
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DBPath:              filepath.Join(home, ".glmbot", "glmbot.db"),
		HistoryLimit:        20,
		SessionTimeout:      30 * time.Minute,
		SweepInterval:       5 * time.Minute,
		TickInterval:        time.Minute,
		DispatchTimeout:     2 * time.Minute,
		RateLimit:           10,
		RateWindow:          time.Minute,
		DefaultCapabilities: []string{"file-read"},
	}
}

// fileConfig mirrors Config for YAML decoding. Durations are strings
// ("30m", "1h") because yaml.v3 has no native time.Duration support.
type fileConfig struct {
	DBPath              string   `yaml:"db_path"`
	HistoryLimit        *int     `yaml:"history_limit"`
	SessionTimeout      string   `yaml:"session_timeout"`
	SweepInterval       string   `yaml:"sweep_interval"`
	TickInterval        string   `yaml:"tick_interval"`
	DispatchTimeout     string   `yaml:"dispatch_timeout"`
	RateLimit           *int     `yaml:"rate_limit"`
	RateWindow          string   `yaml:"rate_window"`
	SuperUsers          []string `yaml:"super_users"`
	DefaultCapabilities []string `yaml:"default_capabilities"`
}

// Load builds the effective config: defaults, then the YAML file at
// path (skipped when path is empty or missing), then environment
// variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			if err := cfg.applyFile(fc); err != nil {
				return Config{}, fmt.Errorf("config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(fc fileConfig) error {
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.HistoryLimit != nil {
		c.HistoryLimit = *fc.HistoryLimit
	}
	if fc.RateLimit != nil {
		c.RateLimit = *fc.RateLimit
	}
	if fc.SuperUsers != nil {
		c.SuperUsers = fc.SuperUsers
	}
	if fc.DefaultCapabilities != nil {
		c.DefaultCapabilities = fc.DefaultCapabilities
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"session_timeout", fc.SessionTimeout, &c.SessionTimeout},
		{"sweep_interval", fc.SweepInterval, &c.SweepInterval},
		{"tick_interval", fc.TickInterval, &c.TickInterval},
		{"dispatch_timeout", fc.DispatchTimeout, &c.DispatchTimeout},
		{"rate_window", fc.RateWindow, &c.RateWindow},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GLMBOT_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("GLMBOT_SUPER_USERS"); v != "" {
		c.SuperUsers = splitList(v)
	}
	if v := os.Getenv("GLMBOT_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HistoryLimit = n
		}
	}
	if v := os.Getenv("GLMBOT_SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SessionTimeout = d
		}
	}
}

func (c *Config) validate() error {
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("config: history_limit must be positive, got %d", c.HistoryLimit)
	}
	if c.TickInterval <= 0 || c.TickInterval > time.Minute {
		return fmt.Errorf("config: tick_interval must be in (0, 1m], got %s", c.TickInterval)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("config: session_timeout must be positive, got %s", c.SessionTimeout)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("config: rate_limit must be positive, got %d", c.RateLimit)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
