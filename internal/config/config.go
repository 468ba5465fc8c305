// Package config loads taskboard settings from ~/.taskboard/config.yaml
// and TASKBOARD_* environment variables.
package config

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds daemon and dashboard settings.
type Config struct {
	// APIAddr is the daemon URL used by the dashboard and CLI.
	APIAddr string `yaml:"api_addr" env:"TASKBOARD_API_ADDR, overwrite"`
	// Listen is the daemon's listen address.
	Listen string `yaml:"listen" env:"TASKBOARD_LISTEN, overwrite"`
	// DBPath is the SQLite database holding the scheduler tables.
	DBPath string `yaml:"db_path" env:"TASKBOARD_DB_PATH, overwrite"`

	// PollInterval is how often the dashboard polls for deltas.
	PollInterval time.Duration `yaml:"poll_interval" env:"TASKBOARD_POLL_INTERVAL, overwrite"`
	// PageSize is the number of rows fetched per page.
	PageSize int `yaml:"page_size" env:"TASKBOARD_PAGE_SIZE, overwrite"`

	// SnapshotTTL is how long the daemon remembers a listing for polls.
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" env:"TASKBOARD_SNAPSHOT_TTL, overwrite"`
	// SnapshotSize caps in-memory snapshots.
	SnapshotSize int `yaml:"snapshot_size" env:"TASKBOARD_SNAPSHOT_SIZE, overwrite"`

	// RedisAddr enables the shared snapshot cache when set.
	RedisAddr     string `yaml:"redis_addr" env:"TASKBOARD_REDIS_ADDR, overwrite"`
	RedisPassword string `yaml:"redis_password" env:"TASKBOARD_REDIS_PASSWORD, overwrite"`
	RedisDB       int    `yaml:"redis_db" env:"TASKBOARD_REDIS_DB, overwrite"`

	// LogFile enables a rotating log file when set.
	LogFile  string `yaml:"log_file" env:"TASKBOARD_LOG_FILE, overwrite"`
	LogLevel string `yaml:"log_level" env:"TASKBOARD_LOG_LEVEL, overwrite"`
}

// Dir returns ~/.taskboard, or .taskboard when the home dir is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskboard"
	}
	return filepath.Join(home, ".taskboard")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		APIAddr:      "http://127.0.0.1:7466",
		Listen:       "127.0.0.1:7466",
		DBPath:       filepath.Join(Dir(), "taskboard.db"),
		PollInterval: 5 * time.Second,
		PageSize:     50,
		SnapshotTTL:  30 * time.Minute,
		SnapshotSize: 1024,
		LogLevel:     "info",
	}
}

// Load reads path (a missing file means defaults) and applies the
// process environment on top.
func Load(ctx context.Context, path string) (*Config, error) {
	return LoadWith(ctx, path, envconfig.OsLookuper())
}

// LoadFromHome loads ~/.taskboard/config.yaml.
func LoadFromHome(ctx context.Context) (*Config, error) {
	return Load(ctx, filepath.Join(Dir(), "config.yaml"))
}

// LoadWith is Load with an explicit environment source.
func LoadWith(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories if needed.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIAddr)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_addr must be an http(s) URL, got %q", c.APIAddr)
	}

	_, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("listen port must be 1-65535, got %q", port)
	}

	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.PollInterval < 500*time.Millisecond {
		return fmt.Errorf("poll_interval must be at least 500ms, got %s", c.PollInterval)
	}
	if c.PageSize < 1 || c.PageSize > 500 {
		return fmt.Errorf("page_size must be 1-500, got %d", c.PageSize)
	}
	if c.SnapshotTTL <= 0 {
		return fmt.Errorf("snapshot_ttl must be positive")
	}
	if c.SnapshotSize < 1 {
		return fmt.Errorf("snapshot_size must be at least 1")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Level returns the parsed log level. Validate guarantees it parses.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
