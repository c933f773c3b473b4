// Package config loads daemon configuration from a YAML file, environment
// overrides, and defaults, in that precedence order. Components never read
// viper themselves; the composition root loads a Config once and injects
// plain values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/blendonl/mkanban-mobile/internal/watch"
)

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	PollingInterval time.Duration
	DebounceDelay   time.Duration
	Enabled         bool
	Notify          bool
}

// ActionsConfig configures the action daemon.
type ActionsConfig struct {
	EvaluationInterval  time.Duration
	OrphanCheckInterval time.Duration
}

// DashboardConfig configures the optional WebSocket event stream.
type DashboardConfig struct {
	Enabled bool
	Port    int
}

// LogConfig configures daemon log rotation.
type LogConfig struct {
	// File is the log file path. Empty logs to stderr without rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Config is the full daemon configuration.
type Config struct {
	// DataRoot is the directory holding boards/, notes/, agenda/, and
	// projects/ as loose files.
	DataRoot string

	// DBPath is the SQLite store location.
	DBPath string

	Watcher   WatcherConfig
	Actions   ActionsConfig
	Dashboard DashboardConfig
	Log       LogConfig
}

// Load reads configuration. path may be empty, in which case
// $HOME/.config/mkanban/config.yaml is tried and a missing file falls
// back to defaults; an explicitly given path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "mkanban"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("MKANBAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		// Missing default config is fine; a malformed one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		DataRoot: expandHome(v.GetString("data_root")),
		DBPath:   expandHome(v.GetString("db_path")),
		Watcher: WatcherConfig{
			PollingInterval: v.GetDuration("watcher.polling_interval"),
			DebounceDelay:   v.GetDuration("watcher.debounce_delay"),
			Enabled:         v.GetBool("watcher.enabled"),
			Notify:          v.GetBool("watcher.notify"),
		},
		Actions: ActionsConfig{
			EvaluationInterval:  v.GetDuration("actions.evaluation_interval"),
			OrphanCheckInterval: v.GetDuration("actions.orphan_check_interval"),
		},
		Dashboard: DashboardConfig{
			Enabled: v.GetBool("dashboard.enabled"),
			Port:    v.GetInt("dashboard.port"),
		},
		Log: LogConfig{
			File:       expandHome(v.GetString("log.file")),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataRoot, ".mkanban", "mkanban.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("data_root is required")
	}
	if c.Watcher.PollingInterval <= 0 {
		return fmt.Errorf("watcher.polling_interval must be positive")
	}
	if c.Watcher.DebounceDelay <= 0 {
		return fmt.Errorf("watcher.debounce_delay must be positive")
	}
	if c.Watcher.DebounceDelay >= watch.MaxPollingInterval {
		return fmt.Errorf("watcher.debounce_delay (%v) must be less than the polling cap (%v)",
			c.Watcher.DebounceDelay, watch.MaxPollingInterval)
	}
	if c.Actions.EvaluationInterval <= 0 {
		return fmt.Errorf("actions.evaluation_interval must be positive")
	}
	if c.Actions.OrphanCheckInterval <= 0 {
		return fmt.Errorf("actions.orphan_check_interval must be positive")
	}
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be a valid port")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("data_root", filepath.Join(home, "mkanban"))
	v.SetDefault("db_path", "")
	v.SetDefault("watcher.polling_interval", "1s")
	v.SetDefault("watcher.debounce_delay", "300ms")
	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.notify", false)
	v.SetDefault("actions.evaluation_interval", "1m")
	v.SetDefault("actions.orphan_check_interval", "30m")
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 7420)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}
