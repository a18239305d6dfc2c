// Package config loads podlog configuration from the config file,
// environment, and defaults.
//
// Precedence: PODLOG_* environment variables, then ~/.podlog/config.yaml
// (or an explicit --config path), then defaults. All state lives under the
// ~/.podlog directory unless overridden.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	Remote struct {
		// URL is the base URL of the system of record.
		URL string `mapstructure:"url"`
		// Token is the bearer credential, if the deployment requires auth.
		Token string `mapstructure:"token"`
	} `mapstructure:"remote"`

	DB struct {
		// Path is the SQLite queue database location.
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Sync struct {
		DedupWindow time.Duration `mapstructure:"dedup_window"`
		HoldWindow  time.Duration `mapstructure:"hold_window"`
		BackoffBase time.Duration `mapstructure:"backoff_base"`
		BackoffMax  time.Duration `mapstructure:"backoff_max"`
	} `mapstructure:"sync"`

	Netstate struct {
		// Path is the JSON state file the connectivity shim writes.
		Path string `mapstructure:"path"`
		// PollInterval is the fallback re-read cadence.
		PollInterval time.Duration `mapstructure:"poll_interval"`
	} `mapstructure:"netstate"`

	Log struct {
		// File is the daemon log destination (rotated). Empty means stderr.
		File string `mapstructure:"file"`
	} `mapstructure:"log"`
}

// Dir returns the podlog state directory, honoring PODLOG_DIR.
func Dir() string {
	if dir := os.Getenv("PODLOG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".podlog"
	}
	return filepath.Join(home, ".podlog")
}

// Load reads configuration. cfgFile may be empty, in which case
// <dir>/config.yaml is used if present; a missing config file is fine,
// defaults and environment apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	dir := Dir()
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("db.path", filepath.Join(dir, "queue.db"))
	v.SetDefault("sync.dedup_window", 5*time.Minute)
	v.SetDefault("sync.hold_window", 5*time.Second)
	v.SetDefault("sync.backoff_base", time.Second)
	v.SetDefault("sync.backoff_max", 30*time.Second)
	v.SetDefault("netstate.path", filepath.Join(dir, "netstate.json"))
	v.SetDefault("netstate.poll_interval", 30*time.Second)
	v.SetDefault("log.file", "")

	v.SetEnvPrefix("PODLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// RequireRemote validates the settings sync commands need.
func (c *Config) RequireRemote() error {
	if c.Remote.URL == "" {
		return fmt.Errorf("remote.url is not configured (set it in config.yaml or PODLOG_REMOTE_URL)")
	}
	return nil
}
