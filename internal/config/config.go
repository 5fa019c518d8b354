// Package config loads pawsync settings from a config file, PAWSYNC_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pawsitive/pawsync/internal/gateway"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverRemote = "remote"
	DriverMemory = "memory"
)

// EnvPrefix prefixes environment overrides, e.g. PAWSYNC_STORE_PATH.
const EnvPrefix = "PAWSYNC"

// FileName is the config file base name searched for without extension.
const FileName = "pawsync"

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
}

// ServerConfig configures `pawsync serve`.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	Token          string   `mapstructure:"token"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SyncConfig tunes the sync engine and the store watcher.
type SyncConfig struct {
	Debounce      time.Duration `mapstructure:"debounce"`
	Notice        time.Duration `mapstructure:"notice"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// LogConfig configures the optional rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// AIConfig configures the daily summary generator.
type AIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// ShareConfig configures join links.
type ShareConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// Config is the effective configuration.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Server ServerConfig `mapstructure:"server"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Log    LogConfig    `mapstructure:"log"`
	AI     AIConfig     `mapstructure:"ai"`
	Share  ShareConfig  `mapstructure:"share"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// DefaultDir returns ~/.config/pawsync.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", FileName)
}

// DefaultDBPath returns the sqlite path written by `config init`.
func DefaultDBPath() string {
	return filepath.Join(DefaultDir(), "pawsync.db")
}

// New returns a viper instance with pawsync defaults and environment
// binding. The store driver has no default: an unconfigured install is
// caught by CheckStore.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.token", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.token", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("sync.debounce", time.Second)
	v.SetDefault("sync.notice", 3*time.Second)
	v.SetDefault("sync.watch_debounce", 100*time.Millisecond)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "claude-sonnet-4-5")
	v.SetDefault("ai.max_tokens", 512)
	v.SetDefault("share.base_url", "http://localhost:8080")
}

// Defaults returns the built-in configuration, ignoring files and
// environment.
func Defaults() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to build defaults: %w", err)
	}
	return &cfg, nil
}

// Load reads the config file into v and decodes the result. An explicit
// path must exist; otherwise pawsync.{toml,yaml} is searched for in the
// working directory and DefaultDir, and a missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	return &cfg, nil
}

// CheckStore is the boot gate: it fails with ErrConfigurationMissing when
// the store cannot be reached with the current settings.
func (c *Config) CheckStore() error {
	switch c.Store.Driver {
	case "":
		return fmt.Errorf("%w: no store configured (run `pawsync config init`)", gateway.ErrConfigurationMissing)
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for the sqlite driver", gateway.ErrConfigurationMissing)
		}
	case DriverRemote:
		if c.Store.URL == "" {
			return fmt.Errorf("%w: store.url is required for the remote driver", gateway.ErrConfigurationMissing)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q (want %s, %s or %s)", c.Store.Driver, DriverSQLite, DriverRemote, DriverMemory)
	}
	return nil
}

// Tree returns the configuration as nested maps with durations written
// as strings. Secrets are replaced when redact is set.
func (c *Config) Tree(redact bool) map[string]any {
	secret := func(s string) string {
		if redact && s != "" {
			return "********"
		}
		return s
	}
	return map[string]any{
		"store": map[string]any{
			"driver": c.Store.Driver,
			"path":   c.Store.Path,
			"url":    c.Store.URL,
			"token":  secret(c.Store.Token),
		},
		"server": map[string]any{
			"addr":            c.Server.Addr,
			"token":           secret(c.Server.Token),
			"allowed_origins": c.Server.AllowedOrigins,
		},
		"sync": map[string]any{
			"debounce":       c.Sync.Debounce.String(),
			"notice":         c.Sync.Notice.String(),
			"watch_debounce": c.Sync.WatchDebounce.String(),
		},
		"log": map[string]any{
			"file":         c.Log.File,
			"max_size_mb":  c.Log.MaxSizeMB,
			"max_backups":  c.Log.MaxBackups,
			"max_age_days": c.Log.MaxAgeDays,
			"compress":     c.Log.Compress,
		},
		"ai": map[string]any{
			"api_key":    secret(c.AI.APIKey),
			"model":      c.AI.Model,
			"max_tokens": c.AI.MaxTokens,
		},
		"share": map[string]any{
			"base_url": c.Share.BaseURL,
		},
	}
}

// WriteYAML prints the effective configuration with secrets redacted.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Tree(true)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// Init writes a TOML config file at path with the defaults and a sqlite
// store at dbPath. An existing file is only replaced when force is set.
func Init(path, dbPath string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}
	cfg, err := Defaults()
	if err != nil {
		return err
	}
	cfg.Store.Driver = DriverSQLite
	cfg.Store.Path = dbPath

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg.Tree(false)); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return f.Close()
}
