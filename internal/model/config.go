package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// StoreConfig holds settings for the local document store.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" is accepted.
	Path string `mapstructure:"path" yaml:"path"`

	// ResyncIntervalSec is how often every live query re-delivers its
	// full result set. Zero disables periodic re-delivery.
	ResyncIntervalSec int `mapstructure:"resync_interval_sec" yaml:"resync_interval_sec"`
}

// RedisConfig holds settings for the cross-process change bus.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
	Password string `mapstructure:"password" yaml:"password"`

	// PasswordFromKeyring loads the password from the OS keyring
	// instead of the config file.
	PasswordFromKeyring bool `mapstructure:"password_from_keyring" yaml:"password_from_keyring"`
}

// NotifyConfig holds notification watcher settings.
type NotifyConfig struct {
	DeadlineWindowHours int `mapstructure:"deadline_window_hours" yaml:"deadline_window_hours"`
}

// AlertConfig holds local alert settings.
type AlertConfig struct {
	Buffer int `mapstructure:"buffer" yaml:"buffer"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`

	// File receives log output instead of stderr when set. The
	// interactive watch view discards logs unless a file is configured.
	File string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Redis  RedisConfig  `mapstructure:"redis" yaml:"redis"`
	Notify NotifyConfig `mapstructure:"notify" yaml:"notify"`
	Alerts AlertConfig  `mapstructure:"alerts" yaml:"alerts"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

// ResyncInterval returns the configured re-delivery interval.
func (c StoreConfig) ResyncInterval() time.Duration {
	return time.Duration(c.ResyncIntervalSec) * time.Second
}

// DeadlineWindow returns the look-ahead window of the deadline watcher.
func (c NotifyConfig) DeadlineWindow() time.Duration {
	return time.Duration(c.DeadlineWindowHours) * time.Hour
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskfeed/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "taskfeed", "config.yaml")
}

// DefaultStorePath returns the default database location next to the
// configuration file.
func DefaultStorePath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "taskfeed.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Store: StoreConfig{
			Path:              DefaultStorePath(),
			ResyncIntervalSec: 300,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "taskfeed:changes",
		},
		Notify: NotifyConfig{DeadlineWindowHours: 24},
		Alerts: AlertConfig{Buffer: 32},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	def := defaultAppConfig()
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("store.resync_interval_sec", def.Store.ResyncIntervalSec)
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.channel", def.Redis.Channel)
	v.SetDefault("notify.deadline_window_hours", def.Notify.DeadlineWindowHours)
	v.SetDefault("alerts.buffer", def.Alerts.Buffer)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	v.SetEnvPrefix("TASKFEED")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Notify.DeadlineWindowHours <= 0 {
		cfg.Notify.DeadlineWindowHours = def.Notify.DeadlineWindowHours
	}
	if cfg.Alerts.Buffer <= 0 {
		cfg.Alerts.Buffer = def.Alerts.Buffer
	}
	if cfg.Store.ResyncIntervalSec < 0 {
		cfg.Store.ResyncIntervalSec = 0
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("store", cfg.Store)
	v.Set("redis", cfg.Redis)
	v.Set("notify", cfg.Notify)
	v.Set("alerts", cfg.Alerts)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
