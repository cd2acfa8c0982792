package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// MinBackupInterval is the smallest accepted backup cadence. Anything lower
// gets clamped during validation.
const MinBackupInterval = 5

type Config struct {
	DataDir string `mapstructure:"data_dir"`

	MaxHistory      int   `mapstructure:"max_history"`
	MaxHistoryBytes int64 `mapstructure:"max_history_bytes"`
	MaxItemSize     int   `mapstructure:"max_item_size"`

	MonitorInterval int `mapstructure:"monitor_interval_ms"`

	BackupEnabled   bool   `mapstructure:"backup_enabled"`
	BackupInterval  int    `mapstructure:"backup_interval_minutes"`
	BackupKeepCount int    `mapstructure:"backup_keep_count"`
	BackupDir       string `mapstructure:"backup_dir"`

	// Update settings
	CheckUpdatesOnStartup bool `mapstructure:"check_updates_on_startup"`

	DebugSQL bool `mapstructure:"debug_sql"`
}

func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),

		MaxHistory:      500,
		MaxHistoryBytes: 0, // unlimited
		MaxItemSize:     10 * 1024 * 1024,

		MonitorInterval: 500,

		BackupEnabled:   true,
		BackupInterval:  60,
		BackupKeepCount: 20,
		BackupDir:       "",

		CheckUpdatesOnStartup: false,

		DebugSQL: false,
	}
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("max_history", 500)
	v.SetDefault("max_history_bytes", 0)
	v.SetDefault("max_item_size", 10*1024*1024)
	v.SetDefault("monitor_interval_ms", 500)
	v.SetDefault("backup_enabled", true)
	v.SetDefault("backup_interval_minutes", 60)
	v.SetDefault("backup_keep_count", 20)
	v.SetDefault("backup_dir", "")
	v.SetDefault("check_updates_on_startup", false)
	v.SetDefault("debug_sql", false)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil // No config file yet, run on defaults.
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.validate()

	return config, nil
}

func (c *Config) Save(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("data_dir", c.DataDir)
	v.Set("max_history", c.MaxHistory)
	v.Set("max_history_bytes", c.MaxHistoryBytes)
	v.Set("max_item_size", c.MaxItemSize)
	v.Set("monitor_interval_ms", c.MonitorInterval)
	v.Set("backup_enabled", c.BackupEnabled)
	v.Set("backup_interval_minutes", c.BackupInterval)
	v.Set("backup_keep_count", c.BackupKeepCount)
	v.Set("backup_dir", c.BackupDir)
	v.Set("check_updates_on_startup", c.CheckUpdatesOnStartup)
	v.Set("debug_sql", c.DebugSQL)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) validate() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 500
	}
	if c.MaxHistoryBytes < 0 {
		c.MaxHistoryBytes = 0
	}
	if c.MaxItemSize <= 0 {
		c.MaxItemSize = 10 * 1024 * 1024
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 500
	}
	if c.BackupInterval < MinBackupInterval {
		c.BackupInterval = MinBackupInterval
	}
	if c.BackupKeepCount <= 0 {
		c.BackupKeepCount = 20
	}
}

// DatabasePath is the SQLite history database inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// ImagesDir holds captured image payloads, one file per content hash.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.DataDir, "images")
}

// BackupsDir resolves the backup target, falling back to a directory next to
// the database when no explicit location is configured.
func (c *Config) BackupsDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(c.DataDir, "backups")
}

// DefaultDataDir follows the XDG data home convention.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "clipkeeper")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "clipkeeper")
}

// DefaultConfigPath follows the XDG config home convention.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "clipkeeper", "config.yaml")
}
