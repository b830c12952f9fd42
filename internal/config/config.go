package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // "mysql" or "sqlite"
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	FilePath        string `mapstructure:"file_path"` // For SQLite
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
}

func (d DatabaseConfig) GetConnMaxLifetime() time.Duration {
	dur, _ := time.ParseDuration(d.ConnMaxLifetime)
	return dur
}

type TrackerConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	ClientID   string `mapstructure:"client_id"`
	Timeout    string `mapstructure:"timeout"`
	MaxRetries uint   `mapstructure:"max_retries"`
}

func (t TrackerConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(t.Timeout)
	return d
}

type MetadataConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Language  string `mapstructure:"language"`
	CacheSize int    `mapstructure:"cache_size"`
	Timeout   string `mapstructure:"timeout"`
}

func (m MetadataConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(m.Timeout)
	return d
}

type SyncConfig struct {
	Workers int `mapstructure:"workers"`
	// Statuses fetched from the tracker for every media kind.
	Statuses   []string `mapstructure:"statuses"`
	StaleAfter string   `mapstructure:"stale_after"`
}

func (s SyncConfig) GetStaleAfter() time.Duration {
	d, _ := time.ParseDuration(s.StaleAfter)
	return d
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// LoadConfig reads the YAML file at path (optional when absent) and applies
// WATCHSYNC_* environment overrides, e.g. WATCHSYNC_TRACKER_CLIENT_ID.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WATCHSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "watchsync.db")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")

	v.SetDefault("tracker.base_url", "https://api.simkl.com")
	v.SetDefault("tracker.timeout", "30s")
	v.SetDefault("tracker.max_retries", 3)

	v.SetDefault("metadata.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("metadata.language", "en-US")
	v.SetDefault("metadata.cache_size", 1024)
	v.SetDefault("metadata.timeout", "15s")

	v.SetDefault("sync.workers", 1)
	v.SetDefault("sync.statuses", []string{"completed", "watching"})
	v.SetDefault("sync.stale_after", "30m")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "@every 6h")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1, got %d", c.Sync.Workers)
	}
	if len(c.Sync.Statuses) == 0 {
		return fmt.Errorf("sync.statuses must not be empty")
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
