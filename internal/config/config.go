// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Search  SearchConfig  `mapstructure:"search"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SearchConfig governs the notice search API client.
type SearchConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	PageSize    int    `mapstructure:"page_size"`
	PageDelayMs int    `mapstructure:"page_delay_ms"`
}

// HarvestConfig governs document retrieval and the batch driver.
type HarvestConfig struct {
	DetailHost    string   `mapstructure:"detail_host"`
	Languages     []string `mapstructure:"languages"`
	NoticeDelayMs int      `mapstructure:"notice_delay_ms"`
	Concurrency   int      `mapstructure:"concurrency"`
	SnapshotDir   string   `mapstructure:"snapshot_dir"`
}

// HTTPConfig configures the outbound HTTP clients.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// ServerConfig controls the optional observability endpoint.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// DBConfig controls the optional run-history database.
type DBConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.endpoint", "https://api.ted.europa.eu/v3/notices/search")
	v.SetDefault("search.page_size", 100)
	v.SetDefault("search.page_delay_ms", 250)
	v.SetDefault("harvest.detail_host", "https://ted.europa.eu")
	v.SetDefault("harvest.languages", []string{"en", "de", "fr"})
	v.SetDefault("harvest.notice_delay_ms", 250)
	v.SetDefault("harvest.concurrency", 1)
	v.SetDefault("harvest.snapshot_dir", "")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.user_agent", "ted-harvester/1.0")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.table", "harvest_runs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Search.Endpoint == "" {
		return fmt.Errorf("search.endpoint must be set")
	}
	if c.Search.PageSize <= 0 {
		return fmt.Errorf("search.page_size must be > 0")
	}
	if c.Harvest.DetailHost == "" {
		return fmt.Errorf("harvest.detail_host must be set")
	}
	if len(c.Harvest.Languages) == 0 {
		return fmt.Errorf("harvest.languages must not be empty")
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	return nil
}

// PageDelay returns the pause inserted between search page requests.
func (c Config) PageDelay() time.Duration {
	return time.Duration(c.Search.PageDelayMs) * time.Millisecond
}

// NoticeDelay returns the pause inserted after each per-notice fetch.
func (c Config) NoticeDelay() time.Duration {
	return time.Duration(c.Harvest.NoticeDelayMs) * time.Millisecond
}

// HTTPTimeout converts the HTTP timeout config into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
