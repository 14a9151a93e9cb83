// Package config provides application-wide configuration management.
// Configuration is loaded from a JSON file layered with environment
// variable overrides. No configuration is hardcoded in component logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all system configuration. Loaded once at startup and
// passed as read-only to every component. The ConfigWatcher never
// modifies a loaded Config; on a file change it loads a new one and
// replaces its current pointer.
type Config struct {
	MarketData     MarketDataConfig             `mapstructure:"market_data" json:"market_data"`
	Store          StoreConfig                  `mapstructure:"store" json:"store"`
	Webhook        WebhookConfig                `mapstructure:"webhook" json:"webhook"`
	Calendar       CalendarConfig               `mapstructure:"calendar" json:"calendar"`
	MemoryGovernor MemoryGovernorConfig         `mapstructure:"memory_governor" json:"memory_governor"`
	Thresholds     map[string]ThresholdOverride `mapstructure:"thresholds" json:"thresholds"`

	// DatabaseURL points at the optional Postgres audit mirror
	// (internal/storage). Trade logging is skipped, not fatal, when
	// this is empty.
	DatabaseURL string `mapstructure:"database_url" json:"database_url"`
}

// MarketDataConfig holds the Market-Data Adapter's provider settings.
type MarketDataConfig struct {
	BaseURL      string `mapstructure:"base_url" json:"base_url"`
	APIKeyHeader string `mapstructure:"api_key_header" json:"api_key_header"`
	APIKey       string `mapstructure:"api_key" json:"api_key"`
}

// StoreConfig holds the Store Gateway's AWS DynamoDB settings. Region and
// endpoint are consumed when building the aws-sdk-go-v2 client; an empty
// Endpoint uses the SDK's default resolver (production DynamoDB), while a
// non-empty one lets the engine point at a local DynamoDB for testing.
type StoreConfig struct {
	Region   string `mapstructure:"region" json:"region"`
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
}

// WebhookConfig holds settings for the outgoing signal emitter.
type WebhookConfig struct {
	URL            string `mapstructure:"url" json:"url"`
	Enabled        bool   `mapstructure:"enabled" json:"enabled"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// CalendarConfig points at the exchange holiday file consumed by
// internal/calendar.
type CalendarConfig struct {
	HolidayFilePath string `mapstructure:"holiday_file_path" json:"holiday_file_path"`
}

// MemoryGovernorConfig holds the Memory Governor's pause/abort lines, in
// MB of process RSS. Batch-size/concurrency profile selection itself
// stays env-driven inside internal/memgov, matching original_source's
// get_memory_config().
type MemoryGovernorConfig struct {
	PauseMB float64 `mapstructure:"pause_mb" json:"pause_mb"`
	AbortMB float64 `mapstructure:"abort_mb" json:"abort_mb"`
}

// ThresholdOverride is the hot-reloadable subset of a strategy's
// Thresholds, keyed by strategy name ("momentum", "penny_stocks") in
// Config.Thresholds. Unlike the teacher's risk-only reload, this covers
// the indicator thresholds the momentum/golden-ticker logic actually
// tunes.
type ThresholdOverride struct {
	GoldenMomentum      float64 `mapstructure:"golden_momentum" json:"golden_momentum"`
	ExceptionalMomentum float64 `mapstructure:"exceptional_momentum" json:"exceptional_momentum"`
}

// Load reads configuration from a JSON file via viper, with
// AutomaticEnv environment variable overrides layered on top (replacing
// the teacher's hand-rolled os.Getenv override block).
func Load(path string) (*Config, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("market_data.api_key_header", "APCA-API-KEY-ID")
	v.SetDefault("webhook.timeout_seconds", 5)
	v.SetDefault("webhook.enabled", false)
	v.SetDefault("memory_governor.pause_mb", 400)
	v.SetDefault("memory_governor.abort_mb", 550)
	v.SetDefault("calendar.holiday_file_path", "config/holidays.json")
	v.SetDefault("store.region", "us-east-1")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.BindEnv("market_data.base_url", "MARKET_DATA_BASE_URL")
	v.BindEnv("market_data.api_key", "MARKET_DATA_API_KEY")
	v.BindEnv("webhook.url", "WEBHOOK_URL")
	v.BindEnv("database_url", "DATABASE_URL")
	v.BindEnv("store.region", "AWS_REGION")
	v.BindEnv("store.endpoint", "DYNAMODB_ENDPOINT")

	return v
}

// Validate checks that required configuration fields are present and
// sane.
func (c *Config) Validate() error {
	if c.MarketData.BaseURL == "" {
		return fmt.Errorf("market_data.base_url is required")
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required when webhook.enabled is true")
	}
	if c.MemoryGovernor.PauseMB <= 0 {
		return fmt.Errorf("memory_governor.pause_mb must be positive")
	}
	if c.MemoryGovernor.AbortMB <= c.MemoryGovernor.PauseMB {
		return fmt.Errorf("memory_governor.abort_mb must exceed pause_mb")
	}
	return nil
}

// BoolEnv resolves a boolean toggle from the environment. An explicitly
// set value (including "false") is authoritative; an unset or
// unparseable variable falls back to fallback. Strategy enable toggles
// default to disabled unless the environment says otherwise, and this
// helper applies the same rule generically rather than special-casing
// strategy toggles.
func BoolEnv(name string, fallback bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// StrategyEnabled resolves the ENABLE_<STRATEGY>_INDICATOR toggle for a
// strategy name such as "momentum" or "penny_stocks".
func StrategyEnabled(strategyName string, fallback bool) bool {
	return BoolEnv("ENABLE_"+strings.ToUpper(strategyName)+"_INDICATOR", fallback)
}

// StartupDelaySecondsMax returns the ceiling for the coordinator's
// randomized per-strategy startup stagger, read from
// INDICATOR_STARTUP_DELAY_SECONDS and defaulting to 5 seconds.
func StartupDelaySecondsMax() int {
	return intEnv("INDICATOR_STARTUP_DELAY_SECONDS", 5)
}

func intEnv(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
