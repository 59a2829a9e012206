// Package config provides configuration management for the research service.
package config

import (
	"fmt"
	"time"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

// Data source drivers
const (
	SourceDriverHTTP     = "http"
	SourceDriverFixture  = "fixture"
	SourceDriverPostgres = "postgres"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store" validate:"required"`
	Research ResearchConfig `mapstructure:"research" validate:"required"`
	Signals  SignalsConfig  `mapstructure:"signals" validate:"required"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents PostgreSQL connection configuration.
// Required only when a postgres store or source is selected.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"omitempty,gt=0"`
}

// StoreConfig selects the run memoization backend
type StoreConfig struct {
	Driver     string `mapstructure:"driver" validate:"required,storedriver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// ResearchConfig tunes the simulation engine and its caches
type ResearchConfig struct {
	FetchConcurrency    int                `mapstructure:"fetch_concurrency" validate:"required,gt=0,lte=64"`
	WeekCacheTTLSeconds int                `mapstructure:"week_cache_ttl_seconds" validate:"gte=0"`
	TrailProfile        TrailProfileConfig `mapstructure:"trail_profile"`
}

// TrailProfileConfig holds the adaptive trailing inputs
type TrailProfileConfig struct {
	TTLSeconds      int     `mapstructure:"ttl_seconds" validate:"gte=0"`
	AvgPeakPct      float64 `mapstructure:"avg_peak_pct" validate:"gte=0"`
	PeakCount       int     `mapstructure:"peak_count" validate:"gte=0"`
	PeakSumPct      float64 `mapstructure:"peak_sum_pct" validate:"gte=0"`
	StartMultiplier float64 `mapstructure:"start_multiplier" validate:"gte=0"`
	OffsetFraction  float64 `mapstructure:"offset_fraction" validate:"gte=0,lte=1"`
}

// SignalsConfig selects and tunes the market data sources
type SignalsConfig struct {
	Driver            string  `mapstructure:"driver" validate:"required,sourcedriver"`
	BaseURL           string  `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey            string  `mapstructure:"api_key"`
	FixturePath       string  `mapstructure:"fixture_path"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" validate:"gte=0"`
	MaxRetries        int     `mapstructure:"max_retries" validate:"gte=0"`
	RateLimit         float64 `mapstructure:"rate_limit" validate:"gte=0"`
	CircuitBreakerMax int     `mapstructure:"circuit_breaker_max" validate:"gte=0"`
}

// IngestConfig schedules periodic copies from the signals source into PostgreSQL.
// An empty schedule disables it.
type IngestConfig struct {
	Schedule       string `mapstructure:"schedule"`
	LookbackWeeks  int    `mapstructure:"lookback_weeks" validate:"gte=0,lte=520"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Port                int `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadTimeoutSeconds  int `mapstructure:"read_timeout_seconds" validate:"gte=0"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds" validate:"gte=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SecretsConfig points at the AWS Secrets Manager overlay
type SecretsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Region     string `mapstructure:"region"`
	SecretName string `mapstructure:"secret_name"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// NeedsDatabase reports whether any configured component reads PostgreSQL
func (c *Config) NeedsDatabase() bool {
	return c.Store.Driver == StoreDriverPostgres ||
		c.Signals.Driver == SourceDriverPostgres ||
		c.Ingest.Schedule != ""
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// WeekCacheTTL returns the week-data cache lifetime, zero when disabled
func (c *Config) WeekCacheTTL() time.Duration {
	return time.Duration(c.Research.WeekCacheTTLSeconds) * time.Second
}

// TrailProfileTTL returns the adaptive trail profile cache lifetime
func (c *Config) TrailProfileTTL() time.Duration {
	return time.Duration(c.Research.TrailProfile.TTLSeconds) * time.Second
}

// IngestTimeout bounds one scheduled ingest pass
func (c *Config) IngestTimeout() time.Duration {
	return time.Duration(c.Ingest.TimeoutSeconds) * time.Second
}

// SignalsTimeout returns the market data request timeout
func (c *Config) SignalsTimeout() time.Duration {
	return time.Duration(c.Signals.TimeoutSeconds) * time.Second
}
