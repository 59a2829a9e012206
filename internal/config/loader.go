// Package config provides configuration management for the research service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix         = "LIMNI_RESEARCH"
	defaultConfigPath = "config/config.yaml"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// readExpanded reads the YAML file and expands ${VAR} placeholders
func readExpanded(v *viper.Viper, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	expanded := os.ExpandEnv(string(data))
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Load reads and parses the configuration from file and environment variables.
// It expands environment variable placeholders in the YAML file (${VAR_NAME}).
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	v := newViper()
	if err := readExpanded(v, configPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional fields.
// A missing file is not an error; defaults and environment variables apply.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	if err := readExpanded(v, configPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "limni-research")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "limni")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_connections", 2)

	v.SetDefault("store.driver", StoreDriverSQLite)
	v.SetDefault("store.sqlite_path", "research_runs.db")

	v.SetDefault("research.fetch_concurrency", 4)
	v.SetDefault("research.week_cache_ttl_seconds", 300)
	v.SetDefault("research.trail_profile.ttl_seconds", 60)
	v.SetDefault("research.trail_profile.avg_peak_pct", 144.505)
	v.SetDefault("research.trail_profile.peak_count", 4)
	v.SetDefault("research.trail_profile.peak_sum_pct", 0)
	v.SetDefault("research.trail_profile.start_multiplier", 0.65)
	v.SetDefault("research.trail_profile.offset_fraction", 0.25)

	v.SetDefault("signals.driver", SourceDriverFixture)
	v.SetDefault("signals.base_url", "")
	v.SetDefault("signals.api_key", "")
	v.SetDefault("signals.fixture_path", "testdata/fixture_weeks.json")
	v.SetDefault("signals.timeout_seconds", 30)
	v.SetDefault("signals.max_retries", 5)
	v.SetDefault("signals.rate_limit", 10.0)
	v.SetDefault("signals.circuit_breaker_max", 5)

	v.SetDefault("ingest.schedule", "")
	v.SetDefault("ingest.lookback_weeks", 2)
	v.SetDefault("ingest.timeout_seconds", 3600)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 60)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("secrets.enabled", false)
	v.SetDefault("secrets.region", "us-east-1")
	v.SetDefault("secrets.secret_name", "")
}
