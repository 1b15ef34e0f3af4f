package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"market-engine/src/models"
	"market-engine/src/utils"

	"gopkg.in/yaml.v3"
)

// Environment overrides for secrets that should not live in the YAML file.
const (
	EnvProviderAPIKey     = "MARKET_PROVIDER_API_KEY"
	EnvRedisPassword      = "MARKET_REDIS_PASSWORD"
	EnvDBConnectionString = "MARKET_DB_CONNECTION_STRING"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	return Parse(data)
}

// Parse builds a validated Config from raw YAML, applying defaults and
// environment overrides.
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.DBType == "postgres" && c.Storage.Schema == "" {
		c.Storage.Schema = "market_data"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "mde"
	}
	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 10
	}
	if c.Network.MaxRetries == 0 {
		c.Network.MaxRetries = 3
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "yahoo"
	}
	if c.Provider.Scope == "" {
		c.Provider.Scope = c.Provider.Name
	}
	if c.Provider.Currency == "" {
		c.Provider.Currency = "USD"
	}
	if c.Cache.RealTimeTTLSeconds == 0 {
		c.Cache.RealTimeTTLSeconds = int(utils.DefaultRealTimeTTL / time.Second)
	}
	if c.Cache.DailyTTLSeconds == 0 {
		c.Cache.DailyTTLSeconds = int(utils.DefaultDailyTTL / time.Second)
	}
	if c.Cache.IntradayTTLSeconds == 0 {
		c.Cache.IntradayTTLSeconds = int(utils.DefaultIntradayTTL / time.Second)
	}
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = utils.DefaultMarketTimezone
	}
	if c.Calendar.MarketOpen == "" {
		c.Calendar.MarketOpen = utils.DefaultMarketOpen
	}
	if c.Calendar.MarketClose == "" {
		c.Calendar.MarketClose = utils.DefaultMarketClose
	}
	if c.Refresh.Cron == "" {
		c.Refresh.Cron = "0 */15 * * * *"
	}
	if c.Refresh.CleanupCron == "" {
		c.Refresh.CleanupCron = "0 30 3 * * *"
	}
}

// ApplyEnv overrides secrets from the environment when set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvProviderAPIKey); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(EnvDBConnectionString); v != "" {
		c.Storage.DBConnectionString = v
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARNING", "ERROR":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Storage
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type %q", c.Storage.DBType)
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention days cannot be negative")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}

	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Provider
	switch c.Provider.Name {
	case "yahoo":
	case "alphavantage":
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider %s requires an api key (or %s)", c.Provider.Name, EnvProviderAPIKey)
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}

	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("rate_limit.per_minute must be greater than 0")
	}
	if c.RateLimit.PerDay <= 0 {
		return fmt.Errorf("rate_limit.per_day must be greater than 0")
	}
	if c.RateLimit.PerDay < c.RateLimit.PerMinute {
		return fmt.Errorf("rate_limit.per_day (%d) is below per_minute (%d)", c.RateLimit.PerDay, c.RateLimit.PerMinute)
	}

	if c.Cache.RealTimeTTLSeconds <= 0 || c.Cache.DailyTTLSeconds <= 0 || c.Cache.IntradayTTLSeconds <= 0 {
		return fmt.Errorf("cache ttls must be greater than 0")
	}

	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("invalid calendar timezone %q: %w", c.Calendar.Timezone, err)
	}
	open, err := utils.ParseClock(c.Calendar.MarketOpen)
	if err != nil {
		return fmt.Errorf("invalid market_open: %w", err)
	}
	closeAt, err := utils.ParseClock(c.Calendar.MarketClose)
	if err != nil {
		return fmt.Errorf("invalid market_close: %w", err)
	}
	if closeAt <= open {
		return fmt.Errorf("market_close must be after market_open")
	}

	for i, t := range c.Refresh.Tickers {
		if models.NormalizeTicker(t) == "" {
			return fmt.Errorf("refresh ticker %d cannot be empty", i)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// TTLFor returns the Tier-1 lifetime for entries of the given interval.
func (c *Config) TTLFor(interval models.Interval) time.Duration {
	switch {
	case interval == models.IntervalDaily:
		return time.Duration(c.Cache.DailyTTLSeconds) * time.Second
	case interval.IsIntraday():
		return time.Duration(c.Cache.IntradayTTLSeconds) * time.Second
	default:
		return time.Duration(c.Cache.RealTimeTTLSeconds) * time.Second
	}
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0600, the file may carry secrets)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
