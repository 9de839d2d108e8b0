// Package config loads the YAML configuration, layering environment
// variables (TRADEFLOW_ prefix) over the file and defaults under both.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultEnv                  = "dev"
	defaultLogLevel             = "info"
	defaultHTTPAddr             = ":8090"
	defaultDatabasePath         = "data/tradeflow.db"
	defaultAlpacaBaseURL        = "https://paper-api.alpaca.markets"
	defaultExecutorInterval     = time.Minute
	defaultOrderSyncInterval    = time.Minute
	defaultPositionSyncInterval = 5 * time.Minute
	defaultMarketOpen           = "09:30"
	defaultMarketClose          = "16:00"
	defaultTimezone             = "America/New_York"
	defaultSearchCacheTTL       = 5 * time.Minute
)

// Load reads the config file at path. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	applyDefaults(v)
	v.SetEnvPrefix("TRADEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// credentials have no file default, so viper needs the keys declared for
	// env lookup to reach Unmarshal
	_ = v.BindEnv("alpaca.api_key")
	_ = v.BindEnv("alpaca.api_secret")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.env", defaultEnv)
	v.SetDefault("app.log_level", defaultLogLevel)
	v.SetDefault("app.http_addr", defaultHTTPAddr)
	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("alpaca.base_url", defaultAlpacaBaseURL)
	v.SetDefault("schedule.executor_interval", defaultExecutorInterval)
	v.SetDefault("schedule.order_sync_interval", defaultOrderSyncInterval)
	v.SetDefault("schedule.position_sync_interval", defaultPositionSyncInterval)
	v.SetDefault("schedule.market_open", defaultMarketOpen)
	v.SetDefault("schedule.market_close", defaultMarketClose)
	v.SetDefault("schedule.timezone", defaultTimezone)
	v.SetDefault("tickers.search_cache_ttl", defaultSearchCacheTTL)
}

func validate(c *Config) error {
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path cannot be empty")
	}
	if c.Schedule.ExecutorInterval <= 0 {
		return fmt.Errorf("config: schedule.executor_interval must be positive")
	}
	if c.Schedule.OrderSyncInterval <= 0 {
		return fmt.Errorf("config: schedule.order_sync_interval must be positive")
	}
	if c.Schedule.PositionSyncInterval <= 0 {
		return fmt.Errorf("config: schedule.position_sync_interval must be positive")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("config: bad schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	switch c.App.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: bad app.log_level %q", c.App.LogLevel)
	}
	return nil
}
