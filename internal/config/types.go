package config

import "time"

// Config is the full runtime configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Alpaca   AlpacaConfig   `mapstructure:"alpaca"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Tickers  TickersConfig  `mapstructure:"tickers"`
}

// AppConfig covers process-level settings.
type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AlpacaConfig carries broker credentials. Key and secret usually come from
// the environment (TRADEFLOW_ALPACA_API_KEY / _API_SECRET), not the file.
type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// ScheduleConfig drives the three job schedulers.
type ScheduleConfig struct {
	ExecutorInterval     time.Duration `mapstructure:"executor_interval"`
	OrderSyncInterval    time.Duration `mapstructure:"order_sync_interval"`
	PositionSyncInterval time.Duration `mapstructure:"position_sync_interval"`
	MarketOpen           string        `mapstructure:"market_open"`
	MarketClose          string        `mapstructure:"market_close"`
	Timezone             string        `mapstructure:"timezone"`
	ExtendedHours        bool          `mapstructure:"extended_hours"`
}

// TickersConfig tunes the symbol search cache.
type TickersConfig struct {
	SearchCacheTTL time.Duration `mapstructure:"search_cache_ttl"`
}
