package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	Storage   MStorageConfig   `yaml:"storage"`
	Redis     MRedisConfig     `yaml:"redis"`
	Network   MNetworkConfig   `yaml:"network"`
	Provider  MProviderConfig  `yaml:"provider"`
	RateLimit MRateLimitConfig `yaml:"rate_limit"`
	Cache     MCacheConfig     `yaml:"cache"`
	Calendar  MCalendarConfig  `yaml:"calendar"`
	Refresh   MRefreshConfig   `yaml:"refresh"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	Schema             string `yaml:"schema"`
	RetentionDays      int    `yaml:"retention_days"` // 0 keeps everything
}

type MRedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type MNetworkConfig struct {
	RequestTimeout int    `yaml:"timeout"`
	MaxRetries     int    `yaml:"retries"` // startup connectivity only
	UserAgent      string `yaml:"user_agent"`
}

type MProviderConfig struct {
	Name     string `yaml:"name"` // "yahoo" or "alphavantage"
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Scope    string `yaml:"scope"`    // rate-limit accounting unit, defaults to the provider name
	Currency string `yaml:"currency"` // used when the provider does not report one
}

type MRateLimitConfig struct {
	PerMinute int64 `yaml:"per_minute"`
	PerDay    int64 `yaml:"per_day"`
}

type MCacheConfig struct {
	RealTimeTTLSeconds int `yaml:"realtime_ttl_seconds"`
	DailyTTLSeconds    int `yaml:"daily_ttl_seconds"`
	IntradayTTLSeconds int `yaml:"intraday_ttl_seconds"`
}

type MCalendarConfig struct {
	Timezone    string `yaml:"timezone"`
	MarketOpen  string `yaml:"market_open"`  // HH:MM local
	MarketClose string `yaml:"market_close"` // HH:MM local
	MIC         string `yaml:"mic"`          // optional exchange code for holiday-aware calendars
}

type MRefreshConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Cron        string   `yaml:"cron"`
	CleanupCron string   `yaml:"cleanup_cron"`
	Tickers     []string `yaml:"tickers"`
}
