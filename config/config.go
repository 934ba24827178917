package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ExchangeConfig  ExchangeConfig  `json:"exchange"`
	TradingConfig   TradingConfig   `json:"trading"`
	RiskConfig      RiskConfig      `json:"risk"`
	StrategyConfig  StrategyConfig  `json:"strategy"`
	TimeframeConfig TimeframeConfig `json:"timeframes"`
	SentimentConfig SentimentConfig `json:"sentiment"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	VaultConfig     VaultConfig     `json:"vault"`
	ServerConfig    ServerConfig    `json:"server"`
	LoggingConfig   LoggingConfig   `json:"logging"`
}

// ExchangeConfig holds exchange API configuration
type ExchangeConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	StreamURL string `json:"stream_url"`
	TestNet   bool   `json:"testnet"`
	MockMode  bool   `json:"mock_mode"` // Use simulated data when the exchange API is unavailable
}

// TradingConfig holds session-level trading configuration
type TradingConfig struct {
	Symbol           string  `json:"symbol"`
	Interval         string  `json:"interval"`          // Candle interval for the decision timeframe, e.g. "1m"
	CandleLimit      int     `json:"candle_limit"`      // Candles fetched per tick
	TickSeconds      int     `json:"tick_seconds"`      // Seconds between decision ticks
	DurationMinutes  int     `json:"duration_minutes"`  // Session length; 0 = run until stopped
	DryRun           bool    `json:"dry_run"`           // Simulate orders without execution
	MinConfidence    float64 `json:"min_confidence"`    // Quality gate on fused signals
	MinVolume        float64 `json:"min_volume"`        // Last-bar volume floor for momentum entries
	TakeProfitPct    float64 `json:"take_profit_pct"`   // Default take-profit distance
	TrailingStopPct  float64 `json:"trailing_stop_pct"` // Trailing distance from the favorable extreme
}

// RiskConfig holds risk management configuration
type RiskConfig struct {
	InitialCapital       float64 `json:"initial_capital"`
	RiskPercent          float64 `json:"risk_percent"`           // Fraction of capital risked per trade
	BaseStopLossPct      float64 `json:"base_stop_loss_pct"`     // Floor for the ATR-adaptive stop
	MaxStopLossPct       float64 `json:"max_stop_loss_pct"`      // Ceiling for the ATR-adaptive stop
	MaxDailyLossPct      float64 `json:"max_daily_loss_pct"`     // Session stops once breached
	MaxExposurePct       float64 `json:"max_exposure_pct"`       // Open exposure cap as fraction of capital
	DrawdownPausePct     float64 `json:"drawdown_pause_pct"`     // Pause new entries above this drawdown
	DrawdownResumePct    float64 `json:"drawdown_resume_pct"`    // Resume once drawdown falls below this
	MeanRevStopLossPct   float64 `json:"meanrev_stop_loss_pct"`  // Tight stop for mean-reversion entries
	MeanRevTakeProfitPct float64 `json:"meanrev_take_profit_pct"`
}

// StrategyConfig holds signal generation thresholds. These are empirically
// tuned values; they are configuration, not constants, so sessions can be
// run conservative or aggressive without a rebuild.
type StrategyConfig struct {
	RSILower            float64 `json:"rsi_lower"`
	RSIUpper            float64 `json:"rsi_upper"`
	ADXTrendThreshold   float64 `json:"adx_trend_threshold"`    // Below this the ranging filter trips
	ATRVolatilityCeil   float64 `json:"atr_volatility_ceiling"` // ATR/price above this rejects momentum entries
	RangingTrendPct     float64 `json:"ranging_trend_pct"`      // Avg |trend| below this counts as directionless
	RangingMACDDiff     float64 `json:"ranging_macd_diff"`      // |MACD-signal| band for the neutral zone check
	RangingBandWidthPct float64 `json:"ranging_band_width_pct"` // Bollinger width floor as fraction of mid
	SRProximityPct      float64 `json:"sr_proximity_pct"`       // Momentum distance to support/resistance
	SupportThreshold    float64 `json:"support_threshold"`      // Mean-reversion distance to support
	ResistanceThreshold float64 `json:"resistance_threshold"`   // Mean-reversion distance to resistance
}

// TimeframeConfig holds the higher-timeframe analysis configuration
type TimeframeConfig struct {
	Intervals   []string `json:"intervals"`    // Ordered shortest to longest
	CandleLimit int      `json:"candle_limit"` // Candles fetched per interval
	TrendWindow int      `json:"trend_window"` // Lookback bars for trend percent
}

// SentimentConfig holds market sentiment analysis configuration
type SentimentConfig struct {
	Enabled           bool   `json:"enabled"`
	CryptoPanicAPIKey string `json:"cryptopanic_api_key"`
	MinSoloConfidence int    `json:"min_solo_confidence"` // Confidence floor for sentiment-only trades
}

// DatabaseConfig holds PostgreSQL configuration for the trade ledger
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for the candle cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	CacheTTL int    `json:"cache_ttl"` // Seconds a cached candle window stays fresh
}

// VaultConfig holds HashiCorp Vault configuration for API credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

// ServerConfig holds the status API server configuration
type ServerConfig struct {
	Enabled         bool          `json:"enabled"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	AllowedOrigins  string        `json:"allowed_origins"`
	JWTSecret       string        `json:"jwt_secret"`
	AdminPassword   string        `json:"admin_password"` // bcrypt hash; plaintext accepted and hashed at startup
	TokenDuration   time.Duration `json:"token_duration"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON output instead of console
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment values take precedence over the config file.
func applyEnvOverrides(cfg *Config) {
	cfg.ExchangeConfig.APIKey = getEnvOrDefault("EXCHANGE_API_KEY", cfg.ExchangeConfig.APIKey)
	cfg.ExchangeConfig.SecretKey = getEnvOrDefault("EXCHANGE_SECRET_KEY", cfg.ExchangeConfig.SecretKey)
	cfg.ExchangeConfig.BaseURL = getEnvOrDefault("EXCHANGE_BASE_URL", cfg.ExchangeConfig.BaseURL)
	cfg.ExchangeConfig.StreamURL = getEnvOrDefault("EXCHANGE_STREAM_URL", cfg.ExchangeConfig.StreamURL)
	if v := os.Getenv("EXCHANGE_TESTNET"); v != "" {
		cfg.ExchangeConfig.TestNet = v == "true"
	}
	if v := os.Getenv("MOCK_MODE"); v != "" {
		cfg.ExchangeConfig.MockMode = v == "true"
	}

	cfg.TradingConfig.Symbol = getEnvOrDefault("TRADING_SYMBOL", cfg.TradingConfig.Symbol)
	cfg.TradingConfig.Interval = getEnvOrDefault("TRADING_INTERVAL", cfg.TradingConfig.Interval)
	if v := os.Getenv("TRADING_DRY_RUN"); v != "" {
		cfg.TradingConfig.DryRun = v == "true"
	}
	cfg.TradingConfig.TickSeconds = getEnvIntOrDefault("TRADING_TICK_SECONDS", cfg.TradingConfig.TickSeconds)
	cfg.TradingConfig.DurationMinutes = getEnvIntOrDefault("TRADING_DURATION_MINUTES", cfg.TradingConfig.DurationMinutes)

	cfg.RiskConfig.InitialCapital = getEnvFloatOrDefault("RISK_INITIAL_CAPITAL", cfg.RiskConfig.InitialCapital)
	cfg.RiskConfig.RiskPercent = getEnvFloatOrDefault("RISK_PERCENT", cfg.RiskConfig.RiskPercent)
	cfg.RiskConfig.MaxExposurePct = getEnvFloatOrDefault("RISK_MAX_EXPOSURE_PCT", cfg.RiskConfig.MaxExposurePct)
	cfg.RiskConfig.MaxDailyLossPct = getEnvFloatOrDefault("RISK_MAX_DAILY_LOSS_PCT", cfg.RiskConfig.MaxDailyLossPct)

	cfg.SentimentConfig.CryptoPanicAPIKey = getEnvOrDefault("CRYPTOPANIC_API_KEY", cfg.SentimentConfig.CryptoPanicAPIKey)
	if v := os.Getenv("SENTIMENT_ENABLED"); v != "" {
		cfg.SentimentConfig.Enabled = v == "true"
	}

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	if v := os.Getenv("DB_ENABLED"); v != "" {
		cfg.DatabaseConfig.Enabled = v == "true"
	}

	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.RedisConfig.Enabled = v == "true"
	}

	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	if v := os.Getenv("VAULT_ENABLED"); v != "" {
		cfg.VaultConfig.Enabled = v == "true"
	}

	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.JWTSecret = getEnvOrDefault("SERVER_JWT_SECRET", cfg.ServerConfig.JWTSecret)
	cfg.ServerConfig.AdminPassword = getEnvOrDefault("SERVER_ADMIN_PASSWORD", cfg.ServerConfig.AdminPassword)
	if v := os.Getenv("SERVER_ENABLED"); v != "" {
		cfg.ServerConfig.Enabled = v == "true"
	}

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.LoggingConfig.JSONFormat = v == "true"
	}
}

// applyDefaults fills zero values with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.ExchangeConfig.BaseURL == "" {
		cfg.ExchangeConfig.BaseURL = "https://api.binance.com"
	}
	if cfg.ExchangeConfig.StreamURL == "" {
		cfg.ExchangeConfig.StreamURL = "wss://stream.binance.com:9443/ws"
	}
	if cfg.ExchangeConfig.TestNet {
		cfg.ExchangeConfig.BaseURL = "https://testnet.binance.vision"
	}

	if cfg.TradingConfig.Symbol == "" {
		cfg.TradingConfig.Symbol = "BTCUSDT"
	}
	if cfg.TradingConfig.Interval == "" {
		cfg.TradingConfig.Interval = "1m"
	}
	if cfg.TradingConfig.CandleLimit == 0 {
		cfg.TradingConfig.CandleLimit = 100
	}
	if cfg.TradingConfig.TickSeconds == 0 {
		cfg.TradingConfig.TickSeconds = 60
	}
	if cfg.TradingConfig.MinConfidence == 0 {
		cfg.TradingConfig.MinConfidence = 0.45
	}
	if cfg.TradingConfig.TakeProfitPct == 0 {
		cfg.TradingConfig.TakeProfitPct = 0.025
	}
	if cfg.TradingConfig.TrailingStopPct == 0 {
		cfg.TradingConfig.TrailingStopPct = 0.01
	}

	if cfg.RiskConfig.InitialCapital == 0 {
		cfg.RiskConfig.InitialCapital = 10000
	}
	if cfg.RiskConfig.RiskPercent == 0 {
		cfg.RiskConfig.RiskPercent = 0.02
	}
	if cfg.RiskConfig.BaseStopLossPct == 0 {
		cfg.RiskConfig.BaseStopLossPct = 0.01
	}
	if cfg.RiskConfig.MaxStopLossPct == 0 {
		cfg.RiskConfig.MaxStopLossPct = 0.03
	}
	if cfg.RiskConfig.MaxDailyLossPct == 0 {
		cfg.RiskConfig.MaxDailyLossPct = 0.05
	}
	if cfg.RiskConfig.MaxExposurePct == 0 {
		cfg.RiskConfig.MaxExposurePct = 0.3
	}
	if cfg.RiskConfig.DrawdownPausePct == 0 {
		cfg.RiskConfig.DrawdownPausePct = 0.03
	}
	if cfg.RiskConfig.DrawdownResumePct == 0 {
		cfg.RiskConfig.DrawdownResumePct = 0.02
	}
	if cfg.RiskConfig.MeanRevStopLossPct == 0 {
		cfg.RiskConfig.MeanRevStopLossPct = 0.006
	}
	if cfg.RiskConfig.MeanRevTakeProfitPct == 0 {
		cfg.RiskConfig.MeanRevTakeProfitPct = 0.012
	}

	if cfg.StrategyConfig.RSILower == 0 {
		cfg.StrategyConfig.RSILower = 35
	}
	if cfg.StrategyConfig.RSIUpper == 0 {
		cfg.StrategyConfig.RSIUpper = 65
	}
	if cfg.StrategyConfig.ADXTrendThreshold == 0 {
		cfg.StrategyConfig.ADXTrendThreshold = 18
	}
	if cfg.StrategyConfig.ATRVolatilityCeil == 0 {
		cfg.StrategyConfig.ATRVolatilityCeil = 0.02
	}
	if cfg.StrategyConfig.RangingTrendPct == 0 {
		cfg.StrategyConfig.RangingTrendPct = 0.5
	}
	if cfg.StrategyConfig.RangingMACDDiff == 0 {
		cfg.StrategyConfig.RangingMACDDiff = 3
	}
	if cfg.StrategyConfig.RangingBandWidthPct == 0 {
		cfg.StrategyConfig.RangingBandWidthPct = 0.02
	}
	if cfg.StrategyConfig.SRProximityPct == 0 {
		cfg.StrategyConfig.SRProximityPct = 0.01
	}
	if cfg.StrategyConfig.SupportThreshold == 0 {
		cfg.StrategyConfig.SupportThreshold = 0.02
	}
	if cfg.StrategyConfig.ResistanceThreshold == 0 {
		cfg.StrategyConfig.ResistanceThreshold = 0.02
	}

	if len(cfg.TimeframeConfig.Intervals) == 0 {
		cfg.TimeframeConfig.Intervals = []string{"5m", "15m", "1h"}
	}
	if cfg.TimeframeConfig.CandleLimit == 0 {
		cfg.TimeframeConfig.CandleLimit = 200
	}
	if cfg.TimeframeConfig.TrendWindow == 0 {
		cfg.TimeframeConfig.TrendWindow = 5
	}

	if cfg.SentimentConfig.MinSoloConfidence == 0 {
		cfg.SentimentConfig.MinSoloConfidence = 70
	}

	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}

	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.CacheTTL == 0 {
		cfg.RedisConfig.CacheTTL = 30
	}

	if cfg.VaultConfig.Address == "" {
		cfg.VaultConfig.Address = "http://localhost:8200"
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "trading-bot/api-keys"
	}

	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.TokenDuration == 0 {
		cfg.ServerConfig.TokenDuration = 12 * time.Hour
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10 * time.Second
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

// Validate rejects configurations the risk engine cannot run with.
func (c *Config) Validate() error {
	if c.RiskConfig.InitialCapital <= 0 {
		return fmt.Errorf("risk.initial_capital must be positive, got %.2f", c.RiskConfig.InitialCapital)
	}
	if c.RiskConfig.RiskPercent <= 0 || c.RiskConfig.RiskPercent >= 1 {
		return fmt.Errorf("risk.risk_percent must be in (0,1), got %.4f", c.RiskConfig.RiskPercent)
	}
	if c.RiskConfig.MaxExposurePct <= 0 || c.RiskConfig.MaxExposurePct > 1 {
		return fmt.Errorf("risk.max_exposure_pct must be in (0,1], got %.4f", c.RiskConfig.MaxExposurePct)
	}
	if c.RiskConfig.DrawdownResumePct >= c.RiskConfig.DrawdownPausePct {
		return fmt.Errorf("risk.drawdown_resume_pct (%.4f) must be below drawdown_pause_pct (%.4f)",
			c.RiskConfig.DrawdownResumePct, c.RiskConfig.DrawdownPausePct)
	}
	if c.TradingConfig.TickSeconds <= 0 {
		return fmt.Errorf("trading.tick_seconds must be positive, got %d", c.TradingConfig.TickSeconds)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
