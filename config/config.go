package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"surgeWatch/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Universe
	QuoteAsset     string   // Symbols must end with this suffix, e.g. "USDT"
	MinQuoteVolume float64  // Minimum 24h quote volume for eligibility
	ExcludeSymbols []string // Substrings that exclude a symbol, e.g. "USDC"

	// Streaming
	StreamBatchSize       int
	StreamRestartInterval time.Duration
	StreamReadTimeout     time.Duration

	// Open interest polling
	OIPollInterval time.Duration
	OIBatchSize    int
	OIConcurrency  int
	OIBatchPause   time.Duration

	// Screening and alerting
	ScreenInterval  time.Duration
	VolumeThreshold float64 // Multiple of the historical hourly average
	PriceThreshold  float64 // Percent over 15 minutes
	OIThreshold     float64 // Percent over 1 hour
	AlertCooldown   time.Duration
	TrendBackfill   bool // Load recent 1h/4h closes over REST when a symbol is admitted

	// Telegram
	TelegramBotToken string
	TelegramChatID   string
	TelegramAPIBase  string

	// Database
	DBPath string

	// HTTP query API, disabled when empty
	HTTPAddr string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API. Market data endpoints are public, so keys are optional.
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Universe
	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", "USDT"))
	if cfg.QuoteAsset == "" {
		errs = append(errs, "QUOTE_ASSET must be set")
	}
	cfg.MinQuoteVolume, err = getEnvAsFloatRequired("MIN_QUOTE_VOLUME", 50_000_000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_QUOTE_VOLUME: %v", err))
	} else if cfg.MinQuoteVolume < 0 {
		errs = append(errs, "MIN_QUOTE_VOLUME cannot be negative")
	}
	cfg.ExcludeSymbols = getEnvAsList("EXCLUDE_SYMBOLS", []string{"USDC"})

	// Streaming
	cfg.StreamBatchSize, err = getEnvAsIntRequired("STREAM_BATCH_SIZE", 50)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STREAM_BATCH_SIZE: %v", err))
	} else if cfg.StreamBatchSize <= 0 {
		errs = append(errs, "STREAM_BATCH_SIZE must be positive")
	}
	cfg.StreamRestartInterval = parseSeconds("STREAM_RESTART_INTERVAL_SECONDS", 300, &errs)
	cfg.StreamReadTimeout = parseSeconds("STREAM_READ_TIMEOUT_SECONDS", 60, &errs)

	// Open interest polling
	cfg.OIPollInterval = parseSeconds("OI_POLL_INTERVAL_SECONDS", 60, &errs)
	cfg.OIBatchSize, err = getEnvAsIntRequired("OI_BATCH_SIZE", 50)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid OI_BATCH_SIZE: %v", err))
	} else if cfg.OIBatchSize <= 0 {
		errs = append(errs, "OI_BATCH_SIZE must be positive")
	}
	cfg.OIConcurrency, err = getEnvAsIntRequired("OI_CONCURRENCY", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid OI_CONCURRENCY: %v", err))
	} else if cfg.OIConcurrency <= 0 {
		errs = append(errs, "OI_CONCURRENCY must be positive")
	}
	pauseMs := getEnvAsInt("OI_BATCH_PAUSE_MS", 1000)
	if pauseMs < 0 {
		errs = append(errs, "OI_BATCH_PAUSE_MS cannot be negative")
	}
	cfg.OIBatchPause = time.Duration(pauseMs) * time.Millisecond

	// Screening and alerting
	cfg.ScreenInterval = parseSeconds("SCREEN_INTERVAL_SECONDS", 10, &errs)
	cfg.VolumeThreshold, err = getEnvAsFloatRequired("VOLUME_THRESHOLD", 3.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid VOLUME_THRESHOLD: %v", err))
	} else if cfg.VolumeThreshold <= 0 {
		errs = append(errs, "VOLUME_THRESHOLD must be positive")
	}
	cfg.PriceThreshold, err = getEnvAsFloatRequired("PRICE_THRESHOLD", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_THRESHOLD: %v", err))
	}
	cfg.OIThreshold, err = getEnvAsFloatRequired("OI_THRESHOLD", 10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid OI_THRESHOLD: %v", err))
	}
	cfg.AlertCooldown = parseSeconds("ALERT_COOLDOWN_SECONDS", 3600, &errs)
	cfg.TrendBackfill = getEnvAsBool("TREND_BACKFILL", false)

	// Telegram
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")
	cfg.TelegramAPIBase = getEnv("TELEGRAM_API_BASE", "https://api.telegram.org")

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/surge_watch.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "json"))
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		errs = append(errs, "LOG_FORMAT must be json or console")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// RequireNotifier checks the settings needed to deliver alerts.
func (c *Config) RequireNotifier() error {
	var missing []string
	if c.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.TelegramChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s must be set", strings.Join(missing, " and "))
	}
	return nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping blanks.
// An explicitly empty value ("-") yields an empty list.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if valueStr == "-" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseSeconds reads a positive whole number of seconds.
func parseSeconds(key string, defaultSeconds int, errs *[]string) time.Duration {
	secs, err := getEnvAsIntRequired(key, defaultSeconds)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid %s: %v", key, err))
		return 0
	}
	if secs <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be positive", key))
	}
	return time.Duration(secs) * time.Second
}
