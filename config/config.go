package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultSymbols are the tickers analysed by /api/stocks and the refresh job.
var DefaultSymbols = []string{
	"AAPL",  // Apple
	"GOOGL", // Alphabet
	"MSFT",  // Microsoft
	"AMZN",  // Amazon
	"META",  // Meta
	"TSLA",  // Tesla
	"NVDA",  // NVIDIA
	"JPM",   // JPMorgan Chase
	"V",     // Visa
	"WMT",   // Walmart
}

// Config holds all application configuration.
// Values are resolved as defaults, then the YAML file, then environment.
type Config struct {
	// HTTP
	HTTPAddr       string        `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	Port           string        `yaml:"-" envconfig:"PORT"` // shorthand for HTTPAddr=":PORT"
	MetricsAddr    string        `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	LogLevel       string        `yaml:"log_level" envconfig:"LOG_LEVEL"`

	// Infrastructure
	RedisAddr     string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" envconfig:"REDIS_DB"`
	SQLitePath    string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`

	// Market data
	Symbols           []string      `yaml:"symbols" envconfig:"SYMBOLS"`
	HistoryDays       int           `yaml:"history_days" envconfig:"HISTORY_DAYS"`
	QuoteTTL          time.Duration `yaml:"quote_ttl" envconfig:"QUOTE_TTL"`
	HistoryStaleAfter time.Duration `yaml:"history_stale_after" envconfig:"HISTORY_STALE_AFTER"`

	// Scheduled refresh (cron with seconds field); empty disables the job
	RefreshCron            string `yaml:"refresh_cron" envconfig:"REFRESH_CRON"`
	RefreshTradingDaysOnly bool   `yaml:"refresh_trading_days_only" envconfig:"REFRESH_TRADING_DAYS_ONLY"`
	RunOnStart             bool   `yaml:"run_on_start" envconfig:"RUN_ON_START"`

	// Alerts and admin
	WebhookURL       string `yaml:"webhook_url" envconfig:"WEBHOOK_URL"`
	TelegramBotToken string `yaml:"telegram_bot_token" envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `yaml:"telegram_chat_id" envconfig:"TELEGRAM_CHAT_ID"`
	AdminTOTPSecret  string `yaml:"admin_totp_secret" envconfig:"ADMIN_TOTP_SECRET"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPAddr:       ":5000",
		MetricsAddr:    ":9090",
		RequestTimeout: 15 * time.Second,
		LogLevel:       "info",

		RedisAddr:  "localhost:6379",
		SQLitePath: "data/prices.db",

		Symbols:           append([]string(nil), DefaultSymbols...),
		HistoryDays:       200,
		QuoteTTL:          time.Minute,
		HistoryStaleAfter: 12 * time.Hour,

		RefreshCron:            "0 */15 * * * *",
		RefreshTradingDaysOnly: true,
	}
}

// Load reads an optional .env file, an optional YAML file at path, and then
// environment variable overrides. A missing file at either step is not an error.
func Load(path string) (*Config, error) {
	// Deployments without a .env file rely on the real environment.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}

	if cfg.Port != "" {
		cfg.HTTPAddr = ":" + strings.TrimPrefix(cfg.Port, ":")
	}
	cfg.Symbols = normalizeSymbols(cfg.Symbols)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required fields are usable.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite_path is required")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.HistoryDays < 14 {
		return fmt.Errorf("history_days must be at least 14, got %d", c.HistoryDays)
	}
	if c.QuoteTTL <= 0 {
		return fmt.Errorf("quote_ttl must be positive")
	}
	if c.HistoryStaleAfter <= 0 {
		return fmt.Errorf("history_stale_after must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}

// normalizeSymbols upper-cases, trims and de-duplicates tickers, keeping order.
func normalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
