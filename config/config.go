// Package config loads service configuration from the environment (optionally
// seeded from a .env file) and the instrument list from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Data sources.
const (
	SourceTwelveData = "twelvedata"
	SourceSynthetic  = "synthetic"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Instruments and market data
	InstrumentsFile   string
	DefaultThreshold  float64
	DataSource        string
	TwelveDataAPIKey  string
	TwelveDataBaseURL string
	BarInterval       string
	Lookback          int
	SyntheticSeed     int64

	// Engine
	Schedule     string
	ATRMethod    string
	ADXMethod    string
	Cooldown     time.Duration
	ExitRatio    float64
	Workers      int
	FetchTimeout time.Duration
	CycleTimeout time.Duration

	// Market hours gating of notifications
	MarketHoursOnly bool
	MarketHolidays  string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	StateKey      string
	SQLitePath    string
	HTTPAddr      string
	LogLevel      string

	// Notification channels; empty disables the channel
	TelegramToken  string
	TelegramChatID int64
	WebhookURL     string
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding ones already set. Missing files are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("dotenv load failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numeric, duration or boolean values are reported together.
func Load() (*Config, error) {
	p := &parser{}
	c := &Config{
		InstrumentsFile:   getEnv("INSTRUMENTS_FILE", ""),
		DefaultThreshold:  p.float("DEFAULT_THRESHOLD", 1.0),
		DataSource:        strings.ToLower(getEnv("DATA_SOURCE", SourceTwelveData)),
		TwelveDataAPIKey:  getEnv("TWELVEDATA_API_KEY", ""),
		TwelveDataBaseURL: getEnv("TWELVEDATA_BASE_URL", ""),
		BarInterval:       getEnv("BAR_INTERVAL", "15min"),
		Lookback:          p.int("LOOKBACK", 30),
		SyntheticSeed:     int64(p.int("SYNTHETIC_SEED", 1)),

		Schedule:     getEnv("SCHEDULE", "@every 1m"),
		ATRMethod:    getEnv("ATR_METHOD", ""),
		ADXMethod:    getEnv("ADX_METHOD", ""),
		Cooldown:     p.duration("COOLDOWN", 5*time.Minute),
		ExitRatio:    p.float("EXIT_RATIO", 0),
		Workers:      p.int("WORKERS", 4),
		FetchTimeout: p.duration("FETCH_TIMEOUT", 10*time.Second),
		CycleTimeout: p.duration("CYCLE_TIMEOUT", 45*time.Second),

		MarketHoursOnly: p.bool("MARKET_HOURS_ONLY", true),
		MarketHolidays:  getEnv("MARKET_HOLIDAYS", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		StateKey:      getEnv("STATE_KEY", "vol:episodes"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/volsignal.db"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: int64(p.int("TELEGRAM_CHAT_ID", 0)),
		WebhookURL:     getEnv("WEBHOOK_URL", ""),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	switch c.DataSource {
	case SourceTwelveData:
		if c.TwelveDataAPIKey == "" {
			errs = append(errs, errors.New("TWELVEDATA_API_KEY is required for the twelvedata source"))
		}
	case SourceSynthetic:
	default:
		errs = append(errs, fmt.Errorf("DATA_SOURCE: unknown source %q", c.DataSource))
	}
	if c.DefaultThreshold <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_THRESHOLD must be positive, got %v", c.DefaultThreshold))
	}
	if c.Lookback < 0 {
		errs = append(errs, fmt.Errorf("LOOKBACK must not be negative, got %d", c.Lookback))
	}
	if c.ExitRatio < 0 || c.ExitRatio > 1 {
		errs = append(errs, fmt.Errorf("EXIT_RATIO must be within [0, 1], got %v", c.ExitRatio))
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == 0) {
		errs = append(errs, errors.New("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// parser collects conversion errors so Load can report all of them at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// bare integers are seconds
		if n, nerr := strconv.Atoi(v); nerr == nil {
			return time.Duration(n) * time.Second
		}
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (p *parser) bool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}
