// Package config loads the service configuration from the environment.
//
// ONE EXPLICIT STRUCT:
// Everything the process needs (ports, keys, durations) is read exactly once
// in main and handed down by parameter. Business code never calls os.Getenv,
// so tests can build a Config literal and nothing leaks between them.
//
// A .env file in the working directory is loaded first if present
// (github.com/joho/godotenv). Real environment variables win over it.
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
	"github.com/sakif/outfit-calendar/internal/daykey"
)

// Supported backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	// Server
	Port           int
	RequestTimeout time.Duration

	// Storage
	DBDriver    string
	DBPath      string
	DatabaseURL string

	// Business day
	Timezone string

	// Auth
	JWTSecret string

	// Providers
	GeminiAPIKey     string
	GeminiTextModel  string
	GeminiImageModel string
	ImageProvider    string
	OpenAIAPIKey     string
	OpenAIImageModel string
	OpenAIImageSize  string

	// Outfit text
	LockDuration       time.Duration
	TextRetryAttempts  int
	TextRetryBaseDelay time.Duration

	// Outfit image
	ImageWaitTimeout time.Duration
	ImageStaleAfter  time.Duration
	ImagePixelate    bool
	ImagePixelSize   int

	// Photo analysis
	DailyAnalysisLimit int

	// Logging
	LogLevel  slog.Level
	LogFormat string
}

// Load reads .env (if any) and the environment, then validates the result.
func Load() (*Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	p := parser{}
	cfg := &Config{
		Port:           p.getInt("PORT", 8080),
		RequestTimeout: p.getDuration("REQUEST_TIMEOUT", 60*time.Second),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:      getEnv("DB_PATH", "data/outfit-calendar.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		Timezone: getEnv("TIMEZONE", daykey.DefaultTimezone),

		JWTSecret: getEnv("JWT_SECRET", ""),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiTextModel:  getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		ImageProvider:    strings.ToLower(getEnv("IMAGE_PROVIDER", ProviderGemini)),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIImageModel: getEnv("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		OpenAIImageSize:  getEnv("OPENAI_IMAGE_SIZE", "512x512"),

		LockDuration:       p.getDuration("LOCK_DURATION", 15*time.Minute),
		TextRetryAttempts:  p.getInt("TEXT_RETRY_ATTEMPTS", 3),
		TextRetryBaseDelay: p.getDuration("TEXT_RETRY_BASE_DELAY", time.Second),

		ImageWaitTimeout: p.getDuration("IMAGE_WAIT_TIMEOUT", 45*time.Second),
		ImageStaleAfter:  p.getDuration("IMAGE_STALE_AFTER", 2*time.Minute),
		ImagePixelate:    p.getBool("IMAGE_PIXELATE", false),
		ImagePixelSize:   p.getInt("IMAGE_PIXEL_SIZE", 8),

		DailyAnalysisLimit: p.getInt("DAILY_ANALYSIS_LIMIT", 5),

		LogLevel:  p.getLevel("LOG_LEVEL", slog.LevelInfo),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q (want sqlite or postgres)", c.DBDriver))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("unknown TIMEZONE %q", c.Timezone))
	}

	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	switch c.ImageProvider {
	case ProviderGemini:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when IMAGE_PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IMAGE_PROVIDER %q (want gemini or openai)", c.ImageProvider))
	}

	positive := map[string]time.Duration{
		"REQUEST_TIMEOUT":    c.RequestTimeout,
		"LOCK_DURATION":      c.LockDuration,
		"IMAGE_WAIT_TIMEOUT": c.ImageWaitTimeout,
		"IMAGE_STALE_AFTER":  c.ImageStaleAfter,
	}
	for key, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	// A claim younger than the request deadline may still have a live
	// provider call behind it; taking it over would call the provider twice.
	if c.ImageStaleAfter > 0 && c.ImageStaleAfter <= c.RequestTimeout {
		errs = append(errs, fmt.Errorf("IMAGE_STALE_AFTER (%s) must be longer than REQUEST_TIMEOUT (%s)",
			c.ImageStaleAfter, c.RequestTimeout))
	}
	if c.TextRetryBaseDelay < 0 {
		errs = append(errs, errors.New("TEXT_RETRY_BASE_DELAY must not be negative"))
	}
	if c.TextRetryAttempts < 1 {
		errs = append(errs, errors.New("TEXT_RETRY_ATTEMPTS must be at least 1"))
	}
	if c.ImagePixelate && c.ImagePixelSize < 2 {
		errs = append(errs, errors.New("IMAGE_PIXEL_SIZE must be at least 2"))
	}
	if c.DailyAnalysisLimit < 1 {
		errs = append(errs, errors.New("DAILY_ANALYSIS_LIMIT must be at least 1"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q (want text or json)", c.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parser collects every malformed value so the operator sees them all at once.
type parser struct {
	errs []error
}

func (p *parser) getInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) getBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

func (p *parser) getLevel(key string, def slog.Level) slog.Level {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a log level", key, v))
		return def
	}
	return l
}
