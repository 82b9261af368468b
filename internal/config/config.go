// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all worker configuration parsed from environment variables.
// The same struct backs every binary; per-binary defaults (retry caps, queue
// names) are resolved through the helper methods below.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`
	RedisURL string `env:"REDIS_URL"`
	// PGDSN wins over DatabaseURL when both are set.
	PGDSN       string `env:"PG_DSN"`
	DatabaseURL string `env:"DATABASE_URL"`

	InputQueue      string `env:"INPUT_QUEUE" envDefault:"ingest:out"`
	SummarizerQueue string `env:"SUMMARIZER_QUEUE" envDefault:"summarizer:in"`
	OutputQueue     string `env:"OUTPUT_QUEUE" envDefault:"summarizer:out"`
	RetryQueue      string `env:"RETRY_QUEUE"`
	DLQ             string `env:"DLQ"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`
	// MaxRetries of 0 means "use the per-binary default" (2 scraper,
	// 3 summarizer, 5 dispatcher).
	MaxRetries int `env:"MAX_RETRIES"`

	FetchTimeoutMS    int    `env:"FETCH_TIMEOUT_MS" envDefault:"15000"`
	HeadlessEnabled   bool   `env:"HEADLESS_ENABLED" envDefault:"true"`
	HeadlessTimeoutMS int    `env:"HEADLESS_TIMEOUT_MS" envDefault:"20000"`
	UserAgent         string `env:"USER_AGENT"`
	HTTPProxy         string `env:"HTTP_PROXY_URL"`

	AllowedLangs           []string `env:"ALLOWED_LANGS" envSeparator:","`
	PostScrapeDelaySeconds int      `env:"POST_SCRAPE_DELAY_SECONDS" envDefault:"10"`

	LLMModel       string        `env:"LLM_MODEL" envDefault:"gpt-4.1-mini"`
	LLMAPIKey      string        `env:"LLM_API_KEY"`
	LLMAPIBase     string        `env:"LLM_API_BASE" envDefault:"https://api.openai.com/v1"`
	LLMTemperature float64       `env:"LLM_TEMPERATURE" envDefault:"0.2"`
	LLMMaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"800"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"20s"`

	JSONSchemaVersion int  `env:"JSON_SCHEMA_VERSION" envDefault:"1"`
	Force             bool `env:"FORCE"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"debug"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	IdleHeartbeatSec int `env:"IDLE_HEARTBEAT_SEC" envDefault:"60"`
}

// Load parses environment variables into a Config and validates the values
// every worker requires to start.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("op=config.Load: REDIS_URL is required (e.g., redis://localhost:6379/0)")
	}
	if cfg.DSN() == "" {
		return Config{}, fmt.Errorf("op=config.Load: PG_DSN or DATABASE_URL is required")
	}
	return cfg, nil
}

// DSN returns the Postgres connection string.
func (c Config) DSN() string {
	if c.PGDSN != "" {
		return c.PGDSN
	}
	return c.DatabaseURL
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// FetchTimeout is the direct HTTP timeout, floored at one second.
func (c Config) FetchTimeout() time.Duration {
	d := time.Duration(c.FetchTimeoutMS) * time.Millisecond
	if d < time.Second {
		return time.Second
	}
	return d
}

// HeadlessTimeout is the per-page headless budget.
func (c Config) HeadlessTimeout() time.Duration {
	return time.Duration(c.HeadlessTimeoutMS) * time.Millisecond
}

// ScraperRetryQueue resolves the scraper retry route.
func (c Config) ScraperRetryQueue() string { return orDefault(c.RetryQueue, "scraper:retry") }

// ScraperDLQ resolves the scraper dead-letter route.
func (c Config) ScraperDLQ() string { return orDefault(c.DLQ, "scraper:dlq") }

// SummarizerRetryQueue resolves the summarizer retry route.
func (c Config) SummarizerRetryQueue() string { return orDefault(c.RetryQueue, "summarizer:retry") }

// SummarizerDLQ resolves the summarizer dead-letter route.
func (c Config) SummarizerDLQ() string { return orDefault(c.DLQ, "summarizer:dlq") }

// ScraperMaxRetries is the scraper attempt cap before DLQ.
func (c Config) ScraperMaxRetries() int { return orDefaultInt(c.MaxRetries, 2) }

// SummarizerMaxRetries is the summarizer attempt cap before DLQ.
func (c Config) SummarizerMaxRetries() int { return orDefaultInt(c.MaxRetries, 3) }

// DispatcherMaxRetries is the dispatcher attempt cap before DLQ routing.
func (c Config) DispatcherMaxRetries() int { return orDefaultInt(c.MaxRetries, 5) }

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
