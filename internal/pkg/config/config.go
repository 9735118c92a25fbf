package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	APIKey         string `env:"API_KEY"`                                    // optional, protects analytics/admin routes
	MaxPayloadSize int64  `env:"MAX_PAYLOAD_SIZE_BYTES" envDefault:"1048576"` // 1MB

	// Durable log store. Driver is "sqlite" or "postgres".
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"data/email_opens.db"`
	PostgresURL    string `env:"POSTGRES_URL"`

	// Recency index. When RedisAddr is set the dedup window survives
	// restarts; otherwise an in-memory index is used.
	RedisAddr      string        `env:"REDIS_ADDR"`
	CacheRetention time.Duration `env:"CACHE_RETENTION" envDefault:"24h"`

	// CRM (Close-style) API.
	CloseAPIKey        string        `env:"CLOSE_API_KEY"`
	CloseAPIURL        string        `env:"CLOSE_API_URL" envDefault:"https://api.close.com/api/v1"`
	CloseWebhookSecret string        `env:"CLOSE_WEBHOOK_SECRET"`
	CRMTimeout         time.Duration `env:"CRM_TIMEOUT" envDefault:"30s"`

	// Outbound notifications.
	DiscordWebhookURL string        `env:"DISCORD_WEBHOOK_URL"`
	DiscordConfigFile string        `env:"DISCORD_CONFIG_FILE" envDefault:"discord_config.json"`
	NotifyTimeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	NotifyRatePerMin  int           `env:"NOTIFY_RATE_PER_MINUTE" envDefault:"30"`

	// Polling fallback.
	PollingEnabled bool          `env:"POLLING_ENABLED" envDefault:"true"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`
	PollLookback   time.Duration `env:"POLL_LOOKBACK" envDefault:"10m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
