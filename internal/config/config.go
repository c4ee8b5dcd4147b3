package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Development bool
	// InstanceID identifies this process in app_locks
	InstanceID string
	// API configuration
	APIPort   int
	JWTSecret string
	// Relational store (Postgres via gorm)
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	// Time-series store (Postgres/Timescale via pgx)
	TimeseriesURL      string
	TimeseriesMaxConns int

	// Ledger configuration
	LedgerRPCURL       string
	LedgerNetwork      string
	LedgerTimeout      time.Duration
	LedgerPollInterval time.Duration
	// LedgerMaxLedgerOffset bounds LastLedgerSequence of submitted transfers
	LedgerMaxLedgerOffset uint32

	// Price feed configuration
	PriceFeedURL          string
	PriceFeedAPIKey       string
	PriceFeedAPIKeyHeader string
	RateTimeout           time.Duration
	RateCacheTTL          time.Duration
	RateSampleInterval    time.Duration

	// Secret encryption key for custodial wallets
	EncryptionKey string

	// Optional infrastructure
	RedisURL string
	NatsURL  string

	ReconcileInterval time.Duration

	// SMTP configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string

	// Notification configuration
	TelegramBotToken    string
	TelegramAdminChatID string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	hostname, _ := os.Hostname()

	cfg := &Config{
		Development:           getEnvAsBool("DEVELOPMENT", false),
		InstanceID:            getEnv("INSTANCE_ID", hostname),
		APIPort:               getEnvAsInt("API_PORT", 6540),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		PostgresUser:          getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:      getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:          getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:          getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:            getEnv("POSTGRES_DB", "salarium"),
		TimeseriesURL:         getEnv("TIMESERIES_URL", ""),
		TimeseriesMaxConns:    getEnvAsInt("TIMESERIES_MAX_CONNS", 10),
		LedgerRPCURL:          getEnv("LEDGER_RPC_URL", "http://localhost:5005"),
		LedgerNetwork:         getEnv("LEDGER_NETWORK", "testnet"),
		LedgerTimeout:         getEnvAsDuration("LEDGER_TIMEOUT", 60*time.Second),
		LedgerPollInterval:    getEnvAsDuration("LEDGER_POLL_INTERVAL", time.Second),
		LedgerMaxLedgerOffset: uint32(getEnvAsInt("LEDGER_MAX_LEDGER_OFFSET", 20)),
		PriceFeedURL:          getEnv("PRICE_FEED_URL", "https://api.coingecko.com/api/v3"),
		PriceFeedAPIKey:       getEnv("PRICE_FEED_API_KEY", ""),
		PriceFeedAPIKeyHeader: getEnv("PRICE_FEED_API_KEY_HEADER", "x-cg-demo-api-key"),
		RateTimeout:           getEnvAsDuration("RATE_TIMEOUT", 5*time.Second),
		RateCacheTTL:          getEnvAsDuration("RATE_CACHE_TTL", 30*time.Second),
		RateSampleInterval:    getEnvAsDuration("RATE_SAMPLE_INTERVAL", 15*time.Minute),
		EncryptionKey:         getEnv("ENCRYPTION_KEY", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		NatsURL:               getEnv("NATS_URL", ""),
		ReconcileInterval:     getEnvAsDuration("RECONCILE_INTERVAL", 5*time.Minute),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:              getEnv("SMTP_USER", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SMTPSender:            getEnv("SMTP_SENDER", ""),
		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAdminChatID:   getEnv("TELEGRAM_ADMIN_CHAT_ID", ""),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.TimeseriesURL == "" {
		return fmt.Errorf("TIMESERIES_URL is required")
	}

	if c.LedgerRPCURL == "" {
		return fmt.Errorf("LEDGER_RPC_URL is required")
	}

	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	if c.LedgerTimeout <= 0 || c.RateTimeout <= 0 {
		return fmt.Errorf("LEDGER_TIMEOUT and RATE_TIMEOUT must be positive")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
