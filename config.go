package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL string

	KafkaBrokers      []string
	NotificationTopic string
	NotificationDLQ   string
	NotificationGroup string

	MaxConflictRetries int
	ConflictBackoff    time.Duration
	NotifyMaxAttempts  int
	NotifyBaseBackoff  time.Duration
	CacheTTL           time.Duration
	IdempotencyTTL     time.Duration

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
}

func LoadConfig() (*Config, error) {
	// missing .env is fine; containers supply the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("APP_ENV", "development"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		KafkaBrokers:      strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		NotificationTopic: getEnv("NOTIFICATION_TOPIC", "order.confirmed"),
		NotificationDLQ:   getEnv("NOTIFICATION_DLQ_TOPIC", "order.confirmed.dlq"),
		NotificationGroup: getEnv("NOTIFICATION_GROUP_ID", "checkout-notifications"),

		MaxConflictRetries: getEnvInt("MAX_CONFLICT_RETRIES", 3),
		ConflictBackoff:    time.Duration(getEnvInt("CONFLICT_BACKOFF_MS", 25)) * time.Millisecond,
		NotifyMaxAttempts:  getEnvInt("NOTIFY_MAX_ATTEMPTS", 5),
		NotifyBaseBackoff:  time.Duration(getEnvInt("NOTIFY_BASE_BACKOFF_MS", 1000)) * time.Millisecond,
		CacheTTL:           time.Duration(getEnvInt("CACHE_TTL_SECONDS", 600)) * time.Second,
		IdempotencyTTL:     time.Duration(getEnvInt("IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour,

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: os.Getenv("SMTP_PORT"),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
	}

	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" {
		return nil, fmt.Errorf("database config incomplete")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
