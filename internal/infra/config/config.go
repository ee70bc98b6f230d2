package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken       string        `validate:"required"`
	TelegramPollTimeout time.Duration `validate:"gt=0"`
	DatabaseDriver      string        `validate:"oneof=postgres sqlite3"`
	DatabaseURL         string        `validate:"required"`
	AdminTelegramID     int64         `validate:"gt=0"`
	LogLevel            string
	Environment         string
	DefaultTimezone     string        `validate:"required,timezone"`
	MisfireGrace        time.Duration `validate:"gte=0"`
	HistoryWindow       int           `validate:"min=2,max=12"`
	CronSpecMaintenance string        `validate:"required"`
	LogRetentionDays    int           `validate:"min=1"`
	SendMaxRetries      int           `validate:"min=0,max=10"`
	MetricsAddr         string        // Empty disables the ops HTTP server
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.DatabaseDriver = strings.ToLower(getEnv("DATABASE_DRIVER", "postgres"))

	adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
	if adminIDStr == "" {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}
	cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))
	cfg.DefaultTimezone = getEnv("DEFAULT_TIMEZONE", "Europe/Moscow")
	cfg.CronSpecMaintenance = getEnv("CRON_SPEC_MAINTENANCE", "15 3 * * *") // Default: 03:15 daily
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")
	if v, ok := os.LookupEnv("METRICS_ADDR"); ok && v == "" {
		cfg.MetricsAddr = ""
	}

	if cfg.TelegramPollTimeout, err = getDuration("TELEGRAM_POLL_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.MisfireGrace, err = getDuration("MISFIRE_GRACE", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HistoryWindow, err = getInt("HISTORY_WINDOW", 3); err != nil {
		return nil, err
	}
	if cfg.LogRetentionDays, err = getInt("LOG_RETENTION_DAYS", 365); err != nil {
		return nil, err
	}
	if cfg.SendMaxRetries, err = getInt("SEND_MAX_RETRIES", 3); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
