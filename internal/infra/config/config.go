package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	LogLevel    string
	Environment string
	HTTPAddr    string

	CronSpecActivationScan string
	CronSpecHousekeeping   string
	CronSpecLogRetention   string

	DeliveryLogRetention  time.Duration
	DispatchTimeout       time.Duration
	ScanConcurrency       int
	DispatchRatePerSecond float64 // 0 disables pacing

	WhatsAppAPIURL    string
	WhatsAppSecretKey string

	PushEnabled    bool
	PushGatewayURL string
	PushSecretKey  string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	TelegramToken       string
	TelegramGroupChatID int64
	AdminTelegramID     int64
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":9090")

	cfg.CronSpecActivationScan = getEnv("CRON_SPEC_ACTIVATION_SCAN", "*/2 * * * *") // every 2 minutes
	cfg.CronSpecHousekeeping = getEnv("CRON_SPEC_HOUSEKEEPING", "0 * * * *")         // hourly
	cfg.CronSpecLogRetention = getEnv("CRON_SPEC_LOG_RETENTION", "0 2 * * *")        // 02:00 daily

	retentionDays, err := getInt("DELIVERY_LOG_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("DELIVERY_LOG_RETENTION_DAYS must be positive, got %d", retentionDays)
	}
	cfg.DeliveryLogRetention = time.Duration(retentionDays) * 24 * time.Hour

	cfg.DispatchTimeout, err = time.ParseDuration(getEnv("DISPATCH_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_TIMEOUT: %w", err)
	}
	if cfg.DispatchTimeout <= 0 {
		return nil, fmt.Errorf("DISPATCH_TIMEOUT must be positive")
	}

	cfg.ScanConcurrency, err = getInt("SCAN_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	if cfg.ScanConcurrency < 1 {
		cfg.ScanConcurrency = 1
	}

	cfg.DispatchRatePerSecond, err = strconv.ParseFloat(getEnv("DISPATCH_RATE_PER_SECOND", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_RATE_PER_SECOND: %w", err)
	}

	cfg.WhatsAppAPIURL = os.Getenv("WHATSAPP_API_URL")
	cfg.WhatsAppSecretKey = os.Getenv("WHATSAPP_SECRET_KEY")
	if cfg.WhatsAppAPIURL != "" && cfg.WhatsAppSecretKey == "" {
		return nil, fmt.Errorf("WHATSAPP_SECRET_KEY is not set")
	}

	cfg.PushEnabled = os.Getenv("PUSH_NOTIFICATION_ENABLED") == "true"
	cfg.PushGatewayURL = os.Getenv("PUSH_GATEWAY_URL")
	cfg.PushSecretKey = os.Getenv("PUSH_SECRET_KEY")
	if cfg.PushEnabled && cfg.PushGatewayURL == "" {
		return nil, fmt.Errorf("PUSH_GATEWAY_URL is not set but PUSH_NOTIFICATION_ENABLED is true")
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort, err = getInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	if cfg.SMTPHost != "" && cfg.SMTPFrom == "" {
		return nil, fmt.Errorf("SMTP_FROM is not set")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramGroupChatID, err = getInt64("TELEGRAM_GROUP_CHAT_ID"); err != nil {
		return nil, err
	}
	if cfg.AdminTelegramID, err = getInt64("ADMIN_TELEGRAM_ID"); err != nil {
		return nil, err
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

// getInt64 returns 0 when the variable is unset.
func getInt64(key string) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
