package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Gateway   GatewayConfig
	Email     EmailConfig
	Messaging MessagingConfig
	Dunning   DunningConfig
	Jobs      JobsConfig
}

// GatewayConfig carries payment gateway credentials.
type GatewayConfig struct {
	BaseURL   string
	ServerKey string
	Timeout   time.Duration
}

// EmailConfig carries SMTP transport settings.
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// MessagingConfig carries the secondary-channel webhook settings.
type MessagingConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// DunningConfig controls the reminder scheduler.
type DunningConfig struct {
	Enabled     bool
	RunInterval time.Duration
}

// JobsConfig controls the in-process job runtime.
type JobsConfig struct {
	Workers   int
	QueueSize int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "payline"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payline"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		Gateway: GatewayConfig{
			BaseURL:   getenv("GATEWAY_BASE_URL", "https://api.sandbox.midtrans.com"),
			ServerKey: strings.TrimSpace(getenv("GATEWAY_SERVER_KEY", "")),
			Timeout:   getenvDuration("GATEWAY_TIMEOUT", 12*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "billing@payline.local"),
		},
		Messaging: MessagingConfig{
			WebhookURL: strings.TrimSpace(getenv("MESSAGING_WEBHOOK_URL", "")),
			Timeout:    getenvDuration("MESSAGING_TIMEOUT", 5*time.Second),
		},
		Dunning: DunningConfig{
			Enabled:     getenvBool("DUNNING_ENABLED", true),
			RunInterval: getenvDuration("DUNNING_RUN_INTERVAL", 24*time.Hour),
		},
		Jobs: JobsConfig{
			Workers:   getenvInt("JOBS_WORKERS", 4),
			QueueSize: getenvInt("JOBS_QUEUE_SIZE", 256),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
