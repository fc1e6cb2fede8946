package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env string

	// Database
	DatabaseURL string

	// Redis (only needed for NOTIFY_DEDUP=redis)
	RedisURL string

	// Ledger rules
	CreditDueDays        int
	ReminderDaysBefore   int
	ReminderDaysAfter    int
	BadDebtThresholdDays int

	// Notifications
	NotifyDedup  string // off, log, redis
	MailDriver   string // log, smtp, sendgrid
	MailFrom     string
	MailFromName string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SendGridKey  string

	// Backup
	BackupDriver string // local, s3
	BackupDir    string
	S3Endpoint   string
	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string

	// Metrics
	PushgatewayURL string
	MetricsAddr    string
	ReminderEvery  time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

func Load() *Config {
	// Load .env file in development
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println("Failed to read .env file, using environment variables")
	}

	return &Config{
		Env: getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", "creditbook.db"),
		RedisURL:    getEnv("REDIS_URL", ""),

		CreditDueDays:        parseDays("CREDIT_DUE_DAYS", 30, 1),
		ReminderDaysBefore:   parseDays("REMINDER_DAYS_BEFORE", 7, 0),
		ReminderDaysAfter:    parseDays("REMINDER_DAYS_AFTER", 7, 1), // 0 would collide with the due-today stage
		BadDebtThresholdDays: parseDays("BAD_DEBT_THRESHOLD_DAYS", 60, 0),

		NotifyDedup:  strings.ToLower(getEnv("NOTIFY_DEDUP", "off")),
		MailDriver:   strings.ToLower(getEnv("MAIL_DRIVER", "log")),
		MailFrom:     getEnv("MAIL_FROM", "noreply@khatabook.local"),
		MailFromName: getEnv("MAIL_FROM_NAME", "Khatabook"),
		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     parseInt(getEnv("SMTP_PORT", "587"), 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SendGridKey:  getEnv("SENDGRID_API_KEY", ""),

		BackupDriver: strings.ToLower(getEnv("BACKUP_DRIVER", "local")),
		BackupDir:    getEnv("BACKUP_DIR", "backups"),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3Region:     getEnv("S3_REGION", "us-east-1"),
		S3Bucket:     getEnv("S3_BUCKET", "creditbook-backups"),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),

		PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		ReminderEvery:  parseDuration(getEnv("REMINDER_EVERY", "24h")),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// parseDays reads a day count and falls back to defaultValue when it is unparsable or below min.
func parseDays(key string, defaultValue, min int) int {
	raw := getEnv(key, strconv.Itoa(defaultValue))
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < min {
		if raw != "" {
			log.Printf("Invalid %s=%q (want an integer >= %d), using %d", key, raw, min, defaultValue)
		}
		return defaultValue
	}
	return value
}

func parseInt(s string, defaultValue int) int {
	value, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return value
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

// IsPostgres reports whether DatabaseURL points at PostgreSQL rather than a SQLite file.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}
