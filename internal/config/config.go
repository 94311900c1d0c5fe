// Package config loads fintrack settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
)

const minSecretLen = 16

type Config struct {
	// HTTP Server
	Port            string
	RateLimitPerMin int
	CacheTTL        time.Duration
	CacheSize       int
	TrustedProxies  []string

	// Logging
	LogLevel  string
	LogFormat string

	// Local storage
	StorageBackend string
	SQLiteDBPath   string

	// Remote store and auth
	RemoteBackend string
	DatabaseURL   string
	JWTSecret     string
	TokenTTL      time.Duration
	LinkTTL       time.Duration
	LinkBaseURL   string

	// Mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets ledger mirror
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Worker
	SyncInterval time.Duration

	// Ledger
	Accounts          []string
	CreditCardAccount string
	BudgetEssentials  []string
	BudgetSavings     []string
}

// LoadEnvFile loads .env when present. Errors are ignored since the file is
// optional outside local development.
func LoadEnvFile(paths ...string) {
	_ = godotenv.Load(paths...)
}

func Load() *Config {
	buckets := ledger.DefaultBuckets()
	return &Config{
		Port:            getEnv("PORT", "8081"),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CacheTTL:        getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheSize:       getEnvInt("CACHE_SIZE", 256),
		TrustedProxies:  getEnvList("TRUSTED_PROXIES", nil),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		StorageBackend: getEnv("STORAGE_BACKEND", "sqlite"),
		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),

		RemoteBackend: getEnv("REMOTE_BACKEND", "none"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		TokenTTL:      getEnvDuration("TOKEN_TTL", 24*time.Hour),
		LinkTTL:       getEnvDuration("MAGIC_LINK_TTL", 15*time.Minute),
		LinkBaseURL:   getEnv("MAGIC_LINK_BASE_URL", "http://localhost:8081/api/auth/magic-link/redeem"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "fintrack <no-reply@localhost>"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_mirror"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Ledger"),

		SyncInterval: getEnvDuration("SYNC_INTERVAL", 10*time.Minute),

		Accounts:          getEnvList("ACCOUNTS", core.DefaultAccountNames),
		CreditCardAccount: getEnv("CREDIT_CARD_ACCOUNT", core.DefaultCreditCardAccount),
		BudgetEssentials:  getEnvList("BUDGET_ESSENTIALS", buckets.Essentials),
		BudgetSavings:     getEnvList("BUDGET_SAVINGS", buckets.Savings),
	}
}

// AccountSet builds the configured account set.
func (c *Config) AccountSet() core.Accounts {
	return core.NewAccounts(c.Accounts, c.CreditCardAccount)
}

func (c *Config) Buckets() ledger.Buckets {
	return ledger.Buckets{Essentials: c.BudgetEssentials, Savings: c.BudgetSavings}
}

// LoggerConfig maps the logging settings onto the logger.
func (c *Config) LoggerConfig(component string) log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(c.LogLevel)
	cfg.Format = c.LogFormat
	cfg.Component = component
	return cfg
}

// AuthEnabled reports whether a remote store is configured.
func (c *Config) AuthEnabled() bool {
	return c.RemoteBackend != "none"
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.RateLimitPerMin < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMin))
	}
	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	switch c.StorageBackend {
	case "memory":
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite storage")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid storage backend '%s': must be one of [sqlite memory]", c.StorageBackend))
	}

	switch c.RemoteBackend {
	case "none":
	case "memory", "postgres":
		if c.RemoteBackend == "postgres" {
			if c.DatabaseURL == "" {
				errors = append(errors, "DATABASE_URL is required when using the postgres remote backend")
			} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
				errors = append(errors, "invalid DATABASE_URL: scheme must be 'postgres' or 'postgresql'")
			}
		}
		if len(c.JWTSecret) < minSecretLen {
			errors = append(errors, fmt.Sprintf("JWT_SECRET must be at least %d characters when a remote backend is enabled", minSecretLen))
		}
		if c.TokenTTL < time.Minute {
			errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.TokenTTL))
		}
		if c.LinkTTL < time.Minute || c.LinkTTL > 24*time.Hour {
			errors = append(errors, fmt.Sprintf("invalid magic link TTL %v: must be between 1 minute and 24 hours", c.LinkTTL))
		}
		if u, err := url.Parse(c.LinkBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid magic link base URL '%s'", c.LinkBaseURL))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of [none memory postgres]", c.RemoteBackend))
	}

	if c.SMTPHost != "" {
		if c.SMTPPort < 1 || c.SMTPPort > 65535 {
			errors = append(errors, fmt.Sprintf("invalid SMTP port %d", c.SMTPPort))
		}
		if _, err := mail.ParseAddress(c.SMTPFrom); err != nil {
			errors = append(errors, fmt.Sprintf("invalid SMTP_FROM '%s': %v", c.SMTPFrom, err))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && strings.TrimSpace(c.GoogleSheetName) == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet ID is provided")
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(c.Accounts) == 0 {
		errors = append(errors, "at least one account is required")
	} else if c.CreditCardAccount != "" && !contains(c.Accounts, c.CreditCardAccount) {
		errors = append(errors, fmt.Sprintf("credit card account '%s' is not in ACCOUNTS %v", c.CreditCardAccount, c.Accounts))
	}
	for _, name := range c.BudgetEssentials {
		if contains(c.BudgetSavings, name) {
			errors = append(errors, fmt.Sprintf("category '%s' cannot be both essential and savings", name))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
