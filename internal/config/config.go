package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Directory drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	ServerPort string
	OpsPort    string

	// OpenTelemetry settings
	OTLPEndpoint string
	ServiceName  string
	Environment  string
	OTelDisabled bool
	LogLevel     string

	// Telegram settings
	BotToken       string
	WebAppURL      string
	FallbackUserID int64

	// Task API client settings
	APIURL     string
	APITimeout time.Duration

	// Reminder settings
	ReminderInterval     time.Duration
	ReminderInitialDelay time.Duration
	ReminderFetchTimeout time.Duration
	ReminderTimezone     string
	ReminderDedup        bool

	// Channel directory settings
	DirectoryDriver string
	DatabaseURL     string
}

// Load returns configuration from environment variables with sensible defaults.
// Variables from a .env file in the working directory are loaded first; values
// already present in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return fromEnv()
}

// LoadFile is Load with an explicit dotenv file.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		OpsPort:      getEnv("OPS_PORT", "9090"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "taskdrop"),
		Environment:  getEnv("ENVIRONMENT", "development"),
		OTelDisabled: p.bool("OTEL_SDK_DISABLED", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		BotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		WebAppURL:      strings.TrimRight(getEnv("WEBAPP_URL", "http://localhost:5173"), "/"),
		FallbackUserID: p.int64("FALLBACK_USER_ID", 0),

		APIURL:     strings.TrimRight(getEnv("API_URL", "http://localhost:8080"), "/"),
		APITimeout: p.duration("API_TIMEOUT", 10*time.Second),

		ReminderInterval:     p.duration("REMINDER_INTERVAL", 60*time.Second),
		ReminderInitialDelay: p.duration("REMINDER_INITIAL_DELAY", 5*time.Second),
		ReminderFetchTimeout: p.duration("REMINDER_FETCH_TIMEOUT", 10*time.Second),
		ReminderTimezone:     os.Getenv("REMINDER_TIMEZONE"),
		ReminderDedup:        p.bool("REMINDER_DEDUP", true),

		DirectoryDriver: strings.ToLower(getEnv("DIRECTORY_DRIVER", DriverMemory)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DirectoryDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when DIRECTORY_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown DIRECTORY_DRIVER %q", c.DirectoryDriver)
	}
	if c.ReminderInterval <= 0 {
		return errors.New("REMINDER_INTERVAL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// RequireBot reports an error when settings needed by the Telegram bot are missing.
func (c *Config) RequireBot() error {
	if c.BotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

// Location returns the calendar location reminders are evaluated in.
// An empty REMINDER_TIMEZONE means the process's local time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.ReminderTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ReminderTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_TIMEZONE: %w", err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects every malformed variable so Load reports them together.
type parser struct {
	errs []error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) int64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}
