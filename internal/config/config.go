package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Backends accepted by DATA_BACKEND.
var validBackends = []string{"memory", "sqlite"}

type Config struct {
	// HTTP Server
	Port string `yaml:"port"`

	LogLevel string `yaml:"log_level"`

	// Backend selection
	DataBackend string `yaml:"data_backend"`
	DataDir     string `yaml:"data_dir"`

	// Database
	SQLiteDBPath string `yaml:"sqlite_db_path"`

	// AMQP
	AMQPURL           string `yaml:"amqp_url"`
	AMQPExchange      string `yaml:"amqp_exchange"`
	AMQPQueue         string `yaml:"amqp_queue"`
	AMQPReminderQueue string `yaml:"amqp_reminder_queue"`

	Google Google `yaml:"google"`

	// Sync worker
	SyncBatchSize int           `yaml:"sync_batch_size"`
	SyncInterval  time.Duration `yaml:"sync_interval"`

	// Reminder worker
	ReminderCron          string `yaml:"reminder_cron"`
	ReminderLookaheadDays int    `yaml:"reminder_lookahead_days"`

	// Calendar month cache
	CalendarCacheSize int           `yaml:"calendar_cache_size"`
	CalendarCacheTTL  time.Duration `yaml:"calendar_cache_ttl"`

	// POST requests per minute per client
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	// Extra CIDRs allowed to set X-Forwarded-For, beyond private ranges
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Google holds the spreadsheet the sync worker writes to.
type Google struct {
	SpreadsheetID      string `yaml:"spreadsheet_id"`
	SheetName          string `yaml:"sheet_name"`
	ServiceAccountJSON string `yaml:"service_account_json"`
	ServiceAccountFile string `yaml:"service_account_file"`
	OAuthClientJSON    string `yaml:"oauth_client_json"`
	OAuthClientFile    string `yaml:"oauth_client_file"`
	OAuthTokenFile     string `yaml:"oauth_token_file"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:                  "8081",
		LogLevel:              "info",
		DataBackend:           "memory",
		DataDir:               "data",
		SQLiteDBPath:          "./data/expensecal.db",
		AMQPExchange:          "expensecal",
		AMQPQueue:             "sync_transactions",
		AMQPReminderQueue:     "occurrence_reminders",
		Google:                Google{SheetName: "Transactions"},
		SyncBatchSize:         10,
		SyncInterval:          30 * time.Second,
		ReminderCron:          "0 8 * * *",
		ReminderLookaheadDays: 3,
		CalendarCacheSize:     24,
		CalendarCacheTTL:      10 * time.Minute,
		RateLimitPerMinute:    60,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE if any, and finally the environment.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DataBackend = getEnv("DATA_BACKEND", c.DataBackend)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)
	c.AMQPReminderQueue = getEnv("AMQP_REMINDER_QUEUE", c.AMQPReminderQueue)

	g := &c.Google
	g.SpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", g.SpreadsheetID)
	g.SheetName = getEnv("GOOGLE_SHEET_NAME", g.SheetName)
	g.ServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", g.ServiceAccountJSON)
	g.ServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", g.ServiceAccountFile))
	g.OAuthClientJSON = getEnv("GOOGLE_OAUTH_CLIENT_JSON", g.OAuthClientJSON)
	g.OAuthClientFile = getEnv("GOOGLE_OAUTH_CLIENT_FILE", g.OAuthClientFile)
	g.OAuthTokenFile = getEnv("GOOGLE_OAUTH_TOKEN_FILE", g.OAuthTokenFile)

	c.SyncBatchSize = getEnvInt("SYNC_BATCH_SIZE", c.SyncBatchSize)
	c.SyncInterval = getEnvDuration("SYNC_INTERVAL", c.SyncInterval)

	c.ReminderCron = getEnv("REMINDER_CRON", c.ReminderCron)
	c.ReminderLookaheadDays = getEnvInt("REMINDER_LOOKAHEAD_DAYS", c.ReminderLookaheadDays)

	c.CalendarCacheSize = getEnvInt("CALENDAR_CACHE_SIZE", c.CalendarCacheSize)
	c.CalendarCacheTTL = getEnvDuration("CALENDAR_CACHE_TTL", c.CalendarCacheTTL)

	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	c.TrustedProxies = getEnvList("TRUSTED_PROXIES", c.TrustedProxies)
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// HasGoogle reports whether a spreadsheet is configured.
func (c *Config) HasGoogle() bool {
	return c.Google.SpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
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
		if c.AMQPReminderQueue == "" {
			errors = append(errors, "AMQP reminder queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.HasGoogle() {
		g := c.Google
		if g.ServiceAccountJSON == "" && g.ServiceAccountFile == "" && g.OAuthClientJSON == "" && g.OAuthClientFile == "" {
			errors = append(errors, "Google credentials are required when GOOGLE_SPREADSHEET_ID is set")
		}
		for _, f := range []string{g.ServiceAccountFile, g.OAuthClientFile} {
			if f == "" {
				continue
			}
			if _, err := os.Stat(f); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", f))
			}
		}
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if _, err := cron.ParseStandard(c.ReminderCron); err != nil {
		errors = append(errors, fmt.Sprintf("invalid reminder cron '%s': %v", c.ReminderCron, err))
	}
	if c.ReminderLookaheadDays < 0 || c.ReminderLookaheadDays > 60 {
		errors = append(errors, fmt.Sprintf("invalid reminder lookahead %d: must be between 0 and 60 days", c.ReminderLookaheadDays))
	}

	if c.CalendarCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid calendar cache size %d: must be at least 1", c.CalendarCacheSize))
	}
	if c.CalendarCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid calendar cache TTL %v: must be positive", c.CalendarCacheTTL))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
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

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
