package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuzdan/internal/core"
)

type Config struct {
	// HTTP Server
	Port            string
	ShutdownTimeout time.Duration

	// Backend selection
	DataBackend string

	// Storage
	SQLiteDBPath   string
	LocalStorePath string
	MemorySeedFile string

	// AMQP (optional; reminders are only logged without it)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Calendar
	HighlightPastMonths   int
	HighlightFutureMonths int
	HighlightIncludeCards bool
	RecomputeDebounce     time.Duration
	HighlightCacheTTL     time.Duration
	HighlightCacheSize    int

	// Reminder worker
	ReminderInterval time.Duration

	// Rate limiting of write requests
	RateLimitRPM   int
	RateLimitBurst int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8081"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DataBackend: getEnv("DATA_BACKEND", "memory"),

		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/cuzdan.db"),
		LocalStorePath: getEnv("LOCAL_STORE_PATH", "./data/local.json"),
		MemorySeedFile: getEnv("MEMORY_SEED_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cuzdan"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "reminders"),

		HighlightPastMonths:   getEnvInt("HIGHLIGHT_PAST_MONTHS", 3),
		HighlightFutureMonths: getEnvInt("HIGHLIGHT_FUTURE_MONTHS", 3),
		HighlightIncludeCards: getEnvBool("HIGHLIGHT_INCLUDE_CARDS", true),
		RecomputeDebounce:     getEnvDuration("RECOMPUTE_DEBOUNCE", 100*time.Millisecond),
		HighlightCacheTTL:     getEnvDuration("HIGHLIGHT_CACHE_TTL", 5*time.Minute),
		HighlightCacheSize:    getEnvInt("HIGHLIGHT_CACHE_SIZE", 256),

		ReminderInterval: getEnvDuration("REMINDER_INTERVAL", time.Hour),

		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 60),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Backends lists the accepted DATA_BACKEND values.
var Backends = []string{"memory", "sqlite", "local"}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	isValidBackend := false
	for _, backend := range Backends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if msg := ensureDir(c.SQLiteDBPath, "SQLite database"); msg != "" {
			errors = append(errors, msg)
		}
	case "local":
		if c.LocalStorePath == "" {
			errors = append(errors, "local store path cannot be empty when using local backend")
		} else if msg := ensureDir(c.LocalStorePath, "local store"); msg != "" {
			errors = append(errors, msg)
		}
	case "memory":
		if c.MemorySeedFile != "" {
			if _, err := os.Stat(c.MemorySeedFile); err != nil {
				errors = append(errors, fmt.Sprintf("memory seed file '%s' is not readable: %v", c.MemorySeedFile, err))
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
	}

	if c.HighlightPastMonths < 0 || c.HighlightPastMonths > core.MaxWindowMonths {
		errors = append(errors, fmt.Sprintf("invalid highlight past months %d: must be between 0 and %d", c.HighlightPastMonths, core.MaxWindowMonths))
	}
	if c.HighlightFutureMonths < 0 || c.HighlightFutureMonths > core.MaxWindowMonths {
		errors = append(errors, fmt.Sprintf("invalid highlight future months %d: must be between 0 and %d", c.HighlightFutureMonths, core.MaxWindowMonths))
	}
	if c.RecomputeDebounce < 0 || c.RecomputeDebounce > 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid recompute debounce %v: must be between 0 and 10 seconds", c.RecomputeDebounce))
	}
	if c.HighlightCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid highlight cache ttl %v: must not be negative", c.HighlightCacheTTL))
	}
	if c.HighlightCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid highlight cache size %d: must be at least 1", c.HighlightCacheSize))
	}

	if c.ReminderInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid reminder interval %v: must be at least 1 minute", c.ReminderInterval))
	} else if c.ReminderInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reminder interval %v: must be at most 24 hours", c.ReminderInterval))
	}

	if c.RateLimitRPM < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ensureDir creates the parent directory of path when missing and returns a
// problem description, or "".
func ensureDir(path, what string) string {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Sprintf("cannot create %s directory '%s': %v", what, dir, err)
		}
	}
	return ""
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
