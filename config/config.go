// Package config loads the service configuration from environment
// variables, with an optional .env file for development.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// HTTP
	ListenAddr string

	// Storage
	DataDir    string
	ModelDir   string
	SQLitePath string // trade history journal; empty disables it

	// Symbols pre-created at startup (comma-separated)
	Symbols string

	// Market session calendar
	MarketTimezone string
	CloseDay       string // weekday name, e.g. "Friday"
	CloseTime      string // "21:00"
	OpenDay        string // e.g. "Monday"
	OpenTime       string // "17:00"

	// Buffer policy
	LiveCapacity    int
	ClosedDivisor   int
	Slack           int
	DupStreakOpen   int
	DupStreakClosed int

	// Intervals
	BackupInterval      time.Duration
	MaintenanceInterval time.Duration
	ErrorCooldown       time.Duration

	// Optional integrations
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SlackWebhook  string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env file")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":5000"),

		DataDir:    getEnv("DATA_DIR", "data"),
		ModelDir:   getEnv("MODEL_DIR", "models"),
		SQLitePath: getEnv("SQLITE_PATH", "data/trades.db"),

		Symbols: getEnv("SYMBOLS", "EURUSD"),

		MarketTimezone: getEnv("MARKET_TZ", "UTC"),
		CloseDay:       getEnv("MARKET_CLOSE_DAY", "Friday"),
		CloseTime:      getEnv("MARKET_CLOSE_TIME", "21:00"),
		OpenDay:        getEnv("MARKET_OPEN_DAY", "Monday"),
		OpenTime:       getEnv("MARKET_OPEN_TIME", "17:00"),

		LiveCapacity:    getEnvInt("BUFFER_CAPACITY", 1000),
		ClosedDivisor:   getEnvInt("BUFFER_CLOSED_DIVISOR", 10),
		Slack:           getEnvInt("BUFFER_SLACK", 50),
		DupStreakOpen:   getEnvInt("DUP_STREAK_OPEN", 3),
		DupStreakClosed: getEnvInt("DUP_STREAK_CLOSED", 10),

		BackupInterval:      getEnvDuration("BACKUP_INTERVAL", 300*time.Second),
		MaintenanceInterval: getEnvDuration("MAINTENANCE_INTERVAL", 300*time.Second),
		ErrorCooldown:       getEnvDuration("ERROR_COOLDOWN", 60*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SlackWebhook:  getEnv("SLACK_WEBHOOK_URL", ""),
	}
}

// ParseSymbols splits the Symbols value into a clean list.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseWeekday maps a weekday name to time.Weekday, falling back when the
// value is unrecognized.
func ParseWeekday(name string, fallback time.Weekday) time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d
		}
	}
	log.Printf("[config] unrecognized weekday %q, using %s", name, fallback)
	return fallback
}

// ParseClock parses "HH:MM" into hour and minute components.
func ParseClock(v string, fallbackHour, fallbackMinute int) (int, int) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) == 2 {
		h, herr := strconv.Atoi(parts[0])
		m, merr := strconv.Atoi(parts[1])
		if herr == nil && merr == nil && h >= 0 && h < 24 && m >= 0 && m < 60 {
			return h, m
		}
	}
	log.Printf("[config] unrecognized clock value %q, using %02d:%02d", v, fallbackHour, fallbackMinute)
	return fallbackHour, fallbackMinute
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept bare seconds for compatibility with the old deployment env.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
