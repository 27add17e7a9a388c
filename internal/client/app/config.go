package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	UserCenterURL string // Required: base URL of the identity service
	AppID         string // Mini-program app id the login codes are minted for
	Origin        string // Our own origin for same-process message filtering

	DatabaseFile string // Path to the local sqlite file (default: ./linkauth.db)

	PollInterval     time.Duration // Handshake status poll cadence (default: 2s)
	FlagPollInterval time.Duration // Completion sentinel poll cadence (default: 1s)
	MaxPollDuration  time.Duration // Hard polling ceiling per attempt (default: 5m)
	MaxExpiryRetries int           // Consecutive silent regenerations before erroring (default: 3)
	MaxPollFailures  int           // Consecutive transport failures before failing (default: 5)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	return Config{
		UserCenterURL: getEnvOrDefault("LINKAUTH_USER_CENTER_URL", "http://localhost:8000"),
		AppID:         getEnvOrDefault("LINKAUTH_APP_ID", "wxe6d828ae0245ab9c"),
		Origin:        getEnvOrDefault("LINKAUTH_ORIGIN", "app://membuddy"),

		DatabaseFile: getEnvOrDefault("LINKAUTH_DATABASE_FILE", "linkauth.db"),

		PollInterval:     getEnvDurationOrDefault("LINKAUTH_POLL_INTERVAL", 2*time.Second),
		FlagPollInterval: getEnvDurationOrDefault("LINKAUTH_FLAG_POLL_INTERVAL", time.Second),
		MaxPollDuration:  getEnvDurationOrDefault("LINKAUTH_MAX_POLL_DURATION", 5*time.Minute),
		MaxExpiryRetries: getEnvIntOrDefault("LINKAUTH_MAX_EXPIRY_RETRIES", 3),
		MaxPollFailures:  getEnvIntOrDefault("LINKAUTH_MAX_POLL_FAILURES", 5),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers read as seconds for convenience.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
