package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL string // API base URL (default: http://localhost:8080)

	GoogleClientID     string // Optional: enables Google sign-in
	GoogleClientSecret string // Optional: confidential clients only
	GoogleRedirectURL  string // Loopback redirect for Google sign-in (default: http://127.0.0.1:8085/callback)
	GoogleIssuer       string // OpenID issuer (default: https://accounts.google.com)

	SessionFile string // SQLite file holding the session; ":memory:" keeps it in process (default: loyalty-session.db)
	SessionKey  string // Optional: passphrase sealing the persisted session

	RequestTimeout       time.Duration // Per-request timeout (default: 10s)
	RateLimitRPS         float64       // Outbound requests per second, 0 disables (default: 0)
	RateLimitBurst       int           // Outbound burst (default: 10)
	CacheJanitorInterval time.Duration // Cache pruning interval (default: 5m)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: text)
}

// LoadConfig reads the environment, seeded from a .env file when present.
func LoadConfig() Config {
	// A missing .env is normal; real environment variables always win.
	_ = godotenv.Load()

	return Config{
		APIURL:               getEnvOrDefault("LOYALTY_API_URL", "http://localhost:8080"),
		GoogleClientID:       os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:   os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:    getEnvOrDefault("GOOGLE_REDIRECT_URL", "http://127.0.0.1:8085/callback"),
		GoogleIssuer:         getEnvOrDefault("GOOGLE_ISSUER", "https://accounts.google.com"),
		SessionFile:          getEnvOrDefault("LOYALTY_SESSION_FILE", "loyalty-session.db"),
		SessionKey:           os.Getenv("LOYALTY_SESSION_KEY"),
		RequestTimeout:       getEnvDurationOrDefault("LOYALTY_REQUEST_TIMEOUT", 10*time.Second),
		RateLimitRPS:         getEnvFloatOrDefault("LOYALTY_RATE_LIMIT_RPS", 0),
		RateLimitBurst:       getEnvIntOrDefault("LOYALTY_RATE_LIMIT_BURST", 10),
		CacheJanitorInterval: getEnvDurationOrDefault("LOYALTY_CACHE_JANITOR_INTERVAL", 5*time.Minute),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "text"),
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

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
