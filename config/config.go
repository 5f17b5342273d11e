package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort        string
	DataDir           string
	LogLevel          string
	CacheTTLMinutes   string
	HTTPTimeoutSecs   string
	LegacyCalendarURL string // optional override for the legacy IPO calendar endpoint
}

// SimplifiedRateLimitConfig holds simplified rate limiting configuration
type SimplifiedRateLimitConfig struct {
	RequestsPerSecond float64       `json:"requests_per_second"`
	PolitenessDelay   time.Duration `json:"politeness_delay"`
}

// DefaultRateLimitConfig returns default rate limiting configuration for politeness
func DefaultRateLimitConfig() *SimplifiedRateLimitConfig {
	return &SimplifiedRateLimitConfig{
		RequestsPerSecond: 2.0,
		PolitenessDelay:   500 * time.Millisecond,
	}
}

// SimplifiedCacheConfig holds simplified cache configuration
type SimplifiedCacheConfig struct {
	DefaultTTL time.Duration `json:"default_ttl"`
	MaxSize    int           `json:"max_size"`
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() *SimplifiedCacheConfig {
	return &SimplifiedCacheConfig{
		DefaultTTL: 10 * time.Minute,
		MaxSize:    1000,
	}
}

// GetCacheTTL returns the cache TTL from environment or default
func (c *Config) GetCacheTTL() time.Duration {
	if c.CacheTTLMinutes == "" {
		return 10 * time.Minute
	}

	minutes, err := strconv.Atoi(c.CacheTTLMinutes)
	if err != nil {
		logrus.Warnf("Invalid CACHE_TTL_MINUTES value: %s, using default 10 minutes", c.CacheTTLMinutes)
		return 10 * time.Minute
	}

	return time.Duration(minutes) * time.Minute
}

// GetHTTPTimeout returns the per-request HTTP timeout from environment or default
func (c *Config) GetHTTPTimeout() time.Duration {
	if c.HTTPTimeoutSecs == "" {
		return 25 * time.Second
	}

	seconds, err := strconv.Atoi(c.HTTPTimeoutSecs)
	if err != nil {
		logrus.Warnf("Invalid HTTP_TIMEOUT_SECONDS value: %s, using default 25 seconds", c.HTTPTimeoutSecs)
		return 25 * time.Second
	}

	return time.Duration(seconds) * time.Second
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		DataDir:           getEnv("DATA_DIR", "data"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CacheTTLMinutes:   getEnv("CACHE_TTL_MINUTES", "10"),
		HTTPTimeoutSecs:   getEnv("HTTP_TIMEOUT_SECONDS", "25"),
		LegacyCalendarURL: getEnv("HKEX_IPO_CALENDAR_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
