// Package config provides configuration management for the watchtower scan engine.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scan      ScanConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Scoring   ScoringConfig
	PageSpeed PageSpeedConfig
	AIQuality AIQualityConfig
	Cache     CacheConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ScanConfig holds scheduler and worker pool configuration
type ScanConfig struct {
	Workers            int                // concurrent scan jobs
	QueueCapacity      int                // bounded job queue size
	TickInterval       time.Duration      // how often the scheduler looks for due websites
	Cadence            time.Duration      // default rescan interval after a completed scan
	FailedRetryCadence time.Duration      // rescan interval after a failed scan
	JobDeadline        time.Duration      // wall-clock budget for one job, enqueue to terminal
	DueBatchLimit      int                // max websites picked up per tick
	Strategy           types.ScanStrategy // device profile for performance scans
}

// RetryConfig holds retry policy configuration for external calls
type RetryConfig struct {
	MaxRetries int           // retries after the initial attempt
	BaseDelay  time.Duration // first backoff delay
	MaxDelay   time.Duration // backoff ceiling
}

// CapabilityLimitConfig holds the token bucket settings for one external capability
type CapabilityLimitConfig struct {
	PerSecond      float64       // sustained request rate
	Burst          int           // bucket size
	AcquireTimeout time.Duration // how long a job waits for a slot before giving up
	DailyQuota     int64         // calls per UTC day across all instances; 0 disables the cap
}

// RateLimitConfig holds outbound and client-facing rate limit configuration
type RateLimitConfig struct {
	PageSpeed       CapabilityLimitConfig
	AI              CapabilityLimitConfig
	ClientPerMinute int // API requests per minute per client IP
	ClientBurst     int
}

// ScoringConfig holds composite score weights and shame thresholds
type ScoringConfig struct {
	PerformanceWeight     float64
	AIWeight              float64
	ShameMinPerformance   float64 // performance score below this is shame-worthy
	ShameMinAccessibility float64 // AI accessibility score below this is shame-worthy
	ShameMinComposite     float64 // composite below this is shame-worthy
}

// PageSpeedConfig holds the performance analysis provider configuration
type PageSpeedConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// AIQualityConfig holds the AI assessment provider configuration
type AIQualityConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	MaxContentBytes int64 // cap on fetched page content handed to the model
}

// CacheConfig holds Redis cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "watchtower"),
				User:           getEnv("POSTGRES_USER", "watchtower"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "watchtower"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Scan: ScanConfig{
			Workers:            getEnvAsInt("SCAN_WORKERS", 5),
			QueueCapacity:      getEnvAsInt("SCAN_QUEUE_CAPACITY", 32),
			TickInterval:       getEnvAsDuration("SCAN_TICK_INTERVAL", time.Minute),
			Cadence:            getEnvAsDuration("SCAN_CADENCE", 24*time.Hour),
			FailedRetryCadence: getEnvAsDuration("SCAN_FAILED_RETRY_CADENCE", 4*time.Hour),
			JobDeadline:        getEnvAsDuration("SCAN_JOB_DEADLINE", 3*time.Minute),
			DueBatchLimit:      getEnvAsInt("SCAN_DUE_BATCH_LIMIT", 100),
			Strategy:           loadStrategy(),
		},
		Retry: RetryConfig{
			MaxRetries: getEnvAsInt("SCAN_RETRY_COUNT", 3),
			BaseDelay:  getEnvAsDuration("SCAN_RETRY_BASE_DELAY", time.Second),
			MaxDelay:   getEnvAsDuration("SCAN_RETRY_MAX_DELAY", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			PageSpeed: CapabilityLimitConfig{
				PerSecond:      getEnvAsFloat("RATE_LIMIT_PAGESPEED_PER_SEC", 1.0),
				Burst:          getEnvAsInt("RATE_LIMIT_PAGESPEED_BURST", 2),
				AcquireTimeout: getEnvAsDuration("RATE_LIMIT_ACQUIRE_TIMEOUT", 30*time.Second),
				DailyQuota:     int64(getEnvAsInt("RATE_LIMIT_PAGESPEED_DAILY", 25000)),
			},
			AI: CapabilityLimitConfig{
				PerSecond:      getEnvAsFloat("RATE_LIMIT_AI_PER_SEC", 0.5),
				Burst:          getEnvAsInt("RATE_LIMIT_AI_BURST", 1),
				AcquireTimeout: getEnvAsDuration("RATE_LIMIT_ACQUIRE_TIMEOUT", 30*time.Second),
				DailyQuota:     int64(getEnvAsInt("RATE_LIMIT_AI_DAILY", 0)),
			},
			ClientPerMinute: getEnvAsInt("RATE_LIMIT_CLIENT_PER_MINUTE", 120),
			ClientBurst:     getEnvAsInt("RATE_LIMIT_CLIENT_BURST", 20),
		},
		Scoring: ScoringConfig{
			PerformanceWeight:     getEnvAsFloat("SCORE_PERFORMANCE_WEIGHT", 0.4),
			AIWeight:              getEnvAsFloat("SCORE_AI_WEIGHT", 0.6),
			ShameMinPerformance:   getEnvAsFloat("SHAME_MIN_PERFORMANCE", 30),
			ShameMinAccessibility: getEnvAsFloat("SHAME_MIN_ACCESSIBILITY", 50),
			ShameMinComposite:     getEnvAsFloat("SHAME_MIN_COMPOSITE", 40),
		},
		PageSpeed: PageSpeedConfig{
			APIKey:  getEnv("PAGESPEED_API_KEY", ""),
			BaseURL: getEnv("PAGESPEED_BASE_URL", "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"),
			Timeout: getEnvAsDuration("PAGESPEED_TIMEOUT", 60*time.Second),
		},
		AIQuality: AIQualityConfig{
			APIKey:          getEnv("AI_API_KEY", ""),
			BaseURL:         getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
			Model:           getEnv("AI_MODEL", "gpt-4o-mini"),
			Timeout:         getEnvAsDuration("AI_TIMEOUT", 60*time.Second),
			MaxContentBytes: int64(getEnvAsInt("AI_MAX_CONTENT_BYTES", 131072)),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// loadStrategy reads the scan strategy, falling back to mobile on unknown values
func loadStrategy() types.ScanStrategy {
	s := types.ScanStrategy(getEnv("SCAN_STRATEGY", string(types.StrategyMobile)))
	if s != types.StrategyMobile && s != types.StrategyDesktop {
		return types.StrategyMobile
	}
	return s
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
