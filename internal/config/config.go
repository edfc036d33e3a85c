package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Crawler  CrawlerConfig
	Browser  BrowserConfig
	Queue    QueueConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
}

type CrawlerConfig struct {
	Concurrency    int
	JobTimeout     time.Duration
	NavTimeout     time.Duration
	NavRetries     int
	MinSpacing     time.Duration
	MaxSpacing     time.Duration
	HourlyCap      int
	EventStream    string
}

type BrowserConfig struct {
	Headless    bool
	MaxSessions int
	UserAgents  []string
}

type QueueConfig struct {
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	HeartbeatTimeout time.Duration
	MaxStalledCount  int
	KeepCompleted    int
	KeepFailed       int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	URL string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Crawler: CrawlerConfig{
			Concurrency: getIntOrDefault("CRAWLER_CONCURRENCY", 4),
			JobTimeout:  getDurationOrDefault("CRAWLER_JOB_TIMEOUT", 3*time.Minute),
			NavTimeout:  getDurationOrDefault("CRAWLER_NAV_TIMEOUT", 30*time.Second),
			NavRetries:  getIntOrDefault("CRAWLER_NAV_RETRIES", 3),
			MinSpacing:  getDurationOrDefault("CRAWLER_MIN_SPACING", 5*time.Second),
			MaxSpacing:  getDurationOrDefault("CRAWLER_MAX_SPACING", 15*time.Second),
			HourlyCap:   getIntOrDefault("CRAWLER_HOURLY_CAP", 120),
			EventStream: getEnvOrDefault("CRAWLER_EVENT_STREAM", "stylescout:events"),
		},
		Browser: BrowserConfig{
			Headless:    getBoolOrDefault("BROWSER_HEADLESS", true),
			MaxSessions: getIntOrDefault("BROWSER_MAX_SESSIONS", 8),
			UserAgents:  getStringSliceOrDefault("BROWSER_USER_AGENTS", nil),
		},
		Queue: QueueConfig{
			BaseDelay:        getDurationOrDefault("QUEUE_BASE_DELAY", 5*time.Second),
			MaxDelay:         getDurationOrDefault("QUEUE_MAX_DELAY", 5*time.Minute),
			HeartbeatTimeout: getDurationOrDefault("QUEUE_HEARTBEAT_TIMEOUT", 2*time.Minute),
			MaxStalledCount:  getIntOrDefault("QUEUE_MAX_STALLED", 2),
			KeepCompleted:    getIntOrDefault("QUEUE_KEEP_COMPLETED", 50),
			KeepFailed:       getIntOrDefault("QUEUE_KEEP_FAILED", 20),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Crawler.Concurrency < 1 {
		return fmt.Errorf("CRAWLER_CONCURRENCY must be at least 1")
	}
	if c.Crawler.MinSpacing > c.Crawler.MaxSpacing {
		return fmt.Errorf("CRAWLER_MIN_SPACING cannot be greater than CRAWLER_MAX_SPACING")
	}
	if c.Crawler.HourlyCap < 1 {
		return fmt.Errorf("CRAWLER_HOURLY_CAP must be at least 1")
	}
	if c.Queue.MaxStalledCount < 1 {
		return fmt.Errorf("QUEUE_MAX_STALLED must be at least 1")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
