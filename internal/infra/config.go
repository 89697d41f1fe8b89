package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// BreakerConfig tunes one named downstream dependency. Each dependency gets
// its own instance so an outage on one never opens the other's breaker.
type BreakerConfig struct {
	FailureThreshold int
	Timeout          time.Duration
	ResetTimeout     time.Duration
	MonitoringPeriod time.Duration
}

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int
	RedisURL    string

	WebhookSecret string

	GenerationBaseURL string
	GenerationAPIKey  string

	GenerationBreaker BreakerConfig

	RateLimitMax    int
	RateLimitWindow time.Duration

	SchedulerTick     time.Duration
	DispatchBatchSize int
	MaxConcurrent     int
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	ProcessingTimeout time.Duration

	ProgressPollInterval time.Duration
	NotifyThrottle       time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:  getEnvInt("DB_MIN_CONNS", 1),
		RedisURL:    os.Getenv("REDIS_URL"),

		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		GenerationBaseURL: getEnv("GENERATION_BASE_URL", "https://api.generation.internal"),
		GenerationAPIKey:  os.Getenv("GENERATION_API_KEY"),

		GenerationBreaker: BreakerConfig{
			FailureThreshold: getEnvInt("GENERATION_BREAKER_FAILURES", 5),
			Timeout:          getEnvDuration("GENERATION_BREAKER_TIMEOUT", 60*time.Second),
			ResetTimeout:     getEnvDuration("GENERATION_BREAKER_RESET", 30*time.Second),
			MonitoringPeriod: getEnvDuration("GENERATION_BREAKER_MONITORING", 2*time.Minute),
		},

		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 30),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		SchedulerTick:     getEnvDuration("SCHEDULER_TICK", 2*time.Second),
		DispatchBatchSize: getEnvInt("DISPATCH_BATCH_SIZE", 25),
		MaxConcurrent:     getEnvInt("DISPATCH_MAX_CONCURRENT", 4),
		MaxAttempts:       getEnvInt("JOB_MAX_ATTEMPTS", 3),
		BackoffBase:       getEnvDuration("JOB_BACKOFF_BASE", 5*time.Second),
		BackoffMax:        getEnvDuration("JOB_BACKOFF_MAX", 5*time.Minute),
		ProcessingTimeout: getEnvDuration("JOB_PROCESSING_TIMEOUT", 10*time.Minute),

		ProgressPollInterval: getEnvDuration("PROGRESS_POLL_INTERVAL", 2*time.Second),
		NotifyThrottle:       getEnvDuration("NOTIFY_THROTTLE", 10*time.Second),

		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		HTTPIdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
