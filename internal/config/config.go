// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/hunter and cmd/ops.
//
// Dynamic scoring parameters (viral_threshold, gravity, tier cutoffs) do NOT
// live here — they are tuned at runtime and read from the system_config
// table through store.Params.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Fixed domain constants
// --------------------------------------------------------------------------

const (
	// NewestURL is the listing page the hunter cycle polls.
	NewestURL = "https://www.promodescuentos.com/nuevas"

	// TrafficTimezone is the timezone used for traffic-of-day bucketing,
	// regardless of host timezone.
	TrafficTimezone = "America/Mexico_City"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production

	// CORS
	CORSAllowOrigins []string

	// Telegram
	TelegramToken string
	AdminChatIDs  []int64

	// Hunter cycle
	CycleMinWait   time.Duration // lower bound of the inter-cycle jitter
	CycleMaxWait   time.Duration // upper bound of the inter-cycle jitter
	CycleDeadline  time.Duration // soft per-cycle deadline
	CycleWorkers   int           // bounded per-deal worker pool
	ScrapeTimeout  time.Duration
	StorageTimeout time.Duration
	NotifyTimeout  time.Duration

	// Notification fan-out
	FanoutConc      int // concurrent notification sends
	FanoutPerSecond int // rate limit across the whole fan-out

	// AutoTuner
	TunerInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	admins, err := envInt64List("ADMIN_CHAT_IDS")
	if err != nil {
		return nil, fmt.Errorf("parse ADMIN_CHAT_IDS: %w", err)
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{"*"}),

		TelegramToken: envOr("TELEGRAM_BOT_TOKEN", ""),
		AdminChatIDs:  admins,

		CycleMinWait:   time.Duration(envInt("CYCLE_MIN_WAIT_SECONDS", 300)) * time.Second,
		CycleMaxWait:   time.Duration(envInt("CYCLE_MAX_WAIT_SECONDS", 720)) * time.Second,
		CycleDeadline:  time.Duration(envInt("CYCLE_DEADLINE_SECONDS", 240)) * time.Second,
		CycleWorkers:   envInt("CYCLE_WORKERS", 4),
		ScrapeTimeout:  time.Duration(envInt("SCRAPE_TIMEOUT_SECONDS", 30)) * time.Second,
		StorageTimeout: time.Duration(envInt("STORAGE_TIMEOUT_SECONDS", 10)) * time.Second,
		NotifyTimeout:  time.Duration(envInt("NOTIFY_TIMEOUT_SECONDS", 15)) * time.Second,

		FanoutConc:      envInt("FANOUT_CONCURRENCY", 10),
		FanoutPerSecond: envInt("FANOUT_PER_SECOND", 25),

		TunerInterval: time.Duration(envInt("TUNER_INTERVAL_HOURS", 6)) * time.Hour,
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

func envInt64List(key string) ([]int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q", trimmed)
		}
		result = append(result, n)
	}
	return result, nil
}
