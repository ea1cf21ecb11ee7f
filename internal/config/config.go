package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	// DatabaseURL is the Postgres connection string for the forecasts table.
	DatabaseURL string

	// ForecastTTL is how long a forecast is servable as a cache hit.
	ForecastTTL time.Duration

	// Agent endpoint for fire-and-forget regeneration. Empty disables it.
	AgentBaseURL string
	AgentAppName string
	AgentUserID  string

	// Trigger dispatch bounds.
	TriggerTimeout       time.Duration
	TriggerMaxConcurrent int

	// WarmupCities are checked periodically so stale forecasts regenerate
	// ahead of user traffic. Empty disables the warmup job.
	WarmupCities   []string
	WarmupInterval time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	ttlStr := getenvDefault("FORECAST_TTL", "30m")
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid FORECAST_TTL: %w", err)
	}
	cfg.ForecastTTL = ttl

	cfg.AgentBaseURL = os.Getenv("AGENT_BASE_URL")
	cfg.AgentAppName = getenvDefault("AGENT_APP_NAME", "weather_agent")
	cfg.AgentUserID = getenvDefault("AGENT_USER_ID", "forecast-cache")

	timeoutStr := getenvDefault("TRIGGER_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid TRIGGER_TIMEOUT: %w", err)
	}
	cfg.TriggerTimeout = timeout
	cfg.TriggerMaxConcurrent = getenvInt("TRIGGER_MAX_CONCURRENT", 8)

	cfg.WarmupCities = splitList(os.Getenv("WARMUP_CITIES"))

	warmupStr := getenvDefault("WARMUP_INTERVAL", "15m")
	warmup, err := time.ParseDuration(warmupStr)
	if err != nil {
		return nil, fmt.Errorf("invalid WARMUP_INTERVAL: %w", err)
	}
	cfg.WarmupInterval = warmup

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
