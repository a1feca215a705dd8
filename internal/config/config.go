// Package config loads runtime configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageType selects the persistence backend
type StorageType string

const (
	StorageMemory   StorageType = "memory"
	StorageRedis    StorageType = "redis"
	StoragePostgres StorageType = "postgres"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port        int
	StorageType StorageType
	RedisURL    string
	DatabaseURL string

	LineChannelSecret string
	LineChannelToken  string

	TradeWindow        time.Duration
	TradeSweepInterval time.Duration
	DispatchInterval   time.Duration
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg, err := LoadStorage()
	if err != nil {
		return Config{}, err
	}

	cfg.LineChannelSecret = strings.TrimSpace(os.Getenv("LINE_CHANNEL_SECRET"))
	cfg.LineChannelToken = strings.TrimSpace(os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"))

	port, err := strconv.Atoi(fallback(os.Getenv("PORT"), "8080"))
	if err != nil || port <= 0 {
		return Config{}, fmt.Errorf("invalid PORT: %s", os.Getenv("PORT"))
	}
	cfg.Port = port

	cfg.TradeWindow = durationFromSeconds("TRADE_WINDOW_SECONDS", 60*time.Second)
	cfg.TradeSweepInterval = durationFromSeconds("TRADE_SWEEP_SECONDS", 30*time.Second)
	cfg.DispatchInterval = durationFromSeconds("ANNOUNCE_DISPATCH_SECONDS", 15*time.Second)

	if cfg.LineChannelSecret == "" {
		return Config{}, errors.New("LINE_CHANNEL_SECRET is required")
	}
	if cfg.LineChannelToken == "" {
		return Config{}, errors.New("LINE_CHANNEL_ACCESS_TOKEN is required")
	}

	return cfg, nil
}

// LoadStorage reads only the storage-related configuration. The seed
// command uses this so it can run without LINE credentials.
func LoadStorage() (Config, error) {
	cfg := Config{
		StorageType: StorageType(fallback(os.Getenv("STORAGE_TYPE"), string(StorageMemory))),
		RedisURL:    fallback(os.Getenv("REDIS_URL"), "redis://localhost:6379"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}

	switch cfg.StorageType {
	case StorageMemory, StorageRedis:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required for postgres storage")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_TYPE: %s", cfg.StorageType)
	}

	return cfg, nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func durationFromSeconds(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}
