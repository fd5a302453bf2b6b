// Package config loads the environment-style configuration surface.
// All values are read once at construction time; there is no hot reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full configuration surface.
type Config struct {
	// Redis connection
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisClusterAddrs []string
	RedisDialTimeout  time.Duration
	RedisReadTimeout  time.Duration
	RedisWriteTimeout time.Duration

	// Cache policy
	DefaultTTL           time.Duration
	CategoryTTL          map[string]time.Duration
	MarketHoursTTL       map[string]time.Duration
	CompressionThreshold int

	// Reconnection
	ReconnectInitialBackoff time.Duration
	ReconnectMaxBackoff     time.Duration

	// Permanent store
	HistoryDir string

	// Daemon
	ListenAddr string
	LogLevel   string
	LogPretty  bool
}

// Load reads configuration from the environment, after loading a .env
// file if one is present in the working directory.
func Load() (Config, error) {
	// Missing .env is not an error; the environment may be set directly.
	_ = godotenv.Load()

	cfg := Config{
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisClusterAddrs: getEnvList("REDIS_CLUSTER_ADDRS"),

		HistoryDir: getEnv("HISTORY_DIR", "./data/history"),
		ListenAddr: getEnv("LISTEN_ADDR", ":8090"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogPretty:  getEnvBool("LOG_PRETTY", false),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.RedisDialTimeout, err = getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RedisReadTimeout, err = getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RedisWriteTimeout, err = getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.DefaultTTL, err = getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.CompressionThreshold, err = getEnvInt("CACHE_COMPRESSION_THRESHOLD", 8*1024); err != nil {
		return Config{}, err
	}
	if cfg.ReconnectInitialBackoff, err = getEnvDuration("CACHE_RECONNECT_INITIAL_BACKOFF", time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ReconnectMaxBackoff, err = getEnvDuration("CACHE_RECONNECT_MAX_BACKOFF", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CategoryTTL, err = getEnvTTLTable("CACHE_TTL_OVERRIDES"); err != nil {
		return Config{}, err
	}
	if cfg.MarketHoursTTL, err = getEnvTTLTable("CACHE_MARKET_TTL_OVERRIDES"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvTTLTable parses a comma-separated category=duration list,
// e.g. "quote=45s,news=10m".
func getEnvTTLTable(key string) (map[string]time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}

	table := make(map[string]time.Duration)
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		category, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("parse %s: invalid entry %q", key, pair)
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("parse %s entry %q: %w", key, pair, err)
		}
		table[strings.TrimSpace(category)] = d
	}
	return table, nil
}
