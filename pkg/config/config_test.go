package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want localhost:6379", cfg.RedisAddr)
	}
	if cfg.RedisDB != 0 {
		t.Errorf("RedisDB = %d, want 0", cfg.RedisDB)
	}
	if cfg.DefaultTTL != 5*time.Minute {
		t.Errorf("DefaultTTL = %v, want 5m", cfg.DefaultTTL)
	}
	if cfg.CompressionThreshold != 8*1024 {
		t.Errorf("CompressionThreshold = %d, want 8192", cfg.CompressionThreshold)
	}
	if cfg.ReconnectInitialBackoff != time.Second {
		t.Errorf("ReconnectInitialBackoff = %v, want 1s", cfg.ReconnectInitialBackoff)
	}
	if cfg.ReconnectMaxBackoff != 30*time.Second {
		t.Errorf("ReconnectMaxBackoff = %v, want 30s", cfg.ReconnectMaxBackoff)
	}
	if cfg.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %q, want :8090", cfg.ListenAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.CategoryTTL != nil {
		t.Errorf("CategoryTTL = %v, want nil", cfg.CategoryTTL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_CLUSTER_ADDRS", "n1:6379, n2:6379 ,n3:6379")
	t.Setenv("CACHE_DEFAULT_TTL", "90s")
	t.Setenv("CACHE_COMPRESSION_THRESHOLD", "4096")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.RedisAddr != "redis.internal:6380" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d, want 3", cfg.RedisDB)
	}
	if len(cfg.RedisClusterAddrs) != 3 || cfg.RedisClusterAddrs[1] != "n2:6379" {
		t.Errorf("RedisClusterAddrs = %v", cfg.RedisClusterAddrs)
	}
	if cfg.DefaultTTL != 90*time.Second {
		t.Errorf("DefaultTTL = %v, want 90s", cfg.DefaultTTL)
	}
	if cfg.CompressionThreshold != 4096 {
		t.Errorf("CompressionThreshold = %d, want 4096", cfg.CompressionThreshold)
	}
	if !cfg.LogPretty {
		t.Error("LogPretty should be true")
	}
}

func TestLoad_TTLTables(t *testing.T) {
	t.Setenv("CACHE_TTL_OVERRIDES", "quote=45s, news=10m")
	t.Setenv("CACHE_MARKET_TTL_OVERRIDES", "orderbook=5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CategoryTTL["quote"] != 45*time.Second {
		t.Errorf("CategoryTTL[quote] = %v, want 45s", cfg.CategoryTTL["quote"])
	}
	if cfg.CategoryTTL["news"] != 10*time.Minute {
		t.Errorf("CategoryTTL[news] = %v, want 10m", cfg.CategoryTTL["news"])
	}
	if cfg.MarketHoursTTL["orderbook"] != 5*time.Second {
		t.Errorf("MarketHoursTTL[orderbook] = %v, want 5s", cfg.MarketHoursTTL["orderbook"])
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "CACHE_DEFAULT_TTL", "soon"},
		{"bad int", "REDIS_DB", "three"},
		{"ttl entry missing equals", "CACHE_TTL_OVERRIDES", "quote45s"},
		{"ttl entry bad duration", "CACHE_TTL_OVERRIDES", "quote=fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load should fail for %s=%q", tt.key, tt.value)
			}
		})
	}
}
