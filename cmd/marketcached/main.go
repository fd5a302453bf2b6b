// Command marketcached runs the market data cache daemon: it owns the
// ephemeral Redis tier and the permanent historical store, and exposes
// health, stats and Prometheus metrics endpoints for monitoring.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marketlens/datacache/pkg/cache"
	"github.com/marketlens/datacache/pkg/config"
	"github.com/marketlens/datacache/pkg/histstore"
	"github.com/marketlens/datacache/pkg/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		logger := logging.NewLogger("marketcached")
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("marketcached")

	// Build the TTL policy from defaults plus config overrides.
	policy := cache.DefaultTTLPolicy()
	policy.Default = cfg.DefaultTTL
	for category, ttl := range cfg.CategoryTTL {
		policy.Override(cache.Category(category), ttl)
	}
	for category, ttl := range cfg.MarketHoursTTL {
		policy.OverrideSession(cache.Category(category), ttl)
	}

	c := cache.New(cache.Options{
		Addr:                 cfg.RedisAddr,
		ClusterAddrs:         cfg.RedisClusterAddrs,
		Password:             cfg.RedisPassword,
		DB:                   cfg.RedisDB,
		DialTimeout:          cfg.RedisDialTimeout,
		ReadTimeout:          cfg.RedisReadTimeout,
		WriteTimeout:         cfg.RedisWriteTimeout,
		CompressionThreshold: cfg.CompressionThreshold,
		Policy:               policy,
		Reconnect: cache.ReconnectConfig{
			PingInterval:      15 * time.Second,
			PingTimeout:       2 * time.Second,
			InitialBackoff:    cfg.ReconnectInitialBackoff,
			MaxBackoff:        cfg.ReconnectMaxBackoff,
			BackoffMultiplier: 2.0,
		},
	})
	defer c.Close()

	// Create the partition root up front so a bad HISTORY_DIR fails fast
	// instead of on the first yearly fetch.
	store, err := histstore.New(histstore.Options{Root: cfg.HistoryDir})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open historical store")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/readyz", readyHandler(c))
	mux.HandleFunc("/stats", statsHandler(c, store))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("history_dir", cfg.HistoryDir).
			Bool("cache_available", c.Available()).
			Msg("Starting marketcached")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Server shutdown failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// readyHandler reports store connectivity. The daemon itself stays
// healthy in degraded mode; readiness distinguishes "serving but
// fail-open" from "cache fully operational".
func readyHandler(c *cache.RedisCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := c.Ping(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}

// statsResponse combines both tiers in one payload: the ephemeral cache
// and the permanent partition store are monitored side by side.
type statsResponse struct {
	Cache   cache.StatsSnapshot     `json:"cache"`
	History histstore.StatsSnapshot `json:"history"`
}

func statsHandler(c *cache.RedisCache, store *histstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := statsResponse{
			Cache:   c.Stats(ctx),
			History: store.Stats(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
