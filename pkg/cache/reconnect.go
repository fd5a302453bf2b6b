package cache

import (
	"context"
	"math/rand"
	"time"
)

// ReconnectConfig controls the background connection monitor.
type ReconnectConfig struct {
	// PingInterval is how often the store is probed while healthy.
	PingInterval time.Duration

	// PingTimeout bounds each probe.
	PingTimeout time.Duration

	// InitialBackoff is the first retry delay after the store goes down.
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration

	// BackoffMultiplier is the exponential growth factor.
	BackoffMultiplier float64
}

// DefaultReconnectConfig returns the default monitor configuration.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		PingInterval:      15 * time.Second,
		PingTimeout:       2 * time.Second,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// withDefaults fills any unset field from the defaults. Each field is
// normalized independently so a caller tuning only the backoff cannot
// leave the monitor with a zero ping interval or timeout.
func (cfg ReconnectConfig) withDefaults() ReconnectConfig {
	def := DefaultReconnectConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	return cfg
}

// monitor keeps the connectivity flag honest. While the store is healthy
// it pings on an interval; when a ping fails or an operation reports a
// store error, it retries with exponential backoff and jitter until the
// store answers again. Runs until Close.
func (c *RedisCache) monitor() {
	defer c.wg.Done()

	cfg := c.opts.Reconnect
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
		case <-c.downCh:
		}

		if c.ping() {
			if !c.available.Load() {
				c.setAvailable(true)
				CacheReconnects.Inc()
				c.logger.Info().Msg("Store reachable again, leaving degraded mode")
			}
			continue
		}

		if c.available.Load() {
			c.setAvailable(false)
			c.logger.Warn().Msg("Store ping failed, entering degraded mode")
		}

		c.reconnectLoop(cfg)
	}
}

// reconnectLoop retries pings with exponential backoff until one succeeds
// or the cache is closed. Jitter (±20%) avoids synchronized reconnect
// storms across processes.
func (c *RedisCache) reconnectLoop(cfg ReconnectConfig) {
	backoff := cfg.InitialBackoff

	for attempt := 1; ; attempt++ {
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))

		c.logger.Debug().
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Waiting before reconnect attempt")

		select {
		case <-c.stopCh:
			return
		case <-time.After(jitter):
		}

		if c.ping() {
			c.setAvailable(true)
			CacheReconnects.Inc()
			c.logger.Info().Int("attempt", attempt).Msg("Reconnected to store")
			return
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}

// ping probes the store with a bounded timeout.
func (c *RedisCache) ping() bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Reconnect.PingTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}
