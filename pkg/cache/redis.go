package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// scanBatchSize is the COUNT hint for SCAN during pattern invalidation.
	scanBatchSize = 100

	// asyncDeleteTimeout bounds the background delete of a stale entry.
	asyncDeleteTimeout = 5 * time.Second
)

// Options configures the Redis-backed cache tier.
// All values are read once at construction.
type Options struct {
	// Addr is the Redis host:port for single-node mode
	Addr string

	// ClusterAddrs enables cluster mode when non-empty; Addr is ignored
	ClusterAddrs []string

	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// CompressionThreshold is the serialized length in bytes above which
	// payloads are gzip-compressed before storage. <= 0 disables compression.
	CompressionThreshold int

	// Policy computes per-category TTLs; DefaultTTLPolicy when nil
	Policy *TTLPolicy

	// Reconnect controls the background reconnection loop
	Reconnect ReconnectConfig
}

// DefaultOptions returns a safe default configuration for a local Redis.
func DefaultOptions() Options {
	return Options{
		Addr:                 "localhost:6379",
		DialTimeout:          5 * time.Second,
		ReadTimeout:          3 * time.Second,
		WriteTimeout:         3 * time.Second,
		CompressionThreshold: 8 * 1024,
		Reconnect:            DefaultReconnectConfig(),
	}
}

// RedisCache is the ephemeral cache tier. All operations are fail-open:
// when the backing store is unreachable, reads report a miss and writes
// report false, and a background loop attempts reconnection independently
// of request traffic.
type RedisCache struct {
	client redis.UniversalClient
	opts   Options
	policy *TTLPolicy
	stats  stats
	logger zerolog.Logger

	// available is the connectivity flag. Operations branch on it and
	// never block on it; the monitor goroutine is its only healer.
	available atomic.Bool

	// downCh wakes the monitor immediately when an operation sees a
	// store error, instead of waiting for the next ping interval.
	downCh chan struct{}

	sf        singleflight.Group
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Item is a single entry for batched writes.
type Item struct {
	Key     Key
	Payload any

	// TTL overrides the policy-computed TTL when > 0
	TTL time.Duration

	Source string
}

// New creates the cache tier and starts the connection monitor.
// Construction never fails: if Redis is unreachable the cache starts in
// degraded mode and recovers in the background.
func New(opts Options) *RedisCache {
	if opts.Policy == nil {
		opts.Policy = DefaultTTLPolicy()
	}
	opts.Reconnect = opts.Reconnect.withDefaults()

	addrs := opts.ClusterAddrs
	if len(addrs) == 0 {
		addrs = []string{opts.Addr}
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	return newWithClient(client, opts)
}

// NewWithClient creates the cache tier around an existing Redis client.
// Intended for tests and callers that manage the client lifecycle themselves.
func NewWithClient(client redis.UniversalClient, opts Options) *RedisCache {
	if opts.Policy == nil {
		opts.Policy = DefaultTTLPolicy()
	}
	opts.Reconnect = opts.Reconnect.withDefaults()
	return newWithClient(client, opts)
}

func newWithClient(client redis.UniversalClient, opts Options) *RedisCache {
	c := &RedisCache{
		client: client,
		opts:   opts,
		policy: opts.Policy,
		logger: log.With().Str("component", "cache").Logger(),
		downCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}

	// Initial connectivity probe. Failure is not fatal: the monitor
	// keeps retrying with backoff.
	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Redis unreachable at startup, starting degraded")
		c.setAvailable(false)
	} else {
		c.setAvailable(true)
	}

	c.wg.Add(1)
	go c.monitor()

	return c
}

// Available reports whether the backing store is currently reachable.
func (c *RedisCache) Available() bool {
	return c.available.Load()
}

// Ping probes the backing store once, for readiness checks. Returns an
// error wrapping ErrStoreUnavailable when the store does not answer.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist, the entry is stale, the
// entry is corrupt, or the store is unavailable. No other error is returned.
func (c *RedisCache) Get(ctx context.Context, key Key) (*Entry, error) {
	if !c.available.Load() {
		c.miss()
		return nil, ErrCacheMiss
	}

	cacheKey := key.String()

	pipe := c.client.Pipeline()
	dataCmd := pipe.Get(ctx, cacheKey)
	gzCmd := pipe.Get(ctx, markerKey(cacheKey))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.degrade("get", err)
		c.miss()
		return nil, ErrCacheMiss
	}

	data, err := dataCmd.Bytes()
	if err != nil {
		if err != redis.Nil {
			c.degrade("get", err)
		}
		c.miss()
		return nil, ErrCacheMiss
	}

	entry, err := decodeEntry(data, gzCmd.Err() == nil)
	if err != nil {
		c.countError("get")
		c.logger.Warn().Err(err).Str("key", cacheKey).Msg("Discarding undecodable cache entry")
		c.deleteAsync(cacheKey)
		c.miss()
		return nil, ErrCacheMiss
	}

	// Re-check staleness against the envelope even though Redis expiry
	// was set: the store's own expiry may be misconfigured or skewed.
	if entry.IsExpired(time.Now()) {
		c.deleteAsync(cacheKey)
		c.miss()
		return nil, ErrCacheMiss
	}

	c.stats.hits.Add(1)
	CacheHits.WithLabelValues("redis").Inc()
	return entry, nil
}

// Set stores a payload under key with the policy-computed TTL for the
// key's category. Returns false without writing when the store is
// unavailable or the write fails.
func (c *RedisCache) Set(ctx context.Context, key Key, payload any, source string) bool {
	ttl := c.policy.For(key.Category, time.Now())
	return c.SetWithTTL(ctx, key, payload, ttl, source)
}

// SetWithTTL stores a payload under key with an explicit TTL.
func (c *RedisCache) SetWithTTL(ctx context.Context, key Key, payload any, ttl time.Duration, source string) bool {
	if !c.available.Load() {
		return false
	}
	if ttl <= 0 {
		return false
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		c.countError("set")
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to serialize payload")
		return false
	}

	entry := NewEntry(key, raw, ttl, source)
	data, compressed, err := encodeEntry(entry, c.opts.CompressionThreshold)
	if err != nil {
		c.countError("set")
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to encode cache entry")
		return false
	}

	cacheKey := key.String()

	pipe := c.client.Pipeline()
	pipe.Set(ctx, cacheKey, data, ttl)
	if compressed {
		pipe.Set(ctx, markerKey(cacheKey), "1", ttl)
	} else {
		pipe.Del(ctx, markerKey(cacheKey))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.degrade("set", err)
		return false
	}

	c.stats.sets.Add(1)
	CacheSets.Inc()
	CacheWrittenBytes.WithLabelValues("redis").Add(float64(len(data)))

	c.logger.Debug().
		Str("key", cacheKey).
		Dur("ttl", ttl).
		Bool("compressed", compressed).
		Int("bytes", len(data)).
		Msg("Cached entry")

	return true
}

// Delete removes a cache entry. Returns false when the store is
// unavailable or the delete fails.
func (c *RedisCache) Delete(ctx context.Context, key Key) bool {
	if !c.available.Load() {
		return false
	}

	cacheKey := key.String()
	if err := c.client.Del(ctx, cacheKey, markerKey(cacheKey)).Err(); err != nil {
		c.degrade("delete", err)
		return false
	}

	c.stats.deletes.Add(1)
	CacheDeletes.Inc()
	return true
}

// MGet retrieves multiple entries in a single pipelined round-trip.
// The result maps each key string to its entry, nil for misses.
// Each entry is independently staleness-checked.
func (c *RedisCache) MGet(ctx context.Context, keys []Key) map[string]*Entry {
	result := make(map[string]*Entry, len(keys))
	for _, k := range keys {
		result[k.String()] = nil
	}

	if !c.available.Load() || len(keys) == 0 {
		for range keys {
			c.miss()
		}
		return result
	}

	pipe := c.client.Pipeline()
	dataCmds := make([]*redis.StringCmd, len(keys))
	gzCmds := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		cacheKey := k.String()
		dataCmds[i] = pipe.Get(ctx, cacheKey)
		gzCmds[i] = pipe.Get(ctx, markerKey(cacheKey))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.degrade("mget", err)
		for range keys {
			c.miss()
		}
		return result
	}

	now := time.Now()
	for i, k := range keys {
		cacheKey := k.String()

		data, err := dataCmds[i].Bytes()
		if err != nil {
			c.miss()
			continue
		}

		entry, err := decodeEntry(data, gzCmds[i].Err() == nil)
		if err != nil {
			c.countError("mget")
			c.deleteAsync(cacheKey)
			c.miss()
			continue
		}

		if entry.IsExpired(now) {
			c.deleteAsync(cacheKey)
			c.miss()
			continue
		}

		c.stats.hits.Add(1)
		CacheHits.WithLabelValues("redis").Inc()
		result[cacheKey] = entry
	}

	return result
}

// MSet stores multiple entries in a single pipelined round-trip.
// Returns false without writing when the store is unavailable; an item
// that fails to serialize is skipped and counted, not fatal to the batch.
func (c *RedisCache) MSet(ctx context.Context, items []Item) bool {
	if !c.available.Load() {
		return false
	}
	if len(items) == 0 {
		return true
	}

	now := time.Now()
	pipe := c.client.Pipeline()
	written := 0
	var bytesWritten int

	for _, item := range items {
		ttl := item.TTL
		if ttl <= 0 {
			ttl = c.policy.For(item.Key.Category, now)
		}

		raw, err := marshalPayload(item.Payload)
		if err != nil {
			c.countError("mset")
			c.logger.Warn().Err(err).Str("key", item.Key.String()).Msg("Skipping unserializable batch item")
			continue
		}

		entry := NewEntry(item.Key, raw, ttl, item.Source)
		data, compressed, err := encodeEntry(entry, c.opts.CompressionThreshold)
		if err != nil {
			c.countError("mset")
			continue
		}

		cacheKey := item.Key.String()
		pipe.Set(ctx, cacheKey, data, ttl)
		if compressed {
			pipe.Set(ctx, markerKey(cacheKey), "1", ttl)
		} else {
			pipe.Del(ctx, markerKey(cacheKey))
		}
		written++
		bytesWritten += len(data)
	}

	if written == 0 {
		return false
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.degrade("mset", err)
		return false
	}

	c.stats.sets.Add(int64(written))
	CacheWrittenBytes.WithLabelValues("redis").Add(float64(bytesWritten))
	for i := 0; i < written; i++ {
		CacheSets.Inc()
	}
	return true
}

// InvalidatePattern deletes all keys matching a glob pattern and returns
// the number of entries removed (compression markers are not counted).
// Used for category- or symbol-wide cleanup.
func (c *RedisCache) InvalidatePattern(ctx context.Context, pattern string) int {
	if !c.available.Load() {
		return 0
	}

	deleted := 0
	batch := make([]string, 0, scanBatchSize)

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			c.degrade("invalidate", err)
			return false
		}
		for _, k := range batch {
			if !strings.HasSuffix(k, compressedSuffix) {
				deleted++
				c.stats.deletes.Add(1)
				CacheDeletes.Inc()
			}
		}
		batch = batch[:0]
		return true
	}

	iter := c.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatchSize {
			if !flush() {
				return deleted
			}
		}
	}
	if err := iter.Err(); err != nil {
		c.degrade("invalidate", err)
		return deleted
	}
	flush()

	c.logger.Debug().Str("pattern", pattern).Int("deleted", deleted).Msg("Invalidated keys")
	return deleted
}

// InvalidateSymbol deletes every entry for a symbol across all
// categories and dates, returning the number of entries removed.
func (c *RedisCache) InvalidateSymbol(ctx context.Context, symbol string) int {
	deleted := 0
	for _, pattern := range PatternsForSymbol(symbol) {
		deleted += c.InvalidatePattern(ctx, pattern)
	}
	return deleted
}

// Stats returns a snapshot of cache activity. Backing-store memory usage
// and key count are included best-effort when the store is reachable.
func (c *RedisCache) Stats(ctx context.Context) StatsSnapshot {
	snap := c.stats.snapshot()
	snap.Available = c.available.Load()
	if !snap.Available {
		return snap
	}

	if n, err := c.client.DBSize(ctx).Result(); err == nil {
		snap.KeyCount = n
	}
	if info, err := c.client.Info(ctx, "memory").Result(); err == nil {
		snap.MemoryUsedBytes = parseUsedMemory(info)
	}
	return snap
}

// Close stops the connection monitor and releases the store connection.
// Safe to call more than once; subsequent calls return nil.
func (c *RedisCache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		err = c.client.Close()
	})
	return err
}

// miss counts a cache miss.
func (c *RedisCache) miss() {
	c.stats.misses.Add(1)
	CacheMisses.Inc()
}

// countError counts a recovered cache-internal error.
func (c *RedisCache) countError(operation string) {
	c.stats.errors.Add(1)
	CacheErrors.WithLabelValues(operation).Inc()
}

// degrade records a store error and flips the connectivity flag.
// The monitor goroutine owns recovery; request paths never retry.
func (c *RedisCache) degrade(operation string, err error) {
	c.countError(operation)
	if c.available.CompareAndSwap(true, false) {
		CacheAvailable.Set(0)
		c.logger.Warn().Err(err).Str("operation", operation).Msg("Store error, entering degraded mode")
		select {
		case c.downCh <- struct{}{}:
		default:
		}
	}
}

// setAvailable updates the connectivity flag and its gauge.
func (c *RedisCache) setAvailable(up bool) {
	c.available.Store(up)
	if up {
		CacheAvailable.Set(1)
	} else {
		CacheAvailable.Set(0)
	}
}

// deleteAsync removes a key in the background so the read path does not
// pay for cleanup of stale or corrupt entries.
func (c *RedisCache) deleteAsync(cacheKey string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncDeleteTimeout)
		defer cancel()
		if err := c.client.Del(ctx, cacheKey, markerKey(cacheKey)).Err(); err != nil {
			c.logger.Debug().Err(err).Str("key", cacheKey).Msg("Async delete failed")
		}
	}()
}

// parseUsedMemory extracts used_memory from a Redis INFO memory section.
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if rest, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
			if err == nil {
				return n
			}
			return 0
		}
	}
	return 0
}
