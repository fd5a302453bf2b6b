package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

type testQuote struct {
	Price float64 `json:"price"`
}

// setupTestRedis creates a Redis client against a local instance.
// Unit tests skip when Redis is not available; the testcontainers-based
// integration tests in tests/integration cover the same paths with a
// real container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func setupTestCache(t *testing.T) (*RedisCache, *redis.Client) {
	t.Helper()

	client := setupTestRedis(t)
	c := NewWithClient(client, Options{
		DialTimeout:          2 * time.Second,
		CompressionThreshold: 8 * 1024,
	})
	t.Cleanup(func() {
		// The client is closed by setupTestRedis; only stop the monitor.
		close(c.stopCh)
		c.wg.Wait()
	})
	return c, client
}

func TestRedisCache_SetAndGet(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	key := Key{Category: CategoryQuote, Symbol: "AAPL"}

	if ok := c.SetWithTTL(ctx, key, testQuote{Price: 150.0}, 30*time.Second, "providerX"); !ok {
		t.Fatal("SetWithTTL returned false")
	}

	entry, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	quote, err := Decode[testQuote](entry)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if quote.Price != 150.0 {
		t.Errorf("Price = %v, want 150.0", quote.Price)
	}
	if entry.Source != "providerX" {
		t.Errorf("Source = %q, want providerX", entry.Source)
	}
}

func TestRedisCache_Get_Miss(t *testing.T) {
	c, _ := setupTestCache(t)

	_, err := c.Get(context.Background(), Key{Category: CategoryQuote, Symbol: "NOPE"})
	if err != ErrCacheMiss {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestRedisCache_WrapperStalenessCheck(t *testing.T) {
	c, client := setupTestCache(t)
	ctx := context.Background()

	key := Key{Category: CategoryQuote, Symbol: "AAPL"}

	// Write an entry whose envelope is already stale but whose Redis
	// expiry is far in the future, simulating store misconfiguration.
	entry := NewEntry(key, json.RawMessage(`{"price":150.0}`), 30*time.Second, "test")
	entry.CachedAt = time.Now().Add(-2 * time.Minute)

	data, _, err := encodeEntry(entry, 0)
	if err != nil {
		t.Fatalf("encodeEntry failed: %v", err)
	}
	if err := client.Set(ctx, key.String(), data, time.Hour).Err(); err != nil {
		t.Fatalf("raw set failed: %v", err)
	}

	if _, err := c.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("expected ErrCacheMiss for stale envelope, got %v", err)
	}
}

func TestRedisCache_PolicyTTLApplied(t *testing.T) {
	c, client := setupTestCache(t)
	ctx := context.Background()

	key := Key{Category: CategoryQuote, Symbol: "AAPL"}
	if ok := c.Set(ctx, key, testQuote{Price: 1}, "test"); !ok {
		t.Fatal("Set returned false")
	}

	ttl, err := client.TTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 {
		t.Errorf("expected a positive Redis expiry, got %v", ttl)
	}
}

func TestRedisCache_Compression(t *testing.T) {
	client := setupTestRedis(t)
	c := NewWithClient(client, Options{
		DialTimeout:          2 * time.Second,
		CompressionThreshold: 64,
	})
	t.Cleanup(func() {
		close(c.stopCh)
		c.wg.Wait()
	})
	ctx := context.Background()

	key := Key{Category: CategoryNews, Symbol: "AAPL"}
	payload := map[string]string{"body": strings.Repeat("market news ", 200)}

	if ok := c.SetWithTTL(ctx, key, payload, time.Minute, "test"); !ok {
		t.Fatal("SetWithTTL returned false")
	}

	// The sibling marker key notes compression.
	n, err := client.Exists(ctx, markerKey(key.String())).Result()
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if n != 1 {
		t.Fatal("expected compression marker key to exist")
	}

	entry, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	decoded, err := Decode[map[string]string](entry)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if (*decoded)["body"] != payload["body"] {
		t.Error("compressed round-trip mismatch")
	}
}

func TestRedisCache_Delete(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	key := Key{Category: CategoryQuote, Symbol: "AAPL"}
	c.SetWithTTL(ctx, key, testQuote{Price: 1}, time.Minute, "test")

	if ok := c.Delete(ctx, key); !ok {
		t.Fatal("Delete returned false")
	}
	if _, err := c.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestRedisCache_MSetMGet(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	items := []Item{
		{Key: Key{Category: CategoryQuote, Symbol: "AAPL"}, Payload: testQuote{Price: 150}, Source: "test"},
		{Key: Key{Category: CategoryQuote, Symbol: "MSFT"}, Payload: testQuote{Price: 310}, Source: "test"},
		{Key: Key{Category: CategoryQuote, Symbol: "TSLA"}, Payload: testQuote{Price: 180}, Source: "test"},
	}
	if ok := c.MSet(ctx, items); !ok {
		t.Fatal("MSet returned false")
	}

	keys := []Key{
		{Category: CategoryQuote, Symbol: "AAPL"},
		{Category: CategoryQuote, Symbol: "MSFT"},
		{Category: CategoryQuote, Symbol: "TSLA"},
		{Category: CategoryQuote, Symbol: "MISSING"},
	}
	result := c.MGet(ctx, keys)

	if len(result) != 4 {
		t.Fatalf("result size = %d, want 4", len(result))
	}
	for _, symbol := range []string{"AAPL", "MSFT", "TSLA"} {
		key := Key{Category: CategoryQuote, Symbol: symbol}
		if result[key.String()] == nil {
			t.Errorf("expected hit for %s", symbol)
		}
	}
	missing := Key{Category: CategoryQuote, Symbol: "MISSING"}
	if result[missing.String()] != nil {
		t.Error("expected nil for missing key")
	}
}

func TestRedisCache_InvalidateSymbol(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	c.SetWithTTL(ctx, Key{Category: CategoryQuote, Symbol: "AAPL"}, testQuote{Price: 1}, time.Minute, "test")
	c.SetWithTTL(ctx, Key{Category: CategoryOHLCV, Symbol: "AAPL", Date: "2023-03-01"}, testQuote{Price: 2}, time.Minute, "test")
	c.SetWithTTL(ctx, Key{Category: CategoryQuote, Symbol: "MSFT"}, testQuote{Price: 3}, time.Minute, "test")
	// A symbol sharing the AAPL prefix must not be swept along.
	c.SetWithTTL(ctx, Key{Category: CategoryQuote, Symbol: "AAPLX"}, testQuote{Price: 4}, time.Minute, "test")

	deleted := c.InvalidateSymbol(ctx, "AAPL")
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	if _, err := c.Get(ctx, Key{Category: CategoryQuote, Symbol: "AAPL"}); err != ErrCacheMiss {
		t.Error("AAPL quote should be invalidated")
	}
	if _, err := c.Get(ctx, Key{Category: CategoryOHLCV, Symbol: "AAPL", Date: "2023-03-01"}); err != ErrCacheMiss {
		t.Error("dated AAPL entry should be invalidated")
	}
	if _, err := c.Get(ctx, Key{Category: CategoryQuote, Symbol: "MSFT"}); err != nil {
		t.Errorf("MSFT quote should survive: %v", err)
	}
	if _, err := c.Get(ctx, Key{Category: CategoryQuote, Symbol: "AAPLX"}); err != nil {
		t.Errorf("AAPLX quote should survive: %v", err)
	}
}

func TestRedisCache_DegradedMode(t *testing.T) {
	// Point at a port nothing listens on: the cache must start degraded
	// and stay fail-open, never panicking or surfacing store errors.
	c := New(Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		ReadTimeout: 200 * time.Millisecond,
		Reconnect: ReconnectConfig{
			PingInterval:      time.Hour,
			PingTimeout:       100 * time.Millisecond,
			InitialBackoff:    time.Hour,
			MaxBackoff:        time.Hour,
			BackoffMultiplier: 2.0,
		},
	})
	defer c.Close()

	ctx := context.Background()
	key := Key{Category: CategoryQuote, Symbol: "AAPL"}

	if c.Available() {
		t.Fatal("cache should start degraded with unreachable store")
	}
	if ok := c.SetWithTTL(ctx, key, testQuote{Price: 1}, time.Minute, "test"); ok {
		t.Error("Set should return false in degraded mode")
	}
	if _, err := c.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get should miss in degraded mode, got %v", err)
	}
	if ok := c.Delete(ctx, key); ok {
		t.Error("Delete should return false in degraded mode")
	}
	if err := c.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Ping should return ErrStoreUnavailable, got %v", err)
	}
	if n := c.InvalidatePattern(ctx, "md:*"); n != 0 {
		t.Errorf("InvalidatePattern should delete nothing, got %d", n)
	}

	snap := c.Stats(ctx)
	if snap.Available {
		t.Error("stats should report unavailable")
	}
	if snap.Misses == 0 {
		t.Error("degraded reads should count as misses")
	}
}

func TestRedisCache_WrittenBytesAccumulates(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	counter := CacheWrittenBytes.WithLabelValues("redis")
	before := promtestutil.ToFloat64(counter)

	if ok := c.SetWithTTL(ctx, Key{Category: CategoryQuote, Symbol: "AAPL"}, testQuote{Price: 150}, time.Minute, "test"); !ok {
		t.Fatal("SetWithTTL returned false")
	}
	if delta := promtestutil.ToFloat64(counter) - before; delta <= 0 {
		t.Errorf("written bytes delta = %v, want > 0", delta)
	}
}

func TestRedisCache_MGetDegradedCountsMisses(t *testing.T) {
	c := New(Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
	})
	defer c.Close()

	keys := []Key{
		{Category: CategoryQuote, Symbol: "AAPL"},
		{Category: CategoryQuote, Symbol: "MSFT"},
		{Category: CategoryQuote, Symbol: "TSLA"},
	}

	// The bulk miss path must move the exported counter in step with the
	// snapshot counters.
	before := promtestutil.ToFloat64(CacheMisses)
	result := c.MGet(context.Background(), keys)

	for _, k := range keys {
		if result[k.String()] != nil {
			t.Errorf("expected nil for %s in degraded mode", k.Symbol)
		}
	}
	if got := promtestutil.ToFloat64(CacheMisses) - before; got != float64(len(keys)) {
		t.Errorf("miss counter delta = %v, want %d", got, len(keys))
	}
	if snap := c.Stats(context.Background()); snap.Misses != int64(len(keys)) {
		t.Errorf("stats misses = %d, want %d", snap.Misses, len(keys))
	}
}

func TestRedisCache_Stats(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	key := Key{Category: CategoryQuote, Symbol: "AAPL"}
	c.SetWithTTL(ctx, key, testQuote{Price: 1}, time.Minute, "test")
	c.Get(ctx, key)
	c.Get(ctx, key)
	c.Get(ctx, Key{Category: CategoryQuote, Symbol: "MISSING"})

	snap := c.Stats(ctx)
	if snap.Hits != 2 {
		t.Errorf("Hits = %d, want 2", snap.Hits)
	}
	if snap.Misses != 1 {
		t.Errorf("Misses = %d, want 1", snap.Misses)
	}
	if snap.Sets != 1 {
		t.Errorf("Sets = %d, want 1", snap.Sets)
	}
	wantRate := 2.0 / 3.0
	if snap.HitRate < wantRate-0.001 || snap.HitRate > wantRate+0.001 {
		t.Errorf("HitRate = %v, want ~%v", snap.HitRate, wantRate)
	}
	if !snap.Available {
		t.Error("stats should report available")
	}
	if snap.KeyCount == 0 {
		t.Error("KeyCount should be non-zero after a set")
	}
}

func TestParseUsedMemory(t *testing.T) {
	info := "# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\n"
	if got := parseUsedMemory(info); got != 1048576 {
		t.Errorf("parseUsedMemory = %d, want 1048576", got)
	}
	if got := parseUsedMemory("garbage"); got != 0 {
		t.Errorf("parseUsedMemory on garbage = %d, want 0", got)
	}
}
