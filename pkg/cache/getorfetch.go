package cache

import (
	"context"
	"time"
)

// FetchFunc loads a value from an upstream provider on cache miss.
// A nil result with nil error means the upstream had no data; it is
// returned to the caller but never cached.
type FetchFunc[T any] func(ctx context.Context) (*T, error)

// GetOrFetch implements cache-aside for the ephemeral tier: check the
// cache, call fetch on miss, persist only non-nil results.
//
// Concurrent misses for the same key are coalesced: one caller runs the
// fetch, the rest wait for its result. Fetch errors propagate to the
// caller unmodified; cache-layer failures never do.
func GetOrFetch[T any](ctx context.Context, c *RedisCache, key Key, fetch FetchFunc[T], source string) (*T, error) {
	return getOrFetch(ctx, c, key, 0, fetch, source)
}

// GetOrFetchTTL is GetOrFetch with an explicit TTL instead of the
// policy-computed one.
func GetOrFetchTTL[T any](ctx context.Context, c *RedisCache, key Key, ttl time.Duration, fetch FetchFunc[T], source string) (*T, error) {
	return getOrFetch(ctx, c, key, ttl, fetch, source)
}

func getOrFetch[T any](ctx context.Context, c *RedisCache, key Key, ttl time.Duration, fetch FetchFunc[T], source string) (*T, error) {
	if entry, err := c.Get(ctx, key); err == nil {
		value, decodeErr := Decode[T](entry)
		if decodeErr == nil {
			return value, nil
		}
		// Payload does not decode into T: treat as miss and refetch.
		c.countError("get")
		c.logger.Warn().Err(decodeErr).Str("key", key.String()).Msg("Cached payload failed to decode, refetching")
	}

	result, err, _ := c.sf.Do(key.String(), func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if value == nil {
			// Empty upstream results are never cached: a transient
			// provider outage must not become a persistent false miss.
			return nil, nil
		}

		if ttl > 0 {
			c.SetWithTTL(ctx, key, value, ttl, source)
		} else {
			c.Set(ctx, key, value, source)
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*T), nil
}
