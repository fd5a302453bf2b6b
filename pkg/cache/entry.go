package cache

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the current envelope encoding version. Entries written
// with a different version are rejected as invalid rather than decoded.
const SchemaVersion = "v1"

// Entry is the versioned envelope around a cached payload.
type Entry struct {
	// Symbol is the instrument symbol this entry belongs to (e.g., "AAPL")
	Symbol string `json:"symbol,omitempty"`

	// DataType is the data category (e.g., "quote", "fundamentals")
	DataType string `json:"data_type,omitempty"`

	// Date is the observation date for dated entries (YYYY-MM-DD), empty otherwise
	Date string `json:"date,omitempty"`

	// Payload is the cached data, serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CachedAt is when the entry was written
	CachedAt time.Time `json:"cached_at"`

	// TTLSeconds is the maximum age before the entry is stale.
	// Staleness is re-checked on read; the backing store's own expiry
	// is not trusted on its own.
	TTLSeconds int64 `json:"ttl_seconds"`

	// Source identifies the upstream provider that produced the payload
	Source string `json:"source,omitempty"`

	// SchemaVersion is the envelope encoding version
	SchemaVersion string `json:"schema_version"`
}

// NewEntry creates an envelope for the given key and payload.
func NewEntry(key Key, payload json.RawMessage, ttl time.Duration, source string) *Entry {
	return &Entry{
		Symbol:        key.Symbol,
		DataType:      string(key.Category),
		Date:          key.Date,
		Payload:       payload,
		CachedAt:      time.Now(),
		TTLSeconds:    int64(ttl / time.Second),
		Source:        source,
		SchemaVersion: SchemaVersion,
	}
}

// IsExpired returns true if the entry is older than its TTL at time now.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return now.Sub(e.CachedAt) > e.TTL()
}

// TTL returns the entry's time-to-live as a duration.
func (e *Entry) TTL() time.Duration {
	return time.Duration(e.TTLSeconds) * time.Second
}

// Age returns how long ago the entry was cached.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}

// Decode unmarshals the entry payload into a value of type T.
func Decode[T any](e *Entry) (*T, error) {
	var v T
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
