package cache

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
)

// compressedSuffix is appended to a key to form the sibling marker key
// noting that the stored value is gzip-compressed.
const compressedSuffix = ":gz"

// markerKey returns the sibling marker key for a cache key string.
func markerKey(key string) string {
	return key + compressedSuffix
}

// marshalPayload serializes an arbitrary payload to JSON, passing through
// values that are already raw JSON bytes.
func marshalPayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(payload)
	}
}

// encodeEntry serializes an entry and compresses it when the serialized
// length exceeds threshold. Returns the bytes to store and whether they
// are compressed. A threshold <= 0 disables compression.
func encodeEntry(entry *Entry, threshold int) ([]byte, bool, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, false, fmt.Errorf("marshal cache entry: %w", err)
	}

	if threshold <= 0 || len(data) <= threshold {
		return data, false, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, false, fmt.Errorf("compress cache entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("compress cache entry: %w", err)
	}

	return buf.Bytes(), true, nil
}

// decodeEntry decompresses (if marked) and unmarshals a stored entry.
// Entries written with a different schema version are rejected.
func decodeEntry(data []byte, compressed bool) (*Entry, error) {
	if compressed {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		defer zr.Close()

		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %q", ErrInvalidEntry, entry.SchemaVersion)
	}

	return &entry, nil
}
