package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func testEntry(payload string) *Entry {
	return NewEntry(
		Key{Category: CategoryQuote, Symbol: "AAPL"},
		json.RawMessage(payload),
		30*time.Second,
		"test",
	)
}

func TestEncodeEntry_BelowThreshold(t *testing.T) {
	entry := testEntry(`{"price":150.0}`)

	data, compressed, err := encodeEntry(entry, 1<<20)
	if err != nil {
		t.Fatalf("encodeEntry failed: %v", err)
	}
	if compressed {
		t.Error("small entry should not be compressed")
	}

	decoded, err := decodeEntry(data, compressed)
	if err != nil {
		t.Fatalf("decodeEntry failed: %v", err)
	}
	if !bytes.Equal(decoded.Payload, entry.Payload) {
		t.Errorf("payload mismatch: got %s, want %s", decoded.Payload, entry.Payload)
	}
}

func TestEncodeEntry_AboveThreshold(t *testing.T) {
	// Repetitive payload compresses well and clearly exceeds the threshold.
	big := `{"series":"` + strings.Repeat("0123456789", 500) + `"}`
	entry := testEntry(big)

	data, compressed, err := encodeEntry(entry, 64)
	if err != nil {
		t.Fatalf("encodeEntry failed: %v", err)
	}
	if !compressed {
		t.Fatal("large entry should be compressed")
	}
	if len(data) >= len(big) {
		t.Errorf("compressed size %d not smaller than payload %d", len(data), len(big))
	}

	decoded, err := decodeEntry(data, true)
	if err != nil {
		t.Fatalf("decodeEntry failed: %v", err)
	}
	if !bytes.Equal(decoded.Payload, entry.Payload) {
		t.Error("round-trip payload mismatch for compressed entry")
	}
}

func TestEncodeEntry_ThresholdDisabled(t *testing.T) {
	big := `{"series":"` + strings.Repeat("0123456789", 500) + `"}`

	_, compressed, err := encodeEntry(testEntry(big), 0)
	if err != nil {
		t.Fatalf("encodeEntry failed: %v", err)
	}
	if compressed {
		t.Error("threshold 0 should disable compression")
	}
}

func TestDecodeEntry_Garbage(t *testing.T) {
	if _, err := decodeEntry([]byte("not json"), false); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
	if _, err := decodeEntry([]byte("not gzip"), true); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry for bad gzip, got %v", err)
	}
}

func TestDecodeEntry_SchemaVersionMismatch(t *testing.T) {
	entry := testEntry(`{"price":1}`)
	entry.SchemaVersion = "v0"

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if _, err := decodeEntry(data, false); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry for old schema, got %v", err)
	}
}

func TestMarshalPayload(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)

	got, err := marshalPayload(raw)
	if err != nil {
		t.Fatalf("marshalPayload failed: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Error("raw JSON should pass through unchanged")
	}

	got, err = marshalPayload(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("marshalPayload failed: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("marshalPayload = %s, want {\"a\":1}", got)
	}
}
