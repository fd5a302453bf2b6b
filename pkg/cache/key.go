package cache

import (
	"strings"
)

// keyPrefix namespaces all ephemeral cache keys in Redis.
const keyPrefix = "md"

// Key identifies a cached payload by category, symbol and optional date.
type Key struct {
	// Category is the data category (determines the TTL policy bucket)
	Category Category

	// Symbol is the instrument symbol (e.g., "AAPL", "BRK.B")
	Symbol string

	// Date is an optional observation date (YYYY-MM-DD) for dated entries
	Date string
}

// String generates a deterministic, sanitized cache key string.
// Format: md:category:symbol[:date]
//
// Example:
//
//	md:quote:AAPL
//	md:ohlcv:BRK.B:2023-03-01
func (k Key) String() string {
	parts := []string{keyPrefix, sanitize(string(k.Category)), sanitize(k.Symbol)}
	if k.Date != "" {
		parts = append(parts, sanitize(k.Date))
	}
	return strings.Join(parts, ":")
}

// PatternsForSymbol returns globs matching every key for exactly this
// symbol, across all categories, with and without a date component.
// Two exact patterns are used so a symbol sharing a prefix with another
// (AAPL vs AAPLX) never matches its neighbor's keys.
func PatternsForSymbol(symbol string) []string {
	s := sanitize(symbol)
	return []string{
		keyPrefix + ":*:" + s,
		keyPrefix + ":*:" + s + ":*",
	}
}

// PatternForCategory returns a glob matching every key in a category.
func PatternForCategory(category Category) string {
	return keyPrefix + ":" + sanitize(string(category)) + ":*"
}

// sanitize replaces characters that would break key structure.
// Allowed: letters, digits, '.', '-', '_'.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
