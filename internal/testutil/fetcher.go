// Package testutil provides fetch-function stubs for cache-aside tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// YearlyCall records one invocation of a yearly fetch function.
type YearlyCall struct {
	Year  int
	Start time.Time
	End   time.Time
}

// YearlyFetch is a counting stub for histstore.YearlyFetchFunc.
// It returns the configured records per year, or Err when set.
type YearlyFetch struct {
	mu      sync.Mutex
	calls   []YearlyCall
	Records map[int][]json.RawMessage
	Err     error
}

// NewYearlyFetch creates a stub with no configured data.
func NewYearlyFetch() *YearlyFetch {
	return &YearlyFetch{Records: make(map[int][]json.RawMessage)}
}

// Fetch implements histstore.YearlyFetchFunc.
func (f *YearlyFetch) Fetch(ctx context.Context, year int, start, end time.Time) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, YearlyCall{Year: year, Start: start, End: end})
	err := f.Err
	records := f.Records[year]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return records, nil
}

// CallCount returns how many times Fetch ran.
func (f *YearlyFetch) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Calls returns a copy of the recorded invocations.
func (f *YearlyFetch) Calls() []YearlyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]YearlyCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// Bar builds a minimal OHLCV-style record with a date field.
func Bar(date string, close float64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"date":%q,"close":%g}`, date, close))
}

// Article builds a minimal news-style record with a published_at field.
func Article(publishedAt, title string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"published_at":%q,"title":%q}`, publishedAt, title))
}
