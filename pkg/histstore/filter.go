package histstore

import (
	"encoding/json"
	"time"
)

// Field names checked, in order, when extracting a record's date.
var (
	dateFields  = []string{"date", "published_at", "publishedAt", "published", "datetime"}
	epochFields = []string{"timestamp", "time", "t"}
)

// Date string layouts accepted for record date fields.
var dateLayouts = []string{
	dateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// filterRange returns the records whose date falls inside [start, end],
// with both bounds inclusive at day granularity. A record with no
// recognizable date field is conservatively kept.
func filterRange(records []json.RawMessage, start, end time.Time) []json.RawMessage {
	startDay := truncateDay(start)
	endExclusive := truncateDay(end).AddDate(0, 0, 1)

	out := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		d, ok := recordDate(rec)
		if ok && (d.Before(startDay) || !d.Before(endExclusive)) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// recordDate extracts a record's date from conventional field names:
// a plain date string, a published-timestamp string, or a numeric epoch
// timestamp (seconds or milliseconds). Returns false when none is present.
func recordDate(raw json.RawMessage) (time.Time, bool) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return time.Time{}, false
	}

	for _, field := range dateFields {
		s, ok := m[field].(string)
		if !ok {
			continue
		}
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return d.UTC(), true
			}
		}
	}

	for _, field := range epochFields {
		n, ok := m[field].(float64)
		if !ok || n <= 0 {
			continue
		}
		// Heuristic: epoch values beyond ~year 33658 in seconds are
		// millisecond timestamps.
		if n > 1e12 {
			return time.UnixMilli(int64(n)).UTC(), true
		}
		return time.Unix(int64(n), 0).UTC(), true
	}

	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
