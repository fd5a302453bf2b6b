// Package histstore provides the permanent, partitioned store for
// historical market data that never changes once observed.
package histstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// SchemaVersion is the current partition envelope encoding version.
const SchemaVersion = "v1"

// ErrNotFound indicates no partition exists for the requested key.
// Read errors (missing or corrupt partition files) surface as ErrNotFound
// so the caller falls through to its fetch path.
var ErrNotFound = errors.New("no partition for key")

// yearlySubdir holds yearly partitions under each category root.
const yearlySubdir = "yearly"

// Entry is the envelope persisted for a daily partition.
type Entry struct {
	DataType      string          `json:"data_type"`
	Symbol        string          `json:"symbol"`
	Date          string          `json:"date"`
	Payload       json.RawMessage `json:"payload"`
	CachedAt      time.Time       `json:"cached_at"`
	Source        string          `json:"source,omitempty"`
	SchemaVersion string          `json:"schema_version"`
}

// YearlyEntry is the envelope persisted for a yearly partition.
// RangeStart and RangeEnd always span the full calendar year regardless
// of the originally requested sub-range, so any later partial request in
// the same year is served from this partition.
type YearlyEntry struct {
	DataType      string            `json:"data_type"`
	Symbol        string            `json:"symbol"`
	Year          int               `json:"year"`
	RangeStart    string            `json:"range_start"`
	RangeEnd      string            `json:"range_end"`
	Payload       []json.RawMessage `json:"payload"`
	CachedAt      time.Time         `json:"cached_at"`
	Source        string            `json:"source,omitempty"`
	SchemaVersion string            `json:"schema_version"`
}

// YearlyFetchFunc loads one calendar year of records from an upstream
// provider. start and end are the year's clamped bounds (Jan 1 and Dec 31).
type YearlyFetchFunc func(ctx context.Context, year int, start, end time.Time) ([]json.RawMessage, error)

// DailyFetchFunc loads a single daily record from an upstream provider.
// A nil result with nil error means the upstream had no data.
type DailyFetchFunc func(ctx context.Context) (json.RawMessage, error)

// Options configures the store.
type Options struct {
	// Root is the partition root directory
	Root string

	// MaxParallelFetch bounds concurrent upstream fetches when a range
	// request spans several missing years. Defaults to 4.
	MaxParallelFetch int
}

// Store is a partitioned, append-mostly store for immutable historical
// data. Entries are created once per (type, symbol, date) or
// (type, symbol, year) and never mutated thereafter.
type Store struct {
	root        string
	maxParallel int
	logger      zerolog.Logger
	sf          singleflight.Group
	stats       stats
}

// New creates a store rooted at opts.Root, creating the directory if needed.
func New(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("store root directory is required")
	}
	if opts.MaxParallelFetch <= 0 {
		opts.MaxParallelFetch = 4
	}

	if err := os.MkdirAll(opts.Root, 0o750); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}

	return &Store{
		root:        opts.Root,
		maxParallel: opts.MaxParallelFetch,
		logger:      log.With().Str("component", "histstore").Logger(),
	}, nil
}

// Has reports whether a daily partition exists.
func (s *Store) Has(dataType, symbol, date string) bool {
	_, err := os.Stat(s.dailyPath(dataType, symbol, date))
	return err == nil
}

// Get returns the payload of a daily partition, or ErrNotFound.
func (s *Store) Get(dataType, symbol, date string) (json.RawMessage, error) {
	payload, err := s.readDaily(dataType, symbol, date)
	if err != nil {
		s.miss()
		return nil, err
	}
	s.hit()
	return payload, nil
}

// readDaily reads a daily partition without touching the hit/miss
// counters, for rechecks inside an in-flight fetch.
func (s *Store) readDaily(dataType, symbol, date string) (json.RawMessage, error) {
	data, err := os.ReadFile(s.dailyPath(dataType, symbol, date))
	if err != nil {
		return nil, ErrNotFound
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.countError()
		s.logger.Warn().Err(err).
			Str("data_type", dataType).
			Str("symbol", symbol).
			Str("date", date).
			Msg("Corrupt daily partition, treating as miss")
		return nil, ErrNotFound
	}

	return entry.Payload, nil
}

// Set persists a daily partition. The first write wins: an existing
// partition is never overwritten, since the data was immutable at the
// time of first observation.
func (s *Store) Set(dataType, symbol, date string, payload json.RawMessage, source string) error {
	path := s.dailyPath(dataType, symbol, date)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	entry := Entry{
		DataType:      dataType,
		Symbol:        symbol,
		Date:          date,
		Payload:       payload,
		CachedAt:      time.Now(),
		Source:        source,
		SchemaVersion: SchemaVersion,
	}

	if err := s.writeFile(path, entry); err != nil {
		s.countError()
		return err
	}
	s.set()
	return nil
}

// GetYearly returns all records of a yearly partition, or ErrNotFound.
func (s *Store) GetYearly(dataType, symbol string, year int) ([]json.RawMessage, error) {
	records, err := s.readYearly(dataType, symbol, year)
	if err != nil {
		s.miss()
		return nil, err
	}
	s.hit()
	return records, nil
}

// readYearly reads a yearly partition without touching the hit/miss
// counters, for rechecks inside an in-flight fetch.
func (s *Store) readYearly(dataType, symbol string, year int) ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.yearlyPath(dataType, symbol, year))
	if err != nil {
		return nil, ErrNotFound
	}

	var entry YearlyEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.countError()
		s.logger.Warn().Err(err).
			Str("data_type", dataType).
			Str("symbol", symbol).
			Int("year", year).
			Msg("Corrupt yearly partition, treating as miss")
		return nil, ErrNotFound
	}

	return entry.Payload, nil
}

// SetYearly persists a yearly partition covering the full calendar year.
// First write wins, as with daily partitions.
func (s *Store) SetYearly(dataType, symbol string, year int, records []json.RawMessage, source string) error {
	path := s.yearlyPath(dataType, symbol, year)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	entry := YearlyEntry{
		DataType:      dataType,
		Symbol:        symbol,
		Year:          year,
		RangeStart:    yearStart(year).Format(dateLayout),
		RangeEnd:      yearEnd(year).Format(dateLayout),
		Payload:       records,
		CachedAt:      time.Now(),
		Source:        source,
		SchemaVersion: SchemaVersion,
	}

	if err := s.writeFile(path, entry); err != nil {
		s.countError()
		return err
	}
	s.set()
	return nil
}

// GetOrFetch implements cache-aside for a daily partition: return the
// stored payload if present, otherwise call fetch and persist a non-nil
// result. Fetch errors propagate unmodified; persistence failures are
// logged and the fetched data is still returned.
func (s *Store) GetOrFetch(ctx context.Context, dataType, symbol, date string, fetch DailyFetchFunc, source string) (json.RawMessage, error) {
	if payload, err := s.Get(dataType, symbol, date); err == nil {
		return payload, nil
	}

	result, err, _ := s.sf.Do(s.dailyPath(dataType, symbol, date), func() (any, error) {
		// Re-check inside the flight: a concurrent caller may have
		// persisted the partition while we waited.
		if payload, err := s.readDaily(dataType, symbol, date); err == nil {
			return payload, nil
		}

		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			return nil, nil
		}

		if err := s.Set(dataType, symbol, date, payload, source); err != nil {
			s.logger.Warn().Err(err).
				Str("data_type", dataType).
				Str("symbol", symbol).
				Str("date", date).
				Msg("Failed to persist daily partition, returning fetched data anyway")
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(json.RawMessage), nil
}

// GetOrFetchYearly assembles records for [start, end] across yearly
// partitions. The range is split per calendar year spanned: cached years
// are filtered to the requested intersection; missing years are fetched
// with their full-year clamp and persisted whole, so any later sub-range
// request in the same year is a pure hit with zero upstream calls.
//
// Missing years are fetched in parallel, bounded by MaxParallelFetch.
// Concurrent requests for the same (type, symbol, year) share one fetch.
func (s *Store) GetOrFetchYearly(ctx context.Context, dataType, symbol string, start, end time.Time, fetch YearlyFetchFunc, source string) ([]json.RawMessage, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: end %s before start %s",
			end.Format(dateLayout), start.Format(dateLayout))
	}

	years := make([]int, 0, end.Year()-start.Year()+1)
	for y := start.Year(); y <= end.Year(); y++ {
		years = append(years, y)
	}

	perYear := make(map[int][]json.RawMessage, len(years))
	missing := make([]int, 0, len(years))

	for _, y := range years {
		records, err := s.GetYearly(dataType, symbol, y)
		if err != nil {
			missing = append(missing, y)
			continue
		}
		perYear[y] = records
	}

	if len(missing) > 0 {
		fetched, err := s.fetchYears(ctx, dataType, symbol, missing, fetch, source)
		if err != nil {
			return nil, err
		}
		for y, records := range fetched {
			perYear[y] = records
		}
	}

	sort.Ints(years)
	var result []json.RawMessage
	for _, y := range years {
		result = append(result, filterRange(perYear[y], start, end)...)
	}
	return result, nil
}

// fetchYears loads the given missing years upstream with bounded
// parallelism, persisting each non-empty full-year result.
func (s *Store) fetchYears(ctx context.Context, dataType, symbol string, years []int, fetch YearlyFetchFunc, source string) (map[int][]json.RawMessage, error) {
	results := make([][]json.RawMessage, len(years))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)

	for i, y := range years {
		g.Go(func() error {
			records, err := s.fetchYear(gctx, dataType, symbol, y, fetch, source)
			if err != nil {
				return err
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int][]json.RawMessage, len(years))
	for i, y := range years {
		out[y] = results[i]
	}
	return out, nil
}

// fetchYear loads one calendar year, single-flighted per partition key.
func (s *Store) fetchYear(ctx context.Context, dataType, symbol string, year int, fetch YearlyFetchFunc, source string) ([]json.RawMessage, error) {
	flightKey := fmt.Sprintf("%s:%s:%d", dataType, symbol, year)

	result, err, _ := s.sf.Do(flightKey, func() (any, error) {
		// A concurrent flight may have just persisted this year.
		if records, err := s.readYearly(dataType, symbol, year); err == nil {
			return records, nil
		}

		records, err := fetch(ctx, year, yearStart(year), yearEnd(year))
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			// Empty results are never persisted: a transient upstream
			// failure must not become a permanent false hit.
			return []json.RawMessage(nil), nil
		}

		if err := s.SetYearly(dataType, symbol, year, records, source); err != nil {
			s.logger.Warn().Err(err).
				Str("data_type", dataType).
				Str("symbol", symbol).
				Int("year", year).
				Msg("Failed to persist yearly partition, returning fetched data anyway")
		}

		s.logger.Debug().
			Str("data_type", dataType).
			Str("symbol", symbol).
			Int("year", year).
			Int("records", len(records)).
			Msg("Fetched and persisted yearly partition")

		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]json.RawMessage), nil
}

// Stats returns a snapshot of partition reads and writes since startup.
func (s *Store) Stats() StatsSnapshot {
	return s.stats.snapshot()
}

func (s *Store) hit() {
	s.stats.hits.Add(1)
	StoreHits.Inc()
}

func (s *Store) miss() {
	s.stats.misses.Add(1)
	StoreMisses.Inc()
}

func (s *Store) set() {
	s.stats.sets.Add(1)
	StoreSets.Inc()
}

func (s *Store) countError() {
	s.stats.errors.Add(1)
	StoreErrors.Inc()
}

// writeFile persists an envelope atomically: write to a temp file in the
// target directory, then rename into place. Concurrent writers of the
// same partition produce identical content, so last-rename-wins is safe.
func (s *Store) writeFile(path string, envelope any) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal partition: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create partition dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".partition-*")
	if err != nil {
		return fmt.Errorf("create temp partition: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write partition: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close partition: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename partition: %w", err)
	}
	return nil
}

func (s *Store) dailyPath(dataType, symbol, date string) string {
	name := sanitizeComponent(symbol) + "_" + sanitizeComponent(date) + ".json"
	return filepath.Join(s.root, sanitizeComponent(dataType), name)
}

func (s *Store) yearlyPath(dataType, symbol string, year int) string {
	name := fmt.Sprintf("%s_%d.json", sanitizeComponent(symbol), year)
	return filepath.Join(s.root, sanitizeComponent(dataType), yearlySubdir, name)
}

// sanitizeComponent makes a key component safe for use in a file name.
// Allowed: letters, digits, '.', '-'; everything else becomes '_'.
func sanitizeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if strings.Trim(out, ".") == "" {
		return "_"
	}
	return out
}

const dateLayout = "2006-01-02"

func yearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func yearEnd(year int) time.Time {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}
