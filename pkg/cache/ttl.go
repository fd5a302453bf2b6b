package cache

import (
	"time"
)

// Category classifies cached data by how fast it moves.
type Category string

const (
	// CategoryQuote is real-time price quotes.
	CategoryQuote Category = "quote"

	// CategoryOrderBook is order-book-adjacent data (bid/ask depth).
	CategoryOrderBook Category = "orderbook"

	// CategoryOHLCV is intraday and end-of-day price bars.
	CategoryOHLCV Category = "ohlcv"

	// CategoryNews is news articles and headlines.
	CategoryNews Category = "news"

	// CategorySentiment is aggregated sentiment scores.
	CategorySentiment Category = "sentiment"

	// CategoryFundamentals is balance sheets, earnings and other filings data.
	CategoryFundamentals Category = "fundamentals"

	// CategoryAnalysis is derived analysis results (screeners, scores).
	CategoryAnalysis Category = "analysis"
)

// TTL values per category. Fast-moving categories get seconds-scale TTLs
// while the exchange session is active and an order of magnitude longer
// outside it. Fundamentals change on filing cadence and always get a long
// TTL regardless of session.
const (
	TTLQuoteSession = 30 * time.Second
	TTLQuoteClosed  = 15 * time.Minute

	TTLOrderBookSession = 10 * time.Second
	TTLOrderBookClosed  = 10 * time.Minute

	TTLOHLCVSession = 1 * time.Hour
	TTLOHLCVClosed  = 6 * time.Hour

	TTLNewsSession = 5 * time.Minute
	TTLNewsClosed  = 30 * time.Minute

	TTLSentimentSession = 15 * time.Minute
	TTLSentimentClosed  = 1 * time.Hour

	TTLAnalysisSession = 10 * time.Minute
	TTLAnalysisClosed  = 1 * time.Hour

	TTLFundamentals = 24 * time.Hour

	// DefaultTTL is the fallback for unknown categories.
	DefaultTTL = 5 * time.Minute
)

// Regular US equity session bounds, minutes from midnight exchange-local time.
const (
	sessionOpenMinute  = 9*60 + 30 // 09:30
	sessionCloseMinute = 16 * 60   // 16:00
)

// MarketCalendar decides whether the exchange trading session is active
// at a given wall-clock time.
type MarketCalendar struct {
	// Location is the exchange time zone
	Location *time.Location

	// OpenMinute and CloseMinute are session bounds in minutes from
	// midnight, exchange-local time
	OpenMinute  int
	CloseMinute int
}

// NewYorkCalendar returns the regular NYSE/Nasdaq session calendar
// (09:30-16:00 America/New_York, Monday-Friday). Falls back to UTC if
// the time zone database is unavailable.
func NewYorkCalendar() MarketCalendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return MarketCalendar{
		Location:    loc,
		OpenMinute:  sessionOpenMinute,
		CloseMinute: sessionCloseMinute,
	}
}

// IsOpen returns true if t falls inside the trading session.
// Weekends are always closed; exchange holidays are not modeled, so a
// holiday weekday counts as open and simply caches a little too briefly.
func (c MarketCalendar) IsOpen(t time.Time) bool {
	local := t.In(c.Location)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	return minute >= c.OpenMinute && minute < c.CloseMinute
}

// TTLPolicy computes the TTL for a category at a given time.
// Session and closed values are held in explicit tables so configuration
// can override individual categories without touching the session logic.
type TTLPolicy struct {
	Calendar MarketCalendar

	// SessionTTL applies while the trading session is active
	SessionTTL map[Category]time.Duration

	// ClosedTTL applies outside trading hours and on weekends
	ClosedTTL map[Category]time.Duration

	// Default applies to categories missing from both tables
	Default time.Duration
}

// DefaultTTLPolicy returns the policy with the built-in per-category values
// and the New York session calendar.
func DefaultTTLPolicy() *TTLPolicy {
	return &TTLPolicy{
		Calendar: NewYorkCalendar(),
		SessionTTL: map[Category]time.Duration{
			CategoryQuote:        TTLQuoteSession,
			CategoryOrderBook:    TTLOrderBookSession,
			CategoryOHLCV:        TTLOHLCVSession,
			CategoryNews:         TTLNewsSession,
			CategorySentiment:    TTLSentimentSession,
			CategoryAnalysis:     TTLAnalysisSession,
			CategoryFundamentals: TTLFundamentals,
		},
		ClosedTTL: map[Category]time.Duration{
			CategoryQuote:        TTLQuoteClosed,
			CategoryOrderBook:    TTLOrderBookClosed,
			CategoryOHLCV:        TTLOHLCVClosed,
			CategoryNews:         TTLNewsClosed,
			CategorySentiment:    TTLSentimentClosed,
			CategoryAnalysis:     TTLAnalysisClosed,
			CategoryFundamentals: TTLFundamentals,
		},
		Default: DefaultTTL,
	}
}

// For returns the TTL for a category at time now.
func (p *TTLPolicy) For(category Category, now time.Time) time.Duration {
	table := p.ClosedTTL
	if p.Calendar.IsOpen(now) {
		table = p.SessionTTL
	}

	if ttl, ok := table[category]; ok {
		return ttl
	}
	return p.Default
}

// Override sets the TTL for a category in both session tables.
// Used for absolute category-to-TTL configuration overrides.
func (p *TTLPolicy) Override(category Category, ttl time.Duration) {
	p.SessionTTL[category] = ttl
	p.ClosedTTL[category] = ttl
}

// OverrideSession sets the TTL for a category during market hours only.
func (p *TTLPolicy) OverrideSession(category Category, ttl time.Duration) {
	p.SessionTTL[category] = ttl
}
