package model

import (
	"context"
	"time"
)

// ── Port interfaces ──
// These decouple the stock service from concrete providers and storage
// (Yahoo, SQLite, Redis). Each implementation satisfies one of them.

// MarketData fetches quotes and daily history from an upstream provider.
type MarketData interface {
	// Quote returns the latest quote for symbol.
	Quote(ctx context.Context, symbol string) (Quote, error)

	// DailyBars returns daily bars in [from, to], oldest first.
	DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// BarStore persists daily bars so history is not refetched on every request.
type BarStore interface {
	// SaveBars upserts bars keyed by (symbol, session date).
	SaveBars(ctx context.Context, bars []Bar) error

	// ReadBars returns bars for symbol on or after since, oldest first.
	ReadBars(ctx context.Context, symbol string, since time.Time) ([]Bar, error)

	// LastUpdated reports when bars for symbol were last saved.
	// Returns the zero time if the symbol has never been stored.
	LastUpdated(ctx context.Context, symbol string) (time.Time, error)
}

// QuoteCache holds recent quotes for a short TTL.
type QuoteCache interface {
	// GetQuote returns the cached quote, or ok=false on a miss.
	GetQuote(ctx context.Context, symbol string) (q Quote, ok bool, err error)

	// SetQuote caches q for ttl.
	SetQuote(ctx context.Context, q Quote, ttl time.Duration) error
}

// Publisher fans out JSON payloads to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
