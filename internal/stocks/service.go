// Package stocks assembles per-symbol stock analyses from a market data
// provider, a local bar store and the analysis engine.
package stocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"crypto-analyzer/internal/analysis"
	"crypto-analyzer/internal/logger"
	"crypto-analyzer/internal/metrics"
	"crypto-analyzer/internal/model"
)

// ChartPoints is how many trailing closes a StockAnalysis carries for charting.
const ChartPoints = 30

// ErrInvalidSymbol is returned for blank or malformed symbols.
var ErrInvalidSymbol = errors.New("invalid symbol")

// StockAnalysis is a quote plus the technical analysis of its daily closes.
type StockAnalysis struct {
	Symbol              string                   `json:"symbol"`
	Name                string                   `json:"name"`
	Price               float64                  `json:"price"`
	Change              float64                  `json:"change"`
	ChangePercent       float64                  `json:"changePercent"`
	Timestamp           int64                    `json:"timestamp"` // Unix ms
	TechnicalIndicators *analysis.AnalysisResult `json:"technicalIndicators"`
	HistoricalPrices    []float64                `json:"historicalPrices"`
}

// Options tunes caching and history depth.
type Options struct {
	HistoryDays int           // calendar days of history to analyse
	QuoteTTL    time.Duration // quote cache lifetime
	StaleAfter  time.Duration // refetch history when older than this
	Workers     int           // AnalyzeAll concurrency
}

// Service produces StockAnalysis values. Quotes and Publisher are optional.
type Service struct {
	market model.MarketData
	bars   model.BarStore
	quotes model.QuoteCache
	pub    model.Publisher

	opts    Options
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// NewService wires a Service. quotes and pub may be nil.
func NewService(market model.MarketData, bars model.BarStore, quotes model.QuoteCache, pub model.Publisher, opts Options, m *metrics.Metrics) *Service {
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 200
	}
	if opts.QuoteTTL <= 0 {
		opts.QuoteTTL = time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 12 * time.Hour
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Service{
		market:  market,
		bars:    bars,
		quotes:  quotes,
		pub:     pub,
		opts:    opts,
		metrics: m,
		log:     logger.Component("stocks"),
		now:     time.Now,
	}
}

// NormalizeSymbol upper-cases and validates a ticker.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" || len(s) > 16 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	for _, r := range s {
		ok := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '^' || r == '='
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
		}
	}
	return s, nil
}

// Analyze fetches the quote and daily history for symbol concurrently,
// runs the analysis and publishes the result.
func (s *Service) Analyze(ctx context.Context, symbol string) (*StockAnalysis, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	var (
		wg       sync.WaitGroup
		quote    model.Quote
		closes   []float64
		quoteErr error
		histErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		quote, quoteErr = s.Quote(ctx, sym)
	}()
	go func() {
		defer wg.Done()
		closes, histErr = s.Closes(ctx, sym)
	}()
	wg.Wait()

	if quoteErr != nil {
		return nil, quoteErr
	}
	if histErr != nil {
		return nil, histErr
	}

	start := time.Now()
	result, err := analysis.Analyze(closes)
	s.metrics.ObserveAnalysis(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", sym, err)
	}

	sa := &StockAnalysis{
		Symbol:              sym,
		Name:                quote.Name,
		Price:               quote.Price,
		Change:              quote.Change,
		ChangePercent:       quote.ChangePercent,
		Timestamp:           s.now().UnixMilli(),
		TechnicalIndicators: result,
		HistoricalPrices:    tail(closes, ChartPoints),
	}
	s.publish(ctx, sa)
	return sa, nil
}

// AnalyzeAll analyses symbols with bounded concurrency. Failures are logged
// and skipped; results keep the input order.
func (s *Service) AnalyzeAll(ctx context.Context, symbols []string) []*StockAnalysis {
	results := make([]*StockAnalysis, len(symbols))
	sem := make(chan struct{}, s.opts.Workers)
	var wg sync.WaitGroup

	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			sa, err := s.Analyze(ctx, sym)
			if err != nil {
				s.log.Warn("analysis failed", append(logger.Attrs(ctx),
					slog.String("symbol", sym), slog.Any("error", err))...)
				return
			}
			results[i] = sa
		}(i, sym)
	}
	wg.Wait()

	out := make([]*StockAnalysis, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Quote returns the cached quote when fresh, otherwise fetches and caches it.
// Cache failures never fail the call.
func (s *Service) Quote(ctx context.Context, symbol string) (model.Quote, error) {
	if s.quotes != nil {
		q, ok, err := s.quotes.GetQuote(ctx, symbol)
		switch {
		case err != nil:
			s.metrics.CacheLookup("error")
			s.log.Debug("quote cache unavailable", slog.String("symbol", symbol), slog.Any("error", err))
		case ok:
			s.metrics.CacheLookup("hit")
			return q, nil
		default:
			s.metrics.CacheLookup("miss")
		}
	}

	q, err := s.market.Quote(ctx, symbol)
	if err != nil {
		s.metrics.ProviderError(s.market.Name(), "quote")
		s.log.Warn("quote fetch failed", slog.String("provider", s.market.Name()),
			slog.String("symbol", symbol), slog.Any("error", err))
		return model.Quote{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if q.FetchedAt.IsZero() {
		q.FetchedAt = s.now().UTC()
	}

	if s.quotes != nil {
		if err := s.quotes.SetQuote(ctx, q, s.opts.QuoteTTL); err != nil {
			s.log.Debug("quote cache write failed", slog.String("symbol", symbol), slog.Any("error", err))
		}
	}
	return q, nil
}

// Closes returns daily closes for the configured history window, oldest
// first. Stored bars are used while fresh; otherwise history is refetched.
// If the refetch fails, stored bars are used when there are enough of them.
func (s *Service) Closes(ctx context.Context, symbol string) ([]float64, error) {
	since := s.historyStart()

	updated, err := s.bars.LastUpdated(ctx, symbol)
	if err != nil {
		s.log.Warn("bar store unavailable", slog.String("symbol", symbol), slog.Any("error", err))
	}

	var stored []model.Bar
	if err == nil && !updated.IsZero() {
		stored, err = s.bars.ReadBars(ctx, symbol, since)
		if err != nil {
			s.log.Warn("read stored bars failed", slog.String("symbol", symbol), slog.Any("error", err))
		}
		fresh := s.now().Sub(updated) < s.opts.StaleAfter
		if fresh && len(stored) >= analysis.MinDataPoints {
			return model.Closes(stored), nil
		}
	}

	bars, err := s.RefreshHistory(ctx, symbol)
	if err != nil {
		if len(stored) >= analysis.MinDataPoints {
			s.log.Warn("using stale history", slog.String("symbol", symbol), slog.Any("error", err))
			return model.Closes(stored), nil
		}
		return nil, err
	}
	return model.Closes(bars), nil
}

// RefreshHistory downloads the history window for symbol and stores it.
// A store failure is logged; the downloaded bars are still returned.
func (s *Service) RefreshHistory(ctx context.Context, symbol string) ([]model.Bar, error) {
	bars, err := s.market.DailyBars(ctx, symbol, s.historyStart(), s.now())
	if err != nil {
		s.metrics.ProviderError(s.market.Name(), "history")
		s.log.Warn("history fetch failed", slog.String("provider", s.market.Name()),
			slog.String("symbol", symbol), slog.Any("error", err))
		return nil, fmt.Errorf("history %s: %w", symbol, err)
	}
	s.metrics.HistoryRefreshed()

	for i := range bars {
		bars[i].Symbol = symbol
	}
	if err := s.bars.SaveBars(ctx, bars); err != nil {
		s.log.Warn("save bars failed", slog.String("symbol", symbol), slog.Any("error", err))
	}
	return bars, nil
}

func (s *Service) historyStart() time.Time {
	return model.SessionDate(s.now()).AddDate(0, 0, -s.opts.HistoryDays)
}

func (s *Service) publish(ctx context.Context, sa *StockAnalysis) {
	if s.pub == nil {
		return
	}
	payload, err := json.Marshal(sa)
	if err != nil {
		s.log.Error("encode analysis", slog.String("symbol", sa.Symbol), slog.Any("error", err))
		return
	}
	if err := s.pub.Publish(ctx, model.AnalysisChannel(sa.Symbol), payload); err != nil {
		s.log.Warn("publish analysis failed", slog.String("symbol", sa.Symbol), slog.Any("error", err))
	}
}

func tail(series []float64, n int) []float64 {
	if len(series) > n {
		series = series[len(series)-n:]
	}
	out := make([]float64, len(series))
	copy(out, series)
	return out
}
