package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"crypto-analyzer/internal/analysis"
	"crypto-analyzer/internal/logger"
	"crypto-analyzer/internal/metrics"
	"crypto-analyzer/internal/notification"
	"crypto-analyzer/internal/stocks"
)

// ErrRefreshInProgress is returned when RefreshAll is called while a run
// is still going.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Analyzer is the slice of the stock service the refresher needs.
type Analyzer interface {
	AnalyzeAll(ctx context.Context, symbols []string) []*stocks.StockAnalysis
}

// Flip is a change of trend direction between two refreshes.
type Flip struct {
	Symbol   string             `json:"symbol"`
	From     analysis.Direction `json:"from"`
	To       analysis.Direction `json:"to"`
	Strength float64            `json:"strength"`
	Price    float64            `json:"price"`
}

// Report summarises one refresh run.
type Report struct {
	StartedAt time.Time `json:"startedAt"`
	Took      string    `json:"took"`
	Analyzed  []string  `json:"analyzed"`
	Failed    []string  `json:"failed"`
	Flips     []Flip    `json:"flips"`
}

// Refresher re-analyses the watch list and alerts on trend flips.
type Refresher struct {
	analyzer Analyzer
	symbols  []string
	notifier notification.Notifier
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus
	log      *slog.Logger

	running atomic.Bool

	mu   sync.Mutex
	last map[string]analysis.Direction
}

// NewRefresher creates a refresher. notifier, m and health may be nil.
func NewRefresher(a Analyzer, symbols []string, notifier notification.Notifier, m *metrics.Metrics, health *metrics.HealthStatus) *Refresher {
	return &Refresher{
		analyzer: a,
		symbols:  append([]string(nil), symbols...),
		notifier: notifier,
		metrics:  m,
		health:   health,
		log:      logger.Component("refresher"),
		last:     make(map[string]analysis.Direction),
	}
}

// RefreshAll analyses every symbol once. The first direction seen for a
// symbol is only recorded; later changes are reported as flips and sent
// to the notifier. Overlapping calls fail with ErrRefreshInProgress.
func (r *Refresher) RefreshAll(ctx context.Context) (Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Report{}, ErrRefreshInProgress
	}
	defer r.running.Store(false)

	start := time.Now()
	report := Report{StartedAt: start.UTC()}
	r.metrics.RefreshRun()

	results := r.analyzer.AnalyzeAll(ctx, r.symbols)
	seen := make(map[string]bool, len(results))

	r.mu.Lock()
	for _, sa := range results {
		seen[sa.Symbol] = true
		report.Analyzed = append(report.Analyzed, sa.Symbol)

		trend := sa.TechnicalIndicators.Trend
		prev, known := r.last[sa.Symbol]
		r.last[sa.Symbol] = trend.Direction
		if known && prev != trend.Direction {
			report.Flips = append(report.Flips, Flip{
				Symbol:   sa.Symbol,
				From:     prev,
				To:       trend.Direction,
				Strength: trend.Strength,
				Price:    sa.Price,
			})
		}
	}
	r.mu.Unlock()

	for _, sym := range r.symbols {
		if !seen[sym] {
			report.Failed = append(report.Failed, sym)
		}
	}

	for _, f := range report.Flips {
		r.metrics.TrendFlip(string(f.To))
		r.alert(ctx, f)
	}

	report.Took = time.Since(start).Round(time.Millisecond).String()
	if r.health != nil {
		r.health.SetRefresh(report.StartedAt, len(report.Analyzed))
	}
	r.log.Info("refresh complete",
		slog.Int("analyzed", len(report.Analyzed)),
		slog.Int("failed", len(report.Failed)),
		slog.Int("flips", len(report.Flips)),
		slog.String("took", report.Took),
	)
	return report, nil
}

// LastDirection returns the most recent direction recorded for symbol.
func (r *Refresher) LastDirection(symbol string) (analysis.Direction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.last[symbol]
	return d, ok
}

func (r *Refresher) alert(ctx context.Context, f Flip) {
	if r.notifier == nil {
		return
	}
	level := notification.AlertInfo
	if f.To == analysis.Bearish {
		level = notification.AlertWarning
	}
	err := r.notifier.Send(ctx, notification.Alert{
		Level:   level,
		Symbol:  f.Symbol,
		Title:   fmt.Sprintf("%s trend turned %s", f.Symbol, f.To),
		Message: fmt.Sprintf("%s -> %s (strength %.2f) at %.2f", f.From, f.To, f.Strength, f.Price),
		TS:      time.Now().UTC(),
	})
	if err != nil {
		r.log.Warn("alert delivery failed", slog.String("symbol", f.Symbol), slog.Any("error", err))
	}
}
