// Package gateway is the HTTP and WebSocket front end: the price-series
// analysis relay, per-symbol stock analyses, admin refresh and the live
// analysis stream.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"crypto-analyzer/internal/analysis"
	"crypto-analyzer/internal/logger"
	"crypto-analyzer/internal/market"
	"crypto-analyzer/internal/markethours"
	"crypto-analyzer/internal/metrics"
	"crypto-analyzer/internal/scheduler"
	"crypto-analyzer/internal/stocks"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
)

const (
	// maxBodyBytes caps request bodies on POST endpoints.
	maxBodyBytes = 1 << 20
	// maxSymbolsPerRequest caps the ?symbols= list on GET /api/stocks.
	maxSymbolsPerRequest = 50
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// StockAnalyzer is the slice of the stock service the handlers use.
type StockAnalyzer interface {
	Analyze(ctx context.Context, symbol string) (*stocks.StockAnalysis, error)
	AnalyzeAll(ctx context.Context, symbols []string) []*stocks.StockAnalysis
}

// Refresher runs an on-demand refresh of the watch list.
type Refresher interface {
	RefreshAll(ctx context.Context) (scheduler.Report, error)
}

// API holds the handler dependencies. Stocks, Refresher, Hub, Health and
// Metrics are optional; routes backed by a nil dependency answer 503.
type API struct {
	Stocks    StockAnalyzer
	Refresher Refresher
	Hub       *Hub
	Health    *metrics.HealthStatus
	Metrics   *metrics.Metrics

	Symbols         []string
	AdminTOTPSecret string
	RequestTimeout  time.Duration

	started time.Time
	log     *slog.Logger
}

// NewAPI creates an API with the given watch list.
func NewAPI(symbols []string) *API {
	return &API{
		Symbols:        symbols,
		RequestTimeout: 15 * time.Second,
		started:        time.Now(),
		log:            logger.Component("gateway"),
	}
}

// Routes returns the root handler with CORS and request IDs applied.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	a.handle(mux, "POST /api/analyze", a.handleAnalyze)
	a.handle(mux, "GET /api/stocks", a.handleStocks)
	a.handle(mux, "GET /api/stocks/{symbol}", a.handleStock)
	a.handle(mux, "GET /api/stocks/{symbol}/latest", a.handleLatest)
	a.handle(mux, "GET /api/stream/latest", a.handleStreamLatest)
	a.handle(mux, "GET /api/stream/missed", a.handleMissed)
	a.handle(mux, "POST /api/admin/refresh", a.handleRefresh)
	a.handle(mux, "GET /health", a.handleHealth)

	// Upgraded connections outlive the request timeout and are not instrumented.
	mux.HandleFunc("GET /ws", a.handleWS)

	mux.HandleFunc("OPTIONS /{path...}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return withCORS(withRequestID(mux))
}

// handle registers h under pattern with a timeout and request metrics.
func (a *API) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, a.instrument(pattern, h))
}

// ── POST /api/analyze ──

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	prices, ok, err := decodePrices(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid price data")
		return
	}
	if err != nil {
		a.log.Error("error analyzing data", append(logger.Attrs(r.Context()), slog.Any("error", err))...)
		writeError(w, http.StatusInternalServerError, "Failed to analyze price data")
		return
	}

	start := time.Now()
	result, err := analysis.Analyze(prices)
	a.Metrics.ObserveAnalysis(time.Since(start), err)
	if err != nil {
		a.log.Error("error analyzing data", append(logger.Attrs(r.Context()),
			slog.Int("points", len(prices)), slog.Any("error", err))...)
		writeError(w, http.StatusInternalServerError, "Failed to analyze price data")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodePrices reads {"prices":[...]}. ok is false when the body is not a
// JSON object or prices is missing or not an array. err is set when an
// element is not a number.
func decodePrices(body io.Reader) (prices []float64, ok bool, err error) {
	var req struct {
		Prices json.RawMessage `json:"prices"`
	}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, false, nil
	}
	raw := bytes.TrimSpace(req.Prices)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, false, nil
	}

	prices = make([]float64, len(elems))
	for i, el := range elems {
		if bytes.Equal(bytes.TrimSpace(el), []byte("null")) {
			return nil, true, &analysis.InvalidPriceError{Index: i}
		}
		if err := json.Unmarshal(el, &prices[i]); err != nil {
			return nil, true, &analysis.InvalidPriceError{Index: i}
		}
	}
	return prices, true, nil
}

// ── stocks ──

func (a *API) handleStocks(w http.ResponseWriter, r *http.Request) {
	if a.Stocks == nil {
		writeError(w, http.StatusServiceUnavailable, "Stock data unavailable")
		return
	}
	symbols := a.Symbols
	if q := r.URL.Query().Get("symbols"); q != "" {
		symbols = ParseSymbols(q)
		if len(symbols) > maxSymbolsPerRequest {
			writeError(w, http.StatusBadRequest, "Too many symbols")
			return
		}
	}
	results := a.Stocks.AnalyzeAll(r.Context(), symbols)
	if results == nil {
		results = []*stocks.StockAnalysis{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *API) handleStock(w http.ResponseWriter, r *http.Request) {
	if a.Stocks == nil {
		writeError(w, http.StatusServiceUnavailable, "Stock data unavailable")
		return
	}
	symbol := r.PathValue("symbol")
	sa, err := a.Stocks.Analyze(r.Context(), symbol)
	if err != nil {
		status, msg := stockErrorStatus(err)
		a.log.Warn("stock analysis failed", append(logger.Attrs(r.Context()),
			slog.String("symbol", symbol), slog.Int("status", status), slog.Any("error", err))...)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, sa)
}

// stockErrorStatus maps service errors to an HTTP status and message.
func stockErrorStatus(err error) (int, string) {
	var insufficient *analysis.InsufficientDataError
	switch {
	case errors.Is(err, stocks.ErrInvalidSymbol):
		return http.StatusBadRequest, "Invalid symbol"
	case errors.Is(err, market.ErrUnknownSymbol):
		return http.StatusNotFound, "Unknown symbol"
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity, "Insufficient price history"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Upstream timeout"
	default:
		return http.StatusBadGateway, "Failed to fetch stock data"
	}
}

func (a *API) handleLatest(w http.ResponseWriter, r *http.Request) {
	if a.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Live stream unavailable")
		return
	}
	symbol, err := stocks.NormalizeSymbol(r.PathValue("symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid symbol")
		return
	}
	data, ok := a.Hub.Latest(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "No analysis published yet")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleStreamLatest returns the last published analysis per symbol.
func (a *API) handleStreamLatest(w http.ResponseWriter, r *http.Request) {
	if a.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Live stream unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.Hub.LatestAll())
}

// handleMissed backfills envelopes: GET /api/stream/missed?channel=pub:analysis:AAPL&after=12
func (a *API) handleMissed(w http.ResponseWriter, r *http.Request) {
	if a.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Live stream unavailable")
		return
	}
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		writeError(w, http.StatusBadRequest, "channel is required")
		return
	}
	after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	if err != nil || after < 0 {
		writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
		return
	}

	missed := a.Hub.Missed(channel, after)
	out := make([]json.RawMessage, len(missed))
	for i, m := range missed {
		out[i] = m
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"channel":  channel,
		"seq":      a.Hub.ChannelSeq(channel),
		"messages": out,
	})
}

// ── admin ──

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if a.AdminTOTPSecret == "" || a.Refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "Admin refresh disabled")
		return
	}
	code := r.Header.Get("X-TOTP")
	if code == "" || !totp.Validate(code, a.AdminTOTPSecret) {
		a.log.Warn("admin refresh rejected", logger.Attrs(r.Context())...)
		writeError(w, http.StatusUnauthorized, "Invalid one-time code")
		return
	}

	report, err := a.Refresher.RefreshAll(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrRefreshInProgress) {
			writeError(w, http.StatusConflict, "Refresh already in progress")
			return
		}
		a.log.Error("admin refresh failed", append(logger.Attrs(r.Context()), slog.Any("error", err))...)
		writeError(w, http.StatusInternalServerError, "Refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ── health ──

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	body := map[string]interface{}{
		"status":      "ok",
		"uptime_sec":  int64(time.Since(a.started).Seconds()),
		"market_open": markethours.IsMarketOpen(now),
		"market":      markethours.StatusString(now),
		"ts":          now.UTC().Format(time.RFC3339Nano),
	}
	if a.Hub != nil {
		body["ws_clients"] = a.Hub.ClientCount()
		body["stream_symbols"] = a.Hub.Symbols()
		body["stream_latency"] = a.Hub.Latency.Summary()
	}
	if a.Health != nil {
		redisOK, sqliteOK := a.Health.Dependencies()
		body["redis"] = redisOK
		body["sqlite"] = sqliteOK
		if !redisOK || !sqliteOK {
			body["status"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// ── websocket ──

func (a *API) handleWS(w http.ResponseWriter, r *http.Request) {
	if a.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Live stream unavailable")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("ws upgrade failed", append(logger.Attrs(r.Context()), slog.Any("error", err))...)
		return
	}
	a.Hub.HandleWSRequest(conn, ParseSymbols(r.URL.Query().Get("symbols")))
}

// ── helpers ──

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
