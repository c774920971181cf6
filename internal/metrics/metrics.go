package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"crypto-analyzer/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the analyzer service.
// Every helper method is safe on a nil receiver so components can run
// without metrics in tests and in the CLI.
type Metrics struct {
	// HTTP
	RequestsTotal   *prometheus.CounterVec   // labels: route, status
	RequestDuration *prometheus.HistogramVec // labels: route

	// Analysis
	AnalyzeDuration prometheus.Histogram
	AnalysesTotal   *prometheus.CounterVec // labels: result=ok|error

	// Upstream data
	ProviderErrors   *prometheus.CounterVec // labels: provider, op=quote|history
	CacheLookups     *prometheus.CounterVec // labels: result=hit|miss|error
	HistoryRefreshes prometheus.Counter

	// Redis circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Live stream
	WSClients      prometheus.Gauge
	BroadcastTotal prometheus.Counter
	WSDropsTotal   prometheus.Counter

	// Scheduled refresh
	RefreshRuns prometheus.Counter
	TrendFlips  *prometheus.CounterVec // labels: to
}

// NewMetrics creates all collectors and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analyzer_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		AnalyzeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_analyze_duration_seconds",
			Help:    "Time spent computing indicators and trend for one series",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_analyses_total",
			Help: "Analyses run, by result",
		}, []string{"result"}),

		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_provider_errors_total",
			Help: "Market data provider failures by provider and operation",
		}, []string{"provider", "op"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_quote_cache_lookups_total",
			Help: "Quote cache lookups by result",
		}, []string{"result"}),
		HistoryRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_history_refreshes_total",
			Help: "Daily history downloads from the provider",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		BroadcastTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_ws_broadcast_total",
			Help: "Analysis messages fanned out to WebSocket clients",
		}),
		WSDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_ws_drops_total",
			Help: "Messages dropped because a client send buffer was full",
		}),

		RefreshRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_refresh_runs_total",
			Help: "Scheduled refresh runs",
		}),
		TrendFlips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_trend_flips_total",
			Help: "Trend direction changes detected between refreshes, by new direction",
		}, []string{"to"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.AnalyzeDuration,
		m.AnalysesTotal,
		m.ProviderErrors,
		m.CacheLookups,
		m.HistoryRefreshes,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSClients,
		m.BroadcastTotal,
		m.WSDropsTotal,
		m.RefreshRuns,
		m.TrendFlips,
	)

	return m
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveAnalysis records one analysis run.
func (m *Metrics) ObserveAnalysis(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.AnalyzeDuration.Observe(d.Seconds())
	if err != nil {
		m.AnalysesTotal.WithLabelValues("error").Inc()
		return
	}
	m.AnalysesTotal.WithLabelValues("ok").Inc()
}

// ProviderError counts a failed provider call.
func (m *Metrics) ProviderError(provider, op string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, op).Inc()
}

// CacheLookup counts a quote cache lookup: "hit", "miss" or "error".
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// HistoryRefreshed counts a history download.
func (m *Metrics) HistoryRefreshed() {
	if m == nil {
		return
	}
	m.HistoryRefreshes.Inc()
}

// BreakerState records a circuit breaker transition. state uses the
// breaker's numeric encoding; 1 means it just opened.
func (m *Metrics) BreakerState(state int) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(state))
	if state == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// SetWSClients records the current WebSocket client count.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

// Broadcast counts one fan-out and the clients it skipped.
func (m *Metrics) Broadcast(dropped int) {
	if m == nil {
		return
	}
	m.BroadcastTotal.Inc()
	if dropped > 0 {
		m.WSDropsTotal.Add(float64(dropped))
	}
}

// RefreshRun counts one scheduled refresh.
func (m *Metrics) RefreshRun() {
	if m == nil {
		return
	}
	m.RefreshRuns.Inc()
}

// TrendFlip counts a direction change.
func (m *Metrics) TrendFlip(to string) {
	if m == nil {
		return
	}
	m.TrendFlips.WithLabelValues(to).Inc()
}

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// HealthStatus tracks dependency health for the service.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastRefreshAt  time.Time `json:"last_refresh_at"`
	LastRefreshOK  int       `json:"last_refresh_ok"`
	Symbols        int       `json:"symbols"`

	// Liveness check results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a health status for a service tracking symbols.
func NewHealthStatus(symbols int) *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		Symbols:   symbols,
	}
}

// SetRefresh records the outcome of a refresh run.
func (h *HealthStatus) SetRefresh(at time.Time, ok int) {
	h.mu.Lock()
	h.LastRefreshAt = at
	h.LastRefreshOK = ok
	h.mu.Unlock()
}

// Dependencies reports the last check results.
func (h *HealthStatus) Dependencies() (redisOK, sqliteOK bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.RedisConnected, h.SQLiteOK
}

// Check pings Redis and SQLite once. A nil ping marks that
// dependency unhealthy.
func (h *HealthStatus) Check(ctx context.Context, redisPing, sqlitePing PingFunc) {
	redisOK, redisMs := runPing(ctx, redisPing)
	sqliteOK, sqliteMs := runPing(ctx, sqlitePing)

	h.mu.Lock()
	h.RedisConnected = redisOK
	h.RedisLatencyMs = redisMs
	h.SQLiteOK = sqliteOK
	h.SQLiteLatencyMs = sqliteMs
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

func runPing(ctx context.Context, p PingFunc) (bool, float64) {
	if p == nil {
		return false, 0
	}
	start := time.Now()
	err := p(ctx)
	return err == nil, float64(time.Since(start).Microseconds()) / 1000.0
}

// StartLivenessChecker runs Check immediately and then every interval.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, redisPing, sqlitePing PingFunc, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			h.Check(checkCtx, redisPing, sqlitePing)
			cancel()

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// ServeHTTP reports health as JSON. The service is "healthy" with both
// dependencies up, "degraded" with one down (503) and "unhealthy" with
// both down (503).
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	lastRefresh := ""
	if !h.LastRefreshAt.IsZero() {
		lastRefresh = h.LastRefreshAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		Symbols         int     `json:"symbols"`
		LastRefreshAt   string  `json:"last_refresh_at"`
		LastRefreshOK   int     `json:"last_refresh_ok"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Symbols:         h.Symbols,
		LastRefreshAt:   lastRefresh,
		LastRefreshOK:   h.LastRefreshOK,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates a metrics and health server. gatherer selects the
// registry to expose; nil means the default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger.Component("metrics"),
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("server error", slog.Any("error", err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
