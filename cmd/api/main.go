package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"crypto-analyzer/config"
	"crypto-analyzer/internal/gateway"
	"crypto-analyzer/internal/logger"
	"crypto-analyzer/internal/market"
	"crypto-analyzer/internal/metrics"
	"crypto-analyzer/internal/model"
	"crypto-analyzer/internal/notification"
	"crypto-analyzer/internal/scheduler"
	"crypto-analyzer/internal/stocks"
	redisstore "crypto-analyzer/internal/store/redis"
	sqlitestore "crypto-analyzer/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
)

func main() {
	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.Init("api", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", slog.String("addr", cfg.HTTPAddr), slog.Int("symbols", len(cfg.Symbols)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus(len(cfg.Symbols))

	// ── Storage ──

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Error("sqlite dir", slog.Any("error", err))
		os.Exit(1)
	}
	bars, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Error("sqlite open failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bars.Close()

	// Redis is optional: without it quotes are not cached and the live
	// stream is disabled.
	var (
		quotes model.QuoteCache
		pub    model.Publisher
		rdb    *goredis.Client
		cache  *redisstore.Store
	)
	cache, err = redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Warn("redis unavailable, running without cache and live stream", slog.Any("error", err))
	} else {
		defer cache.Close()
		cache.Breaker().OnStateChange = func(from, to redisstore.State) {
			m.BreakerState(int(to))
			log.Warn("redis circuit breaker", slog.String("from", from.String()), slog.String("to", to.String()))
		}
		quotes, pub, rdb = cache, cache, cache.Client()
	}

	// ── Services ──

	svc := stocks.NewService(market.NewYahoo(), bars, quotes, pub, stocks.Options{
		HistoryDays: cfg.HistoryDays,
		QuoteTTL:    cfg.QuoteTTL,
		StaleAfter:  cfg.HistoryStaleAfter,
	}, m)

	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}

	refresher := scheduler.NewRefresher(svc, cfg.Symbols, notifiers, m, health)
	sched := scheduler.New(ctx, refresher)
	sched.TradingDaysOnly = cfg.RefreshTradingDaysOnly
	if err := sched.Register(cfg.RefreshCron); err != nil {
		log.Error("scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	sched.Start()
	if cfg.RunOnStart {
		go sched.RunNow()
	}

	// ── Live stream ──

	hub := gateway.NewHub(rdb, m)
	if cache != nil {
		seedCtx, seedCancel := context.WithTimeout(ctx, 5*time.Second)
		snapshots, err := cache.LatestAll(seedCtx, model.AnalysisChannelPattern)
		seedCancel()
		if err != nil {
			log.Warn("latest snapshot seed failed", slog.Any("error", err))
		} else {
			hub.Seed(snapshots)
			log.Info("seeded latest analyses", slog.Int("channels", len(snapshots)))
		}
	}
	go hub.Run(ctx)

	// ── Health and metrics ──

	var redisPing metrics.PingFunc
	if cache != nil {
		redisPing = cache.Ping
	}
	health.StartLivenessChecker(ctx, redisPing, bars.DB().PingContext, 15*time.Second)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)
	metricsSrv.Start()

	// ── HTTP ──

	api := gateway.NewAPI(cfg.Symbols)
	api.Stocks = svc
	api.Refresher = refresher
	api.Hub = hub
	api.Health = health
	api.Metrics = m
	api.AdminTOTPSecret = cfg.AdminTOTPSecret
	api.RequestTimeout = cfg.RequestTimeout

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", slog.Any("error", err))
			cancel()
		}
	}()

	// ── Shutdown ──

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	srv.Shutdown(shutdownCtx)
	sched.Stop(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	cancel()

	log.Info("stopped")
}
