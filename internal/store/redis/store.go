package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crypto-analyzer/internal/logger"
	"crypto-analyzer/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	quoteKeyPrefix  = "quote:"
	latestKeyPrefix = "latest:"

	// Spans a weekend without trading.
	defaultLatestTTL = 72 * time.Hour
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Store is the Redis-backed quote cache and analysis publisher. It
// implements model.QuoteCache and model.Publisher. Every command goes
// through a circuit breaker so an unreachable Redis degrades to cache
// misses instead of stalling requests.
type Store struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	log     *slog.Logger

	LatestTTL time.Duration
}

// New connects to Redis and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := NewWithClient(client)
	s.log.Info("connected", slog.String("addr", cfg.Addr))
	return s, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client) *Store {
	return &Store{
		client:    client,
		breaker:   NewCircuitBreaker(5, 10*time.Second),
		log:       logger.Component("redis"),
		LatestTTL: defaultLatestTTL,
	}
}

// Client returns the underlying Redis client for PubSub and health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Breaker exposes the circuit breaker so callers can observe transitions.
func (s *Store) Breaker() *CircuitBreaker { return s.breaker }

// QuoteKey returns the cache key for a symbol's quote, e.g. "quote:AAPL".
func QuoteKey(symbol string) string {
	return quoteKeyPrefix + strings.ToUpper(symbol)
}

// LatestKey returns the key holding the last payload published on channel.
func LatestKey(channel string) string {
	return latestKeyPrefix + channel
}

// GetQuote returns the cached quote for symbol. A missing key is a miss,
// not an error.
func (s *Store) GetQuote(ctx context.Context, symbol string) (model.Quote, bool, error) {
	var raw []byte
	err := s.breaker.Execute(func() error {
		var err error
		raw, err = s.client.Get(ctx, QuoteKey(symbol)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return model.Quote{}, false, fmt.Errorf("redis GET %s: %w", QuoteKey(symbol), err)
	}
	if raw == nil {
		return model.Quote{}, false, nil
	}

	var q model.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return model.Quote{}, false, fmt.Errorf("decode cached quote %s: %w", symbol, err)
	}
	return q, true, nil
}

// SetQuote caches q under its symbol for ttl.
func (s *Store) SetQuote(ctx context.Context, q model.Quote, ttl time.Duration) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote %s: %w", q.Symbol, err)
	}
	return s.breaker.Execute(func() error {
		if err := s.client.Set(ctx, QuoteKey(q.Symbol), raw, ttl).Err(); err != nil {
			return fmt.Errorf("redis SET %s: %w", QuoteKey(q.Symbol), err)
		}
		return nil
	})
}

// Publish stores payload as the channel's latest value and publishes it,
// both in one pipeline round trip.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.breaker.Execute(func() error {
		pipe := s.client.Pipeline()
		pipe.Set(ctx, LatestKey(channel), payload, s.LatestTTL)
		pipe.Publish(ctx, channel, payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis publish %s: %w", channel, err)
		}
		return nil
	})
}

// LatestAll returns the last payload for every channel matching pattern,
// keyed by channel name. Used to seed snapshots after a restart.
func (s *Store) LatestAll(ctx context.Context, pattern string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := s.breaker.Execute(func() error {
		var keys []string
		iter := s.client.Scan(ctx, 0, LatestKey(pattern), 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("redis SCAN %s: %w", LatestKey(pattern), err)
		}
		if len(keys) == 0 {
			return nil
		}

		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("redis MGET: %w", err)
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue // expired between SCAN and MGET
			}
			out[strings.TrimPrefix(keys[i], latestKeyPrefix)] = []byte(str)
		}
		return nil
	})
	return out, err
}

// Ping checks connectivity, bypassing the breaker.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
