package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"crypto-analyzer/internal/logger"
	"crypto-analyzer/internal/metrics"
	"crypto-analyzer/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and fans analysis updates out to them.
// It is a compositor over focused parts:
//   - PubSubRouter: Redis pattern subscription
//   - Broadcaster: envelope construction and filtered fan-out
//   - ReplayBuffer: per-channel history for gap backfill
type Hub struct {
	Rdb     *goredis.Client
	Metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	// Publish-to-fan-out delay of analysis messages
	Latency *LatencyTracker

	Router      *PubSubRouter
	Broadcaster *Broadcaster

	log *slog.Logger
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a Hub. rdb may be nil when the hub is fed directly.
func NewHub(rdb *goredis.Client, m *metrics.Metrics) *Hub {
	h := &Hub{
		Rdb:         rdb,
		Metrics:     m,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		Latency:     NewLatencyTracker(4096),
		log:         logger.Component("hub"),
	}
	h.Router = NewPubSubRouter(h)
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Run subscribes to all analysis channels and fans messages out until ctx
// is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.Rdb == nil {
		h.log.Warn("no redis client, live stream disabled")
		<-ctx.Done()
		return
	}
	h.Router.RunPattern(ctx, model.AnalysisChannelPattern)
}

// Seed installs stored snapshots as the latest value per channel without
// broadcasting them. Existing entries are kept.
func (h *Hub) Seed(snapshots map[string][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now().UTC()
	for ch, data := range snapshots {
		if _, ok := h.latest[ch]; ok {
			continue
		}
		h.latest[ch] = latestEntry{Data: data, TS: now}
	}
}

// Broadcast delegates to the Broadcaster.
func (h *Hub) Broadcast(channel string, data []byte) {
	h.Broadcaster.Broadcast(channel, data)
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, symbols []string) {
	c := newClient(h, conn, symbols)
	conn.EnableWriteCompression(true)
	h.addClient(c)

	go c.sendInitialState()
	go c.writePump()
	go c.readPump()
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.Metrics.SetWSClients(count)
	h.log.Info("ws client connected", slog.Int("clients", count))
}

// RemoveClient unregisters a client and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.Metrics.SetWSClients(count)
	h.log.Info("ws client disconnected", slog.Int("clients", count))
}

// Latest returns the last analysis payload seen for symbol.
func (h *Hub) Latest(symbol string) (json.RawMessage, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.latest[model.AnalysisChannel(symbol)]
	return e.Data, ok
}

// LatestAll returns a snapshot of the latest payload per symbol.
func (h *Hub) LatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.latest))
	for ch, e := range h.latest {
		if sym := model.SymbolFromChannel(ch); sym != "" {
			out[sym] = e.Data
		}
	}
	return out
}

// Symbols returns the symbols with a latest payload, sorted.
func (h *Hub) Symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.latest))
	for ch := range h.latest {
		if sym := model.SymbolFromChannel(ch); sym != "" {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Missed returns buffered envelopes for channel with channel_seq > afterSeq.
func (h *Hub) Missed(channel string, afterSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Since(afterSeq)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
