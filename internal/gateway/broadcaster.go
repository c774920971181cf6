package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// replayDepth is how many envelopes each channel keeps for backfill.
const replayDepth = 200

// Broadcaster builds envelopes and sends them to interested clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast records data as the channel's latest value and sends it to
// every client whose filter matches. Clients with a full send buffer are
// skipped.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	if b.hub.Latency != nil {
		if published := extractTimestamp(data); !published.IsZero() {
			if ms := float64(now.Sub(published).Microseconds()) / 1000.0; ms >= 0 {
				b.hub.Latency.Record(ms)
			}
		}
	}

	b.hub.mu.Lock()
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	b.hub.seq++
	seq := b.hub.seq
	rb, ok := b.hub.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(replayDepth)
		b.hub.replayBufs[channel] = rb
	}
	b.hub.mu.Unlock()

	buf := buildEnvelope(channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	dropped := 0
	b.hub.mu.RLock()
	for client := range b.hub.clients {
		if !client.wants(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			dropped++
		}
	}
	b.hub.mu.RUnlock()

	b.hub.Metrics.Broadcast(dropped)
}

// buildEnvelope hand-crafts {"channel","data","ts","seq","channel_seq"}.
// data must already be valid JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":`...)
	quoted, _ := json.Marshal(channel)
	buf = append(buf, quoted...)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// extractTimestamp reads the Unix-millisecond "timestamp" field that stock
// analyses carry. Returns the zero time when absent.
func extractTimestamp(data []byte) time.Time {
	var partial struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &partial); err != nil || partial.Timestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(partial.Timestamp)
}
