package gateway

import "sync"

// replayEntry is one broadcast envelope and its channel sequence number.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes of one channel in a ring so
// reconnecting clients can backfill what they missed. Safe for concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	next int // next write position
	size int
}

// NewReplayBuffer creates a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayDepth
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push stores a copy of data, evicting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	rb.buf[rb.next] = replayEntry{Seq: seq, Data: cp}
	rb.next = (rb.next + 1) % len(rb.buf)
	if rb.size < len(rb.buf) {
		rb.size++
	}
	rb.mu.Unlock()
}

// Since returns entries with Seq > afterSeq, oldest first.
func (rb *ReplayBuffer) Since(afterSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	start := (rb.next - rb.size + len(rb.buf)) % len(rb.buf)
	for i := 0; i < rb.size; i++ {
		e := rb.buf[(start+i)%len(rb.buf)]
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}
