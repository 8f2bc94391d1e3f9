package gateway

import (
	"sort"
	"sync"

	"token-sentry/internal/ringbuf"
)

// replayEntry is one broadcast envelope kept for late subscribers.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the newest envelopes of one token. Sequence numbers are
// pushed in increasing order, so lookups by seq are binary searches.
type ReplayBuffer struct {
	mu   sync.RWMutex
	ring *ringbuf.Ring[replayEntry]
}

// NewReplayBuffer keeps at most capacity envelopes (500 when capacity <= 0).
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{ring: ringbuf.New[replayEntry](capacity)}
}

// Push stores a copy of data under seq, evicting the oldest envelope when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	e := replayEntry{Seq: seq, Data: append([]byte(nil), data...)}
	rb.mu.Lock()
	rb.ring.Put(e)
	rb.mu.Unlock()
}

// Range returns the envelopes with fromSeq <= seq <= toSeq, oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	if fromSeq > toSeq {
		return nil
	}
	rb.mu.RLock()
	all := rb.ring.Values()
	rb.mu.RUnlock()

	lo := sort.Search(len(all), func(i int) bool { return all[i].Seq >= fromSeq })
	hi := sort.Search(len(all), func(i int) bool { return all[i].Seq > toSeq })
	if lo >= hi {
		return nil
	}
	return all[lo:hi]
}

// Last returns up to n of the newest envelopes, oldest first.
func (rb *ReplayBuffer) Last(n int) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.ring.Last(n)
}

// Len reports how many envelopes are held.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.ring.Len()
}

// Evicted counts envelopes dropped to make room.
func (rb *ReplayBuffer) Evicted() uint64 {
	return rb.ring.Overflow()
}
