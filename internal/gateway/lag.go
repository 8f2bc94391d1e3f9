package gateway

import (
	"math"
	"sort"
	"sync"

	"token-sentry/internal/ringbuf"
)

// LagTracker keeps the most recent lag samples and reports percentiles.
type LagTracker struct {
	mu   sync.Mutex
	ring *ringbuf.Ring[float64]
}

// NewLagTracker creates a tracker holding the last capacity samples.
func NewLagTracker(capacity int) *LagTracker {
	if capacity <= 0 {
		capacity = 4096
	}
	return &LagTracker{ring: ringbuf.New[float64](capacity)}
}

// Record adds a sample, evicting the oldest when full.
func (lt *LagTracker) Record(v float64) {
	lt.mu.Lock()
	lt.ring.Put(v)
	lt.mu.Unlock()
}

// Count returns the number of samples held.
func (lt *LagTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.ring.Len()
}

// Percentiles returns p50, p95 and p99, or zeros with no samples.
func (lt *LagTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	sorted := lt.ring.Values()
	lt.mu.Unlock()
	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(sorted)
	return percentile(sorted, 0.50), percentile(sorted, 0.95), percentile(sorted, 0.99)
}

// percentile linearly interpolates the p-th quantile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}
