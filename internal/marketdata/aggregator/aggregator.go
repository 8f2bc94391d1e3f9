// Package aggregator provides an incremental interval resampler.
// It consumes base-interval samples and maintains one "forming" candle per
// target interval, updated in O(1) per sample. When a sample lands in a new
// bucket the previous candle is closed and appended to that interval's stream.
package aggregator

import (
	"fmt"

	"token-sentry/internal/model"
)

// partial holds the forming candle for one target interval.
type partial struct {
	bucket  int64 // aligned bucket start (unix seconds)
	candle  model.Candle
	started bool
}

// Aggregator resamples base samples into multiple target intervals.
// Not goroutine-safe: it is owned by a single collector.
type Aggregator struct {
	base    int   // base interval (minutes)
	targets []int // target intervals (minutes), each a multiple of base
	anchor  int64 // epoch anchor for bucket alignment (unix seconds)
	forming []partial
	closed  map[int][]model.Candle

	// OnCandle is called for every closed target candle (optional).
	OnCandle func(c model.Candle)
}

// New creates an aggregator for base interval baseMinutes and the given target
// intervals. Every target must be a positive multiple of the base.
func New(baseMinutes int, targets []int, anchor int64) (*Aggregator, error) {
	if baseMinutes <= 0 {
		return nil, fmt.Errorf("base interval %dm: %w", baseMinutes, model.ErrInvalidInterval)
	}
	a := &Aggregator{
		base:   baseMinutes,
		anchor: anchor,
		closed: make(map[int][]model.Candle, len(targets)+1),
	}
	for _, tf := range targets {
		if tf <= 0 || tf%baseMinutes != 0 {
			return nil, fmt.Errorf("target interval %dm is not a multiple of base %dm: %w",
				tf, baseMinutes, model.ErrInvalidInterval)
		}
		if tf == baseMinutes || a.has(tf) {
			continue
		}
		a.targets = append(a.targets, tf)
	}
	a.forming = make([]partial, len(a.targets))
	return a, nil
}

func (a *Aggregator) has(tf int) bool {
	for _, t := range a.targets {
		if t == tf {
			return true
		}
	}
	return false
}

// Targets returns the target intervals in minutes.
func (a *Aggregator) Targets() []int { return a.targets }

// BucketStart aligns t down to the interval boundary relative to the anchor.
// Floor division keeps timestamps before the anchor aligned correctly.
func (a *Aggregator) BucketStart(t int64, intervalMinutes int) int64 {
	size := int64(intervalMinutes) * 60
	off := t - a.anchor
	q := off / size
	if off%size != 0 && off < 0 {
		q--
	}
	return a.anchor + q*size
}

// Push handles a single base sample against every target interval.
// Returns the candles closed by this sample, in target order.
// This is the hot path: O(1) per target.
func (a *Aggregator) Push(s model.Sample) []model.Candle {
	a.closed[a.base] = append(a.closed[a.base], model.CandleFromSample(s, a.base))

	var out []model.Candle
	for i, tf := range a.targets {
		bucket := a.BucketStart(s.T, tf)
		st := &a.forming[i]

		if st.started && bucket != st.bucket {
			// New bucket: close the forming candle
			c := st.candle
			a.closed[tf] = append(a.closed[tf], c)
			out = append(out, c)
			if a.OnCandle != nil {
				a.OnCandle(c)
			}
			st.started = false
		}

		if !st.started {
			*st = partial{
				bucket:  bucket,
				started: true,
				candle: model.Candle{
					Interval: tf,
					Start:    bucket,
					End:      bucket + int64(tf)*60,
					Open:     s.Open,
					High:     s.High,
					Low:      s.Low,
					Close:    s.Close,
					Volume:   s.Volume,
					Count:    1,
				},
			}
			continue
		}

		// Same bucket: merge OHLCV (O(1))
		fc := &st.candle
		if s.High > fc.High {
			fc.High = s.High
		}
		if s.Low < fc.Low {
			fc.Low = s.Low
		}
		fc.Close = s.Close
		fc.Volume += s.Volume
		fc.Count++
	}
	return out
}

// Candles returns the closed candles of an interval. The base interval
// returns one degenerate candle per sample. Callers must not modify the slice.
func (a *Aggregator) Candles(intervalMinutes int) []model.Candle {
	return a.closed[intervalMinutes]
}

// Last returns up to n of the newest closed candles of an interval.
func (a *Aggregator) Last(intervalMinutes, n int) []model.Candle {
	cs := a.closed[intervalMinutes]
	if n <= 0 {
		return nil
	}
	if n > len(cs) {
		n = len(cs)
	}
	return cs[len(cs)-n:]
}

// Len returns the number of closed candles of an interval.
func (a *Aggregator) Len(intervalMinutes int) int {
	return len(a.closed[intervalMinutes])
}

// Forming returns a copy of the forming candle of a target interval.
func (a *Aggregator) Forming(intervalMinutes int) (model.Candle, bool) {
	for i, tf := range a.targets {
		if tf == intervalMinutes && a.forming[i].started {
			return a.forming[i].candle, true
		}
	}
	return model.Candle{}, false
}
