package indicator

import (
	"math"

	"token-sentry/internal/ringbuf"
)

// SMA is the arithmetic mean of the last period values. The running sum is
// rebuilt from the window once per period to keep float drift bounded.
type SMA struct {
	period int
	window *ringbuf.Ring[float64]
	seen   int
	sum    float64
	mean   float64
}

// NewSMA creates an SMA over period values (minimum 1).
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{period: period, window: ringbuf.New[float64](period)}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(x float64) {
	if s.window.Len() == s.period {
		oldest, _ := s.window.Pop()
		s.sum -= oldest
	}
	s.window.Push(x)
	s.sum += x
	s.seen++

	if !s.Ready() {
		return
	}
	if s.seen%s.period == 0 {
		s.sum = 0
		for _, v := range s.window.Values() {
			s.sum += v
		}
	}
	s.mean = s.sum / float64(s.period)
}

func (s *SMA) Value() float64 { return s.mean }
func (s *SMA) Ready() bool    { return s.seen >= s.period }

// StdDev is the sample standard deviation of the full window, 0 before it fills.
func (s *SMA) StdDev() float64 {
	if !s.Ready() || s.period < 2 {
		return 0
	}
	var ss float64
	for _, v := range s.window.Values() {
		ss += (v - s.mean) * (v - s.mean)
	}
	return math.Sqrt(ss / float64(s.period-1))
}

// Snapshot stores the window oldest first.
func (s *SMA) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:    "SMA",
		Period:  s.period,
		Buf:     s.window.Values(),
		Count:   s.seen,
		Sum:     s.sum,
		Current: s.mean,
	}
}

func (s *SMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if err := snap.expect("SMA"); err != nil {
		return err
	}
	if snap.Period < 1 || len(snap.Buf) > snap.Period || len(snap.Buf) > snap.Count {
		return errMalformed("SMA", "window larger than period or count")
	}
	s.period = snap.Period
	s.window = ringbuf.New[float64](snap.Period)
	for _, v := range snap.Buf {
		s.window.Push(v)
	}
	s.seen = snap.Count
	s.sum = snap.Sum
	s.mean = snap.Current
	return nil
}
