package indicator

import "log/slog"

// slot is one cache entry: an estimator plus the number of strided samples
// it has consumed.
type slot struct {
	ind  Indicator
	next int
}

// Analyzer computes indicators over strided samples of a base stream.
// Designed for single-goroutine usage — owned by one collector, no locks.
type Analyzer struct {
	base    int // base interval (minutes)
	macd    MACDParams
	entries map[Key]*slot
	log     *slog.Logger
}

// NewAnalyzer creates an analyzer for a base stream of baseMinutes.
func NewAnalyzer(baseMinutes int, macd MACDParams, log *slog.Logger) *Analyzer {
	if baseMinutes < 1 {
		baseMinutes = 1
	}
	if macd.Fast == 0 || macd.Slow == 0 || macd.Signal == 0 {
		macd = DefaultMACD
	}
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		base:    baseMinutes,
		macd:    macd,
		entries: make(map[Key]*slot, 32),
		log:     log,
	}
}

// Stride returns the number of base samples per strided sample.
func (a *Analyzer) Stride(intervalMinutes int) int {
	s := intervalMinutes / a.base
	if s < 1 {
		return 1
	}
	return s
}

// advance feeds every aligned sample not yet consumed by the entry for k and
// returns the estimator. A fresh entry starts from the trailing warmup
// window. reseed discards any existing entry first.
func (a *Analyzer) advance(values []float64, k Key, reseed bool) Indicator {
	if reseed {
		delete(a.entries, k)
	}
	s := a.Stride(k.Interval)
	m := len(values) / s // strided samples available; newest aligned index is m*s-1

	e, ok := a.entries[k]
	if !ok {
		start := m - warmup(k, a.macd)
		if start < 0 {
			start = 0
		}
		e = &slot{ind: newIndicator(k, a.macd), next: start}
		a.entries[k] = e
	}
	for ; e.next < m; e.next++ {
		e.ind.Update(values[(e.next+1)*s-1])
	}
	return e.ind
}

// EMA returns the exponential moving average, or nil before period strided
// samples exist.
func (a *Analyzer) EMA(values []float64, intervalMinutes, period int, reseed bool) *float64 {
	ind := a.advance(values, Key{KindEMA, intervalMinutes, period}, reseed)
	return valueOf(ind)
}

// SMA returns the simple moving average of the last period strided samples.
func (a *Analyzer) SMA(values []float64, intervalMinutes, period int, reseed bool) *float64 {
	ind := a.advance(values, Key{KindSMA, intervalMinutes, period}, reseed)
	return valueOf(ind)
}

// Bollinger returns middle ± k·σ where middle is SMA(period) and σ the
// sample standard deviation of the same window.
func (a *Analyzer) Bollinger(values []float64, intervalMinutes, period int, k float64, reseed bool) (upper, middle, lower *float64) {
	ind := a.advance(values, Key{KindBollinger, intervalMinutes, period}, reseed)
	sma := ind.(*SMA)
	if !sma.Ready() {
		return nil, nil, nil
	}
	mid, sd := sma.Value(), sma.StdDev()
	return ptr(mid + k*sd), ptr(mid), ptr(mid - k*sd)
}

// RSI returns Wilder's RSI, or nil before period+1 strided samples exist.
func (a *Analyzer) RSI(values []float64, intervalMinutes, period int, reseed bool) *float64 {
	ind := a.advance(values, Key{KindRSI, intervalMinutes, period}, reseed)
	return valueOf(ind)
}

// MACD returns the MACD line, signal and histogram. The line is nil before
// the slow EMA is seeded; signal and histogram are nil until the signal EMA
// is seeded.
func (a *Analyzer) MACD(values []float64, intervalMinutes int, reseed bool) (macd, signal, hist *float64) {
	ind := a.advance(values, Key{KindMACD, intervalMinutes, a.macd.Slow}, reseed)
	m := ind.(*MACD)
	if !m.Ready() {
		return nil, nil, nil
	}
	macd = ptr(m.Value())
	if m.SignalReady() {
		signal = ptr(m.Signal())
		hist = ptr(m.Histogram())
	}
	return macd, signal, hist
}

// Len returns the number of cache entries.
func (a *Analyzer) Len() int { return len(a.entries) }

func valueOf(ind Indicator) *float64 {
	if !ind.Ready() {
		return nil
	}
	return ptr(ind.Value())
}

func ptr(v float64) *float64 { return &v }
