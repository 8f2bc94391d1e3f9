// Package indicator provides incremental technical indicators over strided
// samples of a base price stream.
//
// Every estimator implements the Indicator interface and consumes one value
// per Update in O(1). The Analyzer maps a typed Key to an estimator and feeds
// it the newest aligned samples of the base stream, so repeated calls within
// one strided step return the cached value unchanged.
package indicator

// Indicator is the interface for all incremental estimators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA", "RSI").
	Name() string

	// Update feeds the next strided sample.
	Update(x float64)

	// Value returns the current value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Snapshot serializes the estimator state for checkpoints.
	Snapshot() IndicatorSnapshot

	// RestoreFromSnapshot restores state from a checkpoint.
	RestoreFromSnapshot(snap IndicatorSnapshot) error
}

// Kind names an indicator family.
type Kind string

const (
	KindEMA       Kind = "EMA"
	KindSMA       Kind = "SMA"
	KindBollinger Kind = "BB"
	KindRSI       Kind = "RSI"
	KindMACD      Kind = "MACD"
)

// Key identifies one cache entry: an indicator family computed at an
// interval (minutes) with a period (in strided samples).
type Key struct {
	Kind     Kind `json:"kind"`
	Interval int  `json:"interval"`
	Period   int  `json:"period"`
}

// newIndicator builds a fresh estimator for a key.
func newIndicator(k Key, p MACDParams) Indicator {
	switch k.Kind {
	case KindEMA:
		return NewEMA(k.Period)
	case KindSMA, KindBollinger:
		return NewSMA(k.Period)
	case KindRSI:
		return NewRSI(k.Period)
	case KindMACD:
		return NewMACD(p.Fast, p.Slow, p.Signal)
	}
	return nil
}

// warmup returns how many trailing strided samples a fresh estimator replays
// before its first value.
func warmup(k Key, p MACDParams) int {
	switch k.Kind {
	case KindRSI:
		return k.Period + 1
	case KindMACD:
		return p.Slow + p.Signal - 1
	}
	return k.Period
}
