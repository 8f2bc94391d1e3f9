package model

import (
	"encoding/json"
	"math"
)

// Sample is a single observation of a token price at base-interval resolution.
// Price-only observations carry Open == High == Low == Close and zero Volume.
type Sample struct {
	T      int64   `json:"t"` // unix seconds, UTC
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// NewPriceSample builds a degenerate OHLC sample from a single price.
func NewPriceSample(t int64, value float64) Sample {
	return Sample{T: t, Open: value, High: value, Low: value, Close: value}
}

// Value returns the representative price of the sample (its close).
func (s Sample) Value() float64 { return s.Close }

// Valid reports whether every price field is finite and positive and the
// OHLC ordering holds.
func (s Sample) Valid() bool {
	for _, v := range [...]float64{s.Open, s.High, s.Low, s.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	if math.IsNaN(s.Volume) || s.Volume < 0 {
		return false
	}
	return s.Low <= s.High &&
		s.Low <= s.Open && s.Open <= s.High &&
		s.Low <= s.Close && s.Close <= s.High
}

// Candle is an OHLCV summary of the samples inside one interval window.
// Interval is in minutes; Start/End are unix seconds with End-Start == Interval*60.
type Candle struct {
	Interval int     `json:"interval"`
	Start    int64   `json:"t_start"`
	End      int64   `json:"t_end"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	Count    int     `json:"count"` // number of base samples merged
}

// CandleFromSample wraps a base sample into a candle of the base interval.
func CandleFromSample(s Sample, intervalMinutes int) Candle {
	return Candle{
		Interval: intervalMinutes,
		Start:    s.T,
		End:      s.T + int64(intervalMinutes)*60,
		Open:     s.Open,
		High:     s.High,
		Low:      s.Low,
		Close:    s.Close,
		Volume:   s.Volume,
		Count:    1,
	}
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
