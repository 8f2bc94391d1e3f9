package indicator

import (
	"math"

	"token-sentry/internal/chart"
	"token-sentry/internal/model"
)

// DivergenceConfig tunes RSI/price divergence detection.
type DivergenceConfig struct {
	Lookback     int     `yaml:"lookback"`      // snapshots inspected
	PeakDistance int     `yaml:"peak_distance"` // min separation between extrema
	Normalizer   float64 `yaml:"normalizer"`
	Oversold     float64 `yaml:"oversold"`
	Overbought   float64 `yaml:"overbought"`
	Boost        float64 `yaml:"boost"` // strength multiplier in oversold/overbought territory
	Epsilon      float64 `yaml:"epsilon"`
}

// DefaultDivergence matches the classic 30/70 RSI bands.
var DefaultDivergence = DivergenceConfig{
	Lookback:     100,
	PeakDistance: 2,
	Normalizer:   1.0,
	Oversold:     30,
	Overbought:   70,
	Boost:        1.5,
	Epsilon:      1e-9,
}

// Divergence looks for a mismatch between the last two price extrema and
// the RSI extrema nearest to them, over the last cfg.Lookback points.
// rsi may contain nils for points where the RSI was not yet defined; only
// the suffix where it is defined is inspected. Bullish (signal 1): price
// troughs descend while RSI troughs ascend. Bearish (signal 0): price peaks
// ascend while RSI peaks descend. When both are present the one whose latter
// extremum is newer wins. Returns nil when there are not enough extrema.
func Divergence(prices []float64, rsi []*float64, source string, cfg DivergenceConfig) *model.Divergence {
	n := len(prices)
	if len(rsi) < n {
		n = len(rsi)
	}
	prices, rsi = prices[len(prices)-n:], rsi[len(rsi)-n:]
	if cfg.Lookback > 0 && n > cfg.Lookback {
		prices, rsi = prices[n-cfg.Lookback:], rsi[n-cfg.Lookback:]
	}

	start := len(rsi)
	for start > 0 && rsi[start-1] != nil {
		start--
	}
	prices = prices[start:]
	r := make([]float64, len(rsi)-start)
	for i, v := range rsi[start:] {
		r[i] = *v
	}
	if len(r) < 3 {
		return nil
	}

	opt := chart.PeakOptions{Distance: float64(cfg.PeakDistance)}

	var best *model.Divergence
	bestAt := -1
	consider := func(signal int, pIdx, rIdx []int, want func(dp, dr float64) bool) {
		i1, i2, j1, j2, ok := lastPair(pIdx, rIdx)
		if !ok || i2 <= bestAt {
			return
		}
		p1, p2, r1, r2 := prices[i1], prices[i2], r[j1], r[j2]
		if !want(p2-p1, r2-r1) {
			return
		}
		best = &model.Divergence{
			Signal:   signal,
			Strength: divergenceStrength(p1, p2, r1, r2, cfg),
			Source:   source,
		}
		bestAt = i2
	}

	consider(1, chart.FindTroughs(prices, opt), chart.FindTroughs(r, opt),
		func(dp, dr float64) bool { return dp < 0 && dr > 0 })
	consider(0, chart.FindPeaks(prices, opt), chart.FindPeaks(r, opt),
		func(dp, dr float64) bool { return dp > 0 && dr < 0 })
	return best
}

// lastPair picks the last two price extrema and, for each, the RSI extremum
// at the nearest index. The two RSI extrema must be distinct.
func lastPair(priceIdx, rsiIdx []int) (i1, i2, j1, j2 int, ok bool) {
	if len(priceIdx) < 2 || len(rsiIdx) < 2 {
		return 0, 0, 0, 0, false
	}
	i1, i2 = priceIdx[len(priceIdx)-2], priceIdx[len(priceIdx)-1]
	j1, j2 = nearest(rsiIdx, i1), nearest(rsiIdx, i2)
	if j1 >= j2 {
		return 0, 0, 0, 0, false
	}
	return i1, i2, j1, j2, true
}

func nearest(idx []int, target int) int {
	best := idx[0]
	for _, i := range idx[1:] {
		if abs(i-target) < abs(best-target) {
			best = i
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func divergenceStrength(p1, p2, r1, r2 float64, cfg DivergenceConfig) float64 {
	lo := math.Min(p1, p2)
	if lo <= 0 {
		return 0
	}
	s := clamp01(math.Abs(r2-r1) * cfg.Normalizer / (math.Abs(p2-p1)/lo + cfg.Epsilon))
	if r2 < cfg.Oversold || r2 > cfg.Overbought {
		s = clamp01(s * cfg.Boost)
	}
	return s
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
