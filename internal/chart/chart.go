// Package chart provides price-shape helpers: distance from peak, drawdown
// over lookbacks, peak detection and level clustering.
package chart

import (
	"sort"

	"token-sentry/internal/model"
)

// FromPeak is the percent distance of last from a known running peak.
func FromPeak(last, peak float64) float64 {
	if peak <= 0 {
		return 0
	}
	return (last - peak) / peak * 100
}

// DrawdownOver is the percent distance of the newest value from the maximum
// of the last k values (always <= 0). Returns 0 for an empty series.
func DrawdownOver(values []float64, k int) float64 {
	if len(values) == 0 || k <= 0 {
		return 0
	}
	if k < len(values) {
		values = values[len(values)-k:]
	}
	return fromMax(values)
}

// Drawdowns holds drawdown percentages over two lookbacks.
type Drawdowns struct {
	Short float64 `json:"short"`
	Long  float64 `json:"long"`
}

// Drawdown computes drawdowns over the last shortK and longK values.
func Drawdown(values []float64, shortK, longK int) Drawdowns {
	return Drawdowns{
		Short: DrawdownOver(values, shortK),
		Long:  DrawdownOver(values, longK),
	}
}

func fromMax(values []float64) float64 {
	hi := values[0]
	for _, v := range values[1:] {
		if v > hi {
			hi = v
		}
	}
	return FromPeak(values[len(values)-1], hi)
}

// ClusterLevels sorts records by level and merges neighbours whose distance
// to the running cluster level is <= threshold. A merged cluster takes the
// mean level, summed touches, the latest touch index and OR-ed IsMajor.
// Clusters with fewer than two touches are dropped.
func ClusterLevels(records []model.LevelRecord, threshold float64) []model.LevelRecord {
	if len(records) == 0 {
		return nil
	}
	sorted := make([]model.LevelRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	var out []model.LevelRecord
	cur := sorted[0]
	sum, n := cur.Level, 1

	flush := func() {
		cur.Level = sum / float64(n)
		if cur.Touches >= 2 {
			out = append(out, cur)
		}
	}

	for _, r := range sorted[1:] {
		if r.Level-sum/float64(n) <= threshold {
			sum += r.Level
			n++
			cur.Touches += r.Touches
			if r.LastTouched > cur.LastTouched {
				cur.LastTouched = r.LastTouched
			}
			cur.IsMajor = cur.IsMajor || r.IsMajor
			continue
		}
		flush()
		cur = r
		sum, n = r.Level, 1
	}
	flush()
	return out
}
