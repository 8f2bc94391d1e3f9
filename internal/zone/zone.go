// Package zone detects support and resistance zones on interval candles.
//
// Thresholds adapt to the window's coefficient of variation. Resistance comes
// from peaks of the highs, support from peaks of the negated lows. Strong
// peaks, the window extreme and repeatedly tested pivots are merged and binned
// into zones; the strongest zone on each side is reported.
package zone

import (
	"math"
	"sort"

	"token-sentry/internal/analytics"
	"token-sentry/internal/chart"
	"token-sentry/internal/model"
)

// Config holds the volatility-scaled constants of one horizon.
type Config struct {
	Name            string  `yaml:"name"`
	KStrongDistance float64 `yaml:"k_strong_distance"`
	KProminence     float64 `yaml:"k_prominence"`
	KPeakDistance   float64 `yaml:"k_peak_distance"`
	KWidth          float64 `yaml:"k_width"`
	KPivot          float64 `yaml:"k_pivot"`
	IntervalMinutes int     `yaml:"interval_minutes"`
}

// Weights are the strength scales and tracking weights shared by all horizons.
type Weights struct {
	StrongStrength  float64 `yaml:"strong_strength"`  // strong peak
	ExtremeStrength float64 `yaml:"extreme_strength"` // window high / low
	PivotUnit       float64 `yaml:"pivot_unit"`       // per rank step of a pivot
	TouchWeight     float64 `yaml:"touch_weight"`
	RecencyWeight   float64 `yaml:"recency_weight"`
	MajorScore      float64 `yaml:"major_score"`     // tracked score that marks a major level
	DefaultCV       float64 `yaml:"default_cv"`      // used when cv is undefined
	TrackTolerance  float64 `yaml:"track_tolerance"` // relative distance treated as the same level
}

// DefaultWeights are the production strength scales.
var DefaultWeights = Weights{
	StrongStrength:  50,
	ExtremeStrength: 100,
	PivotUnit:       10,
	TouchWeight:     0.7,
	RecencyWeight:   0.3,
	MajorScore:      0.6,
	DefaultCV:       0.3,
	TrackTolerance:  0.005,
}

// DefaultConfigs returns the short/mid/long-term horizons. Short and mid run
// on the base interval; long runs on hourly candles.
func DefaultConfigs(baseMinutes int) [3]Config {
	long := 60
	if baseMinutes > long {
		long = baseMinutes
	}
	return [3]Config{
		{Name: "short_term", KStrongDistance: 0.05, KProminence: 0.5, KPeakDistance: 0.02, KWidth: 0.05, KPivot: 0.02, IntervalMinutes: baseMinutes},
		{Name: "mid_term", KStrongDistance: 0.08, KProminence: 0.7, KPeakDistance: 0.03, KWidth: 0.07, KPivot: 0.03, IntervalMinutes: baseMinutes},
		{Name: "long_term", KStrongDistance: 0.1, KProminence: 1.0, KPeakDistance: 0.04, KWidth: 0.1, KPivot: 0.04, IntervalMinutes: long},
	}
}

// Thresholds are the per-call values derived from a Config and a window.
type Thresholds struct {
	StrongDistance   float64
	StrongProminence float64
	PeakDistance     float64
	RankWidth        float64
	MinPivotRank     float64
}

// Analyzer detects zones and keeps the persistent level tracker.
// Not goroutine-safe: owned by one collector.
type Analyzer struct {
	w       Weights
	tracker *Tracker
}

// New creates an analyzer.
func New(w Weights) *Analyzer {
	return &Analyzer{w: w, tracker: NewTracker(w)}
}

// Tracker returns the persistent level tracker.
func (a *Analyzer) Tracker() *Tracker { return a.tracker }

// Derive computes the thresholds for a window of closes.
func (a *Analyzer) Derive(cfg Config, closes []float64) Thresholds {
	window := float64(len(closes))
	mean := analytics.Mean(closes)
	cv := a.w.DefaultCV
	if len(closes) >= 2 && mean != 0 {
		cv = analytics.StdDev(closes) / mean
	}
	return Thresholds{
		StrongDistance:   math.Max(1, cfg.KStrongDistance*window*cv),
		StrongProminence: math.Max(0.01, cfg.KProminence*mean*cv),
		PeakDistance:     math.Max(1, cfg.KPeakDistance*window*cv),
		RankWidth:        math.Max(1e-4, cfg.KWidth*mean*cv),
		MinPivotRank:     math.Max(2, cfg.KPivot*window),
	}
}

// Detect returns the strongest support and resistance over the last window
// candles. Fewer candles than window yield two empty zones.
func (a *Analyzer) Detect(cfg Config, candles []model.Candle, window int) (support, resistance model.Zone) {
	if window <= 0 || len(candles) < window {
		return model.Zone{}, model.Zone{}
	}
	candles = candles[len(candles)-window:]

	highs := make([]float64, window)
	negLows := make([]float64, window)
	closes := make([]float64, window)
	for i, c := range candles {
		highs[i] = c.High
		negLows[i] = -c.Low
		closes[i] = c.Close
	}
	th := a.Derive(cfg, closes)

	resistance = strongest(a.levels(highs, th))
	support = strongest(a.levels(negLows, th))
	support.Level = -support.Level
	if support.Level == 0 {
		support = model.Zone{}
	}
	return support, resistance
}

// levels runs one side of the detection on x (highs, or negated lows) and
// returns the binned zones in ascending level order.
func (a *Analyzer) levels(x []float64, th Thresholds) []model.Zone {
	var zs []model.Zone

	strong := chart.FindPeaks(x, chart.PeakOptions{Distance: th.StrongDistance, Prominence: th.StrongProminence})
	extreme := x[0]
	for _, v := range x[1:] {
		extreme = math.Max(extreme, v)
	}
	seen := false
	for _, p := range strong {
		zs = append(zs, model.Zone{Level: x[p], Strength: a.w.StrongStrength})
		seen = seen || x[p] == extreme
	}
	if !seen {
		zs = append(zs, model.Zone{Level: extreme, Strength: a.w.ExtremeStrength})
	}

	general := chart.FindPeaks(x, chart.PeakOptions{Distance: th.PeakDistance})
	for j, p := range general {
		rank := 0
		for _, q := range general[:j] {
			if math.Abs(x[q]-x[p]) <= th.RankWidth {
				rank++
			}
		}
		if float64(rank) >= th.MinPivotRank {
			zs = append(zs, model.Zone{Level: x[p], Strength: a.w.PivotUnit * float64(rank+1)})
		}
	}

	return bin(zs, th.RankWidth)
}

// bin sorts zones by level and merges consecutive levels within width of the
// running bin mean: the bin's level is the mean and its strength the sum.
func bin(zs []model.Zone, width float64) []model.Zone {
	if len(zs) == 0 {
		return nil
	}
	sort.SliceStable(zs, func(i, j int) bool { return zs[i].Level < zs[j].Level })

	var out []model.Zone
	sum, n, strength := zs[0].Level, 1, zs[0].Strength
	for _, z := range zs[1:] {
		if z.Level-sum/float64(n) <= width {
			sum += z.Level
			n++
			strength += z.Strength
			continue
		}
		out = append(out, model.Zone{Level: sum / float64(n), Strength: strength})
		sum, n, strength = z.Level, 1, z.Strength
	}
	return append(out, model.Zone{Level: sum / float64(n), Strength: strength})
}

// strongest returns the zone with the highest strength; ties keep the first.
func strongest(zs []model.Zone) model.Zone {
	var best model.Zone
	for _, z := range zs {
		if z.Strength > best.Strength {
			best = z
		}
	}
	return best
}
