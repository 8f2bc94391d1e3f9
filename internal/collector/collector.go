// Package collector runs the per-tick analytics pipeline for one token.
//
// A Collector owns the price series, the interval aggregator, the indicator
// cache, the Fibonacci state, the zone tracker and the confidence scalar.
// Ingest appends one sample and produces one fully formed snapshot; the
// snapshots form an append-only metrics log readable from other goroutines.
package collector

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"token-sentry/internal/analytics"
	"token-sentry/internal/chart"
	"token-sentry/internal/confidence"
	"token-sentry/internal/fibonacci"
	"token-sentry/internal/indicator"
	"token-sentry/internal/marketdata/aggregator"
	"token-sentry/internal/model"
	"token-sentry/internal/series"
	"token-sentry/internal/zone"
)

// Collector is the orchestrator for one token. Ingest must be called from a
// single goroutine; Metrics and Len are safe from any goroutine.
type Collector struct {
	cfg Config
	log *slog.Logger

	buf   *series.Buffer
	agg   *aggregator.Aggregator
	ind   *indicator.Analyzer
	zones *zone.Analyzer
	fib   *fibonacci.Analyzer
	conf  *confidence.Calculator

	metrics series.Log[model.Snapshot]

	firstT int64
	peak   float64
}

// New validates cfg and builds an empty collector.
func New(cfg Config, log *slog.Logger) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("token", cfg.Token)

	agg, err := aggregator.New(cfg.BaseMinutes, cfg.aggregatorTargets(), cfg.Anchor)
	if err != nil {
		return nil, err
	}
	agg.OnCandle = cfg.OnCandle

	return &Collector{
		cfg:   cfg,
		log:   log,
		buf:   series.NewBuffer(),
		agg:   agg,
		ind:   indicator.NewAnalyzer(cfg.BaseMinutes, cfg.MACD, log),
		zones: zone.New(cfg.ZoneWeights),
		fib:   fibonacci.New(),
		conf:  confidence.New(cfg.Confidence),
	}, nil
}

// Token returns the token this collector tracks.
func (c *Collector) Token() string { return c.cfg.Token }

// Ingest appends s and computes its snapshot. A rejected sample
// (model.ErrMonotonicity, model.ErrSchemaMismatch) leaves every piece of
// state and the metrics log unchanged.
func (c *Collector) Ingest(s model.Sample) (model.Snapshot, error) {
	// 1. series + aggregator
	if err := c.buf.Append(s); err != nil {
		return model.Snapshot{}, fmt.Errorf("ingest %s: %w", c.cfg.Token, err)
	}
	c.agg.Push(s)

	i := c.buf.Len() - 1
	values := c.buf.Values()
	price := s.Value()
	if i == 0 {
		c.firstT = s.T
	}
	c.peak = math.Max(c.peak, price)

	prev, hasPrev := c.metrics.Last()
	recent := c.metrics.Tail(c.cfg.Divergence.Lookback - 1)

	snap := model.Snapshot{
		Timestamp: s.T,
		Price:     price,
		TokenAge:  c.tokenAge(s.T),
	}

	// 2-3. zones at three horizons
	zones := c.detectZones()
	snap.SetZones(zones)
	c.zones.Tracker().Observe(i, zones[:]...)

	// 4. confidence overrides
	for k, p := range c.cfg.ZoneOverrides {
		c.conf.SetZoneParams(k, p)
	}

	// 5. time features
	snap.Time = timeFeatures(s.T)

	// 6. price-scale features
	snap.PeakDistance = chart.FromPeak(price, c.peak)
	snap.DrawdownTight = chart.DrawdownOver(values, c.cfg.samples(c.cfg.Drawdown.Tight))
	dd := chart.Drawdown(values, c.cfg.samples(c.cfg.Drawdown.Short), c.cfg.samples(c.cfg.Drawdown.Long))
	snap.DrawdownShort, snap.DrawdownLong = dd.Short, dd.Long

	base := c.cfg.BaseMinutes
	snap.Momentum = model.MomentumFeatures{
		Short:  analytics.Momentum(values, c.cfg.Momentum.Short, base),
		Medium: analytics.Momentum(values, c.cfg.Momentum.Medium, base),
		Long:   analytics.Momentum(values, c.cfg.Momentum.Long, base),
	}
	snap.Volatility = model.VolatilityFeatures{
		PseudoATR: analytics.Percent(analytics.PseudoATR(values, i, c.cfg.ATRWindow), price),
		Short:     analytics.Percent(analytics.Volatility(values, i, c.cfg.VolatilityWindow), price),
	}

	// 7. RSI and its slope
	reseed := c.cfg.Reseed
	rc := c.cfg.RSI
	snap.RSI.Short = c.ind.RSI(values, rc.Short, rc.Period, reseed)
	snap.RSI.MiddleShort = c.ind.RSI(values, rc.MiddleShort, rc.Period, reseed)
	snap.RSI.Long = c.ind.RSI(values, rc.Long, rc.Period, reseed)
	snap.RSI.Slope = c.rsiSlope(snap.RSI.Short)

	// 8. EMAs normalized to price
	ep := c.cfg.EMAPeriods
	snap.EMA.Short = relative(c.ind.EMA(values, base, ep[0], reseed), price)
	snap.EMA.Medium = relative(c.ind.EMA(values, base, ep[1], reseed), price)
	snap.EMA.Long = relative(c.ind.EMA(values, base, ep[2], reseed), price)
	snap.EMA.Longterm = relative(c.ind.EMA(values, base, ep[3], reseed), price)

	// 9. SMA and Bollinger bands
	sp := c.cfg.SMAPeriods
	snap.SMA.Short = c.ind.SMA(values, c.cfg.SMAInterval, sp[0], reseed)
	snap.SMA.Medium = c.ind.SMA(values, c.cfg.SMAInterval, sp[1], reseed)
	snap.SMA.Long = c.ind.SMA(values, c.cfg.SMAInterval, sp[2], reseed)
	u, m, l := c.ind.Bollinger(values, c.cfg.SMAInterval, c.cfg.BollingerPeriod, c.cfg.BollingerK, reseed)
	snap.BollingerBands = model.BandFeatures{Upper: u, Middle: m, Lower: l}

	// 10. MA crossovers
	snap.EMA.CrossoverShortMedium, snap.EMA.CrossoverMediumLong = c.crossovers(snap.EMA)

	// 11. RSI divergence
	snap.Divergence = c.divergence(recent, price, snap.RSI.Long)

	// 12. MACD
	macd, sig, hist := c.ind.MACD(values, c.cfg.MACDInterval, reseed)
	snap.MACD = model.MACDFeatures{MACD: macd, Signal: sig, Histogram: hist}

	// 13. Fibonacci
	if arc := c.fib.Step(i, price); arc != nil {
		c.log.Debug("fibonacci arc closed", "start", arc.StartIndex, "end", *arc.EndIndex,
			"low", arc.Low, "high", arc.High)
	}

	// 14. zone confidence
	var prevZones [confidence.ZoneCount]model.Zone
	if hasPrev {
		prevZones = prev.Zones()
	}
	snap.ZoneConfidence = c.conf.Update(zones, prevZones, price)
	snap.ZoneConfidenceSlope = c.conf.Slope(0)

	// 15. publish
	c.metrics.Append(snap)
	return snap, nil
}

func (c *Collector) tokenAge(t int64) float64 {
	created := c.cfg.CreatedAt
	if created == 0 {
		created = c.firstT
	}
	if t <= created {
		return 0
	}
	return float64(t-created) / 86400
}

// zoneWindows returns the short, mid and long windows: a quarter, half and
// four fifths of the candles at each zone's interval, floored at 50/50/200
// and capped at MaxZoneWindow.
func (c *Collector) zoneWindows() [3]int {
	frac := [3]struct{ num, den, floor int }{{1, 4, 50}, {1, 2, 50}, {4, 5, 200}}
	var out [3]int
	for k, z := range c.cfg.Zones {
		n := c.agg.Len(z.IntervalMinutes)
		w := n * frac[k].num / frac[k].den
		if w < frac[k].floor {
			w = frac[k].floor
		}
		if c.cfg.MaxZoneWindow > 0 && w > c.cfg.MaxZoneWindow {
			w = c.cfg.MaxZoneWindow
		}
		out[k] = w
	}
	return out
}

// detectZones maps (support, resistance) of short, mid and long horizons to
// key_zone_1..6.
func (c *Collector) detectZones() [confidence.ZoneCount]model.Zone {
	var out [confidence.ZoneCount]model.Zone
	windows := c.zoneWindows()
	for k, z := range c.cfg.Zones {
		out[2*k], out[2*k+1] = c.zones.Detect(z, c.agg.Last(z.IntervalMinutes, windows[k]), windows[k])
	}
	return out
}

// rsiSlope is the mean step of rsi.short over the last SlopeWindow snapshots
// (current included). Missing values are skipped; nil with fewer than two.
func (c *Collector) rsiSlope(cur *float64) *float64 {
	n := c.cfg.RSI.SlopeWindow - 1
	if n < 1 {
		n = 1
	}
	var vals []float64
	for _, s := range c.metrics.Tail(n) {
		if s.RSI.Short != nil {
			vals = append(vals, *s.RSI.Short)
		}
	}
	if cur != nil {
		vals = append(vals, *cur)
	}
	if len(vals) < 2 {
		return nil
	}
	return model.Float((vals[len(vals)-1] - vals[0]) / float64(len(vals)-1))
}

// crossovers compares the EMA pairs over the last CrossoverLookback
// snapshots plus the current one and keeps the newest cross of each pair.
func (c *Collector) crossovers(cur model.EMAFeatures) (shortMedium, mediumLong *int) {
	hist := c.metrics.Tail(c.cfg.CrossoverLookback)
	short := make([]*float64, len(hist))
	medium := make([]*float64, len(hist))
	long := make([]*float64, len(hist))
	for j, s := range hist {
		short[j], medium[j], long[j] = s.EMA.Short, s.EMA.Medium, s.EMA.Long
	}
	shortMedium = indicator.LatestCross(indicator.Crossovers(short, medium, cur.Short, cur.Medium))
	mediumLong = indicator.LatestCross(indicator.Crossovers(medium, long, cur.Medium, cur.Long))
	return shortMedium, mediumLong
}

func (c *Collector) divergence(recent []model.Snapshot, price float64, rsi *float64) *model.Divergence {
	prices := make([]float64, 0, len(recent)+1)
	rsis := make([]*float64, 0, len(recent)+1)
	for _, s := range recent {
		prices = append(prices, s.Price)
		rsis = append(rsis, s.RSI.Long)
	}
	prices = append(prices, price)
	rsis = append(rsis, rsi)
	return indicator.Divergence(prices, rsis, c.cfg.DivergenceSource, c.cfg.Divergence)
}

func timeFeatures(t int64) model.TimeFeatures {
	ts := time.Unix(t, 0).UTC()
	return model.TimeFeatures{
		MinuteOfDay: ts.Hour()*60 + ts.Minute(),
		DayOfWeek:   (int(ts.Weekday()) + 6) % 7,
	}
}

// relative returns (v - price) / price, or nil.
func relative(v *float64, price float64) *float64 {
	if v == nil || price == 0 {
		return nil
	}
	return model.Float((*v - price) / price)
}

// Metrics returns the published metrics log. The slice is an immutable prefix.
func (c *Collector) Metrics() []model.Snapshot { return c.metrics.View() }

// Len returns the number of published snapshots.
func (c *Collector) Len() int { return c.metrics.Len() }

// Latest returns the newest sample, if any.
func (c *Collector) Latest() (model.Sample, bool) { return c.buf.Latest() }

// Samples returns an immutable view of the ingested samples.
func (c *Collector) Samples() series.View { return c.buf.View() }

// Candles returns the closed candles of an interval.
func (c *Collector) Candles(intervalMinutes int) []model.Candle {
	return append([]model.Candle(nil), c.agg.Candles(intervalMinutes)...)
}

// Forming returns the in-progress candle of every target interval that has
// received at least one sample, in target order.
func (c *Collector) Forming() []model.Candle {
	var out []model.Candle
	for _, tf := range c.agg.Targets() {
		if f, ok := c.agg.Forming(tf); ok {
			out = append(out, f)
		}
	}
	return out
}

// Arcs returns the closed Fibonacci arcs followed by the open one.
func (c *Collector) Arcs() []model.Arc { return c.fib.Arcs() }

// PersistentZones returns the clustered levels touched at least twice.
func (c *Collector) PersistentZones() []model.LevelRecord {
	last, ok := c.buf.Latest()
	if !ok {
		return nil
	}
	return c.zones.Tracker().Persistent(last.Value())
}
