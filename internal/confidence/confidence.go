// Package confidence maintains the zone-proximity confidence scalar.
//
// Each tick, every non-empty zone whose band contains the price pushes the
// scalar up (price above the level, level not dropped) or down (price below).
// Weak net influence lets the scalar decay. The value is clipped to [0, 1].
package confidence

import (
	"math"

	"token-sentry/internal/model"
	"token-sentry/internal/ringbuf"
)

// ZoneCount is the number of key zones tracked per tick.
const ZoneCount = 6

// Params are the per-zone weight (Alpha), band half-width as a fraction of
// the level (Tau) and decay rate (Delta).
type Params struct {
	Alpha float64 `yaml:"alpha" json:"alpha"`
	Tau   float64 `yaml:"tau" json:"tau"`
	Delta float64 `yaml:"delta" json:"delta"`
}

// Config tunes the calculator.
type Config struct {
	Default        Params  `yaml:"default"`
	DecayThreshold float64 `yaml:"decay_threshold"` // |net| below this decays
	SlopeWindow    int     `yaml:"slope_window"`    // history length
	Lookback       int     `yaml:"lookback"`        // values used by Slope
}

// DefaultConfig mirrors the production tuning.
var DefaultConfig = Config{
	Default:        Params{Alpha: 0.1, Tau: 0.02, Delta: 0.05},
	DecayThreshold: 0.1,
	SlopeWindow:    10,
	Lookback:       5,
}

// DefaultOverrides are applied to key_zone_1..6 every tick: short-term zones
// react fastest, long-term zones weigh most and decay slowest.
var DefaultOverrides = [ZoneCount]Params{
	{Alpha: 0.2, Tau: 0.01, Delta: 0.1},
	{Alpha: 0.2, Tau: 0.01, Delta: 0.1},
	{Alpha: 0.3, Tau: 0.015, Delta: 0.05},
	{Alpha: 0.3, Tau: 0.015, Delta: 0.05},
	{Alpha: 0.4, Tau: 0.02, Delta: 0.02},
	{Alpha: 0.4, Tau: 0.02, Delta: 0.02},
}

// Calculator holds the confidence scalar and its recent history.
// Not goroutine-safe: owned by one collector.
type Calculator struct {
	cfg     Config
	zones   [ZoneCount]Params
	value   float64
	history *ringbuf.Ring[float64]
}

// New creates a calculator with every zone on the default parameters.
func New(cfg Config) *Calculator {
	if cfg.SlopeWindow < 1 {
		cfg.SlopeWindow = DefaultConfig.SlopeWindow
	}
	if cfg.Lookback < 1 {
		cfg.Lookback = DefaultConfig.Lookback
	}
	c := &Calculator{cfg: cfg, history: ringbuf.New[float64](cfg.SlopeWindow)}
	for i := range c.zones {
		c.zones[i] = cfg.Default
	}
	return c
}

// SetZoneParams overrides the parameters of zone i (0-based).
func (c *Calculator) SetZoneParams(i int, p Params) {
	if i >= 0 && i < ZoneCount {
		c.zones[i] = p
	}
}

// ZoneParams returns the parameters of zone i (0-based).
func (c *Calculator) ZoneParams(i int) Params { return c.zones[i] }

// Value returns the current confidence.
func (c *Calculator) Value() float64 { return c.value }

// History returns the retained values, oldest first.
func (c *Calculator) History() []float64 { return c.history.Values() }

// Update applies one tick. prev holds the previous snapshot's zones; pass
// empty zones when there is no previous snapshot.
func (c *Calculator) Update(zones, prev [ZoneCount]model.Zone, price float64) float64 {
	var net, maxDecay float64
	for k, z := range zones {
		if z.IsEmpty() || z.Level <= 0 {
			continue
		}
		p := c.zones[k]
		lower, upper := z.Level*(1-p.Tau), z.Level*(1+p.Tau)
		if price < lower || price > upper {
			continue
		}

		prox := 1.0
		if band := p.Tau * z.Level; band > 0 {
			prox = 1 - math.Abs(price-z.Level)/band
		}
		dropped := !prev[k].IsEmpty() && z.Level < prev[k].Level

		switch {
		case price > z.Level && !dropped:
			net += prox * p.Alpha
		case price < z.Level:
			net -= prox * p.Alpha
		}
		maxDecay = math.Max(maxDecay, p.Delta)
	}

	if math.Abs(net) < c.cfg.DecayThreshold {
		if maxDecay == 0 {
			maxDecay = c.cfg.Default.Delta
		}
		c.value *= 1 - maxDecay
	}
	c.value = clip(c.value+net, 0, 1)
	c.history.Put(c.value)
	return c.value
}

// Slope is the average relative change per step over the last
// min(lookback, history) values, clamped to [-1, 1]. A zero start yields 0
// when the end is also 0, else ±1 by the sign of the end.
func (c *Calculator) Slope(lookback int) float64 {
	if lookback <= 0 {
		lookback = c.cfg.Lookback
	}
	vals := c.history.Last(lookback)
	k := len(vals)
	if k < 2 {
		return 0
	}
	first, last := vals[0], vals[k-1]
	if first == 0 {
		switch {
		case last > 0:
			return 1
		case last < 0:
			return -1
		}
		return 0
	}
	return clip((last-first)/first/float64(k-1), -1, 1)
}

// State is the serializable calculator state.
type State struct {
	Value   float64   `json:"value"`
	History []float64 `json:"history"`
}

// State exports the scalar and its history.
func (c *Calculator) State() State {
	return State{Value: c.value, History: c.History()}
}

// Restore replaces the scalar and history.
func (c *Calculator) Restore(s State) {
	c.value = clip(s.Value, 0, 1)
	c.history.Reset()
	for _, v := range s.History {
		c.history.Put(v)
	}
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
