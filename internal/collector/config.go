package collector

import (
	"fmt"

	"token-sentry/internal/confidence"
	"token-sentry/internal/indicator"
	"token-sentry/internal/model"
	"token-sentry/internal/zone"
)

// Spans groups three lookbacks in minutes.
type Spans struct {
	Short  int `yaml:"short"`
	Medium int `yaml:"medium"`
	Long   int `yaml:"long"`
}

// DrawdownSpans are the drawdown lookbacks in minutes.
type DrawdownSpans struct {
	Tight int `yaml:"tight"`
	Short int `yaml:"short"`
	Long  int `yaml:"long"`
}

// RSIConfig sets the RSI intervals (minutes), period and slope window.
type RSIConfig struct {
	Short       int `yaml:"short"`
	MiddleShort int `yaml:"middle_short"`
	Long        int `yaml:"long"`
	Period      int `yaml:"period"`
	SlopeWindow int `yaml:"slope_window"` // snapshots, including the current one
}

// Config is everything a Collector needs. Nothing is read from the
// environment; build it with DefaultConfig or from the config package.
type Config struct {
	Token       string
	BaseMinutes int
	Targets     []int // aggregator target intervals (minutes)
	Anchor      int64 // bucket alignment epoch (unix seconds)
	CreatedAt   int64 // token creation (unix seconds); 0 uses the first sample

	Zones         [3]zone.Config
	ZoneWeights   zone.Weights
	MaxZoneWindow int

	Confidence    confidence.Config
	ZoneOverrides [confidence.ZoneCount]confidence.Params

	Momentum         Spans
	ATRWindow        int
	VolatilityWindow int
	Drawdown         DrawdownSpans

	RSI               RSIConfig
	EMAPeriods        [4]int // short, medium, long, longterm at base interval
	SMAPeriods        [3]int
	SMAInterval       int
	BollingerPeriod   int
	BollingerK        float64
	MACD              indicator.MACDParams
	MACDInterval      int
	CrossoverLookback int
	Divergence        indicator.DivergenceConfig
	DivergenceSource  string

	// Reseed recomputes every indicator from its trailing window each tick
	// instead of updating recursively.
	Reseed bool

	// OnCandle is called for every closed target candle (optional).
	OnCandle func(model.Candle)
}

// DefaultConfig returns the production settings for a token.
func DefaultConfig(token string, baseMinutes int) Config {
	div := indicator.DefaultDivergence
	div.PeakDistance = 15
	return Config{
		Token:         token,
		BaseMinutes:   baseMinutes,
		Targets:       []int{60, 240},
		Zones:         zone.DefaultConfigs(baseMinutes),
		ZoneWeights:   zone.DefaultWeights,
		MaxZoneWindow: 2000,

		Confidence:    confidence.DefaultConfig,
		ZoneOverrides: confidence.DefaultOverrides,

		Momentum:         Spans{Short: 15, Medium: 60, Long: 240},
		ATRWindow:        14,
		VolatilityWindow: 20,
		Drawdown:         DrawdownSpans{Tight: 60, Short: 240, Long: 1440},

		RSI:               RSIConfig{Short: 5, MiddleShort: 15, Long: 60, Period: 15, SlopeWindow: 6},
		EMAPeriods:        [4]int{10, 50, 100, 200},
		SMAPeriods:        [3]int{5, 10, 20},
		SMAInterval:       60,
		BollingerPeriod:   20,
		BollingerK:        2,
		MACD:              indicator.DefaultMACD,
		MACDInterval:      60,
		CrossoverLookback: 3,
		Divergence:        div,
		DivergenceSource:  "rsi_long",
	}
}

// ValidBaseIntervals are the supported base intervals in minutes.
var ValidBaseIntervals = map[int]string{
	1: "1m", 5: "5m", 15: "15m", 30: "30m", 60: "1h",
	240: "4h", 720: "12h", 1440: "1d", 4320: "3d", 10080: "1w",
}

// Validate checks the intervals. Every aggregator target and zone interval
// must be a multiple of the base.
func (c *Config) Validate() error {
	if _, ok := ValidBaseIntervals[c.BaseMinutes]; !ok {
		return fmt.Errorf("base interval %dm: %w", c.BaseMinutes, model.ErrInvalidInterval)
	}
	for _, tf := range c.Targets {
		if tf <= 0 || tf%c.BaseMinutes != 0 {
			return fmt.Errorf("target interval %dm is not a multiple of base %dm: %w", tf, c.BaseMinutes, model.ErrInvalidInterval)
		}
	}
	for _, z := range c.Zones {
		if z.IntervalMinutes <= 0 || z.IntervalMinutes%c.BaseMinutes != 0 {
			return fmt.Errorf("zone %s interval %dm is not a multiple of base %dm: %w", z.Name, z.IntervalMinutes, c.BaseMinutes, model.ErrInvalidInterval)
		}
	}
	return nil
}

// aggregatorTargets is Targets plus every zone interval above the base.
func (c *Config) aggregatorTargets() []int {
	out := append([]int(nil), c.Targets...)
	for _, z := range c.Zones {
		if z.IntervalMinutes > c.BaseMinutes {
			out = append(out, z.IntervalMinutes)
		}
	}
	return out
}

// samples converts a lookback in minutes to base samples (at least 1).
func (c *Config) samples(minutes int) int {
	n := minutes / c.BaseMinutes
	if n < 1 {
		return 1
	}
	return n
}
