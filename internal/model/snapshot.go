package model

import (
	"encoding/json"
	"strconv"
)

// Snapshot is the per-tick feature vector. Every snapshot carries the same key
// set; indicators without enough data are null rather than absent.
type Snapshot struct {
	Timestamp     int64   `json:"timestamp"`
	Price         float64 `json:"price"`
	TokenAge      float64 `json:"token_age"` // days
	PeakDistance  float64 `json:"peak_distance"`
	DrawdownTight float64 `json:"drawdown_tight"`
	DrawdownShort float64 `json:"drawdown_short"`
	DrawdownLong  float64 `json:"drawdown_long"`

	Momentum       MomentumFeatures   `json:"momentum"`
	Volatility     VolatilityFeatures `json:"volatility"`
	RSI            RSIFeatures        `json:"rsi"`
	EMA            EMAFeatures        `json:"ema"`
	SMA            SMAFeatures        `json:"sma"`
	BollingerBands BandFeatures       `json:"boilinger_bands"`
	MACD           MACDFeatures       `json:"macd"`
	Divergence     *Divergence        `json:"divergence"`

	KeyZone1 Zone `json:"key_zone_1"`
	KeyZone2 Zone `json:"key_zone_2"`
	KeyZone3 Zone `json:"key_zone_3"`
	KeyZone4 Zone `json:"key_zone_4"`
	KeyZone5 Zone `json:"key_zone_5"`
	KeyZone6 Zone `json:"key_zone_6"`

	ZoneConfidence      float64 `json:"zone_confidence"`
	ZoneConfidenceSlope float64 `json:"zone_confidence_slope"`

	Time TimeFeatures `json:"time"`
}

type MomentumFeatures struct {
	Short  float64 `json:"short"`
	Medium float64 `json:"medium"`
	Long   float64 `json:"long"`
}

type VolatilityFeatures struct {
	PseudoATR float64 `json:"pseudo_atr"`
	Short     float64 `json:"short"`
}

type RSIFeatures struct {
	Short       *float64 `json:"short"`
	MiddleShort *float64 `json:"middle_short"`
	Long        *float64 `json:"long"`
	Slope       *float64 `json:"slope"`
}

// EMAFeatures holds EMAs normalized as (ema - price) / price.
type EMAFeatures struct {
	Short                *float64 `json:"short"`
	Medium               *float64 `json:"medium"`
	Long                 *float64 `json:"long"`
	Longterm             *float64 `json:"longterm"`
	CrossoverShortMedium *int     `json:"crossover_short_medium"`
	CrossoverMediumLong  *int     `json:"crossover_medium_long"`
}

type SMAFeatures struct {
	Short  *float64 `json:"short"`
	Medium *float64 `json:"medium"`
	Long   *float64 `json:"long"`
}

type BandFeatures struct {
	Upper  *float64 `json:"upper"`
	Middle *float64 `json:"middle"`
	Lower  *float64 `json:"lower"`
}

type MACDFeatures struct {
	MACD      *float64 `json:"macd"`
	Signal    *float64 `json:"signal"`
	Histogram *float64 `json:"histogram"`
}

// Divergence is an RSI/price divergence: Signal 1 is bullish, 0 bearish.
type Divergence struct {
	Signal   int     `json:"signal"`
	Strength float64 `json:"strength"`
	Source   string  `json:"source"`
}

type TimeFeatures struct {
	MinuteOfDay int `json:"minute_of_day"`
	DayOfWeek   int `json:"day_of_week"` // Monday = 0
}

// Zones returns key_zone_1..6 in order.
func (s *Snapshot) Zones() [6]Zone {
	return [6]Zone{s.KeyZone1, s.KeyZone2, s.KeyZone3, s.KeyZone4, s.KeyZone5, s.KeyZone6}
}

// SetZones assigns key_zone_1..6.
func (s *Snapshot) SetZones(z [6]Zone) {
	s.KeyZone1, s.KeyZone2, s.KeyZone3 = z[0], z[1], z[2]
	s.KeyZone4, s.KeyZone5, s.KeyZone6 = z[3], z[4], z[5]
}

// JSON returns the JSON-encoded snapshot (ignoring errors for hot-path usage).
func (s *Snapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Columns lists the flattened snapshot keys, nested names joined by "_".
// The order is stable and matches Flatten.
func Columns() []string {
	cols := []string{
		"timestamp", "price", "token_age", "peak_distance",
		"drawdown_tight", "drawdown_short", "drawdown_long",
		"momentum_short", "momentum_medium", "momentum_long",
		"volatility_pseudo_atr", "volatility_short",
		"rsi_short", "rsi_middle_short", "rsi_long", "rsi_slope",
		"ema_short", "ema_medium", "ema_long", "ema_longterm",
		"ema_crossover_short_medium", "ema_crossover_medium_long",
		"sma_short", "sma_medium", "sma_long",
		"boilinger_bands_upper", "boilinger_bands_middle", "boilinger_bands_lower",
		"macd_macd", "macd_signal", "macd_histogram",
		"divergence_signal", "divergence_strength", "divergence_source",
	}
	for i := 1; i <= 6; i++ {
		n := strconv.Itoa(i)
		cols = append(cols, "key_zone_"+n+"_level", "key_zone_"+n+"_strength")
	}
	return append(cols,
		"zone_confidence", "zone_confidence_slope",
		"time_minute_of_day", "time_day_of_week",
	)
}

// Flatten renders the snapshot as strings in Columns order. Null values and
// empty zones become empty strings.
func (s *Snapshot) Flatten() []string {
	row := []string{
		strconv.FormatInt(s.Timestamp, 10), ff(s.Price), ff(s.TokenAge), ff(s.PeakDistance),
		ff(s.DrawdownTight), ff(s.DrawdownShort), ff(s.DrawdownLong),
		ff(s.Momentum.Short), ff(s.Momentum.Medium), ff(s.Momentum.Long),
		ff(s.Volatility.PseudoATR), ff(s.Volatility.Short),
		fp(s.RSI.Short), fp(s.RSI.MiddleShort), fp(s.RSI.Long), fp(s.RSI.Slope),
		fp(s.EMA.Short), fp(s.EMA.Medium), fp(s.EMA.Long), fp(s.EMA.Longterm),
		ip(s.EMA.CrossoverShortMedium), ip(s.EMA.CrossoverMediumLong),
		fp(s.SMA.Short), fp(s.SMA.Medium), fp(s.SMA.Long),
		fp(s.BollingerBands.Upper), fp(s.BollingerBands.Middle), fp(s.BollingerBands.Lower),
		fp(s.MACD.MACD), fp(s.MACD.Signal), fp(s.MACD.Histogram),
	}
	if d := s.Divergence; d != nil {
		row = append(row, strconv.Itoa(d.Signal), ff(d.Strength), d.Source)
	} else {
		row = append(row, "", "", "")
	}
	for _, z := range s.Zones() {
		if z.IsEmpty() {
			row = append(row, "", "")
			continue
		}
		row = append(row, ff(z.Level), ff(z.Strength))
	}
	return append(row,
		ff(s.ZoneConfidence), ff(s.ZoneConfidenceSlope),
		strconv.Itoa(s.Time.MinuteOfDay), strconv.Itoa(s.Time.DayOfWeek),
	)
}

// Float returns a pointer to v, for populating nullable fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func fp(v *float64) string {
	if v == nil {
		return ""
	}
	return ff(*v)
}

func ip(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
