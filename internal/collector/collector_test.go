package collector

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentry/internal/model"
)

const base = 5

func newCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := New(DefaultConfig("TEST", base), nil)
	require.NoError(t, err)
	return c
}

// walk is a deterministic random walk sampled every base interval.
func walk(n int, seed int64) []model.Sample {
	r := rand.New(rand.NewSource(seed))
	out := make([]model.Sample, n)
	p := 1.0
	for i := range out {
		p *= math.Exp(0.01 * r.NormFloat64())
		out[i] = model.NewPriceSample(int64(i*base*60), p)
	}
	return out
}

func ingestAll(t *testing.T, c *Collector, samples []model.Sample) {
	t.Helper()
	for _, s := range samples {
		_, err := c.Ingest(s)
		require.NoError(t, err)
	}
}

func TestNew_InvalidIntervals(t *testing.T) {
	cfg := DefaultConfig("TEST", 5)
	cfg.Targets = []int{60, 7}
	_, err := New(cfg, nil)
	assert.True(t, errors.Is(err, model.ErrInvalidInterval))

	cfg = DefaultConfig("TEST", 3)
	_, err = New(cfg, nil)
	assert.True(t, errors.Is(err, model.ErrInvalidInterval))
}

// Four samples at 5m: no hourly boundary, momentum over 15m is -5%.
func TestIngest_FirstHour(t *testing.T) {
	c := newCollector(t)
	var last model.Snapshot
	for i, v := range []float64{100, 110, 105, 95} {
		snap, err := c.Ingest(model.NewPriceSample(int64(i*300), v))
		require.NoError(t, err)
		last = snap
	}

	assert.Len(t, c.Candles(base), 4)
	assert.Len(t, c.Candles(60), 0)
	assert.InDelta(t, -5.0, last.Momentum.Short, 1e-12)
	assert.Equal(t, 4, c.Len())
}

// Equal timestamps append; a decreasing timestamp is rejected.
func TestIngest_Monotonicity(t *testing.T) {
	c := newCollector(t)

	_, err := c.Ingest(model.NewPriceSample(0, 100))
	require.NoError(t, err)
	_, err = c.Ingest(model.NewPriceSample(0, 100.00001))
	require.NoError(t, err)
	_, err = c.Ingest(model.NewPriceSample(-300, 99.999))
	require.True(t, errors.Is(err, model.ErrMonotonicity), "got %v", err)

	assert.Equal(t, 2, c.Len())
	assert.Len(t, c.Samples().Samples(), 2)
}

func TestIngest_RejectedSampleLeavesStateUnchanged(t *testing.T) {
	c := newCollector(t)
	ingestAll(t, c, walk(100, 1))
	before := c.State()

	_, err := c.Ingest(model.NewPriceSample(1e9, math.NaN()))
	require.True(t, errors.Is(err, model.ErrSchemaMismatch))

	assert.Equal(t, 100, c.Len())
	assert.Equal(t, before, c.State())
}

func TestIngest_FirstSample(t *testing.T) {
	c := newCollector(t)
	snap, err := c.Ingest(model.NewPriceSample(1700000000, 2.5))
	require.NoError(t, err)

	assert.Equal(t, 2.5, snap.Price)
	assert.Zero(t, snap.TokenAge)
	assert.Zero(t, snap.Momentum)
	assert.Zero(t, snap.Volatility)
	assert.Nil(t, snap.RSI.Short)
	assert.Nil(t, snap.RSI.Slope)
	assert.Nil(t, snap.EMA.Short)
	assert.Nil(t, snap.EMA.CrossoverShortMedium)
	assert.Nil(t, snap.SMA.Short)
	assert.Nil(t, snap.BollingerBands.Middle)
	assert.Nil(t, snap.MACD.MACD)
	assert.Nil(t, snap.Divergence)
	for _, z := range snap.Zones() {
		assert.True(t, z.IsEmpty())
	}
	assert.Zero(t, snap.ZoneConfidence)
	assert.Zero(t, snap.ZoneConfidenceSlope)

	// 2023-11-14 22:13:20 UTC, a Tuesday.
	assert.Equal(t, 22*60+13, snap.Time.MinuteOfDay)
	assert.Equal(t, 1, snap.Time.DayOfWeek)

	arcs := c.Arcs()
	require.Len(t, arcs, 1)
	assert.False(t, arcs[0].Closed())
}

func TestIngest_TokenAge(t *testing.T) {
	cfg := DefaultConfig("TEST", base)
	cfg.CreatedAt = 1000
	c, err := New(cfg, nil)
	require.NoError(t, err)

	snap, err := c.Ingest(model.NewPriceSample(1000+2*86400, 1))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, snap.TokenAge, 1e-12)
}

func TestIngest_Determinism(t *testing.T) {
	samples := walk(1500, 7)
	a, b := newCollector(t), newCollector(t)
	ingestAll(t, a, samples)
	ingestAll(t, b, samples)

	assert.Equal(t, a.Metrics(), b.Metrics())
}

func TestIngest_Invariants(t *testing.T) {
	c := newCollector(t)
	ingestAll(t, c, walk(4000, 3))
	metrics := c.Metrics()
	require.Len(t, metrics, 4000)

	cols := len(model.Columns())
	sawZone, sawMACD := false, false
	for i, s := range metrics {
		if i > 0 {
			assert.GreaterOrEqual(t, s.Timestamp, metrics[i-1].Timestamp)
		}
		assert.Len(t, s.Flatten(), cols)
		assert.GreaterOrEqual(t, s.ZoneConfidence, 0.0)
		assert.LessOrEqual(t, s.ZoneConfidence, 1.0)
		assert.LessOrEqual(t, math.Abs(s.ZoneConfidenceSlope), 1.0)

		bb := s.BollingerBands
		if bb.Upper != nil && bb.Middle != nil && bb.Lower != nil {
			assert.LessOrEqual(t, *bb.Lower, *bb.Middle)
			assert.LessOrEqual(t, *bb.Middle, *bb.Upper)
		}
		if s.MACD.MACD != nil && s.MACD.Signal != nil {
			sawMACD = true
			require.NotNil(t, s.MACD.Histogram)
			assert.InDelta(t, *s.MACD.MACD-*s.MACD.Signal, *s.MACD.Histogram, 1e-9)
		}
		if d := s.Divergence; d != nil {
			assert.Contains(t, []int{0, 1}, d.Signal)
			assert.GreaterOrEqual(t, d.Strength, 0.0)
			assert.LessOrEqual(t, d.Strength, 1.0)
		}
		for _, z := range s.Zones() {
			if !z.IsEmpty() {
				sawZone = true
			}
		}
	}
	assert.True(t, sawZone, "zones appear on a random walk")
	assert.True(t, sawMACD, "hourly MACD seeds within 4000 five-minute samples")

	for _, arc := range c.Arcs() {
		if !arc.Closed() {
			continue
		}
		assert.Equal(t, arc.High, arc.Levels["0%"])
		assert.Equal(t, arc.Low, arc.Levels["100%"])
		assert.InDelta(t, arc.High-0.618*(arc.High-arc.Low), arc.Levels["61.8%"], 1e-12)
	}
	for _, cdl := range c.Candles(60) {
		assert.LessOrEqual(t, cdl.Low, math.Min(cdl.Open, cdl.Close))
		assert.GreaterOrEqual(t, cdl.High, math.Max(cdl.Open, cdl.Close))
		assert.Equal(t, int64(3600), cdl.End-cdl.Start)
	}
}

func TestIngest_FlatSeries(t *testing.T) {
	c := newCollector(t)
	samples := make([]model.Sample, 3000)
	for i := range samples {
		samples[i] = model.NewPriceSample(int64(i*base*60), 4.2)
	}
	ingestAll(t, c, samples)

	last := c.Metrics()[len(samples)-1]
	require.NotNil(t, last.RSI.Long)
	assert.Equal(t, 100.0, *last.RSI.Short)
	assert.Equal(t, 100.0, *last.RSI.Long)
	assert.InDelta(t, 0, *last.EMA.Short, 1e-12)
	assert.InDelta(t, 0, *last.EMA.Longterm, 1e-12)
	assert.InDelta(t, 4.2, *last.SMA.Long, 1e-12)
	assert.Equal(t, *last.BollingerBands.Middle, *last.BollingerBands.Upper)
	assert.Equal(t, *last.BollingerBands.Middle, *last.BollingerBands.Lower)

	for _, arc := range c.Arcs() {
		assert.False(t, arc.Closed())
	}
}

func TestIngest_IncreasingSeries(t *testing.T) {
	c := newCollector(t)
	samples := make([]model.Sample, 500)
	for i := range samples {
		samples[i] = model.NewPriceSample(int64(i*base*60), 1+0.01*float64(i))
	}
	ingestAll(t, c, samples)

	arcs := c.Arcs()
	require.Len(t, arcs, 1)
	assert.False(t, arcs[0].Closed())
	assert.InDelta(t, samples[len(samples)-1].Close, arcs[0].High, 1e-12)
	assert.Zero(t, c.Metrics()[len(samples)-1].PeakDistance)
}

func TestRestore_ContinuesIdentically(t *testing.T) {
	samples := walk(1200, 11)
	a := newCollector(t)
	ingestAll(t, a, samples[:900])

	raw, err := json.Marshal(a.State())
	require.NoError(t, err)
	var st State
	require.NoError(t, json.Unmarshal(raw, &st))

	b := newCollector(t)
	require.NoError(t, b.Restore(st, a.Samples().Samples(), a.Metrics()))

	ingestAll(t, a, samples[900:])
	ingestAll(t, b, samples[900:])
	assert.Equal(t, a.Metrics()[900:], b.Metrics()[900:])
}

func TestRestore_RejectsMismatch(t *testing.T) {
	a := newCollector(t)
	ingestAll(t, a, walk(10, 1))

	b := newCollector(t)
	assert.Error(t, b.Restore(a.State(), a.Samples().Samples()[:5], a.Metrics()))

	other, err := New(DefaultConfig("OTHER", base), nil)
	require.NoError(t, err)
	assert.Error(t, other.Restore(a.State(), a.Samples().Samples(), a.Metrics()))
}

func TestMetrics_ConcurrentReaderSeesGrowingPrefix(t *testing.T) {
	c := newCollector(t)
	samples := walk(600, 5)

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		prev := 0
		for {
			select {
			case <-done:
				return
			default:
			}
			m := c.Metrics()
			if len(m) < prev {
				t.Errorf("metrics shrank from %d to %d", prev, len(m))
				return
			}
			if len(m) > 0 && m[len(m)-1].Timestamp != int64((len(m)-1)*base*60) {
				t.Errorf("snapshot %d not fully formed", len(m)-1)
				return
			}
			prev = len(m)
		}
	}()

	ingestAll(t, c, samples)
	close(done)
	wg.Wait()
	assert.Equal(t, 600, c.Len())
}

func TestForming_PreviewsUnfinishedCandles(t *testing.T) {
	c := newCollector(t)
	assert.Empty(t, c.Forming())

	samples := walk(14, 3) // 70 minutes: one hourly candle closed
	ingestAll(t, c, samples)

	forming := c.Forming()
	require.GreaterOrEqual(t, len(forming), 2)
	assert.Equal(t, 60, forming[0].Interval)
	assert.Equal(t, 240, forming[1].Interval)

	hourly := forming[0]
	assert.Equal(t, int64(3600), hourly.Start)
	assert.Equal(t, 2, hourly.Count)
	assert.Equal(t, samples[12].Close, hourly.Open)
	assert.Equal(t, samples[13].Close, hourly.Close)
	assert.Equal(t, 14, forming[1].Count)
	assert.Len(t, c.Candles(60), 1)
}
