package indicator

import (
	"math"
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wave is a deterministic non-flat price path around 100.
func wave(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := float64(i)
		out[i] = 100 + 8*math.Sin(x/7) + 3*math.Cos(x/3.1) + 0.02*x
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.9f, want %.9f (tol=%g, diff=%g)", label, got, want, tol, math.Abs(got-want))
	}
}

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after 3: 102, after 4: 103, after 5: 104
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		if sma.Ready() != ready[i] {
			t.Errorf("sample %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 1e-12)
		}
	}
}

func TestSMA_StdDev(t *testing.T) {
	sma := NewSMA(4)
	for _, p := range []float64{2, 4, 4, 4} {
		sma.Update(p)
	}
	// mean 3.5, squared deviations 2.25+0.25*3 = 3, sample variance 1
	assertClose(t, "stdev", sma.StdDev(), 1.0, 1e-12)
}

func TestEMA_SeedIsWeightedMean(t *testing.T) {
	ema := NewEMA(3)
	ema.Update(1)
	ema.Update(2)
	require.False(t, ema.Ready())
	ema.Update(3)
	require.True(t, ema.Ready())

	// α = 0.5, weights newest first: 1, 0.5, 0.25
	want := (3*1 + 2*0.5 + 1*0.25) / 1.75
	assertClose(t, "seed", ema.Value(), want, 1e-12)

	ema.Update(10)
	assertClose(t, "update", ema.Value(), want+0.5*(10-want), 1e-12)
}

func TestEMA_ConvergesToBatch(t *testing.T) {
	prices := wave(2000)
	for _, period := range []int{10, 50} {
		ema := NewEMA(period)
		for _, p := range prices {
			ema.Update(p)
		}
		ref := talib.Ema(prices, period)
		assertClose(t, "EMA vs talib", ema.Value(), ref[len(ref)-1], 1e-6)
	}
}

func TestRSI_MatchesWilderBatch(t *testing.T) {
	prices := wave(300)
	const period = 14

	rsi := NewRSI(period)
	ref := talib.Rsi(prices, period)
	for i, p := range prices {
		rsi.Update(p)
		if i < period {
			assert.False(t, rsi.Ready(), "index %d", i)
			continue
		}
		require.True(t, rsi.Ready(), "index %d", i)
		assertClose(t, "RSI vs talib", rsi.Value(), ref[i], 1e-4)
	}
}

func TestRSI_FlatSeriesIs100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 20; i++ {
		rsi.Update(42)
	}
	assert.Equal(t, 100.0, rsi.Value())
}

func TestSMMA_WilderSmoothing(t *testing.T) {
	s := NewSMMA(3)
	for _, v := range []float64{3, 6, 9} {
		s.Update(v)
	}
	assertClose(t, "seed", s.Value(), 6, 1e-12)
	s.Update(12)
	assertClose(t, "smoothed", s.Value(), (6*2+12)/3.0, 1e-12)
}

func TestMACD_HistogramIdentity(t *testing.T) {
	m := NewMACD(12, 26, 9)
	for i, p := range wave(200) {
		m.Update(p)
		switch {
		case i < 25:
			assert.False(t, m.Ready(), "index %d", i)
		case i < 33:
			assert.True(t, m.Ready(), "index %d", i)
			assert.False(t, m.SignalReady(), "index %d", i)
		default:
			require.True(t, m.SignalReady(), "index %d", i)
			assertClose(t, "histogram", m.Histogram(), m.Value()-m.Signal(), 1e-9)
		}
	}
}
