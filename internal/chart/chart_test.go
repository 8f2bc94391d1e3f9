package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentry/internal/model"
)

func TestFromPeak(t *testing.T) {
	assert.InDelta(t, -20.0, DrawdownOver([]float64{100, 125, 110, 100}, 10), 1e-12)
	assert.Zero(t, DrawdownOver([]float64{90, 95, 100}, 3))
	assert.Zero(t, DrawdownOver(nil, 3))
	assert.InDelta(t, -20.0, FromPeak(100, 125), 1e-12)
	assert.Zero(t, FromPeak(100, 0))
}

func TestDrawdown(t *testing.T) {
	values := []float64{200, 100, 120, 90}

	d := Drawdown(values, 3, 10)
	assert.InDelta(t, (90.0-120)/120*100, d.Short, 1e-12)
	assert.InDelta(t, (90.0-200)/200*100, d.Long, 1e-12)

	assert.Zero(t, DrawdownOver(values, 1), "single value lookback")
	assert.Zero(t, DrawdownOver(values, 0))
	assert.Zero(t, DrawdownOver(nil, 5))
}

func TestClusterLevels(t *testing.T) {
	records := []model.LevelRecord{
		{Level: 101, Touches: 1, LastTouched: 7},
		{Level: 100, Touches: 2, LastTouched: 3, IsMajor: true},
		{Level: 150, Touches: 1, LastTouched: 9},
		{Level: 100.5, Touches: 1, LastTouched: 5},
	}

	got := ClusterLevels(records, 1.5)
	require.Len(t, got, 1, "the lone 150 level has a single touch and is dropped")

	c := got[0]
	assert.InDelta(t, (100+100.5+101)/3.0, c.Level, 1e-12)
	assert.Equal(t, 4, c.Touches)
	assert.Equal(t, 7, c.LastTouched)
	assert.True(t, c.IsMajor)

	assert.Nil(t, ClusterLevels(nil, 1))
	// Input is not reordered in place.
	assert.Equal(t, 101.0, records[0].Level)
}

func TestClusterLevels_SeparateClusters(t *testing.T) {
	records := []model.LevelRecord{
		{Level: 10, Touches: 2},
		{Level: 20, Touches: 3, LastTouched: 4},
		{Level: 20.2, Touches: 1, LastTouched: 2},
	}
	got := ClusterLevels(records, 0.5)
	require.Len(t, got, 2)
	assert.Equal(t, 10.0, got[0].Level)
	assert.Equal(t, 4, got[1].Touches)
	assert.Equal(t, 4, got[1].LastTouched)
}

func TestFindPeaks(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		opt  PeakOptions
		want []int
	}{
		{"simple", []float64{0, 2, 0, 3, 0}, PeakOptions{}, []int{1, 3}},
		{"edges excluded", []float64{5, 1, 5}, PeakOptions{}, nil},
		{"plateau midpoint", []float64{0, 2, 2, 2, 2, 0}, PeakOptions{}, []int{2}},
		{"plateau falling into edge", []float64{0, 2, 2}, PeakOptions{}, nil},
		{"distance keeps higher", []float64{0, 2, 0, 3, 0, 1, 0}, PeakOptions{Distance: 3}, []int{3}},
		{"distance rounds up", []float64{0, 2, 0, 1, 0, 3, 0}, PeakOptions{Distance: 3.5}, []int{1, 5}},
		{"prominence", []float64{0, 5, 4, 4.5, 0}, PeakOptions{Prominence: 1}, []int{1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FindPeaks(tc.x, tc.opt))
		})
	}
}

func TestFindTroughs(t *testing.T) {
	assert.Equal(t, []int{1, 3}, FindTroughs([]float64{5, 1, 4, 2, 6}, PeakOptions{}))
}

func TestProminences(t *testing.T) {
	x := []float64{0, 5, 4, 4.5, 0, 2, 1}
	peaks := FindPeaks(x, PeakOptions{})
	require.Equal(t, []int{1, 3, 5}, peaks)

	prom := Prominences(x, peaks)
	assert.InDelta(t, 5.0, prom[0], 1e-12)
	assert.InDelta(t, 0.5, prom[1], 1e-12)
	assert.InDelta(t, 1.0, prom[2], 1e-12)
}
