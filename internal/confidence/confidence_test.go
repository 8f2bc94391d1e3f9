package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentry/internal/model"
)

func zonesAt(level float64, slot int) [ZoneCount]model.Zone {
	var z [ZoneCount]model.Zone
	z[slot] = model.Zone{Level: level, Strength: 50}
	return z
}

// Zone L=100, τ=0.1, α=0.2, price 102: prox 0.8, net +0.16.
func TestUpdate_InsideBandAbove(t *testing.T) {
	c := New(DefaultConfig)
	c.SetZoneParams(0, Params{Alpha: 0.2, Tau: 0.1, Delta: 0.05})

	got := c.Update(zonesAt(100, 0), [ZoneCount]model.Zone{}, 102)
	assert.InDelta(t, 0.16, got, 1e-12)
}

func TestUpdate_BelowLevelPushesDown(t *testing.T) {
	c := New(DefaultConfig)
	c.SetZoneParams(0, Params{Alpha: 0.5, Tau: 0.1, Delta: 0.05})
	c.Update(zonesAt(100, 0), [ZoneCount]model.Zone{}, 101) // +0.45
	require.InDelta(t, 0.45, c.Value(), 1e-12)

	got := c.Update(zonesAt(100, 0), [ZoneCount]model.Zone{}, 99) // -0.45
	assert.InDelta(t, 0, got, 1e-12)
}

func TestUpdate_DroppedZoneDoesNotPushUp(t *testing.T) {
	c := New(DefaultConfig)
	c.SetZoneParams(0, Params{Alpha: 0.2, Tau: 0.1, Delta: 0.5})

	// Level fell from 110 to 100: the zone dropped, so price above it only
	// contributes its decay rate.
	got := c.Update(zonesAt(100, 0), zonesAt(110, 0), 102)
	assert.Zero(t, got)
}

func TestUpdate_DecayWhenInfluenceIsWeak(t *testing.T) {
	c := New(DefaultConfig)
	c.Restore(State{Value: 0.5})

	// No zones in band: default decay 0.05.
	got := c.Update([ZoneCount]model.Zone{}, [ZoneCount]model.Zone{}, 100)
	assert.InDelta(t, 0.475, got, 1e-12)

	// Weak in-band influence decays by the zone's delta, then adds net.
	c.SetZoneParams(2, Params{Alpha: 0.1, Tau: 0.1, Delta: 0.2})
	got = c.Update(zonesAt(100, 2), [ZoneCount]model.Zone{}, 105) // net = 0.5*0.1
	assert.InDelta(t, 0.475*0.8+0.05, got, 1e-12)
}

func TestUpdate_OutsideBandIgnored(t *testing.T) {
	c := New(DefaultConfig)
	got := c.Update(zonesAt(100, 0), [ZoneCount]model.Zone{}, 150)
	assert.Zero(t, got)
}

func TestUpdate_StaysInUnitInterval(t *testing.T) {
	c := New(DefaultConfig)
	for i := range DefaultOverrides {
		c.SetZoneParams(i, Params{Alpha: 1, Tau: 0.5, Delta: 0.01})
	}
	var all [ZoneCount]model.Zone
	for i := range all {
		all[i] = model.Zone{Level: 100, Strength: 1}
	}

	for i := 0; i < 20; i++ {
		v := c.Update(all, all, 101)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		s := c.Slope(0)
		assert.GreaterOrEqual(t, s, -1.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Equal(t, 1.0, c.Value())
	for i := 0; i < 20; i++ {
		assert.GreaterOrEqual(t, c.Update(all, all, 99), 0.0)
	}
	assert.Zero(t, c.Value())
}

func TestSlope(t *testing.T) {
	c := New(Config{Default: DefaultConfig.Default, SlopeWindow: 10, Lookback: 5})
	assert.Zero(t, c.Slope(0), "empty history")

	c.Restore(State{History: []float64{0.1, 0.2, 0.3}})
	// (0.3-0.1)/0.1/2 = 1
	assert.InDelta(t, 1.0, c.Slope(0), 1e-12)

	c.Restore(State{History: []float64{0.4, 0.35, 0.3, 0.25, 0.2}})
	assert.InDelta(t, (0.2-0.4)/0.4/4, c.Slope(0), 1e-12)
	assert.InDelta(t, (0.2-0.25)/0.25, c.Slope(2), 1e-12)

	c.Restore(State{History: []float64{0, 0, 0}})
	assert.Zero(t, c.Slope(0))

	c.Restore(State{History: []float64{0, 0.01}})
	assert.Equal(t, 1.0, c.Slope(0))
}

func TestHistoryBoundedBySlopeWindow(t *testing.T) {
	c := New(DefaultConfig)
	for i := 0; i < 25; i++ {
		c.Update([ZoneCount]model.Zone{}, [ZoneCount]model.Zone{}, 1)
	}
	assert.Len(t, c.History(), DefaultConfig.SlopeWindow)
}
