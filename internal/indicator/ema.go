package indicator

// EMA calculates Exponential Moving Average.
// The first value is the exponentially-weighted mean of the first period
// samples (weights (1-α)^age, newest age 0); thereafter O(1) per update.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	seed       []float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
		seed:       make([]float64, 0, period),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(x float64) {
	e.count++

	if e.count <= e.period {
		e.seed = append(e.seed, x)
		if e.count == e.period {
			e.current = weightedMean(e.seed, e.multiplier)
			e.seed = nil
		}
		return
	}

	e.current += e.multiplier * (x - e.current)
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Snapshot serializes the EMA state for checkpoint persistence.
func (e *EMA) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:       "EMA",
		Period:     e.period,
		Multiplier: e.multiplier,
		Current:    e.current,
		Count:      e.count,
		Buf:        append([]float64(nil), e.seed...),
	}
}

// RestoreFromSnapshot restores EMA state from a checkpoint.
func (e *EMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if err := snap.expect("EMA"); err != nil {
		return err
	}
	e.period = snap.Period
	e.multiplier = snap.Multiplier
	e.current = snap.Current
	e.count = snap.Count
	e.seed = nil
	if e.count < e.period {
		e.seed = append(make([]float64, 0, e.period), snap.Buf...)
	}
	return nil
}

// weightedMean weights values by (1-α)^age where the last value has age 0.
func weightedMean(values []float64, alpha float64) float64 {
	var num, den float64
	w := 1.0
	for i := len(values) - 1; i >= 0; i-- {
		num += w * values[i]
		den += w
		w *= 1 - alpha
	}
	if den == 0 {
		return 0
	}
	return num / den
}
