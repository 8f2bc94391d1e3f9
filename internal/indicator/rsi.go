package indicator

// RSI calculates the Relative Strength Index using Wilder's smoothing method:
// average gain and loss are SMMAs seeded with the mean over the first period
// differences. Update is O(1) per sample.
type RSI struct {
	period int
	count  int
	prev   float64
	gain   *SMMA
	loss   *SMMA
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	if period < 1 {
		period = 1
	}
	return &RSI{period: period, gain: NewSMMA(period), loss: NewSMMA(period)}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(x float64) {
	r.count++

	if r.count == 1 {
		// First sample — just record it, no delta yet
		r.prev = x
		return
	}

	g, l := split(x - r.prev)
	r.prev = x
	r.gain.Update(g)
	r.loss.Update(l)
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

// Value returns 100 - 100/(1+avgGain/avgLoss), or 100 when avgLoss is 0.
func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	return rsiFrom(r.gain.Value(), r.loss.Value())
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	return 100.0 - 100.0/(1.0+avgGain/avgLoss)
}

func (r *RSI) Ready() bool { return r.count > r.period }

// AvgGain and AvgLoss expose the smoothed averages.
func (r *RSI) AvgGain() float64 { return r.gain.Value() }
func (r *RSI) AvgLoss() float64 { return r.loss.Value() }

// Snapshot serializes the RSI state for checkpoint persistence.
func (r *RSI) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:      "RSI",
		Period:    r.period,
		Count:     r.count,
		PrevClose: r.prev,
		AvgGain:   r.gain.Value(),
		AvgLoss:   r.loss.Value(),
		Current:   r.Value(),
		Parts:     []IndicatorSnapshot{r.gain.Snapshot(), r.loss.Snapshot()},
	}
}

// RestoreFromSnapshot restores RSI state from a checkpoint.
func (r *RSI) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if err := snap.expect("RSI"); err != nil {
		return err
	}
	if len(snap.Parts) != 2 {
		return errMalformed("RSI", "expected gain and loss parts")
	}
	r.period = snap.Period
	r.count = snap.Count
	r.prev = snap.PrevClose
	r.gain, r.loss = NewSMMA(r.period), NewSMMA(r.period)
	if err := r.gain.RestoreFromSnapshot(snap.Parts[0]); err != nil {
		return err
	}
	return r.loss.RestoreFromSnapshot(snap.Parts[1])
}
