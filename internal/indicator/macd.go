package indicator

// MACDParams holds the fast, slow and signal EMA periods.
type MACDParams struct {
	Fast   int `yaml:"fast" json:"fast"`
	Slow   int `yaml:"slow" json:"slow"`
	Signal int `yaml:"signal" json:"signal"`
}

// DefaultMACD is the classic 12/26/9 configuration.
var DefaultMACD = MACDParams{Fast: 12, Slow: 26, Signal: 9}

// MACD is EMA(fast) - EMA(slow) with an EMA(signal) of the MACD line.
// The signal EMA seeds once it has seen Signal MACD values.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD indicator.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{fast: NewEMA(fast), slow: NewEMA(slow), signal: NewEMA(signal)}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(x float64) {
	m.fast.Update(x)
	m.slow.Update(x)
	if m.Ready() {
		m.signal.Update(m.Value())
	}
}

// Value returns the MACD line. Returns 0 until both EMAs are ready.
func (m *MACD) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.fast.Value() - m.slow.Value()
}

func (m *MACD) Ready() bool { return m.fast.Ready() && m.slow.Ready() }

// SignalReady reports whether the signal line has been seeded.
func (m *MACD) SignalReady() bool { return m.signal.Ready() }

// Signal returns the signal line. Returns 0 until seeded.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Histogram returns MACD - signal.
func (m *MACD) Histogram() float64 {
	if !m.SignalReady() {
		return 0
	}
	return m.Value() - m.Signal()
}

// Snapshot serializes the MACD state as its three EMA parts.
func (m *MACD) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:    "MACD",
		Period:  m.slow.period,
		Count:   m.slow.count,
		Current: m.Value(),
		Parts:   []IndicatorSnapshot{m.fast.Snapshot(), m.slow.Snapshot(), m.signal.Snapshot()},
	}
}

// RestoreFromSnapshot restores MACD state from a checkpoint.
func (m *MACD) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if err := snap.expect("MACD"); err != nil {
		return err
	}
	if len(snap.Parts) != 3 {
		return errMalformed("MACD", "expected fast, slow and signal parts")
	}
	for i, e := range []*EMA{m.fast, m.slow, m.signal} {
		if err := e.RestoreFromSnapshot(snap.Parts[i]); err != nil {
			return err
		}
	}
	return nil
}
