package indicator

// SMMA is Wilder's smoothed average: the plain mean of the first period
// values, then avg += (x - avg) / period. RSI smooths gains and losses with it.
type SMMA struct {
	period  int
	seen    int
	seedSum float64 // sum of the first period values, kept for snapshots
	avg     float64
}

// NewSMMA creates an SMMA over period values (minimum 1).
func NewSMMA(period int) *SMMA {
	if period < 1 {
		period = 1
	}
	return &SMMA{period: period}
}

func (s *SMMA) Name() string { return "SMMA" }

func (s *SMMA) Update(x float64) {
	s.seen++
	switch {
	case s.seen < s.period:
		s.seedSum += x
	case s.seen == s.period:
		s.seedSum += x
		s.avg = s.seedSum / float64(s.period)
	default:
		s.avg += (x - s.avg) / float64(s.period)
	}
}

func (s *SMMA) Value() float64 { return s.avg }
func (s *SMMA) Ready() bool    { return s.seen >= s.period }

func (s *SMMA) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:    "SMMA",
		Period:  s.period,
		Count:   s.seen,
		Sum:     s.seedSum,
		Current: s.avg,
	}
}

func (s *SMMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if err := snap.expect("SMMA"); err != nil {
		return err
	}
	if snap.Period < 1 || snap.Count < 0 {
		return errMalformed("SMMA", "non-positive period or negative count")
	}
	s.period, s.seen = snap.Period, snap.Count
	s.seedSum, s.avg = snap.Sum, snap.Current
	return nil
}
