package collector

import (
	"fmt"

	"token-sentry/internal/confidence"
	"token-sentry/internal/indicator"
	"token-sentry/internal/model"
)

// State is the serializable analytic state of a collector, excluding the raw
// samples and the metrics log which are persisted separately.
type State struct {
	Token      string                      `json:"token"`
	Samples    int                         `json:"samples"`
	FirstT     int64                       `json:"first_t"`
	Peak       float64                     `json:"peak"`
	Indicators *indicator.AnalyzerSnapshot `json:"indicators"`
	Arcs       []model.Arc                 `json:"arcs"`
	Confidence confidence.State            `json:"confidence"`
	Levels     []model.LevelRecord         `json:"levels"`
}

// State captures the collector's analytic state for checkpoints.
func (c *Collector) State() State {
	return State{
		Token:      c.cfg.Token,
		Samples:    c.buf.Len(),
		FirstT:     c.firstT,
		Peak:       c.peak,
		Indicators: c.ind.Snapshot(),
		Arcs:       c.fib.Arcs(),
		Confidence: c.conf.State(),
		Levels:     c.zones.Tracker().Records(),
	}
}

// Restore warm-starts an empty collector from a checkpoint, the samples it
// covered and the snapshots they produced. Samples rebuild the series and the
// candle streams without recomputing analytics. On error the collector must
// be discarded.
func (c *Collector) Restore(st State, samples []model.Sample, snapshots []model.Snapshot) error {
	if c.buf.Len() != 0 {
		return fmt.Errorf("restore %s: collector is not empty", c.cfg.Token)
	}
	if st.Token != c.cfg.Token {
		return fmt.Errorf("restore %s: checkpoint belongs to %q", c.cfg.Token, st.Token)
	}
	if len(samples) != st.Samples || len(snapshots) != st.Samples {
		return fmt.Errorf("restore %s: checkpoint covers %d samples, got %d samples and %d snapshots",
			c.cfg.Token, st.Samples, len(samples), len(snapshots))
	}

	// Candles rebuilt here were already announced by the original run.
	hook := c.agg.OnCandle
	c.agg.OnCandle = nil
	defer func() { c.agg.OnCandle = hook }()

	for _, s := range samples {
		if err := c.buf.Append(s); err != nil {
			return fmt.Errorf("restore %s: %w", c.cfg.Token, err)
		}
		c.agg.Push(s)
	}
	if err := c.ind.Restore(st.Indicators); err != nil {
		return fmt.Errorf("restore %s: %w", c.cfg.Token, err)
	}
	for _, snap := range snapshots {
		c.metrics.Append(snap)
	}
	c.fib.Restore(st.Arcs)
	c.conf.Restore(st.Confidence)
	c.zones.Tracker().Restore(st.Levels)
	c.firstT, c.peak = st.FirstT, st.Peak

	c.log.Info("collector restored", "samples", st.Samples, "indicators", c.ind.Len(), "arcs", len(st.Arcs))
	return nil
}
