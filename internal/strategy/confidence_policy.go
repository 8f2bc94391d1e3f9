package strategy

import (
	"fmt"
	"sync"

	"token-sentry/internal/model"
)

// PolicyConfig sets the confidence thresholds.
type PolicyConfig struct {
	Buy        float64 // enter at or above this zone confidence
	Exit       float64 // leave at or below this zone confidence
	Overbought float64 // skip entries while rsi.short is above this (0 disables)
}

// DefaultPolicy is the production tuning.
var DefaultPolicy = PolicyConfig{Buy: 0.7, Exit: 0.2, Overbought: 70}

// ConfidencePolicy enters when zone confidence is high and rising and exits
// when it decays. It tracks one open position per token.
type ConfidencePolicy struct {
	cfg PolicyConfig

	mu   sync.Mutex
	open map[string]bool
}

// NewConfidencePolicy creates the policy.
func NewConfidencePolicy(cfg PolicyConfig) *ConfidencePolicy {
	return &ConfidencePolicy{cfg: cfg, open: make(map[string]bool)}
}

func (p *ConfidencePolicy) Name() string { return "zone_confidence" }

// Holding reports whether the policy has an open position in token.
func (p *ConfidencePolicy) Holding(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open[token]
}

func (p *ConfidencePolicy) OnSnapshot(ev model.Event) *Signal {
	s := &ev.Snapshot
	conf := s.ZoneConfidence

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open[ev.Token] {
		if conf < p.cfg.Buy || s.ZoneConfidenceSlope <= 0 {
			return nil
		}
		if p.cfg.Overbought > 0 && s.RSI.Short != nil && *s.RSI.Short > p.cfg.Overbought {
			return nil
		}
		p.open[ev.Token] = true
		return p.signal(ev, ActionBuy, fmt.Sprintf("zone confidence %.2f rising (slope %.3f)", conf, s.ZoneConfidenceSlope))
	}

	if conf <= p.cfg.Exit {
		p.open[ev.Token] = false
		return p.signal(ev, ActionExit, fmt.Sprintf("zone confidence decayed to %.2f", conf))
	}
	return nil
}

func (p *ConfidencePolicy) signal(ev model.Event, a Action, reason string) *Signal {
	return &Signal{
		StrategyName: p.Name(),
		Action:       a,
		Token:        ev.Token,
		Index:        ev.Index,
		Timestamp:    ev.Snapshot.Timestamp,
		Price:        ev.Snapshot.Price,
		Confidence:   ev.Snapshot.ZoneConfidence,
		Reason:       reason,
	}
}
