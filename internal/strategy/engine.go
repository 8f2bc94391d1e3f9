// Package strategy runs trading policies over the snapshot stream.
//
// A Strategy receives each token's snapshots and may emit a Signal
// (BUY/EXIT). Signals are logged and counted only; nothing places orders.
package strategy

import (
	"context"
	"log/slog"

	"token-sentry/internal/model"
)

// Signal represents a trading signal emitted by a strategy.
type Signal struct {
	StrategyName string  `json:"strategy_name"`
	Action       Action  `json:"action"`
	Token        string  `json:"token"`
	Index        int     `json:"index"`
	Timestamp    int64   `json:"timestamp"`
	Price        float64 `json:"price"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason"`
}

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionExit Action = "EXIT"
)

// Strategy is the interface that all trading policies implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// OnSnapshot is called for every snapshot of every token, in index
	// order per token. Return a Signal to act, or nil to skip.
	OnSnapshot(ev model.Event) *Signal
}

// Engine manages registered strategies and routes snapshots to them.
type Engine struct {
	strategies []Strategy
	signalCh   chan Signal
	log        *slog.Logger

	// OnSignal is called for every emitted signal (optional).
	OnSignal func(Signal)
}

// NewEngine creates a new strategy engine.
func NewEngine(signalBufferSize int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		signalCh: make(chan Signal, signalBufferSize),
		log:      logger.With("component", "strategy"),
	}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Signals returns the channel of signals emitted by strategies.
func (e *Engine) Signals() <-chan Signal {
	return e.signalCh
}

// Run consumes events and routes them to all registered strategies.
// Blocks until ctx is cancelled or events is closed.
func (e *Engine) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.Process(ev)
		}
	}
}

// Process routes one event synchronously.
func (e *Engine) Process(ev model.Event) {
	for _, s := range e.strategies {
		sig := s.OnSnapshot(ev)
		if sig == nil {
			continue
		}
		e.log.Info("signal",
			"strategy", sig.StrategyName,
			"action", string(sig.Action),
			"token", sig.Token,
			"index", sig.Index,
			"price", sig.Price,
			"confidence", sig.Confidence,
			"reason", sig.Reason,
		)
		if e.OnSignal != nil {
			e.OnSignal(*sig)
		}
		select {
		case e.signalCh <- *sig:
		default:
			// signal channel full, drop
		}
	}
}
