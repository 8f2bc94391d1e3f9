// Package fibonacci tracks Fibonacci retracement arcs over a price stream.
//
// An arc runs from a local low to the highest price seen since. When price
// retraces to or below the 61.8% level the arc closes and a new arc opens at
// the same index with low = high = price. For an arc without range
// (high == low) that means any lower price closes it; an unchanged price does not.
package fibonacci

import "token-sentry/internal/model"

// CloseRatio is the retracement that closes an arc.
const CloseRatio = 0.618

// Analyzer is the arc state machine. Not goroutine-safe: owned by one collector.
type Analyzer struct {
	open   *model.Arc
	closed []model.Arc
}

// New creates an analyzer with no open arc.
func New() *Analyzer {
	return &Analyzer{}
}

// Step advances the state machine with price p at index i. It returns the arc
// closed by this sample, if any.
func (a *Analyzer) Step(i int, p float64) *model.Arc {
	if a.open == nil {
		a.open = newArc(i, p)
		return nil
	}

	arc := a.open
	switch {
	case p > arc.High:
		arc.High, arc.HighIndex = p, i
		arc.Levels = model.FibLevels(arc.Low, arc.High)
		return nil

	case p < arc.High && p <= arc.High-CloseRatio*(arc.High-arc.Low):
		end := i
		arc.EndIndex = &end
		arc.Levels = model.FibLevels(arc.Low, arc.High)
		a.closed = append(a.closed, *arc)
		a.open = newArc(i, p)
		return &a.closed[len(a.closed)-1]
	}
	return nil
}

func newArc(i int, p float64) *model.Arc {
	return &model.Arc{
		StartIndex: i,
		Low:        p,
		LowIndex:   i,
		High:       p,
		HighIndex:  i,
		Levels:     model.FibLevels(p, p),
	}
}

// Current returns a copy of the open arc.
func (a *Analyzer) Current() (model.Arc, bool) {
	if a.open == nil {
		return model.Arc{}, false
	}
	return copyArc(*a.open), true
}

// Closed returns copies of the closed arcs, oldest first.
func (a *Analyzer) Closed() []model.Arc {
	out := make([]model.Arc, len(a.closed))
	for i, arc := range a.closed {
		out[i] = copyArc(arc)
	}
	return out
}

// Arcs returns the closed arcs followed by the open one.
func (a *Analyzer) Arcs() []model.Arc {
	out := a.Closed()
	if cur, ok := a.Current(); ok {
		out = append(out, cur)
	}
	return out
}

// Restore replaces the state with previously exported arcs (closed arcs
// followed by at most one open arc).
func (a *Analyzer) Restore(arcs []model.Arc) {
	a.open, a.closed = nil, nil
	for _, arc := range arcs {
		arc = copyArc(arc)
		if arc.Closed() {
			a.closed = append(a.closed, arc)
			continue
		}
		a.open = &arc
	}
}

func copyArc(arc model.Arc) model.Arc {
	levels := make(map[string]float64, len(arc.Levels))
	for k, v := range arc.Levels {
		levels[k] = v
	}
	arc.Levels = levels
	if arc.EndIndex != nil {
		end := *arc.EndIndex
		arc.EndIndex = &end
	}
	return arc
}
