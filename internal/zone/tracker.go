package zone

import (
	"math"
	"sort"

	"token-sentry/internal/chart"
	"token-sentry/internal/model"
)

// maxTracked bounds the tracker; the least recently touched levels go first.
const maxTracked = 256

// Tracker keeps detected levels across ticks and marks the ones that are
// touched often and recently as major.
type Tracker struct {
	w       Weights
	records []model.LevelRecord
}

// NewTracker creates an empty tracker.
func NewTracker(w Weights) *Tracker {
	return &Tracker{w: w}
}

// Observe records the zones detected at snapshot index. A zone within
// TrackTolerance (relative) of a tracked level touches it and pulls the level
// toward the new observation; otherwise a new level is tracked.
func (t *Tracker) Observe(index int, zones ...model.Zone) {
	for _, z := range zones {
		if z.IsEmpty() || z.Level <= 0 {
			continue
		}
		if r := t.match(z.Level); r != nil {
			r.Level = (r.Level*float64(r.Touches) + z.Level) / float64(r.Touches+1)
			r.Touches++
			r.LastTouched = index
			continue
		}
		t.records = append(t.records, model.LevelRecord{Level: z.Level, Touches: 1, LastTouched: index})
	}
	t.rescore(index)
	t.prune()
}

func (t *Tracker) match(level float64) *model.LevelRecord {
	var best *model.LevelRecord
	bestDist := math.Inf(1)
	for i := range t.records {
		r := &t.records[i]
		d := math.Abs(r.Level - level)
		if d <= t.w.TrackTolerance*level && d < bestDist {
			best, bestDist = r, d
		}
	}
	return best
}

// rescore sets IsMajor from TouchWeight·(touches/max touches) +
// RecencyWeight·(1 - age/(index+1)).
func (t *Tracker) rescore(index int) {
	maxTouches := 0
	for _, r := range t.records {
		if r.Touches > maxTouches {
			maxTouches = r.Touches
		}
	}
	if maxTouches == 0 {
		return
	}
	for i := range t.records {
		r := &t.records[i]
		touch := float64(r.Touches) / float64(maxTouches)
		recency := 1 - float64(index-r.LastTouched)/float64(index+1)
		r.IsMajor = t.w.TouchWeight*touch+t.w.RecencyWeight*recency >= t.w.MajorScore
	}
}

func (t *Tracker) prune() {
	if len(t.records) <= maxTracked {
		return
	}
	sort.SliceStable(t.records, func(i, j int) bool {
		return t.records[i].LastTouched > t.records[j].LastTouched
	})
	t.records = t.records[:maxTracked]
}

// Records returns a copy of every tracked level.
func (t *Tracker) Records() []model.LevelRecord {
	return append([]model.LevelRecord(nil), t.records...)
}

// Persistent clusters the tracked levels whose distance is within
// TrackTolerance of ref and drops clusters touched fewer than twice.
func (t *Tracker) Persistent(ref float64) []model.LevelRecord {
	return chart.ClusterLevels(t.records, t.w.TrackTolerance*ref)
}

// Restore replaces the tracked levels.
func (t *Tracker) Restore(records []model.LevelRecord) {
	t.records = append([]model.LevelRecord(nil), records...)
}
