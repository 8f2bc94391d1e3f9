package indicator

import (
	"encoding/json"
	"fmt"
)

// IndicatorSnapshot holds the serialized state of a single estimator.
type IndicatorSnapshot struct {
	Type   string `json:"type"`   // "SMA", "EMA", "SMMA", "RSI", "MACD"
	Period int    `json:"period"` // indicator period

	// SMA window oldest first; EMA keeps its pending seed here
	Buf     []float64 `json:"buf,omitempty"`
	Count   int       `json:"count"`
	Sum     float64   `json:"sum,omitempty"`
	Current float64   `json:"current"`

	// EMA fields
	Multiplier float64 `json:"multiplier,omitempty"`

	// RSI fields
	PrevClose float64 `json:"prev_close,omitempty"`
	AvgGain   float64 `json:"avg_gain,omitempty"`
	AvgLoss   float64 `json:"avg_loss,omitempty"`

	// Composite indicators (RSI, MACD) nest their components.
	Parts []IndicatorSnapshot `json:"parts,omitempty"`
}

func (s IndicatorSnapshot) expect(typ string) error {
	if s.Type != typ {
		return fmt.Errorf("indicator snapshot: want type %s, got %q", typ, s.Type)
	}
	return nil
}

func errMalformed(typ, msg string) error {
	return fmt.Errorf("indicator snapshot %s: %s", typ, msg)
}

// EntrySnapshot is one cache entry of an Analyzer.
type EntrySnapshot struct {
	Key   Key               `json:"key"`
	Next  int               `json:"next"` // strided samples consumed
	State IndicatorSnapshot `json:"state"`
}

// AnalyzerSnapshot holds the full state of an Analyzer.
type AnalyzerSnapshot struct {
	Version     int             `json:"version"` // schema version for forward compat
	BaseMinutes int             `json:"base_minutes"`
	MACD        MACDParams      `json:"macd"`
	Entries     []EntrySnapshot `json:"entries"`
}

const snapshotVersion = 1

// Snapshot captures every cache entry.
func (a *Analyzer) Snapshot() *AnalyzerSnapshot {
	snap := &AnalyzerSnapshot{
		Version:     snapshotVersion,
		BaseMinutes: a.base,
		MACD:        a.macd,
		Entries:     make([]EntrySnapshot, 0, len(a.entries)),
	}
	for k, e := range a.entries {
		snap.Entries = append(snap.Entries, EntrySnapshot{Key: k, Next: e.next, State: e.ind.Snapshot()})
	}
	return snap
}

// Restore replaces the cache with the snapshot's entries. It is tolerant of
// unknown kinds and malformed entries: those are skipped and logged, and the
// entry seeds from scratch on its next call.
func (a *Analyzer) Restore(snap *AnalyzerSnapshot) error {
	if snap == nil {
		return nil
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("indicator snapshot version %d: unsupported", snap.Version)
	}
	if snap.BaseMinutes != a.base {
		return fmt.Errorf("indicator snapshot base %dm does not match analyzer base %dm", snap.BaseMinutes, a.base)
	}

	a.macd = snap.MACD
	a.entries = make(map[Key]*slot, len(snap.Entries))
	restored, cold := 0, 0
	for _, es := range snap.Entries {
		ind := newIndicator(es.Key, a.macd)
		if ind == nil {
			cold++
			continue
		}
		if err := ind.RestoreFromSnapshot(es.State); err != nil {
			// Non-fatal: leave cold
			a.log.Warn("indicator restore failed", "kind", es.Key.Kind, "interval", es.Key.Interval,
				"period", es.Key.Period, "error", err)
			cold++
			continue
		}
		a.entries[es.Key] = &slot{ind: ind, next: es.Next}
		restored++
	}
	if cold > 0 {
		a.log.Info("indicator cache restored", "restored", restored, "cold", cold)
	}
	return nil
}

// MarshalJSON serializes the analyzer snapshot to JSON.
func (s *AnalyzerSnapshot) MarshalJSON() ([]byte, error) {
	type Alias AnalyzerSnapshot
	return json.Marshal((*Alias)(s))
}

// UnmarshalJSON deserializes the analyzer snapshot from JSON.
func (s *AnalyzerSnapshot) UnmarshalJSON(data []byte) error {
	type Alias AnalyzerSnapshot
	return json.Unmarshal(data, (*Alias)(s))
}
