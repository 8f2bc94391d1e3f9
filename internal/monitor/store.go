package monitor

import (
	"fmt"

	"token-sentry/internal/collector"
	"token-sentry/internal/model"
	sqlitestore "token-sentry/internal/store/sqlite"
)

// Store persists checkpoints and serves the data needed to warm-start.
type Store interface {
	RunID() string
	SaveState(token string, state any) error
	InsertBatch(events []model.Event) error
	ReadState(token string, state any) (runID string, ok bool, err error)
	ReadSamples(runID, token string, limit int) ([]model.Sample, error)
	ReadSnapshots(runID, token string, limit int) ([]model.Snapshot, error)
}

// SQLiteStore joins the SQLite writer of the current run with a reader.
type SQLiteStore struct {
	*sqlitestore.Writer
	*sqlitestore.Reader
}

var _ Store = SQLiteStore{}

// warmStart rebuilds the collector from the latest checkpoint of a previous
// run and re-ingests any samples stored after it. The recovered rows are
// copied into the current run so later restarts only need the newest run.
func (m *Monitor) warmStart(t *task) error {
	token := t.cfg.Token
	var st collector.State
	runID, ok, err := m.store.ReadState(token, &st)
	if err != nil || !ok {
		return err
	}
	if runID == m.store.RunID() {
		return nil
	}

	samples, err := m.store.ReadSamples(runID, token, -1)
	if err != nil {
		return err
	}
	snaps, err := m.store.ReadSnapshots(runID, token, st.Samples)
	if err != nil {
		return err
	}

	restored := 0
	if st.Samples > 0 && len(samples) >= st.Samples && len(snaps) == st.Samples {
		if err := t.col.Restore(st, samples[:st.Samples], snaps); err != nil {
			t.log.Warn("checkpoint rejected, replaying stored samples", "error", err)
			if t.col, err = collector.New(t.cfg, m.log); err != nil {
				return err
			}
		} else {
			restored = st.Samples
		}
	}

	events := make([]model.Event, 0, len(samples))
	for i := 0; i < restored; i++ {
		events = append(events, model.Event{Token: token, Index: i, Sample: samples[i], Snapshot: snaps[i]})
	}
	for _, s := range samples[restored:] {
		snap, err := t.col.Ingest(s)
		if err != nil {
			return fmt.Errorf("replay stored sample at %d: %w", s.T, err)
		}
		events = append(events, model.Event{Token: token, Index: t.col.Len() - 1, Sample: s, Snapshot: snap, Forming: t.col.Forming()})
	}
	if len(events) == 0 {
		return nil
	}
	if err := m.store.InsertBatch(events); err != nil {
		return err
	}

	t.log.Info("warm start", "run", runID, "restored", restored, "replayed", len(samples)-restored)
	t.sinceCheckpoint = len(samples) - restored + 1
	m.checkpoint(t)
	return nil
}
