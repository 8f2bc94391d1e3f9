package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentry/internal/model"
)

func openPair(t *testing.T, runID string) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentry.db")
	w, err := New(WriterConfig{DBPath: path, RunID: runID})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

func events(token string, n int) []model.Event {
	out := make([]model.Event, n)
	for i := range out {
		s := model.NewPriceSample(int64(i*300), 1+float64(i)/10)
		snap := model.Snapshot{Timestamp: s.T, Price: s.Close, RSI: model.RSIFeatures{Short: model.Float(55)}}
		if i%2 == 1 {
			snap.KeyZone1 = model.Zone{Level: 1.1, Strength: 50}
		}
		out[i] = model.Event{Token: token, Index: i, Sample: s, Snapshot: snap}
	}
	return out
}

func TestWriter_RequiresRunID(t *testing.T) {
	_, err := New(WriterConfig{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestInsertBatch_RoundTrip(t *testing.T) {
	w, r := openPair(t, "run-1")
	evs := events("SOL", 5)
	require.NoError(t, w.InsertBatch(evs))

	samples, err := r.ReadSamples("run-1", "SOL", -1)
	require.NoError(t, err)
	require.Len(t, samples, 5)
	for i, s := range samples {
		assert.Equal(t, evs[i].Sample, s)
	}

	snaps, err := r.ReadSnapshots("run-1", "SOL", 3)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	for i, s := range snaps {
		assert.Equal(t, evs[i].Snapshot, s)
	}

	seq, err := w.LastSeq("SOL")
	require.NoError(t, err)
	assert.Equal(t, 4, seq)

	seq, err = w.LastSeq("BONK")
	require.NoError(t, err)
	assert.Equal(t, -1, seq)
}

func TestRun_FlushesOnClose(t *testing.T) {
	w, r := openPair(t, "run-2")
	ch := make(chan model.Event, 16)
	for _, ev := range append(events("SOL", 3), events("BONK", 2)...) {
		ch <- ev
	}
	close(ch)

	flushed := 0
	w.OnFlush = func(rows int, _ time.Duration) { flushed += rows }
	w.Run(context.Background(), ch)
	assert.Equal(t, 5, flushed)

	tokens, err := r.Tokens("run-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"BONK", "SOL"}, tokens)

	other, err := r.Tokens("run-1")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestState_Upsert(t *testing.T) {
	w, r := openPair(t, "run-3")

	type state struct {
		Samples int     `json:"samples"`
		Peak    float64 `json:"peak"`
	}
	var got state
	_, ok, err := r.ReadState("SOL", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, w.SaveState("SOL", state{Samples: 10, Peak: 2}))
	require.NoError(t, w.SaveState("SOL", state{Samples: 12, Peak: 3}))

	runID, ok, err := r.ReadState("SOL", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-3", runID)
	assert.Equal(t, state{Samples: 12, Peak: 3}, got)
}
