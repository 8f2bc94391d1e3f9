package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentry/internal/collector"
	"token-sentry/internal/marketdata/pricesource"
	"token-sentry/internal/metrics"
	"token-sentry/internal/model"
	sqlitestore "token-sentry/internal/store/sqlite"
)

const base = int64(1_699_999_800)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSource serves a fixed series per token; failNext makes the next fetch
// return the queued error.
type fakeSource struct {
	mu       sync.Mutex
	series   map[string][]model.Sample
	failNext []error
	calls    int
}

func (f *fakeSource) Fetch(_ context.Context, token string, from, to int64) ([]model.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.failNext) > 0 {
		err := f.failNext[0]
		f.failNext = f.failNext[1:]
		return nil, err
	}
	window := pricesource.After(f.series[token], from)
	n := 0
	for n < len(window) && window[n].T <= to {
		n++
	}
	return window[:n], nil
}

func walk(n int) []model.Sample {
	out := make([]model.Sample, n)
	for i := range out {
		p := 1 + 0.2*math.Sin(float64(i)/7) + 0.001*float64(i)
		out[i] = model.NewPriceSample(base+int64(i)*300, p)
	}
	return out
}

func at(i int) time.Time { return time.Unix(base+int64(i)*300, 0) }

func counter(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func recv(t *testing.T, ch <-chan model.Event, n int) []model.Event {
	t.Helper()
	out := make([]model.Event, 0, n)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d events", len(out), n)
		}
	}
	return out
}

type harness struct {
	mon    *Monitor
	src    *fakeSource
	events chan model.Event
	reg    *prometheus.Registry
	health *metrics.HealthStatus
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func start(t *testing.T, src *fakeSource, store Store, tokens ...string) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	events := make(chan model.Event, 1024)
	cfgs := make([]collector.Config, len(tokens))
	for i, tok := range tokens {
		cfgs[i] = collector.DefaultConfig(tok, 5)
	}
	health := metrics.NewHealthStatus()
	mon, err := New(src, cfgs, events, store, m, health, quiet, Options{CheckpointEvery: 10})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{mon: mon, src: src, events: events, reg: reg, health: health, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- mon.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
	})
}

func TestNew_RejectsInvalidInterval(t *testing.T) {
	cfg := collector.DefaultConfig("SOL", 7)
	_, err := New(&fakeSource{}, []collector.Config{cfg}, nil, nil, nil, nil, quiet, Options{})
	assert.ErrorIs(t, err, model.ErrInvalidInterval)
}

func TestMonitor_FetchesIncrementally(t *testing.T) {
	src := &fakeSource{series: map[string][]model.Sample{"SOL": walk(20)}}
	h := start(t, src, nil, "SOL")

	h.mon.Tick(at(4))
	first := recv(t, h.events, 5)
	h.mon.Tick(at(19))
	second := recv(t, h.events, 15)

	all := append(first, second...)
	for i, ev := range all {
		assert.Equal(t, "SOL", ev.Token)
		assert.Equal(t, i, ev.Index)
		assert.Equal(t, src.series["SOL"][i], ev.Sample)
		assert.Equal(t, ev.Sample.T, ev.Snapshot.Timestamp)
	}
	assert.Equal(t, 20.0, counter(t, h.reg, "sentry_ticks_ingested_total", "token", "SOL"))

	// Nothing new: the tick is skipped as no_data.
	h.mon.Tick(at(19))
	require.Eventually(t, func() bool {
		return counter(t, h.reg, "sentry_ticks_skipped_total", "reason", metrics.ReasonNoData) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMonitor_SkipsFailedFetch(t *testing.T) {
	src := &fakeSource{
		series: map[string][]model.Sample{"SOL": walk(6)},
		failNext: []error{
			model.ErrSourceUnavailable,
			errors.Join(errors.New("bad item"), model.ErrSchemaMismatch),
		},
	}
	h := start(t, src, nil, "SOL")

	h.mon.Tick(at(5))
	require.Eventually(t, func() bool {
		return counter(t, h.reg, "sentry_ticks_skipped_total", "reason", metrics.ReasonSourceUnavailable) == 1
	}, 2*time.Second, 10*time.Millisecond)
	h.mon.Tick(at(5))
	require.Eventually(t, func() bool {
		return counter(t, h.reg, "sentry_ticks_skipped_total", "reason", metrics.ReasonSchema) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The same window is retried on the next tick.
	h.mon.Tick(at(5))
	evs := recv(t, h.events, 6)
	assert.Equal(t, 0, evs[0].Index)
	assert.Equal(t, 5, evs[5].Index)
}

func TestMonitor_TokensAreIndependent(t *testing.T) {
	src := &fakeSource{series: map[string][]model.Sample{"A": walk(8), "B": walk(3)}}
	h := start(t, src, nil, "A", "B")

	h.mon.Tick(at(10))
	evs := recv(t, h.events, 11)
	last := map[string]int{"A": -1, "B": -1}
	for _, ev := range evs {
		assert.Equal(t, last[ev.Token]+1, ev.Index, ev.Token)
		last[ev.Token] = ev.Index
	}
	assert.Equal(t, 7, last["A"])
	assert.Equal(t, 2, last["B"])
	require.Eventually(t, func() bool {
		report, _ := h.health.Report()
		for _, th := range report.Tokens {
			if th.LastTick == "" {
				return false
			}
		}
		return len(report.Tokens) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMonitor_CheckpointAndWarmStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentry.db")
	open := func(runID string) SQLiteStore {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: path, RunID: runID})
		require.NoError(t, err)
		r, err := sqlitestore.NewReader(path)
		require.NoError(t, err)
		t.Cleanup(func() {
			r.Close()
			w.Close()
		})
		return SQLiteStore{Writer: w, Reader: r}
	}
	series := walk(60)

	// First run ingests 35 samples; the sink persists them synchronously.
	store1 := open("run-1")
	src := &fakeSource{series: map[string][]model.Sample{"SOL": series}}
	h1 := start(t, src, store1, "SOL")
	h1.mon.Tick(at(34))
	evs := recv(t, h1.events, 35)
	require.NoError(t, store1.InsertBatch(evs))
	h1.stop()

	var st collector.State
	runID, ok, err := store1.ReadState("SOL", &st)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-1", runID)
	assert.Equal(t, 35, st.Samples)

	// Second run resumes after sample 34.
	store2 := open("run-2")
	h2 := start(t, src, store2, "SOL")
	h2.mon.Tick(at(59))
	resumed := recv(t, h2.events, 25)
	assert.Equal(t, 35, resumed[0].Index)
	assert.Equal(t, series[35], resumed[0].Sample)

	// A cold run over the full series produces the same snapshots.
	cold, err := collector.New(collector.DefaultConfig("SOL", 5), quiet)
	require.NoError(t, err)
	for i, s := range series {
		snap, err := cold.Ingest(s)
		require.NoError(t, err)
		if i >= 35 {
			assert.Equal(t, snap, resumed[i-35].Snapshot, "index %d", i)
		}
	}

	// Recovered rows were copied into the new run.
	copied, err := store2.ReadSamples("run-2", "SOL", -1)
	require.NoError(t, err)
	assert.Len(t, copied, 35)
}

func TestMonitor_TickCoalesces(t *testing.T) {
	src := &fakeSource{series: map[string][]model.Sample{"SOL": walk(3)}}
	mon, err := New(src, []collector.Config{collector.DefaultConfig("SOL", 5)}, nil, nil, nil, nil, quiet, Options{})
	require.NoError(t, err)

	// Not running: only one signal fits.
	mon.Tick(at(0))
	mon.Tick(at(1))
	mon.Tick(at(2))
	assert.Len(t, mon.tasks[0].ticks, 1)
}

func TestScheduler(t *testing.T) {
	mon, err := New(&fakeSource{}, []collector.Config{collector.DefaultConfig("SOL", 5)}, nil, nil, nil, nil, quiet, Options{})
	require.NoError(t, err)

	_, err = NewScheduler("not a spec", mon)
	assert.Error(t, err)

	s, err := NewScheduler("@every 5m", mon)
	require.NoError(t, err)
	s.now = func() time.Time { return at(7) }
	s.RunNow()
	got := <-mon.tasks[0].ticks
	assert.Equal(t, at(7), got)
	s.Start()
	s.Stop()
}
