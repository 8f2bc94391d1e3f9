// Package monitor runs the live ingestion loop: one task per token, woken by
// the schedule, fetching new samples, feeding its collector and emitting
// every snapshot as a model.Event.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"token-sentry/internal/collector"
	"token-sentry/internal/logger"
	"token-sentry/internal/marketdata/pricesource"
	"token-sentry/internal/metrics"
	"token-sentry/internal/model"
)

// Options tune the monitor. Zero values use the defaults.
type Options struct {
	FetchTimeout    time.Duration // per fetch, default 10s
	Backfill        time.Duration // history requested when a token has no samples, default 24h
	CheckpointEvery int           // ingested samples between checkpoints, 0 disables
}

// Monitor owns one collector per token. Collectors share no analytic state
// and are each driven by a single goroutine.
type Monitor struct {
	src     pricesource.Source
	out     chan<- model.Event
	store   Store
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	log     *slog.Logger
	opts    Options

	tasks []*task
}

type task struct {
	cfg   collector.Config
	col   *collector.Collector
	ticks chan time.Time
	log   *slog.Logger

	sinceCheckpoint int
}

// New builds a collector per token config. Invalid intervals fail here.
// store, m and health may be nil.
func New(src pricesource.Source, tokens []collector.Config, out chan<- model.Event,
	store Store, m *metrics.Metrics, health *metrics.HealthStatus, log *slog.Logger, opts Options) (*Monitor, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Backfill <= 0 {
		opts.Backfill = 24 * time.Hour
	}
	mon := &Monitor{
		src:     src,
		out:     out,
		store:   store,
		metrics: m,
		health:  health,
		log:     log.With("component", "monitor"),
		opts:    opts,
	}

	for _, cfg := range tokens {
		if m != nil {
			cfg.OnCandle = func(c model.Candle) {
				m.CandlesTotal.WithLabelValues(strconv.Itoa(c.Interval)).Inc()
			}
		}
		col, err := collector.New(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", cfg.Token, err)
		}
		mon.tasks = append(mon.tasks, &task{
			cfg:   cfg,
			col:   col,
			ticks: make(chan time.Time, 1),
			log:   mon.log.With("token", cfg.Token),
		})
	}
	if health != nil {
		for _, t := range mon.tasks {
			health.Watch(t.cfg.Token)
		}
	}
	return mon, nil
}

// Collectors returns the per-token collectors, in configuration order.
func (m *Monitor) Collectors() []*collector.Collector {
	out := make([]*collector.Collector, len(m.tasks))
	for i, t := range m.tasks {
		out[i] = t.col
	}
	return out
}

// Tick signals every token task. A task still busy with the previous tick
// keeps a single pending signal; extra ticks are coalesced.
func (m *Monitor) Tick(now time.Time) {
	for _, t := range m.tasks {
		select {
		case t.ticks <- now:
		default:
			t.log.Debug("tick coalesced")
		}
	}
}

// Run warm-starts every token, then processes ticks until ctx is cancelled.
// A final checkpoint is written on the way out.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range m.tasks {
		t := t
		g.Go(func() error {
			if m.store != nil {
				if err := m.warmStart(t); err != nil {
					t.log.Warn("warm start failed, starting cold", "error", err)
					col, err := collector.New(t.cfg, m.log)
					if err != nil {
						return err
					}
					t.col = col
				}
			}
			defer m.checkpoint(t)
			for {
				select {
				case <-ctx.Done():
					return nil
				case now := <-t.ticks:
					m.tick(ctx, t, now)
				}
			}
		})
	}
	return g.Wait()
}

// tick fetches samples newer than the last one and ingests them. Errors skip
// the tick; the next tick retries the same window.
func (m *Monitor) tick(ctx context.Context, t *task, now time.Time) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(t.col.Token(), now))
	from := now.Add(-m.opts.Backfill).Unix()
	if last, ok := t.col.Latest(); ok {
		from = last.T
	}

	fctx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	start := time.Now()
	samples, err := m.src.Fetch(fctx, t.col.Token(), from, now.Unix())
	cancel()
	if m.metrics != nil {
		m.metrics.FetchDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		reason := metrics.ReasonSourceUnavailable
		if errors.Is(err, model.ErrSchemaMismatch) {
			reason = metrics.ReasonSchema
		}
		m.skip(ctx, t, reason, err)
		return
	}
	if len(samples) == 0 {
		m.skip(ctx, t, metrics.ReasonNoData, nil)
		return
	}

	ingested := 0
	for _, s := range samples {
		if err := m.ingest(ctx, t, s); err != nil {
			if ctx.Err() != nil {
				return
			}
			reason := metrics.ReasonMonotonicity
			if errors.Is(err, model.ErrSchemaMismatch) {
				reason = metrics.ReasonSchema
			}
			m.skip(ctx, t, reason, err)
			continue
		}
		ingested++
	}
	if m.health != nil && ingested > 0 {
		m.health.RecordTick(t.cfg.Token, now)
	}
}

func (m *Monitor) ingest(ctx context.Context, t *task, s model.Sample) error {
	start := time.Now()
	snap, err := t.col.Ingest(s)
	if err != nil {
		return err
	}
	if m.metrics != nil {
		token := t.col.Token()
		m.metrics.IngestDur.Observe(time.Since(start).Seconds())
		m.metrics.TicksIngested.WithLabelValues(token).Inc()
		m.metrics.ZoneConfidence.WithLabelValues(token).Set(snap.ZoneConfidence)
		m.metrics.SnapshotsLen.WithLabelValues(token).Set(float64(t.col.Len()))
	}

	ev := model.Event{Token: t.col.Token(), Index: t.col.Len() - 1, Sample: s, Snapshot: snap, Forming: t.col.Forming()}
	if m.out != nil {
		select {
		case m.out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t.sinceCheckpoint++
	if m.opts.CheckpointEvery > 0 && t.sinceCheckpoint >= m.opts.CheckpointEvery {
		m.checkpoint(t)
	}
	return nil
}

func (m *Monitor) skip(ctx context.Context, t *task, reason string, err error) {
	if m.metrics != nil {
		m.metrics.TicksSkipped.WithLabelValues(reason).Inc()
	}
	attrs := append([]any{"reason", reason}, logger.LogWithTrace(ctx)...)
	if err != nil {
		t.log.Warn("tick skipped", append(attrs, "error", err)...)
	} else {
		t.log.Debug("tick skipped", attrs...)
	}
}

// checkpoint stores the collector state. Failures are logged only.
func (m *Monitor) checkpoint(t *task) {
	if m.store == nil || t.sinceCheckpoint == 0 {
		return
	}
	if err := m.store.SaveState(t.col.Token(), t.col.State()); err != nil {
		t.log.Warn("checkpoint failed", "error", err)
		return
	}
	t.sinceCheckpoint = 0
	if m.metrics != nil {
		m.metrics.Checkpoints.Inc()
	}
	t.log.Debug("checkpoint saved", "samples", t.col.Len())
}
