// Package metrics exposes Prometheus metrics and the /healthz probe.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons for TicksSkipped.
const (
	ReasonSourceUnavailable = "source_unavailable"
	ReasonSchema            = "schema_mismatch"
	ReasonMonotonicity      = "monotonicity"
	ReasonNoData            = "no_data"
)

// Metrics holds all Prometheus metrics of the monitor.
type Metrics struct {
	// Ingestion
	TicksIngested *prometheus.CounterVec // labels: token
	TicksSkipped  *prometheus.CounterVec // labels: reason
	FetchDur      prometheus.Histogram
	IngestDur     prometheus.Histogram
	CandlesTotal  *prometheus.CounterVec // labels: interval

	// Analytics
	ZoneConfidence *prometheus.GaugeVec // labels: token
	SnapshotsLen   *prometheus.GaugeVec // labels: token
	Checkpoints    prometheus.Counter

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Sinks
	SQLiteCommitDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
	GatewayClients           prometheus.Gauge
	GatewayDrops             prometheus.Counter

	// Policy
	StrategySignals *prometheus.CounterVec // labels: action
}

// NewMetrics registers and returns all metrics on reg (the default
// registerer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentry_ticks_ingested_total",
			Help: "Samples ingested into a collector",
		}, []string{"token"}),
		TicksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentry_ticks_skipped_total",
			Help: "Ticks skipped without advancing state, by reason",
		}, []string{"reason"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentry_fetch_duration_seconds",
			Help:    "Price source fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		IngestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentry_ingest_duration_seconds",
			Help:    "Snapshot compute latency per sample",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentry_candles_total",
			Help: "Closed candles by interval (minutes)",
		}, []string{"interval"}),

		ZoneConfidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentry_zone_confidence",
			Help: "Latest zone confidence per token",
		}, []string{"token"}),
		SnapshotsLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentry_snapshots",
			Help: "Length of the metrics log per token",
		}, []string{"token"}),
		Checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentry_checkpoints_total",
			Help: "Collector checkpoints written",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentry_fanout_drops_total",
			Help: "Events dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentry_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentry_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentry_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentry_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentry_redis_buffered_writes_total",
			Help: "Writes buffered locally while the Redis circuit was open",
		}),
		GatewayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentry_gateway_clients",
			Help: "Connected websocket clients",
		}),
		GatewayDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentry_gateway_drops_total",
			Help: "Envelopes dropped for slow websocket clients",
		}),

		StrategySignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentry_strategy_signals_total",
			Help: "Signals emitted by the confidence policy",
		}, []string{"action"}),
	}

	reg.MustRegister(
		m.TicksIngested,
		m.TicksSkipped,
		m.FetchDur,
		m.IngestDur,
		m.CandlesTotal,
		m.ZoneConfidence,
		m.SnapshotsLen,
		m.Checkpoints,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.GatewayClients,
		m.GatewayDrops,
		m.StrategySignals,
	)

	return m
}
