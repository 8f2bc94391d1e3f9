// Command sentry is the live token monitor: it polls the price API on a
// schedule, computes one snapshot per sample and token, and fans the
// snapshots out to SQLite, Redis, the websocket gateway and the policy.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"token-sentry/config"
	"token-sentry/internal/collector"
	"token-sentry/internal/gateway"
	"token-sentry/internal/logger"
	"token-sentry/internal/marketdata/bus"
	"token-sentry/internal/marketdata/pricesource"
	"token-sentry/internal/metrics"
	"token-sentry/internal/model"
	"token-sentry/internal/monitor"
	"token-sentry/internal/notification"
	redisstore "token-sentry/internal/store/redis"
	sqlitestore "token-sentry/internal/store/sqlite"
	"token-sentry/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	configPath := flag.String("config", getEnv("SENTRY_CONFIG", "sentry.yaml"), "YAML config file")
	flag.Parse()

	// ---- Load config ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[sentry] config: %v", err)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[sentry] %v", err)
	}
	lg := logger.Init("sentry", level)
	if len(cfg.Tokens) == 0 {
		log.Fatal("[sentry] no tokens configured (tokens: in the config file or SENTRY_TOKENS)")
	}

	base, _ := cfg.BaseMinutes()
	tokens := make([]collector.Config, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		cc, err := cfg.CollectorConfig(t)
		if err != nil {
			log.Fatalf("[sentry] token %s: %v", t.Address, err)
		}
		tokens = append(tokens, cc)
	}
	lg.Info("starting", "tokens", len(tokens), "base_interval", cfg.BaseInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	health.StaleAfter = 3 * time.Duration(base) * time.Minute
	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddr, health)

	// ---- Fan-out of snapshot events ----
	events := make(chan model.Event, 5000)
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriber string) {
		prom.FanoutDropsTotal.WithLabelValues(subscriber).Inc()
	}

	// ---- Alerts ----
	alerts := notification.Multi{notification.NewLogNotifier(lg)}
	if cfg.Notify.WebhookURL != "" {
		alerts = append(alerts, notification.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChat != "" {
		alerts = append(alerts, notification.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChat))
	}
	dispatcher := notification.NewDispatcher(alerts, 64, cfg.Notify.PerMinute, lg)
	go dispatcher.Run(ctx)

	// ---- SQLite: samples, snapshots, checkpoints ----
	var store monitor.Store
	var sqlWriter *sqlitestore.Writer
	if cfg.Storage.SQLitePath != "" {
		if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		runID := uuid.NewString()
		sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.Storage.SQLitePath, RunID: runID})
		if err != nil {
			log.Fatalf("[sentry] sqlite init failed: %v", err)
		}
		defer sqlWriter.Close()
		sqlWriter.OnFlush = func(rows int, took time.Duration) {
			prom.SQLiteCommitDur.Observe(took.Seconds())
		}
		sqlReader, err := sqlitestore.NewReader(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("[sentry] sqlite reader init failed: %v", err)
		}
		defer sqlReader.Close()

		store = monitor.SQLiteStore{Writer: sqlWriter, Reader: sqlReader}
		health.EnableSQLite(true)
		go sqlWriter.Run(ctx, fanout.Subscribe("sqlite"))
		lg.Info("sqlite ready", "path", cfg.Storage.SQLitePath, "run_id", runID)
	}

	// ---- Redis: stream, latest cache, pubsub (circuit-broken) ----
	var redisWriter *redisstore.Writer
	if cfg.Storage.RedisAddr != "" {
		redisWriter, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err != nil {
			lg.Warn("redis init failed, continuing without redis", "error", err)
			health.EnableRedis(false)
		} else {
			defer redisWriter.Close()
			health.EnableRedis(true)

			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
					dispatcher.Notify(notification.Alert{
						Level:   notification.AlertWarning,
						Title:   "redis circuit open",
						Message: "snapshot publishing is buffered until redis recovers",
					})
				}
			}
			bw := redisstore.NewBufferedWriter(ctx, redisWriter, cb, 10000)
			bw.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
			go bw.Run(ctx, fanout.Subscribe("redis"))
		}
	}

	var rdb *goredis.Client
	if redisWriter != nil {
		rdb = redisWriter.Client()
	}
	var db *sql.DB
	if sqlWriter != nil {
		db = sqlWriter.DB()
	}
	if rdb != nil || db != nil {
		health.StartLivenessChecker(ctx, rdb, db, 10*time.Second)
	}

	// ---- Websocket gateway ----
	hub := gateway.NewHub(cfg.Server.ReplaySize)
	hub.OnDrop = func() { prom.GatewayDrops.Inc() }
	go hub.Run(ctx, fanout.Subscribe("gateway"))

	var gatewaySrv *http.Server
	if cfg.Server.GatewayAddr != "" {
		mux := http.NewServeMux()
		gateway.RegisterRoutes(mux, hub, time.Now())
		gatewaySrv = &http.Server{Addr: cfg.Server.GatewayAddr, Handler: mux}
		go func() {
			lg.Info("gateway listening", "addr", cfg.Server.GatewayAddr)
			if err := gatewaySrv.ListenAndServe(); err != http.ErrServerClosed {
				lg.Error("gateway server error", "error", err)
			}
		}()
	} else {
		gateway.RegisterRoutes(metricsSrv.Mux, hub, time.Now())
	}
	metricsSrv.Start()

	// ---- Policy ----
	if cfg.Strategy.Enabled {
		policy := strategy.DefaultPolicy
		policy.Buy, policy.Exit = cfg.Strategy.Buy, cfg.Strategy.Exit
		engine := strategy.NewEngine(256, lg)
		engine.Register(strategy.NewConfidencePolicy(policy))
		engine.OnSignal = func(s strategy.Signal) {
			prom.StrategySignals.WithLabelValues(string(s.Action)).Inc()
			dispatcher.Notify(notification.Alert{
				Level:   notification.AlertInfo,
				Token:   s.Token,
				Title:   string(s.Action),
				Message: s.Reason,
				Fields: map[string]any{
					"price":      s.Price,
					"confidence": s.Confidence,
					"index":      s.Index,
				},
			})
		}
		go engine.Run(ctx, fanout.Subscribe("strategy"))
		go drainSignals(ctx, engine.Signals())
	}

	go fanout.Run(ctx, events)
	go reportSaturation(ctx, fanout, hub, prom)

	// ---- Price source & monitor ----
	src, err := pricesource.New(pricesource.Config{
		BaseURL:           cfg.Source.BaseURL,
		APIKey:            cfg.Source.APIKey,
		Chain:             cfg.Source.Chain,
		IntervalMinutes:   base,
		OHLCV:             cfg.Source.OHLCV,
		Timeout:           cfg.Source.Timeout,
		RequestsPerMinute: cfg.Source.RequestsPerMinute,
	})
	if err != nil {
		log.Fatalf("[sentry] price source: %v", err)
	}

	checkpointEvery := 0
	if cfg.Schedule.CheckpointSec > 0 {
		checkpointEvery = max(1, cfg.Schedule.CheckpointSec/(base*60))
	}
	mon, err := monitor.New(src, tokens, events, store, prom, health, lg, monitor.Options{
		FetchTimeout:    cfg.Source.Timeout,
		Backfill:        cfg.Source.Backfill,
		CheckpointEvery: checkpointEvery,
	})
	if err != nil {
		log.Fatalf("[sentry] monitor: %v", err)
	}

	spec, _ := cfg.CronSpec()
	sched, err := monitor.NewScheduler(spec, mon)
	if err != nil {
		log.Fatalf("[sentry] %v", err)
	}

	monDone := make(chan error, 1)
	go func() { monDone <- mon.Run(ctx) }()
	sched.RunNow()
	sched.Start()
	lg.Info("monitor running", "schedule", spec)

	// ---- Wait for shutdown ----
	select {
	case sig := <-sigCh:
		lg.Info("shutdown signal", "signal", sig.String())
	case err := <-monDone:
		lg.Error("monitor stopped", "error", err)
	}

	sched.Stop()
	cancel()
	select {
	case <-monDone:
	case <-time.After(5 * time.Second):
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	if gatewaySrv != nil {
		gatewaySrv.Shutdown(shutdownCtx)
	}
	lg.Info("shutdown complete")
}

// reportSaturation exports subscriber queue fill levels and gateway clients.
func reportSaturation(ctx context.Context, fanout *bus.FanOut, hub *gateway.Hub, prom *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range fanout.ChannelStats() {
				if s.Cap > 0 {
					prom.ChannelSaturationPct.WithLabelValues("fanout_" + s.Name).Set(float64(s.Len) / float64(s.Cap) * 100)
				}
			}
			prom.GatewayClients.Set(float64(hub.ClientCount()))
		}
	}
}

// drainSignals keeps the engine's signal channel from filling; signals are
// already logged and counted by the engine.
func drainSignals(ctx context.Context, signals <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
		}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
