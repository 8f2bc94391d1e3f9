// cmd/backtest replays recorded price history through a collector, exports
// the snapshot log as CSV and optionally persists the run to SQLite.
//
// Usage:
//
//	go run ./cmd/backtest --input=history.json --token=<address> --out=out/metrics.csv
//	go run ./cmd/backtest --db=data/sentry.db --run=<run id> --token=<address>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"token-sentry/config"
	"token-sentry/internal/collector"
	"token-sentry/internal/export"
	"token-sentry/internal/logger"
	"token-sentry/internal/marketdata/replay"
	"token-sentry/internal/model"
	sqlitestore "token-sentry/internal/store/sqlite"
	"token-sentry/internal/strategy"
)

const persistBatch = 500

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	configPath := flag.String("config", "sentry.yaml", "YAML config file (missing file uses defaults)")
	input := flag.String("input", "", "Price history JSON file ({data:{items:[...]}})")
	dbPath := flag.String("db", "", "SQLite database to replay from (with --run)")
	runID := flag.String("run", "", "Run id to replay from --db")
	token := flag.String("token", "", "Token address")
	out := flag.String("out", "", "CSV output path (default: <token>.csv)")
	persist := flag.String("persist", "", "SQLite database to store this run in")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	flag.Parse()

	if *token == "" {
		log.Fatal("[backtest] --token is required")
	}
	if (*input == "") == (*dbPath == "") {
		log.Fatal("[backtest] exactly one of --input or --db is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[backtest] config: %v", err)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	lg := logger.Init("backtest", level)

	tc := config.TokenConfig{Address: *token}
	for _, t := range cfg.Tokens {
		if t.Address == *token {
			tc = t
		}
	}
	cc, err := cfg.CollectorConfig(tc)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	candles := make(map[int]int)
	cc.OnCandle = func(c model.Candle) { candles[c.Interval]++ }
	col, err := collector.New(cc, lg)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	// Load samples
	var samples []model.Sample
	if *input != "" {
		samples, err = replay.LoadFile(*input)
	} else {
		if *runID == "" {
			log.Fatal("[backtest] --run is required with --db")
		}
		var reader *sqlitestore.Reader
		reader, err = sqlitestore.NewReader(*dbPath)
		if err != nil {
			log.Fatalf("[backtest] sqlite open failed: %v", err)
		}
		defer reader.Close()
		samples, err = replay.LoadSQLite(reader, *runID, *token)
	}
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	// Optional persistence
	var writer *sqlitestore.Writer
	newRun := uuid.NewString()
	if *persist != "" {
		writer, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: *persist, RunID: newRun})
		if err != nil {
			log.Fatalf("[backtest] sqlite init failed: %v", err)
		}
		defer writer.Close()
	}

	// Policy, evaluated on every snapshot
	policy := strategy.DefaultPolicy
	policy.Buy, policy.Exit = cfg.Strategy.Buy, cfg.Strategy.Exit
	engine := strategy.NewEngine(len(samples)+1, lg)
	engine.Register(strategy.NewConfidencePolicy(policy))
	signals := make(map[strategy.Action]int)
	engine.OnSignal = func(s strategy.Signal) { signals[s.Action]++ }

	// Setup context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Replay in background
	sampleCh := make(chan model.Sample, 1024)
	go func() {
		if err := replay.New(samples).Run(ctx, *speed, sampleCh); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[backtest] replay error: %v", err)
		}
	}()

	start := time.Now()
	rejected := 0
	batch := make([]model.Event, 0, persistBatch)
	flush := func() {
		if writer == nil || len(batch) == 0 {
			return
		}
		if err := writer.InsertBatch(batch); err != nil {
			log.Fatalf("[backtest] persist: %v", err)
		}
		batch = batch[:0]
	}
	for s := range sampleCh {
		snap, err := col.Ingest(s)
		if err != nil {
			rejected++
			lg.Warn("sample rejected", "t", s.T, "error", err)
			continue
		}
		ev := model.Event{Token: *token, Index: col.Len() - 1, Sample: s, Snapshot: snap}
		engine.Process(ev)
		batch = append(batch, ev)
		if len(batch) >= persistBatch {
			flush()
		}
	}
	flush()
	elapsed := time.Since(start)

	if writer != nil {
		if err := writer.SaveState(*token, col.State()); err != nil {
			log.Printf("[backtest] save state: %v", err)
		}
	}

	// Export
	path := *out
	if path == "" {
		path = *token + ".csv"
	}
	snaps := col.Metrics()
	if err := export.WriteFile(path, snaps); err != nil {
		log.Fatalf("[backtest] export: %v", err)
	}
	var size uint64
	if fi, err := os.Stat(path); err == nil {
		size = uint64(fi.Size())
	}

	closed := 0
	for _, a := range col.Arcs() {
		if a.Closed() {
			closed++
		}
	}
	major := 0
	for _, z := range col.PersistentZones() {
		if z.IsMajor {
			major++
		}
	}

	// Print summary
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║              BACKTEST COMPLETE               ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Samples loaded:    %-24s ║\n", humanize.Comma(int64(len(samples))))
	fmt.Printf("║  Snapshots:         %-24s ║\n", humanize.Comma(int64(len(snaps))))
	fmt.Printf("║  Rejected:          %-24d ║\n", rejected)
	for _, tf := range cc.Targets {
		fmt.Printf("║  %-5s candles:     %-24s ║\n", fmt.Sprintf("%dm", tf), humanize.Comma(int64(candles[tf])))
	}
	fmt.Printf("║  Fib arcs closed:   %-24d ║\n", closed)
	fmt.Printf("║  Major zones:       %-24d ║\n", major)
	fmt.Printf("║  Signals BUY/EXIT:  %-24s ║\n", fmt.Sprintf("%d/%d", signals[strategy.ActionBuy], signals[strategy.ActionExit]))
	fmt.Printf("║  Elapsed:           %-24s ║\n", elapsed.Round(time.Millisecond))
	fmt.Printf("║  CSV:               %-24s ║\n", humanize.Bytes(size))
	if writer != nil {
		fmt.Printf("║  Run id:            %-24s ║\n", newRun[:8])
	}
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Printf("snapshots written to %s\n", path)
	if writer != nil {
		fmt.Printf("run stored in %s as %s\n", *persist, newRun)
	}
}
