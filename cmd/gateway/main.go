// Command gateway serves the snapshot websocket feed from Redis, for
// deployments where the monitor and the plotting clients run apart. It seeds
// each token's replay buffer from the metrics stream, then relays PubSub.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token-sentry/config"
	"token-sentry/internal/gateway"
	"token-sentry/internal/metrics"
	"token-sentry/internal/model"
	redisstore "token-sentry/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[gateway] starting...")

	configPath := flag.String("config", "sentry.yaml", "YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[gateway] config: %v", err)
	}
	if cfg.Storage.RedisAddr == "" {
		log.Fatal("[gateway] storage.redis_addr (SENTRY_REDIS_ADDR) is required")
	}
	listenAddr := cfg.Server.GatewayAddr
	if listenAddr == "" {
		listenAddr = ":9091"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr:     cfg.Storage.RedisAddr,
		Password: cfg.Storage.RedisPassword,
		DB:       cfg.Storage.RedisDB,
	})
	if err != nil {
		log.Fatalf("[gateway] redis connection failed: %v", err)
	}
	defer reader.Close()

	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	health.EnableRedis(true)
	health.StartLivenessChecker(ctx, reader.Client(), nil, 10*time.Second)

	hub := gateway.NewHub(cfg.Server.ReplaySize)
	hub.OnDrop = func() { prom.GatewayDrops.Inc() }

	// Seed replay buffers with the newest stream entries.
	last := make(map[string]int)
	for _, t := range cfg.Tokens {
		events, err := reader.ReadRecent(ctx, t.Address, int64(cfg.Server.ReplaySize))
		if err != nil {
			log.Printf("[gateway] WARNING: seed %s: %v", t.Address, err)
			continue
		}
		for _, ev := range events {
			hub.Publish(ev)
			last[ev.Token] = ev.Index
		}
		log.Printf("[gateway] seeded %s with %d snapshots", t.Address, len(events))
	}

	// Live relay: drop anything already seeded.
	live := make(chan model.Event, 5000)
	relay := make(chan model.Event, 5000)
	go func() {
		if err := reader.SubscribeMetrics(ctx, live); err != nil {
			log.Printf("[gateway] subscribe: %v", err)
			health.EnableRedis(false)
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-live:
				if idx, ok := last[ev.Token]; ok && ev.Index <= idx {
					continue
				}
				delete(last, ev.Token)
				select {
				case relay <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	go hub.Run(ctx, relay)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prom.GatewayClients.Set(float64(hub.ClientCount()))
			}
		}
	}()

	srv := metrics.NewServer(listenAddr, health)
	gateway.RegisterRoutes(srv.Mux, hub, time.Now())
	srv.Start()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[gateway] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Stop(shutdownCtx)
}
