package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"token-sentry/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: a day of 1m snapshots + buffer
	defaultStreamMaxLen = 1500
	defaultLatestTTL    = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	MaxLen    int64         // approximate stream length per token
	LatestTTL time.Duration // TTL of metrics:latest:{token}
}

// Writer writes snapshot events to Redis: XADD to metrics:{token}, SET the
// latest snapshot and PUBLISH to pub:metrics:{token}.
type Writer struct {
	client *goredis.Client
	maxLen int64
	ttl    time.Duration
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	w := &Writer{client: client, maxLen: cfg.MaxLen, ttl: cfg.LatestTTL}
	if w.maxLen <= 0 {
		w.maxLen = defaultStreamMaxLen
	}
	if w.ttl <= 0 {
		w.ttl = defaultLatestTTL
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return w, nil
}

// WriteEvent performs the pipelined writes for one event.
func (w *Writer) WriteEvent(ctx context.Context, ev model.Event) error {
	return w.WriteBatch(ctx, []model.Event{ev})
}

// WriteBatch writes multiple events in a single Redis pipeline.
func (w *Writer) WriteBatch(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	for i := range events {
		ev := &events[i]
		jsonData := string(ev.JSON())

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: ev.StreamKey(),
			MaxLen: w.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Set(ctx, ev.LatestKey(), jsonData, w.ttl)
		pipe.Publish(ctx, ev.PubSubChannel(), jsonData)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline (%d events): %w", len(events), err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
