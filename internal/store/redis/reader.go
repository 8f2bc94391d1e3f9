package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"token-sentry/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// metricsPattern matches every per-token PubSub channel.
const metricsPattern = "pub:metrics:*"

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader reads snapshot events back from Redis for the gateway.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

// ReadLatest returns the newest event of token, or nil when none is cached.
func (r *Reader) ReadLatest(ctx context.Context, token string) (*model.Event, error) {
	key := (&model.Event{Token: token}).LatestKey()
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var ev model.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &ev, nil
}

// ReadRecent returns up to n of the newest events of token, oldest first.
func (r *Reader) ReadRecent(ctx context.Context, token string, n int64) ([]model.Event, error) {
	stream := (&model.Event{Token: token}).StreamKey()
	msgs, err := r.client.XRevRangeN(ctx, stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", stream, err)
	}

	out := make([]model.Event, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		ev, err := decodeMessage(msgs[i])
		if err != nil {
			log.Printf("[redis-reader] skip %s/%s: %v", stream, msgs[i].ID, err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// SubscribeMetrics forwards every published event into out until ctx is
// cancelled. Events that do not fit into out are dropped.
func (r *Reader) SubscribeMetrics(ctx context.Context, out chan<- model.Event) error {
	pubsub := r.client.PSubscribe(ctx, metricsPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("redis psubscribe %s: %w", metricsPattern, err)
	}
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[redis-reader] bad payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}
}

func decodeMessage(msg goredis.XMessage) (model.Event, error) {
	var ev model.Event
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return ev, fmt.Errorf("missing data field")
	}
	err := json.Unmarshal([]byte(raw), &ev)
	return ev, err
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
