package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"token-sentry/internal/model"
	"token-sentry/internal/ringbuf"
)

// EventWriter is the sink the buffered writer protects.
type EventWriter interface {
	WriteEvent(ctx context.Context, ev model.Event) error
}

// BufferedWriter sends events through a circuit breaker. While the circuit
// is open, events queue in a bounded outage ring (oldest evicted first) and
// are replayed once the circuit closes.
type BufferedWriter struct {
	writer EventWriter
	cb     *CircuitBreaker
	ctx    context.Context

	mu      sync.Mutex
	pending *ringbuf.Ring[model.Event]

	OnBuffer func()          // an event was queued during an outage
	OnFlush  func(count int) // a replay finished; count events were written
}

// NewBufferedWriter wraps w. maxPending <= 0 means 10000.
func NewBufferedWriter(ctx context.Context, w EventWriter, cb *CircuitBreaker, maxPending int) *BufferedWriter {
	if maxPending <= 0 {
		maxPending = 10000
	}
	bw := &BufferedWriter{
		writer:  w,
		cb:      cb,
		ctx:     ctx,
		pending: ringbuf.New[model.Event](maxPending),
	}

	chained := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if chained != nil {
			chained(from, to)
		}
		if to == StateClosed {
			go bw.replay()
		}
	}
	return bw
}

// Write sends ev through the breaker. An open circuit queues ev and returns
// nil; any other failure is returned and ev is not retried.
func (bw *BufferedWriter) Write(ev model.Event) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteEvent(bw.ctx, ev)
	})
	if !errors.Is(err, ErrCircuitOpen) {
		return err
	}
	bw.mu.Lock()
	bw.pending.Put(ev)
	bw.mu.Unlock()
	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
	return nil
}

// Run writes events from eventCh until ctx ends or the channel closes.
func (bw *BufferedWriter) Run(ctx context.Context, eventCh <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			if err := bw.Write(ev); err != nil {
				log.Printf("[redis] write %s: %v", ev.ID(), err)
			}
		}
	}
}

// replay drains the outage ring straight to the writer.
func (bw *BufferedWriter) replay() {
	bw.mu.Lock()
	queued := bw.pending.Values()
	bw.pending.Reset()
	bw.mu.Unlock()
	if len(queued) == 0 {
		return
	}

	written := 0
	for _, ev := range queued {
		if err := bw.writer.WriteEvent(bw.ctx, ev); err != nil {
			log.Printf("[redis] replay %s: %v", ev.ID(), err)
			continue
		}
		written++
	}
	log.Printf("[redis] replayed %d/%d events queued during outage", written, len(queued))
	if bw.OnFlush != nil {
		bw.OnFlush(written)
	}
}

// PendingCount returns how many events wait for the circuit to close.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.pending.Len()
}

// Evicted counts queued events dropped because the outage ring was full.
func (bw *BufferedWriter) Evicted() uint64 {
	return bw.pending.Overflow()
}
