// Package bus fans snapshot events out from the per-token tasks to the sinks
// (Redis, SQLite, gateway, strategy).
package bus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"token-sentry/internal/model"
)

type subscriber struct {
	name    string
	ch      chan model.Event
	dropped atomic.Uint64
}

// FanOut copies every event of one input channel into each subscriber's
// buffered channel. A subscriber whose buffer is full misses that event;
// the others still receive it.
type FanOut struct {
	mu      sync.RWMutex
	subs    []*subscriber
	bufSize int

	// OnDrop, when set, replaces the default drop log line.
	OnDrop func(subscriber string)
}

// New creates a FanOut whose subscriber channels hold bufSize events.
func New(bufSize int) *FanOut {
	return &FanOut{bufSize: bufSize}
}

// Subscribe adds a named consumer. Call it before Run.
func (f *FanOut) Subscribe(name string) <-chan model.Event {
	s := &subscriber{name: name, ch: make(chan model.Event, f.bufSize)}
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return s.ch
}

// Run distributes input until ctx ends or input closes, then closes every
// subscriber channel.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Event) {
	defer f.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-input:
			if !ok {
				return
			}
			f.publish(ev)
		}
	}
}

func (f *FanOut) publish(ev model.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		select {
		case s.ch <- ev:
			continue
		default:
		}
		s.dropped.Add(1)
		if f.OnDrop != nil {
			f.OnDrop(s.name)
		} else {
			log.Printf("[bus] %s full, dropping event %s", s.name, ev.ID())
		}
	}
}

func (f *FanOut) closeAll() {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		close(s.ch)
	}
}

// ChannelStat describes one subscriber's buffer.
type ChannelStat struct {
	Name    string
	Len     int
	Cap     int
	Dropped uint64
}

// ChannelStats reports buffer saturation per subscriber, in subscription order.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, 0, len(f.subs))
	for _, s := range f.subs {
		stats = append(stats, ChannelStat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch), Dropped: s.dropped.Load()})
	}
	return stats
}
