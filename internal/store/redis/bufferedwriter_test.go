package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentry/internal/model"
)

type fakeWriter struct {
	mu      sync.Mutex
	fail    bool
	written []string
}

func (f *fakeWriter) WriteEvent(_ context.Context, ev model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	f.written = append(f.written, ev.ID())
	return nil
}

func (f *fakeWriter) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeWriter) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func TestBufferedWriter_BuffersWhileOpenAndFlushesOnClose(t *testing.T) {
	fw := &fakeWriter{fail: true}
	cb := NewCircuitBreaker(2, 50*time.Millisecond)
	bw := NewBufferedWriter(context.Background(), fw, cb, 0)

	flushed := make(chan int, 1)
	bw.OnFlush = func(n int) { flushed <- n }

	// Two failures trip the breaker; the events are lost.
	assert.Error(t, bw.Write(model.Event{Token: "SOL", Index: 0}))
	assert.Error(t, bw.Write(model.Event{Token: "SOL", Index: 1}))
	require.Equal(t, StateOpen, cb.CurrentState())

	require.NoError(t, bw.Write(model.Event{Token: "SOL", Index: 2}))
	require.NoError(t, bw.Write(model.Event{Token: "SOL", Index: 3}))
	assert.Equal(t, 2, bw.PendingCount())

	fw.setFail(false)
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, bw.Write(model.Event{Token: "SOL", Index: 4}))

	select {
	case n := <-flushed:
		assert.Equal(t, 2, n)
	case <-time.After(time.Second):
		t.Fatal("buffer was not flushed")
	}
	assert.Equal(t, 0, bw.PendingCount())
	assert.ElementsMatch(t, []string{"SOL:4", "SOL:2", "SOL:3"}, fw.ids())
}

func TestBufferedWriter_DropsOldestWhenFull(t *testing.T) {
	fw := &fakeWriter{fail: true}
	cb := NewCircuitBreaker(1, time.Hour)
	bw := NewBufferedWriter(context.Background(), fw, cb, 2)

	bw.Write(model.Event{Token: "SOL", Index: 0}) // trips
	for i := 1; i <= 3; i++ {
		require.NoError(t, bw.Write(model.Event{Token: "SOL", Index: i}))
	}
	assert.Equal(t, 2, bw.PendingCount())
	assert.Equal(t, uint64(1), bw.Evicted())

	bw.mu.Lock()
	queued := bw.pending.Values()
	bw.mu.Unlock()
	require.Len(t, queued, 2)
	assert.Equal(t, 2, queued[0].Index)
	assert.Equal(t, 3, queued[1].Index)
}

func TestBufferedWriter_Run(t *testing.T) {
	fw := &fakeWriter{}
	bw := NewBufferedWriter(context.Background(), fw, NewCircuitBreaker(3, time.Second), 0)

	ch := make(chan model.Event, 3)
	ch <- model.Event{Token: "A", Index: 0}
	ch <- model.Event{Token: "B", Index: 0}
	close(ch)
	bw.Run(context.Background(), ch)

	assert.Equal(t, []string{"A:0", "B:0"}, fw.ids())
}
