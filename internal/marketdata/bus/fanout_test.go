package bus

import (
	"context"
	"testing"
	"time"

	"token-sentry/internal/model"
)

func event(token string, idx int) model.Event {
	return model.Event{Token: token, Index: idx, Snapshot: model.Snapshot{Timestamp: int64(idx) * 300, Price: 1}}
}

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe("redis")
	out2 := fo.Subscribe("sqlite")

	input := make(chan model.Event, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- event("SOL", 3)

	for name, out := range map[string]<-chan model.Event{"out1": out1, "out2": out2} {
		select {
		case ev := <-out:
			if ev.ID() != "SOL:3" {
				t.Errorf("%s: expected SOL:3, got %s", name, ev.ID())
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for event", name)
		}
	}
}

func TestFanOut_DropsForSlowConsumer(t *testing.T) {
	fo := New(1)
	fast := fo.Subscribe("fast")
	_ = fo.Subscribe("slow")

	dropped := make(chan string, 10)
	fo.OnDrop = func(name string) { dropped <- name }

	input := make(chan model.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	for i := 0; i < 3; i++ {
		input <- event("SOL", i)
		select {
		case <-fast:
		case <-time.After(time.Second):
			t.Fatal("fast consumer starved")
		}
	}

	// The slow channel holds one event; the next two are dropped.
	for i := 0; i < 2; i++ {
		select {
		case name := <-dropped:
			if name != "slow" {
				t.Errorf("expected drop for slow, got %s", name)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for drop")
		}
	}
	for _, st := range fo.ChannelStats() {
		want := map[string]uint64{"fast": 0, "slow": 2}[st.Name]
		if st.Dropped != want {
			t.Errorf("%s dropped %d, want %d", st.Name, st.Dropped, want)
		}
	}
}

func TestFanOut_ClosesOutputsWhenInputCloses(t *testing.T) {
	fo := New(4)
	out := fo.Subscribe("gateway")

	input := make(chan model.Event)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()
	close(input)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if _, ok := <-out; ok {
		t.Error("expected closed output channel")
	}
}

func TestFanOut_ChannelStats(t *testing.T) {
	fo := New(8)
	fo.Subscribe("a")
	fo.Subscribe("b")
	stats := fo.ChannelStats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 stats, got %d", len(stats))
	}
	if stats[1].Name != "b" || stats[1].Cap != 8 || stats[1].Len != 0 {
		t.Errorf("unexpected stat %+v", stats[1])
	}
}
