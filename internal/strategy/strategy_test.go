package strategy

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentry/internal/model"
)

func ev(token string, i int, conf, slope float64) model.Event {
	return model.Event{
		Token: token,
		Index: i,
		Snapshot: model.Snapshot{
			Timestamp:           int64(i * 300),
			Price:               1 + float64(i)/100,
			ZoneConfidence:      conf,
			ZoneConfidenceSlope: slope,
		},
	}
}

func TestConfidencePolicy(t *testing.T) {
	p := NewConfidencePolicy(DefaultPolicy)

	tests := []struct {
		name  string
		ev    model.Event
		want  Action
		holds bool
	}{
		{"low confidence", ev("A", 0, 0.3, 0.1), "", false},
		{"high but falling", ev("A", 1, 0.8, -0.1), "", false},
		{"high and rising", ev("A", 2, 0.8, 0.1), ActionBuy, true},
		{"already holding", ev("A", 3, 0.9, 0.2), "", true},
		{"mid range keeps position", ev("A", 4, 0.5, -0.2), "", true},
		{"decayed", ev("A", 5, 0.2, -0.1), ActionExit, false},
		{"no double exit", ev("A", 6, 0.1, -0.1), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := p.OnSnapshot(tt.ev)
			if tt.want == "" {
				assert.Nil(t, sig)
			} else {
				require.NotNil(t, sig)
				assert.Equal(t, tt.want, sig.Action)
				assert.Equal(t, tt.ev.Index, sig.Index)
				assert.Equal(t, tt.ev.Snapshot.Price, sig.Price)
			}
			assert.Equal(t, tt.holds, p.Holding("A"))
		})
	}
	assert.False(t, p.Holding("B"))
}

func TestConfidencePolicy_OverboughtFilter(t *testing.T) {
	p := NewConfidencePolicy(DefaultPolicy)
	e := ev("A", 0, 0.9, 0.1)
	e.Snapshot.RSI.Short = model.Float(85)
	assert.Nil(t, p.OnSnapshot(e))

	e.Snapshot.RSI.Short = model.Float(60)
	assert.NotNil(t, p.OnSnapshot(e))
}

func TestEngine_Run(t *testing.T) {
	eng := NewEngine(4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	eng.Register(NewConfidencePolicy(DefaultPolicy))
	var counted []Action
	eng.OnSignal = func(s Signal) { counted = append(counted, s.Action) }

	in := make(chan model.Event, 8)
	in <- ev("A", 0, 0.8, 0.1)
	in <- ev("B", 0, 0.8, 0.1)
	in <- ev("A", 1, 0.1, -0.3)
	in <- ev("B", 1, 0.5, 0)
	close(in)

	eng.Run(context.Background(), in)

	assert.Equal(t, []Action{ActionBuy, ActionBuy, ActionExit}, counted)
	require.Len(t, eng.Signals(), 3)
	first := <-eng.Signals()
	assert.Equal(t, "A", first.Token)
	assert.Equal(t, "zone_confidence", first.StrategyName)
}

func TestEngine_DropsWhenSignalChannelFull(t *testing.T) {
	eng := NewEngine(1, nil)
	eng.Register(NewConfidencePolicy(DefaultPolicy))
	eng.Process(ev("A", 0, 0.8, 0.1))
	eng.Process(ev("B", 0, 0.8, 0.1))
	assert.Len(t, eng.Signals(), 1)
}
