package series

import (
	"errors"
	"math"
	"testing"

	"token-sentry/internal/model"
)

func TestBuffer_AppendAndLatest(t *testing.T) {
	b := NewBuffer()
	if _, ok := b.Latest(); ok {
		t.Fatal("empty buffer should have no latest sample")
	}

	for i, v := range []float64{100, 110, 105, 95} {
		if err := b.Append(model.NewPriceSample(int64(i*300), v)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if b.Len() != 4 {
		t.Fatalf("expected len=4, got %d", b.Len())
	}
	last, ok := b.Latest()
	if !ok || last.Value() != 95 {
		t.Fatalf("expected latest=95, got %v ok=%v", last.Value(), ok)
	}
	if b.At(1).Value() != 110 {
		t.Errorf("expected At(1)=110, got %v", b.At(1).Value())
	}
	if got := b.Values(); len(got) != 4 || got[3] != 95 {
		t.Errorf("unexpected closes %v", got)
	}
}

func TestBuffer_EqualTimestampAppends(t *testing.T) {
	b := NewBuffer()
	if err := b.Append(model.NewPriceSample(0, 100)); err != nil {
		t.Fatal(err)
	}
	if err := b.Append(model.NewPriceSample(0, 100.00001)); err != nil {
		t.Fatalf("equal timestamp should be accepted: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("expected len=2, got %d", b.Len())
	}
}

func TestBuffer_RejectsDecreasingTimestamp(t *testing.T) {
	b := NewBuffer()
	b.Append(model.NewPriceSample(600, 100))

	err := b.Append(model.NewPriceSample(300, 99))
	if !errors.Is(err, model.ErrMonotonicity) {
		t.Fatalf("expected ErrMonotonicity, got %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("rejected sample must not be stored, len=%d", b.Len())
	}
}

func TestBuffer_RejectsInvalidValues(t *testing.T) {
	b := NewBuffer()
	for _, v := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := b.Append(model.NewPriceSample(0, v)); !errors.Is(err, model.ErrSchemaMismatch) {
			t.Errorf("value %v: expected ErrSchemaMismatch, got %v", v, err)
		}
	}
	if b.Len() != 0 {
		t.Errorf("expected empty buffer, got len=%d", b.Len())
	}
}

func TestBuffer_ViewIsImmutable(t *testing.T) {
	b := NewBuffer()
	for i := 0; i < 3; i++ {
		b.Append(model.NewPriceSample(int64(i), float64(100+i)))
	}
	view := b.Slice(0, 3)

	for i := 3; i < 100; i++ {
		b.Append(model.NewPriceSample(int64(i), float64(100+i)))
	}

	if view.Len() != 3 {
		t.Fatalf("view grew to %d", view.Len())
	}
	if view.At(2).Value() != 102 {
		t.Errorf("view element changed: %v", view.At(2).Value())
	}
}

func TestBuffer_SliceClamps(t *testing.T) {
	b := NewBuffer()
	for i := 0; i < 5; i++ {
		b.Append(model.NewPriceSample(int64(i), float64(i+1)))
	}
	if got := b.Slice(-3, 2).Len(); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := b.Slice(3, 50).Len(); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := b.Slice(4, 1).Len(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestLog_ReaderAppendDoesNotClobber(t *testing.T) {
	var l Log[int]
	l.Append(1)
	l.Append(2)

	view := l.View()
	_ = append(view, 99)
	l.Append(3)

	if got := l.View(); got[2] != 3 {
		t.Fatalf("expected writer value 3, got %d", got[2])
	}
	if tail := l.Tail(2); len(tail) != 2 || tail[0] != 2 {
		t.Errorf("unexpected tail %v", tail)
	}
}
