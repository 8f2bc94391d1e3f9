package series

import (
	"fmt"

	"token-sentry/internal/model"
)

// Buffer is the price series for one (token, base interval).
// Append is O(1) amortized; Latest is O(1).
type Buffer struct {
	samples Log[model.Sample]
	closes  Log[float64]
}

// NewBuffer creates an empty series.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append validates and stores s. Samples with a timestamp strictly older than
// the newest stored one are rejected with model.ErrMonotonicity; equal
// timestamps are appended.
func (b *Buffer) Append(s model.Sample) error {
	if !s.Valid() {
		return fmt.Errorf("sample t=%d: %w", s.T, model.ErrSchemaMismatch)
	}
	if last, ok := b.samples.Last(); ok && s.T < last.T {
		return fmt.Errorf("sample t=%d before t=%d: %w", s.T, last.T, model.ErrMonotonicity)
	}
	b.samples.Append(s)
	b.closes.Append(s.Value())
	return nil
}

// Len returns the number of stored samples.
func (b *Buffer) Len() int { return b.samples.Len() }

// At returns the i-th sample. It panics when i is out of range.
func (b *Buffer) At(i int) model.Sample { return b.samples.View()[i] }

// Latest returns the newest sample.
func (b *Buffer) Latest() (model.Sample, bool) { return b.samples.Last() }

// First returns the oldest sample.
func (b *Buffer) First() (model.Sample, bool) {
	v := b.samples.View()
	if len(v) == 0 {
		return model.Sample{}, false
	}
	return v[0], true
}

// Slice returns an immutable view of samples [start, end), clamped to the
// stored range.
func (b *Buffer) Slice(start, end int) View {
	v := b.samples.View()
	start, end = clamp(start, end, len(v))
	return View{samples: v[start:end:end]}
}

// View returns an immutable view of the whole series.
func (b *Buffer) View() View {
	v := b.samples.View()
	return View{samples: v}
}

// Values returns the closes of every stored sample, oldest first.
// The slice must not be modified.
func (b *Buffer) Values() []float64 { return b.closes.View() }

func clamp(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}

// View is a read-only window over a series.
type View struct {
	samples []model.Sample
}

// Len returns the number of samples in the view.
func (v View) Len() int { return len(v.samples) }

// At returns the i-th sample of the view.
func (v View) At(i int) model.Sample { return v.samples[i] }

// Closes copies the close prices of the view.
func (v View) Closes() []float64 {
	out := make([]float64, len(v.samples))
	for i, s := range v.samples {
		out[i] = s.Close
	}
	return out
}

// Samples copies the samples of the view.
func (v View) Samples() []model.Sample {
	return append([]model.Sample(nil), v.samples...)
}
