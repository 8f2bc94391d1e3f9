// Package replay loads historical samples from a price-history JSON file or
// from SQLite and emits them one by one at a configurable speed for
// backtesting.
package replay

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"token-sentry/internal/marketdata/pricesource"
	"token-sentry/internal/model"
	sqlitestore "token-sentry/internal/store/sqlite"
)

// maxGap caps the simulated sleep between two samples.
const maxGap = 5 * time.Second

// LoadFile reads a {data:{items:[...]}} file, price-only or OHLCV, into
// chronologically sorted samples. A file without items is ErrInsufficientData.
func LoadFile(path string) ([]model.Sample, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	samples, err := pricesource.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("load %s: no samples: %w", path, model.ErrInsufficientData)
	}
	log.Printf("[replay] loaded %d samples from %s", len(samples), path)
	return samples, nil
}

// LoadSQLite reads every sample stored for token in a previous run.
func LoadSQLite(reader *sqlitestore.Reader, runID, token string) ([]model.Sample, error) {
	samples, err := reader.ReadSamples(runID, token, -1)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("run %s has no samples for %s: %w", runID, token, model.ErrInsufficientData)
	}
	log.Printf("[replay] loaded %d samples for %s from run %s", len(samples), token, runID)
	return samples, nil
}

// Replayer emits a fixed sample series.
type Replayer struct {
	samples []model.Sample
}

// New creates a Replayer over samples, which must already be sorted.
func New(samples []model.Sample) *Replayer {
	return &Replayer{samples: samples}
}

// Len returns the number of samples to replay.
func (r *Replayer) Len() int { return len(r.samples) }

// Run emits every sample into out and closes it when done.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
func (r *Replayer) Run(ctx context.Context, speed float64, out chan<- model.Sample) error {
	defer close(out)

	if len(r.samples) == 0 {
		log.Println("[replay] no samples to replay")
		return nil
	}
	log.Printf("[replay] replaying %d samples, speed=%.1fx", len(r.samples), speed)

	var prev int64
	emitted := 0
	for i, s := range r.samples {
		// Simulate time gaps between samples
		if speed > 0 && i > 0 {
			if gap := time.Duration(s.T-prev) * time.Second; gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				select {
				case <-ctx.Done():
					log.Printf("[replay] cancelled after %d samples", emitted)
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prev = s.T

		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d samples", emitted)
			return ctx.Err()
		case out <- s:
			emitted++
		}
	}

	log.Printf("[replay] completed: %d samples replayed", emitted)
	return nil
}

// Source serves a loaded series through the pricesource.Source interface,
// so the live monitor can run against recorded data.
type Source struct {
	series map[string][]model.Sample
}

// NewSource wraps per-token sorted series.
func NewSource(series map[string][]model.Sample) *Source {
	return &Source{series: series}
}

// Fetch returns the samples of token with from < t <= to.
func (s *Source) Fetch(_ context.Context, token string, from, to int64) ([]model.Sample, error) {
	all, ok := s.series[token]
	if !ok {
		return nil, fmt.Errorf("token %s not recorded: %w", token, model.ErrSourceUnavailable)
	}
	window := pricesource.After(all, from)
	n := 0
	for n < len(window) && window[n].T <= to {
		n++
	}
	return window[:n], nil
}
