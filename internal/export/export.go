// Package export writes snapshot logs as flat CSV: one row per snapshot,
// nested keys joined by "_", nulls as empty cells.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"token-sentry/internal/model"
)

// Writer streams snapshots as CSV rows. The header is written before the
// first row.
type Writer struct {
	csv    *csv.Writer
	header bool
	rows   int
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// Write appends one snapshot row.
func (w *Writer) Write(s *model.Snapshot) error {
	if !w.header {
		if err := w.csv.Write(model.Columns()); err != nil {
			return fmt.Errorf("csv header: %w", err)
		}
		w.header = true
	}
	if err := w.csv.Write(s.Flatten()); err != nil {
		return fmt.Errorf("csv row %d: %w", w.rows, err)
	}
	w.rows++
	return nil
}

// Rows returns the number of snapshot rows written.
func (w *Writer) Rows() int { return w.rows }

// Flush writes buffered rows, emitting the header if nothing was written.
func (w *Writer) Flush() error {
	if !w.header {
		if err := w.csv.Write(model.Columns()); err != nil {
			return fmt.Errorf("csv header: %w", err)
		}
		w.header = true
	}
	w.csv.Flush()
	return w.csv.Error()
}

// WriteCSV writes snaps with a header to w.
func WriteCSV(w io.Writer, snaps []model.Snapshot) error {
	cw := NewWriter(w)
	for i := range snaps {
		if err := cw.Write(&snaps[i]); err != nil {
			return err
		}
	}
	return cw.Flush()
}

// WriteFile writes snaps to path, creating parent directories.
func WriteFile(path string, snaps []model.Snapshot) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, snaps); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
