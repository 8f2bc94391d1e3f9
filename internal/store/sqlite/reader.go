package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"token-sentry/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for warm start and replay.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadSamples returns the samples of token in a run with seq < limit, in
// ingestion order. limit < 0 reads all.
func (r *Reader) ReadSamples(runID, token string, limit int) ([]model.Sample, error) {
	rows, err := r.db.Query(`
		SELECT ts, open, high, low, close, volume
		FROM samples
		WHERE run_id = ? AND token = ? AND (? < 0 OR seq < ?)
		ORDER BY seq ASC
	`, runID, token, limit, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query samples: %w", err)
	}
	defer rows.Close()

	var out []model.Sample
	for rows.Next() {
		var s model.Sample
		var vol sql.NullFloat64
		if err := rows.Scan(&s.T, &s.Open, &s.High, &s.Low, &s.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan samples: %w", err)
		}
		s.Volume = vol.Float64
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadSnapshots returns the snapshots of token in a run with seq < limit, in
// ingestion order. limit < 0 reads all.
func (r *Reader) ReadSnapshots(runID, token string, limit int) ([]model.Snapshot, error) {
	rows, err := r.db.Query(`
		SELECT data
		FROM snapshots
		WHERE run_id = ? AND token = ? AND (? < 0 OR seq < ?)
		ORDER BY seq ASC
	`, runID, token, limit, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan snapshots: %w", err)
		}
		var s model.Snapshot
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Tokens lists the tokens with samples in a run.
func (r *Reader) Tokens(runID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT token FROM samples WHERE run_id = ? ORDER BY token`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query tokens: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReadState decodes the latest checkpoint of token into state and returns
// the run it belongs to. ok is false when no checkpoint exists.
func (r *Reader) ReadState(token string, state any) (runID string, ok bool, err error) {
	var data string
	err = r.db.QueryRow(`SELECT run_id, data FROM collector_state WHERE token = ?`, token).Scan(&runID, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("sqlite read state %s: %w", token, err)
	}
	if err := json.Unmarshal([]byte(data), state); err != nil {
		return "", false, fmt.Errorf("unmarshal state %s: %w", token, err)
	}
	return runID, true, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
