package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"token-sentry/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/sentry.db"
	RunID  string // groups the rows of one monitor or backtest run
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db    *sql.DB
	runID string

	// OnFlush is called after every committed batch (optional).
	OnFlush func(rows int, took time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// RunID returns the run the writer appends to.
func (w *Writer) RunID() string { return w.runID }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	if cfg.RunID == "" {
		return nil, fmt.Errorf("sqlite writer: run id is required")
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s run=%s", cfg.DBPath, cfg.RunID)
	return &Writer{db: db, runID: cfg.RunID}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS samples (
			run_id  TEXT    NOT NULL,
			token   TEXT    NOT NULL,
			seq     INTEGER NOT NULL,
			ts      INTEGER NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  REAL,
			PRIMARY KEY (run_id, token, seq)
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			run_id  TEXT    NOT NULL,
			token   TEXT    NOT NULL,
			seq     INTEGER NOT NULL,
			ts      INTEGER NOT NULL,
			data    TEXT    NOT NULL,
			PRIMARY KEY (run_id, token, seq)
		);

		CREATE TABLE IF NOT EXISTS collector_state (
			token      TEXT    NOT NULL PRIMARY KEY,
			run_id     TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads events and inserts their sample and snapshot rows in batched
// transactions. Flushes every batchSize events OR every flushDelay, whichever
// first. Blocks until ctx is cancelled or eventCh is closed.
func (w *Writer) Run(ctx context.Context, eventCh <-chan model.Event) {
	batch := make([]model.Event, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.InsertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if w.OnFlush != nil {
			w.OnFlush(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case ev, ok := <-eventCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// InsertBatch writes the sample and snapshot of each event in a single transaction.
func (w *Writer) InsertBatch(events []model.Event) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	sampleStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO samples (run_id, token, seq, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer sampleStmt.Close()

	snapStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO snapshots (run_id, token, seq, ts, data)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer snapStmt.Close()

	for _, ev := range events {
		s := ev.Sample
		if _, err := sampleStmt.Exec(w.runID, ev.Token, ev.Index, s.T, s.Open, s.High, s.Low, s.Close, s.Volume); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := snapStmt.Exec(w.runID, ev.Token, ev.Index, ev.Snapshot.Timestamp, string(ev.Snapshot.JSON())); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// SaveState upserts the JSON-encoded checkpoint of a token's collector.
func (w *Writer) SaveState(token string, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", token, err)
	}

	_, err = w.db.Exec(`
		INSERT INTO collector_state (token, run_id, data, updated_at)
		VALUES (?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT(token) DO UPDATE SET run_id = excluded.run_id, data = excluded.data, updated_at = excluded.updated_at
	`, token, w.runID, string(data))
	if err != nil {
		return fmt.Errorf("sqlite save state %s: %w", token, err)
	}
	return nil
}

// LastSeq returns the highest stored sample index of token in this run, or -1.
func (w *Writer) LastSeq(token string) (int, error) {
	var seq sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(seq) FROM samples WHERE run_id = ? AND token = ?`,
		w.runID, token,
	).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return int(seq.Int64), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
