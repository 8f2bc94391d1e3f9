package model

import "errors"

// Boundary and configuration error kinds. Analytic code never returns these;
// it degrades to neutral values instead.
var (
	// ErrInvalidInterval marks a misconfigured interval (fatal at start-up).
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrInsufficientData marks an input with nothing to analyse, such as an
	// empty backtest series. Analytics degrade to 0 or nil instead.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMonotonicity rejects a sample older than the newest stored one.
	ErrMonotonicity = errors.New("sample timestamp decreases")

	// ErrSourceUnavailable means the price source could not answer; the tick is skipped.
	ErrSourceUnavailable = errors.New("price source unavailable")

	// ErrSchemaMismatch rejects a malformed payload without partial ingestion.
	ErrSchemaMismatch = errors.New("payload schema mismatch")
)
