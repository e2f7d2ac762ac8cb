// Package errs defines the sentinel error taxonomy used across logsentry
// components, so callers can classify failures with errors.Is instead of
// string matching.
package errs

import "errors"

var (
	// ErrParseFailed marks a log line that could not be parsed into a
	// LogRecord. The record is dropped and a counter is incremented; no
	// state is touched.
	ErrParseFailed = errors.New("logsentry: record parse failed")

	// ErrSourceUnavailable marks an I/O or driver error from a log source.
	// The ingest loop backs off and retries without losing its cursor.
	ErrSourceUnavailable = errors.New("logsentry: log source unavailable")

	// ErrPressureRejected marks a state-store allocation refused under
	// CRITICAL memory pressure even after eviction.
	ErrPressureRejected = errors.New("logsentry: rejected under memory pressure")

	// ErrDispatchFailed marks a sink I/O failure inside a dispatcher.
	ErrDispatchFailed = errors.New("logsentry: alert dispatch failed")

	// ErrCircuitOpen marks a short-circuited Tier 4 external query.
	ErrCircuitOpen = errors.New("logsentry: circuit breaker open")

	// ErrFatalConfig marks a bad mandatory configuration field; the
	// process refuses to start.
	ErrFatalConfig = errors.New("logsentry: fatal configuration error")
)
