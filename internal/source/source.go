// Package source implements the log source adapters: file tail and a
// resumable database cursor. Grounded on
// original_source/src/io/log_readers/{base,file,mongo}_log_reader.{hpp,cpp}.
package source

import (
	"context"

	"github.com/crlsmrls/logsentry/internal/logrecord"
)

// Source pulls bounded batches of parsed records. A call returns an
// empty, non-error batch when nothing new is available; it returns an
// error only when the underlying I/O or driver itself fails.
type Source interface {
	NextBatch(ctx context.Context) ([]*logrecord.Record, error)
	Close() error
}

// ParseErrorCounter is implemented by sources that parse raw lines
// (currently only FileTailSource; DBCursorSource scans typed columns
// and has nothing to parse). The caller polls ParseErrors for the
// running total to report as a metric.
type ParseErrorCounter interface {
	ParseErrors() int64
}
