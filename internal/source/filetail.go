package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/crlsmrls/logsentry/internal/errs"
	"github.com/crlsmrls/logsentry/internal/logrecord"
)

const defaultBatchSize = 1000

// FileTailSource reads newline-delimited JSON log lines from an open
// file, returning up to BatchSize parsed records per call and clearing
// EOF so the same stream can be tailed as more lines are appended.
// Grounded on
// original_source/src/io/log_readers/file_log_reader.{hpp,cpp}.
type FileTailSource struct {
	path      string
	f         *os.File
	reader    *bufio.Reader
	batchSize int

	lineNumber   int64
	parseErrors  int64
	lastParseErr error
}

// NewFileTailSource opens path for reading.
func NewFileTailSource(path string, batchSize int) (*FileTailSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &FileTailSource{path: path, f: f, reader: bufio.NewReader(f), batchSize: batchSize}, nil
}

// NextBatch reads up to batchSize lines. Reaching EOF before a full
// batch is not an error; a last line without a trailing newline is
// parsed as read, and the next call resumes from the same file offset
// once more has been written (tail semantics).
func (s *FileTailSource) NextBatch(ctx context.Context) ([]*logrecord.Record, error) {
	batch := make([]*logrecord.Record, 0, s.batchSize)

	for len(batch) < s.batchSize {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if len(line) > 0 {
			trimmed := trimNewline(line)
			if trimmed != "" {
				s.lineNumber++
				if rec, ok := parseLine(trimmed, s.lineNumber); ok {
					batch = append(batch, rec)
				} else {
					s.parseErrors++
					s.lastParseErr = fmt.Errorf("source: line %d: %w", s.lineNumber, errs.ErrParseFailed)
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return batch, fmt.Errorf("source: read %s: %w: %v", s.path, errs.ErrSourceUnavailable, err)
		}
	}

	return batch, nil
}

// ParseErrors reports the running count of lines dropped for failing
// to parse.
func (s *FileTailSource) ParseErrors() int64 { return s.parseErrors }

// LastParseError reports the most recent line-parse failure, or nil if
// none has occurred yet. Intended for occasional debug logging, not
// per-line error handling.
func (s *FileTailSource) LastParseError() error { return s.lastParseErr }

// Close releases the underlying file handle.
func (s *FileTailSource) Close() error { return s.f.Close() }

func trimNewline(s string) string {
	n := len(s)
	for n > 0 && (s[n-1] == '\n' || s[n-1] == '\r') {
		n--
	}
	return s[:n]
}
