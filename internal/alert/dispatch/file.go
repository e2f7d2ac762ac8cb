package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/crlsmrls/logsentry/internal/errs"
)

// FileDispatcher appends one JSON object per line to a file, creating
// its parent directory on open. Grounded on the original FileDispatcher,
// which opens its output stream in append mode and flushes every
// write.
type FileDispatcher struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// NewFileDispatcher opens path for appending, creating any missing
// parent directories.
func NewFileDispatcher(path string) (*FileDispatcher, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileDispatcher{path: path, f: f}, nil
}

func (d *FileDispatcher) Name() string { return "file" }

// Dispatch writes a as a single JSON line, flushing immediately.
func (d *FileDispatcher) Dispatch(a *alert.Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	body, err := marshalAlert(a)
	if err != nil {
		return err
	}
	body = append(body, '\n')
	if _, err := d.f.Write(body); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrDispatchFailed, err)
	}
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrDispatchFailed, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (d *FileDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
