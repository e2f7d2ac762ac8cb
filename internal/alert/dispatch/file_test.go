package dispatch

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/crlsmrls/logsentry/internal/alert"
)

func TestFileDispatcherCreatesParentDirAndAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "alerts.ndjson")

	d, err := NewFileDispatcher(path)
	if err != nil {
		t.Fatalf("NewFileDispatcher: %v", err)
	}
	defer d.Close()

	a := &alert.Alert{SourceIP: "1.2.3.4", Reason: "rate_exceeded", Tier: alert.TierHeuristic, Action: alert.Block, Score: 0.9}
	if err := d.Dispatch(a); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := d.Dispatch(a); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}
}
