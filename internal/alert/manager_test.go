package alert

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	count int
}

func (d *recordingDispatcher) Name() string { return "recording" }
func (d *recordingDispatcher) Dispatch(a *Alert) error {
	d.mu.Lock()
	d.count++
	d.mu.Unlock()
	return nil
}
func (d *recordingDispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

func TestRecordAlertDispatchesToAllSinks(t *testing.T) {
	d := &recordingDispatcher{}
	m := NewManager(ManagerConfig{}, []Dispatcher{d}, zerolog.Nop())
	go m.Run()

	m.RecordAlert(&Alert{SourceIP: "1.2.3.4", Reason: "rate_exceeded", Tier: TierHeuristic, Action: Block})
	m.Shutdown()

	if d.Count() != 1 {
		t.Fatalf("dispatch count = %d, want 1", d.Count())
	}
}

func TestRecordAlertAssignsIDAndSequence(t *testing.T) {
	m := NewManager(ManagerConfig{}, nil, zerolog.Nop())
	go m.Run()

	a := &Alert{SourceIP: "1.2.3.4", Reason: "x"}
	m.RecordAlert(a)
	m.Shutdown()

	if a.ID == "" {
		t.Error("expected a non-empty alert ID")
	}
	if a.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", a.Sequence)
	}
}

func TestThrottleSuppressesWithinWindow(t *testing.T) {
	m := NewManager(ManagerConfig{ThrottleDurationMs: 10_000}, nil, zerolog.Nop())
	go m.Run()

	base := time.Now().UnixMilli()
	m.RecordAlert(&Alert{SourceIP: "1.2.3.4", Reason: "r", TimestampMs: base})
	m.RecordAlert(&Alert{SourceIP: "1.2.3.4", Reason: "r", TimestampMs: base + 1000})
	m.Shutdown()

	total, throttled := m.Stats()
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if throttled != 1 {
		t.Fatalf("throttled = %d, want 1", throttled)
	}
}

func TestThrottleAllowsAfterWindowExpires(t *testing.T) {
	m := NewManager(ManagerConfig{ThrottleDurationMs: 1000}, nil, zerolog.Nop())
	go m.Run()

	base := time.Now().UnixMilli()
	m.RecordAlert(&Alert{SourceIP: "1.2.3.4", Reason: "r", TimestampMs: base})
	m.RecordAlert(&Alert{SourceIP: "1.2.3.4", Reason: "r", TimestampMs: base + 5000})
	m.Shutdown()

	_, throttled := m.Stats()
	if throttled != 0 {
		t.Fatalf("throttled = %d, want 0 once the window has expired", throttled)
	}
}

func TestRecentAlertsOrderedNewestFirst(t *testing.T) {
	m := NewManager(ManagerConfig{RecentAlertsCapacity: 2}, nil, zerolog.Nop())
	go m.Run()

	m.RecordAlert(&Alert{SourceIP: "1.1.1.1", Reason: "a"})
	m.RecordAlert(&Alert{SourceIP: "2.2.2.2", Reason: "b"})
	m.RecordAlert(&Alert{SourceIP: "3.3.3.3", Reason: "c"})
	m.Shutdown()

	recent := m.RecentAlerts(10)
	if len(recent) != 2 {
		t.Fatalf("len(recent) = %d, want 2 (capacity)", len(recent))
	}
	if recent[0].SourceIP != "3.3.3.3" {
		t.Errorf("recent[0].SourceIP = %q, want newest alert first", recent[0].SourceIP)
	}
}
