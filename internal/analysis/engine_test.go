package analysis

import (
	"testing"

	"github.com/crlsmrls/logsentry/internal/event"
	"github.com/crlsmrls/logsentry/internal/logrecord"
	"github.com/crlsmrls/logsentry/internal/state"
)

func testEngine() *Engine {
	store := state.NewStore(state.StoreConfig{
		IPState: state.PerIPStateConfig{
			MaxWindowElements:       200,
			DefaultWindowDurationMs: 60_000,
			BloomExpectedElements:   1000,
			BloomFalsePositiveRate:  0.01,
		},
		PathState: state.PerPathStateConfig{
			MaxWindowElements:       200,
			DefaultWindowDurationMs: 60_000,
		},
		SessionState: state.PerSessionStateConfig{
			BloomExpectedElements:  1000,
			BloomFalsePositiveRate: 0.01,
		},
		InitialIPCapacity:      16,
		InitialPathCapacity:    16,
		InitialSessionCapacity: 16,
		SessionInactivityTTLMs: 1_800_000,
	})

	cfg := Config{
		FailedLoginStatusCodes:   []int{401, 403},
		MaxUniqueUAsPerIPInWindow: 5,
		SuspiciousPathSubstrings: []string{"../", "<script"},
		SensitivePathSubstrings:  []string{"/admin"},
		UAClassifier: UAClassifierConfig{
			KnownBadSubstrings:     []string{"sqlmap"},
			HeadlessSubstrings:     []string{"headlesschrome"},
			ChromeMinMajorVersion:  90,
			FirefoxMinMajorVersion: 85,
		},
		PathClassifier: PathClassifierConfig{
			HTMLExactPaths:    []string{"/"},
			HTMLPathSuffixes:  []string{".html"},
			AssetPathPrefixes: []string{"/static/"},
			AssetPathSuffixes: []string{".css", ".js"},
		},
		SessionTrackingEnabled: true,
		SessionKeyFields:       []string{"ip", "ua"},
		MinSamplesForZScore:    5,
	}
	return NewEngine(cfg, store)
}

func TestProcessMarksFirstSightingAsNew(t *testing.T) {
	e := testEngine()
	r := &logrecord.Record{ClientIP: "1.2.3.4", Method: "GET", Path: "/", Status: 200, TimestampMs: 1000}

	ev := e.Process(r)
	if !ev.IsNewIP {
		t.Error("expected IsNewIP on first request")
	}
	if !ev.IsNewPath {
		t.Error("expected IsNewPath on first request")
	}

	ev2 := e.Process(r)
	if ev2.IsNewIP {
		t.Error("expected IsNewIP false on second request from same IP")
	}
	if ev2.IsNewPath {
		t.Error("expected IsNewPath false for repeated path")
	}
}

func TestProcessCountsRequestsInWindow(t *testing.T) {
	e := testEngine()
	r := &logrecord.Record{ClientIP: "9.9.9.9", Method: "GET", Path: "/a", Status: 200, TimestampMs: 1000}
	e.Process(r)
	r.TimestampMs = 2000
	ev := e.Process(r)

	if ev.Windows.RequestsInWindow != 2 {
		t.Errorf("RequestsInWindow = %d, want 2", ev.Windows.RequestsInWindow)
	}
}

func TestProcessFlagsSensitivePathOnNewIP(t *testing.T) {
	e := testEngine()
	r := &logrecord.Record{ClientIP: "5.5.5.5", Method: "GET", Path: "/admin/config", Status: 200, TimestampMs: 1000}
	ev := e.Process(r)

	if !ev.SensitivePathFound {
		t.Error("expected SensitivePathFound for /admin/config")
	}
	if !ev.IsNewIP {
		t.Error("expected IsNewIP true on first sighting")
	}
}

func TestProcessClassifiesMissingUA(t *testing.T) {
	e := testEngine()
	r := &logrecord.Record{ClientIP: "7.7.7.7", Method: "GET", Path: "/", Status: 200, TimestampMs: 1000, UserAgent: ""}
	ev := e.Process(r)
	if ev.UserAgentClass != event.UAMissing {
		t.Errorf("UserAgentClass = %v, want UAMissing", ev.UserAgentClass)
	}
}

func TestProcessComputesBytesZScoreAfterWarmup(t *testing.T) {
	e := testEngine()
	r := &logrecord.Record{ClientIP: "8.8.8.8", Method: "GET", Path: "/p", Status: 200, BytesSent: 1000, TimestampMs: 0}
	for i := 0; i < 30; i++ {
		r.TimestampMs = int64(i) * 1000
		r.BytesSent = 1000 + int64(i%3) - 1 // 999..1001
		e.Process(r)
	}
	r.TimestampMs = 30000
	r.BytesSent = 1_000_000
	ev := e.Process(r)

	if !ev.Z.BytesIPOK {
		t.Fatal("expected BytesIPOK after warmup")
	}
	if ev.Z.BytesIP < 3.5 {
		t.Errorf("BytesIP z-score = %f, want > 3.5", ev.Z.BytesIP)
	}
}
