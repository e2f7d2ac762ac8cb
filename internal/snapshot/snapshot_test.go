package snapshot

import (
	"bytes"
	"testing"

	"github.com/crlsmrls/logsentry/internal/state"
)

func testIPCfg() state.PerIPStateConfig {
	return state.PerIPStateConfig{
		MaxWindowElements:       100,
		DefaultWindowDurationMs: 60_000,
		BloomExpectedElements:   1000,
		BloomFalsePositiveRate:  0.01,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := state.NewStore(state.StoreConfig{
		IPState:                testIPCfg(),
		PathState:              state.PerPathStateConfig{MaxWindowElements: 100, DefaultWindowDurationMs: 60_000},
		SessionState:           state.PerSessionStateConfig{BloomExpectedElements: 1000, BloomFalsePositiveRate: 0.01},
		InitialIPCapacity:      16,
		InitialPathCapacity:    16,
		InitialSessionCapacity: 16,
	})

	key := state.IPKey("203.0.113.5")
	st := store.IPs.GetOrCreate(uint64(key), 1_000)
	st.FirstSeenMs = 1_000
	st.LastSeenMs = 5_000
	st.RequestCount = 42
	st.ErrorCount = 3
	st.SetThreatFlag(state.ThreatFlagRateExceeded)
	st.SetActivityPattern(14, true)
	st.UpdateRequestStats(0.25, 1024, false)
	st.UpdateRequestStats(0.75, 2048, true)
	st.AddPath("/login")
	st.AddUserAgent("curl/8.0")

	var buf bytes.Buffer
	if err := Write(&buf, store); err != nil {
		t.Fatalf("Write: %v", err)
	}

	records, err := Read(&buf, testIPCfg())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Key != key {
		t.Errorf("key = %d, want %d", rec.Key, key)
	}
	// 42 and 3 were set directly; the two UpdateRequestStats calls
	// (one of them an error) each add to them.
	if rec.State.RequestCount != 44 {
		t.Errorf("RequestCount = %d, want 44", rec.State.RequestCount)
	}
	if rec.State.ErrorCount != 4 {
		t.Errorf("ErrorCount = %d, want 4", rec.State.ErrorCount)
	}
	if !rec.State.HasThreatFlag(state.ThreatFlagRateExceeded) {
		t.Error("expected ThreatFlagRateExceeded to survive round trip")
	}
	if rec.State.FirstSeenMs != 1_000 || rec.State.LastSeenMs != 5_000 {
		t.Errorf("first/last seen = %d/%d, want 1000/5000", rec.State.FirstSeenMs, rec.State.LastSeenMs)
	}
	if !rec.State.HasSeenPath("/login") {
		t.Error("expected bloom filter to report /login as seen")
	}
	if !rec.State.HasSeenUserAgent("curl/8.0") {
		t.Error("expected bloom filter to report curl/8.0 as seen")
	}
	if rec.State.DurationStats.Count() != 2 {
		t.Errorf("DurationStats.Count() = %d, want 2", rec.State.DurationStats.Count())
	}
	if rec.State.RequestTimestamps.Count() != 0 {
		t.Error("sliding windows must not survive a snapshot round trip")
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("not a snapshot")
	if _, err := Read(buf, testIPCfg()); err == nil {
		t.Fatal("expected an error for a non-snapshot buffer")
	}
}

func TestRestoreIntoStore(t *testing.T) {
	src := state.NewStore(state.StoreConfig{
		IPState:                testIPCfg(),
		PathState:              state.PerPathStateConfig{MaxWindowElements: 100, DefaultWindowDurationMs: 60_000},
		SessionState:           state.PerSessionStateConfig{BloomExpectedElements: 1000, BloomFalsePositiveRate: 0.01},
		InitialIPCapacity:      16,
		InitialPathCapacity:    16,
		InitialSessionCapacity: 16,
	})
	key := state.IPKey("198.51.100.7")
	st := src.IPs.GetOrCreate(uint64(key), 1_000)
	st.RequestCount = 7

	var buf bytes.Buffer
	if err := Write(&buf, src); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dst := state.NewStore(state.StoreConfig{
		IPState:                testIPCfg(),
		PathState:              state.PerPathStateConfig{MaxWindowElements: 100, DefaultWindowDurationMs: 60_000},
		SessionState:           state.PerSessionStateConfig{BloomExpectedElements: 1000, BloomFalsePositiveRate: 0.01},
		InitialIPCapacity:      16,
		InitialPathCapacity:    16,
		InitialSessionCapacity: 16,
	})
	n, err := Restore(&buf, dst, testIPCfg())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 1 {
		t.Fatalf("restored %d records, want 1", n)
	}

	found, ok := dst.IPs.Find(uint64(key), 2_000)
	if !ok {
		t.Fatal("expected restored IP to be found")
	}
	if found.RequestCount != 7 {
		t.Errorf("RequestCount = %d, want 7", found.RequestCount)
	}
}
