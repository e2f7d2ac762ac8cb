package memory

import (
	"testing"

	"github.com/crlsmrls/logsentry/internal/state"
)

func testStoreConfig() state.StoreConfig {
	return state.StoreConfig{
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
	}
}

func TestIPTableComponentReportsUsageAndCompacts(t *testing.T) {
	store := state.NewStore(testStoreConfig())
	ip := store.IPs.GetOrCreate(uint64(state.IPKey("5.5.5.5")), 0)
	ip.AddRequestTimestamp(0)

	comp := NewIPTableComponent(store, 1000, 0)
	if comp.MemoryUsageBytes() <= 0 {
		t.Fatal("expected non-zero memory usage once an IP has state")
	}
	if !comp.CanEvict() {
		t.Fatal("table components must always report evictable")
	}

	freed := comp.Compact()
	if freed < 0 {
		t.Fatalf("Compact freed negative bytes: %d", freed)
	}
}

func TestSessionTableComponentName(t *testing.T) {
	store := state.NewStore(testStoreConfig())
	comp := NewSessionTableComponent(store, 1000, 1000)
	if comp.ComponentName() != "state.sessions" {
		t.Errorf("ComponentName() = %q, want state.sessions", comp.ComponentName())
	}
}
