package state

import "testing"

func testStoreConfig() StoreConfig {
	return StoreConfig{
		IPState: PerIPStateConfig{
			MaxWindowElements:       200,
			DefaultWindowDurationMs: 60_000,
			BloomExpectedElements:   1000,
			BloomFalsePositiveRate:  0.01,
		},
		PathState: PerPathStateConfig{
			MaxWindowElements:       200,
			DefaultWindowDurationMs: 60_000,
		},
		SessionState: PerSessionStateConfig{
			BloomExpectedElements:  1000,
			BloomFalsePositiveRate: 0.01,
		},
		InitialIPCapacity:      16,
		InitialPathCapacity:    16,
		InitialSessionCapacity: 16,
		SessionInactivityTTLMs: 1_800_000,
	}
}

func TestIPKeyParsesIPv4(t *testing.T) {
	a := IPKey("1.2.3.4")
	b := IPKey("1.2.3.4")
	if a != b {
		t.Fatal("IPKey must be deterministic")
	}
	if IPKey("1.2.3.5") == a {
		t.Fatal("different IPs must hash differently (at least for this case)")
	}
	want := uint32(1)<<24 | uint32(2)<<16 | uint32(3)<<8 | uint32(4)
	if a != want {
		t.Errorf("IPKey(1.2.3.4) = %d, want %d", a, want)
	}
}

func TestSessionKeyOrdersByFields(t *testing.T) {
	values := map[string]string{"ip": "1.2.3.4", "ua": "curl/8.0"}
	k1 := SessionKey([]string{"ip", "ua"}, values)
	k2 := SessionKey([]string{"ua", "ip"}, values)
	if k1 == k2 {
		t.Error("field order should change the composed key")
	}
}

func TestStoreGetOrCreateIPState(t *testing.T) {
	store := NewStore(testStoreConfig())
	key := uint64(IPKey("9.9.9.9"))

	st := store.IPs.GetOrCreate(key, 1000)
	st.AddRequestTimestamp(1000)
	st.RequestCount++

	again, ok := store.IPs.Find(key, 2000)
	if !ok {
		t.Fatal("expected to find previously created IP state")
	}
	if again.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1", again.RequestCount)
	}
}

func TestStoreTickEvictsStaleSessions(t *testing.T) {
	cfg := testStoreConfig()
	cfg.SessionInactivityTTLMs = 1000
	store := NewStore(cfg)

	key := SessionKey([]string{"ip"}, map[string]string{"ip": "1.1.1.1"})
	sess := store.Sessions.GetOrCreate(key, 0)
	sess.RecordRequest(0, MethodGET, "/", "ua", 200, false)

	store.Tick(5000, 10_000, 10_000)

	if _, ok := store.Sessions.Find(key, 5000); ok {
		t.Fatal("expected stale session to be evicted by Tick")
	}
}

func TestTopActiveIPsOrdersByRequestCount(t *testing.T) {
	store := NewStore(testStoreConfig())

	busy := store.IPs.GetOrCreate(uint64(IPKey("1.1.1.1")), 0)
	busy.RequestCount = 50
	quiet := store.IPs.GetOrCreate(uint64(IPKey("2.2.2.2")), 0)
	quiet.RequestCount = 3

	top := store.TopActiveIPs(1)
	if len(top) != 1 || top[0].IP != "1.1.1.1" {
		t.Fatalf("TopActiveIPs(1) = %+v, want [1.1.1.1]", top)
	}
}

func TestTopErrorIPsOrdersByErrorCount(t *testing.T) {
	store := NewStore(testStoreConfig())

	clean := store.IPs.GetOrCreate(uint64(IPKey("3.3.3.3")), 0)
	clean.RequestCount = 100
	errory := store.IPs.GetOrCreate(uint64(IPKey("4.4.4.4")), 0)
	errory.RequestCount = 10
	errory.ErrorCount = 8

	top := store.TopErrorIPs(2)
	if len(top) != 2 || top[0].IP != "4.4.4.4" {
		t.Fatalf("TopErrorIPs(2) = %+v, want 4.4.4.4 first", top)
	}
}
