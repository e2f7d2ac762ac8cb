package ml

import (
	"testing"
	"time"

	"github.com/crlsmrls/logsentry/internal/event"
	"github.com/crlsmrls/logsentry/internal/logrecord"
)

func testEvent() *event.AnalyzedEvent {
	return &event.AnalyzedEvent{
		Record: &logrecord.Record{
			ClientIP:        "1.2.3.4",
			Path:            "/a/b?x=1",
			Status:          200,
			BytesSent:       512,
			DurationSeconds: 0.2,
			TimestampMs:     1000,
		},
		Windows: event.WindowCounters{RequestsInWindow: 3},
	}
}

func TestBuildProducesFixedSizeVector(t *testing.T) {
	fm := NewFeatureManager(nil, FeatureManagerConfig{})
	v := fm.Build(testEvent())
	if len(v) != event.FeatureVectorSize {
		t.Fatalf("len(v) = %d, want %d", len(v), event.FeatureVectorSize)
	}
}

func TestBuildValuesAreBoundedByTanh(t *testing.T) {
	fm := NewFeatureManager(nil, FeatureManagerConfig{})
	v := fm.Build(testEvent())
	for i, x := range v {
		if x < -1 || x > 1 {
			t.Errorf("v[%d] = %f, want in [-1, 1] after tanh squashing", i, x)
		}
	}
}

func TestBuildCachesWithinTTL(t *testing.T) {
	fm := NewFeatureManager(nil, FeatureManagerConfig{CacheTTL: time.Minute})
	ev := testEvent()

	fm.Build(ev)
	fm.Build(ev)

	if fm.CacheHitRate() <= 0 {
		t.Errorf("CacheHitRate = %f, want > 0 after repeated build on identical event", fm.CacheHitRate())
	}
}

func TestQuantizeDequantizeRoundTripsApproximately(t *testing.T) {
	var features [event.FeatureVectorSize]float64
	features[0] = 0.5
	features[1] = -0.75

	q := quantize(features)
	back := dequantize(q)

	if diff := back[0] - features[0]; diff > 0.01 || diff < -0.01 {
		t.Errorf("round-trip[0] = %f, want close to %f", back[0], features[0])
	}
	if diff := back[1] - features[1]; diff > 0.01 || diff < -0.01 {
		t.Errorf("round-trip[1] = %f, want close to %f", back[1], features[1])
	}
}

func TestHandleMemoryPressureClearsCache(t *testing.T) {
	fm := NewFeatureManager(nil, FeatureManagerConfig{CacheTTL: time.Minute})
	ev := testEvent()
	fm.Build(ev)
	fm.HandleMemoryPressure()
	fm.Build(ev)

	if fm.CacheHitRate() != 0 {
		t.Errorf("CacheHitRate = %f, want 0 immediately after a pressure-triggered cache clear", fm.CacheHitRate())
	}
}
