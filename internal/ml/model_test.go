package ml

import (
	"testing"

	"github.com/crlsmrls/logsentry/internal/alert"
)

func TestStubModelScoresNearZeroVectorHigh(t *testing.T) {
	m := StubModel("stub")
	var zeros [32]float64
	if got := m.Score(zeros); got < 0.9 {
		t.Errorf("Score(zeros) = %f, want close to 1 (normal)", got)
	}
}

func TestStubModelScoresSpreadVectorLower(t *testing.T) {
	m := StubModel("stub")
	var zeros, extreme [32]float64
	for i := range extreme {
		extreme[i] = 1.0
	}
	if m.Score(extreme) >= m.Score(zeros) {
		t.Error("expected a spread-out vector to score lower than an all-zero vector")
	}
}

func TestModelManagerScoreFiresAboveThreshold(t *testing.T) {
	fm := NewFeatureManager(nil, FeatureManagerConfig{})
	mgr := NewModelManager(ModelManagerConfig{ScoreThreshold: 0.01}, fm, StubModel("stub"))

	ev := testEvent()
	// Push the event's raw features far from zero so the stub model's
	// raw score drops well below 0.5, crossing the low threshold.
	ev.Record.BytesSent = 999999999
	ev.Record.DurationSeconds = 99999

	a, ok := mgr.Score(ev)
	if !ok {
		t.Fatal("expected an alert above threshold")
	}
	if a.Tier != alert.TierML {
		t.Errorf("Tier = %v, want TierML", a.Tier)
	}
}

func TestModelManagerDisabledNeverFires(t *testing.T) {
	fm := NewFeatureManager(nil, FeatureManagerConfig{})
	mgr := NewModelManager(ModelManagerConfig{ScoreThreshold: -1}, fm, StubModel("stub"))
	mgr.Disable()

	_, ok := mgr.Score(testEvent())
	if ok {
		t.Error("expected Score to never fire once disabled")
	}
}

func TestLoadModelRespectsPoolCap(t *testing.T) {
	fm := NewFeatureManager(nil, FeatureManagerConfig{})
	mgr := NewModelManager(ModelManagerConfig{}, fm, StubModel("a"))

	for i := 0; i < 3; i++ {
		if err := mgr.LoadModel(StubModel("extra")); err != nil {
			t.Fatalf("LoadModel %d: %v", i, err)
		}
	}
	if err := mgr.LoadModel(StubModel("overflow")); err == nil {
		t.Error("expected an error once the pool is full")
	}
}

func TestSwapActivatesNewSlot(t *testing.T) {
	fm := NewFeatureManager(nil, FeatureManagerConfig{})
	mgr := NewModelManager(ModelManagerConfig{}, fm, StubModel("a"))
	if err := mgr.LoadModel(StubModel("b")); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if err := mgr.Swap(1); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if err := mgr.Swap(5); err == nil {
		t.Error("expected an out-of-range swap to fail")
	}
}
