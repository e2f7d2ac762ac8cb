package rules

import (
	"testing"

	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/crlsmrls/logsentry/internal/event"
	"github.com/crlsmrls/logsentry/internal/logrecord"
)

func testTier2Config() Tier2Config {
	return Tier2Config{MinSamplesForZScore: 30, ZScoreThreshold: 3.5}
}

func TestTier2FiresOnBytesZScore(t *testing.T) {
	tier2 := NewTier2(testTier2Config())
	ev := &event.AnalyzedEvent{
		Record: &logrecord.Record{ClientIP: "3.3.3.3", TimestampMs: 1000},
		Z: event.ZScores{
			BytesIP:   42.0,
			BytesIPOK: true,
		},
	}

	a := tier2.Evaluate(ev)
	if a == nil {
		t.Fatal("expected an alert")
	}
	if a.Tier != alert.TierStatistical {
		t.Errorf("Tier = %v, want TierStatistical", a.Tier)
	}
	if a.Action != alert.Log {
		t.Errorf("Action = %v, want Log", a.Action)
	}
	if a.Score <= 0 || a.Score > 1 {
		t.Errorf("Score = %f, want in (0, 1]", a.Score)
	}
}

func TestTier2BelowThresholdReturnsNil(t *testing.T) {
	tier2 := NewTier2(testTier2Config())
	ev := &event.AnalyzedEvent{
		Record: &logrecord.Record{ClientIP: "3.3.3.3"},
		Z: event.ZScores{
			BytesIP:   1.0,
			BytesIPOK: true,
		},
	}
	if a := tier2.Evaluate(ev); a != nil {
		t.Errorf("expected nil, got %+v", a)
	}
}

func TestTier2CitesHighestMagnitudeFeature(t *testing.T) {
	tier2 := NewTier2(testTier2Config())
	ev := &event.AnalyzedEvent{
		Record: &logrecord.Record{ClientIP: "3.3.3.3"},
		Z: event.ZScores{
			DurationIP:   4.0,
			DurationIPOK: true,
			BytesIP:      9.0,
			BytesIPOK:    true,
		},
	}
	a := tier2.Evaluate(ev)
	if a == nil {
		t.Fatal("expected an alert")
	}
	if a.OffendingKey != "z_score" {
		t.Errorf("OffendingKey = %q, want z_score", a.OffendingKey)
	}
	if !contains(a.Reason, "bytes sent") {
		t.Errorf("Reason = %q, want it to cite bytes sent (higher magnitude)", a.Reason)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
