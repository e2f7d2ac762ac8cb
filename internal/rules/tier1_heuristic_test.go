package rules

import (
	"testing"

	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/crlsmrls/logsentry/internal/event"
	"github.com/crlsmrls/logsentry/internal/logrecord"
)

func testTier1Config() Tier1Config {
	return Tier1Config{
		MaxRequestsPerIPInWindow:     3,
		MaxFailedLoginsPerIP:         5,
		MaxUniqueUAsPerIPInWindow:    5,
		ScoreRateExceeded:            60,
		ScoreMissingUA:               15,
		ScoreOutdatedBrowser:         10,
		ScoreKnownBadUA:              90,
		ScoreHeadlessBrowser:         40,
		ScoreUACycling:               55,
		ScoreSuspiciousPath:          70,
		ScoreSensitivePath:           45,
		ScoreSensitivePathNewIP:      85,
		MinHTMLRequestsForRatioCheck: 10,
		MinAssetsPerHTMLRatio:        0.5,
		ScoreScraperRatio:            25,
	}
}

func TestTier1RateExceededMapsToRateLimitOrBlock(t *testing.T) {
	tier1 := NewTier1(testTier1Config())
	ev := &event.AnalyzedEvent{
		Record:  &logrecord.Record{ClientIP: "1.2.3.4", TimestampMs: 4000},
		Windows: event.WindowCounters{RequestsInWindow: 4},
	}

	a := tier1.Evaluate(ev)
	if a == nil {
		t.Fatal("expected an alert")
	}
	if a.Tier != alert.TierHeuristic {
		t.Errorf("Tier = %v, want TierHeuristic", a.Tier)
	}
	if a.Action != alert.RateLimit && a.Action != alert.Block {
		t.Errorf("Action = %v, want RATE_LIMIT or BLOCK", a.Action)
	}
	if a.SourceIP != "1.2.3.4" {
		t.Errorf("SourceIP = %q, want 1.2.3.4", a.SourceIP)
	}
}

func TestTier1NoMatchReturnsNil(t *testing.T) {
	tier1 := NewTier1(testTier1Config())
	ev := &event.AnalyzedEvent{
		Record:  &logrecord.Record{ClientIP: "1.2.3.4"},
		Windows: event.WindowCounters{RequestsInWindow: 1},
	}
	if a := tier1.Evaluate(ev); a != nil {
		t.Errorf("expected nil, got %+v", a)
	}
}

func TestTier1SensitivePathNewIPScoresHigherThanReturning(t *testing.T) {
	tier1 := NewTier1(testTier1Config())
	evNew := &event.AnalyzedEvent{
		Record:             &logrecord.Record{ClientIP: "1.1.1.1"},
		SensitivePathFound: true,
		IsNewIP:            true,
	}
	evReturning := &event.AnalyzedEvent{
		Record:             &logrecord.Record{ClientIP: "1.1.1.1"},
		SensitivePathFound: true,
		IsNewIP:            false,
	}

	aNew := tier1.Evaluate(evNew)
	aReturning := tier1.Evaluate(evReturning)
	if aNew == nil || aReturning == nil {
		t.Fatal("expected both to alert")
	}
	if aNew.Score <= aReturning.Score {
		t.Errorf("new-IP score %.2f should exceed returning-IP score %.2f", aNew.Score, aReturning.Score)
	}
}

func TestTier1PicksHighestScoringRule(t *testing.T) {
	tier1 := NewTier1(testTier1Config())
	ev := &event.AnalyzedEvent{
		Record:              &logrecord.Record{ClientIP: "2.2.2.2"},
		Windows:             event.WindowCounters{RequestsInWindow: 4}, // score 60
		SuspiciousPathFound: true,                                      // score 70, should win
	}
	a := tier1.Evaluate(ev)
	if a == nil {
		t.Fatal("expected an alert")
	}
	if a.OffendingKey != "suspicious_path" {
		t.Errorf("OffendingKey = %q, want suspicious_path (highest score)", a.OffendingKey)
	}
}
