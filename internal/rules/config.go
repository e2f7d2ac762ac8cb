// Package rules implements the detection cascade: a stateless dispatcher
// feeding an AnalyzedEvent through Tier 1 (heuristic), Tier 2
// (statistical) and, when a Scorer is wired, Tier 3 (ML) rules, in that
// order, accumulating alerts. Tier 4 (external correlation) is driven
// separately by internal/external and feeds the same alert.Alert shape.
// Grounded on original_source/src/analysis/optimized_analysis_engine.hpp
// and original_source/src/core/config.hpp for the rule weights.
package rules

import "github.com/crlsmrls/logsentry/internal/event"

// Tier1Config carries every score weight and threshold Tier 1 heuristic
// rules need.
type Tier1Config struct {
	MaxRequestsPerIPInWindow     int
	MaxFailedLoginsPerIP         int
	MaxUniqueUAsPerIPInWindow    int

	ScoreRateExceeded      float64
	ScoreMissingUA         float64
	ScoreOutdatedBrowser   float64
	ScoreKnownBadUA        float64
	ScoreHeadlessBrowser   float64
	ScoreUACycling         float64
	ScoreSuspiciousPath    float64
	ScoreSensitivePath     float64
	ScoreSensitivePathNewIP float64

	MinHTMLRequestsForRatioCheck int
	MinAssetsPerHTMLRatio        float64
	ScoreScraperRatio            float64

	SessionTrackingEnabled       bool
	MaxFailedLoginsPerSession    int
	MaxRequestsPerSession        uint64
	MaxUAChangesPerSession       int
	ScoreSessionFailedLogins     float64
	ScoreSessionRequestVolume    float64
	ScoreSessionUAChanges        float64
}

// Tier2Config carries the z-score threshold and minimum sample count
// Tier 2 statistical rules need.
type Tier2Config struct {
	MinSamplesForZScore int
	ZScoreThreshold      float64
}

// scoredRule is one evaluated Tier 1 rule candidate before the
// highest-scoring one is chosen.
type scoredRule struct {
	score  float64
	reason string
	key    string
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// uaClassReason renders a short human reason string for a UA class,
// used both by Tier 1 scoring and alert text.
func uaClassReason(c event.UAClass) string {
	switch c {
	case event.UAMissing:
		return "missing user agent"
	case event.UAKnownBad:
		return "known-bad user agent"
	case event.UAHeadless:
		return "headless browser user agent"
	case event.UAOutdated:
		return "outdated browser"
	case event.UACycled:
		return "user-agent cycling"
	default:
		return ""
	}
}
