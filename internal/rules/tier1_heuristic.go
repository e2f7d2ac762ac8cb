package rules

import (
	"fmt"

	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/crlsmrls/logsentry/internal/event"
)

// Tier1 evaluates the heuristic rule set against one AnalyzedEvent and
// emits at most one alert: the highest-scoring matching rule determines
// the action mapping.
type Tier1 struct {
	cfg Tier1Config
}

// NewTier1 constructs a heuristic rule evaluator from cfg.
func NewTier1(cfg Tier1Config) *Tier1 {
	return &Tier1{cfg: cfg}
}

// Evaluate returns the single highest-scoring Tier 1 alert for ev, or
// nil if no rule matched.
func (t *Tier1) Evaluate(ev *event.AnalyzedEvent) *alert.Alert {
	var candidates []scoredRule

	if ev.Windows.RequestsInWindow >= t.cfg.MaxRequestsPerIPInWindow {
		candidates = append(candidates, scoredRule{
			score:  t.cfg.ScoreRateExceeded,
			reason: fmt.Sprintf("rate exceeded: %d requests in window", ev.Windows.RequestsInWindow),
			key:    "rate",
		})
	}

	if ev.Windows.FailedLoginsInWindow >= t.cfg.MaxFailedLoginsPerIP {
		candidates = append(candidates, scoredRule{
			score:  100, // failed-login flood always maps to RATE_LIMIT or above
			reason: fmt.Sprintf("failed logins exceeded: %d in window", ev.Windows.FailedLoginsInWindow),
			key:    "failed_logins",
		})
	}

	if uaScore, reason, ok := t.uaRule(ev); ok {
		candidates = append(candidates, scoredRule{score: uaScore, reason: reason, key: "user_agent"})
	}

	if ev.SensitivePathFound {
		score := t.cfg.ScoreSensitivePath
		reason := "sensitive path accessed"
		if ev.IsNewIP {
			score = t.cfg.ScoreSensitivePathNewIP
			reason = "sensitive path accessed by new IP"
		}
		candidates = append(candidates, scoredRule{score: score, reason: reason, key: "sensitive_path"})
	}
	if ev.SuspiciousPathFound {
		candidates = append(candidates, scoredRule{
			score:  t.cfg.ScoreSuspiciousPath,
			reason: "suspicious path pattern matched",
			key:    "suspicious_path",
		})
	}

	if t.cfg.MinHTMLRequestsForRatioCheck > 0 && ev.Windows.HTMLRequestsInWindow >= t.cfg.MinHTMLRequestsForRatioCheck {
		ratio := float64(ev.Windows.AssetRequestsInWindow) / float64(ev.Windows.HTMLRequestsInWindow)
		if ratio < t.cfg.MinAssetsPerHTMLRatio {
			candidates = append(candidates, scoredRule{
				score:  t.cfg.ScoreScraperRatio,
				reason: fmt.Sprintf("low asset/html ratio %.2f (scraper heuristic)", ratio),
				key:    "scraper_ratio",
			})
		}
	}

	if t.cfg.SessionTrackingEnabled && ev.Session.Enabled {
		candidates = append(candidates, t.sessionRules(ev)...)
	}

	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}
	best.score = clampScore(best.score)

	return &alert.Alert{
		Event:        ev,
		TimestampMs:  ev.Record.TimestampMs,
		SourceIP:     ev.Record.ClientIP,
		Reason:       best.reason,
		Tier:         alert.TierHeuristic,
		Action:       alert.ActionForScore(best.score),
		Score:        best.score / 100,
		OffendingKey: best.key,
		LogLine:      ev.Record.LineNumber,
	}
}

func (t *Tier1) uaRule(ev *event.AnalyzedEvent) (float64, string, bool) {
	switch ev.UserAgentClass {
	case event.UAMissing:
		return t.cfg.ScoreMissingUA, uaClassReason(ev.UserAgentClass), true
	case event.UAKnownBad:
		return t.cfg.ScoreKnownBadUA, uaClassReason(ev.UserAgentClass), true
	case event.UAHeadless:
		return t.cfg.ScoreHeadlessBrowser, uaClassReason(ev.UserAgentClass), true
	case event.UAOutdated:
		return t.cfg.ScoreOutdatedBrowser, uaClassReason(ev.UserAgentClass), true
	case event.UACycled:
		return t.cfg.ScoreUACycling, uaClassReason(ev.UserAgentClass), true
	default:
		return 0, "", false
	}
}

func (t *Tier1) sessionRules(ev *event.AnalyzedEvent) []scoredRule {
	var out []scoredRule
	s := ev.Session

	if t.cfg.MaxFailedLoginsPerSession > 0 && int(s.FailedLoginCount) >= t.cfg.MaxFailedLoginsPerSession {
		out = append(out, scoredRule{
			score:  t.cfg.ScoreSessionFailedLogins,
			reason: fmt.Sprintf("session failed logins exceeded: %d", s.FailedLoginCount),
			key:    "session_failed_logins",
		})
	}
	if t.cfg.MaxRequestsPerSession > 0 && s.RequestCount >= t.cfg.MaxRequestsPerSession {
		out = append(out, scoredRule{
			score:  t.cfg.ScoreSessionRequestVolume,
			reason: fmt.Sprintf("session request volume exceeded: %d", s.RequestCount),
			key:    "session_requests",
		})
	}
	if t.cfg.MaxUAChangesPerSession > 0 && int(s.UniqueUACount) >= t.cfg.MaxUAChangesPerSession {
		out = append(out, scoredRule{
			score:  t.cfg.ScoreSessionUAChanges,
			reason: fmt.Sprintf("session UA changes exceeded: %d distinct user agents", s.UniqueUACount),
			key:    "session_ua_changes",
		})
	}
	return out
}
