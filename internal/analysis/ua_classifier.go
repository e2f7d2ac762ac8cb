// Package analysis implements the per-record enrichment pipeline:
// classifying user agents and paths, updating per-IP/path/session
// state, and producing the AnalyzedEvent the rule engine consumes.
// Grounded on original_source/src/analysis/optimized_analysis_engine.hpp.
package analysis

import (
	"strconv"
	"strings"

	"github.com/crlsmrls/logsentry/internal/event"
)

// UAClassifierConfig carries the substring lists and version floors
// Tier 1's user-agent scoring needs (spec.md §4.4).
type UAClassifierConfig struct {
	KnownBadSubstrings     []string
	HeadlessSubstrings     []string
	ChromeMinMajorVersion  int
	FirefoxMinMajorVersion int
}

// UAClassifier classifies a single user-agent string. It holds no
// per-IP state; UA cycling (distinct-UA-count-in-window) is evaluated
// by the caller against the IP's window, not here.
type UAClassifier struct {
	cfg UAClassifierConfig
}

// NewUAClassifier constructs a classifier from cfg.
func NewUAClassifier(cfg UAClassifierConfig) *UAClassifier {
	return &UAClassifier{cfg: cfg}
}

// Classify returns the UAClass for a single request's user agent.
// Precedence mirrors the original's ordering: missing first, then
// known-bad, then headless, then outdated-browser, else normal. UA
// cycling is classified separately by the caller since it needs
// window state this function doesn't have.
func (c *UAClassifier) Classify(userAgent string) event.UAClass {
	if strings.TrimSpace(userAgent) == "" {
		return event.UAMissing
	}
	lower := strings.ToLower(userAgent)

	for _, s := range c.cfg.KnownBadSubstrings {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return event.UAKnownBad
		}
	}
	for _, s := range c.cfg.HeadlessSubstrings {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return event.UAHeadless
		}
	}
	if c.isOutdatedBrowser(userAgent) {
		return event.UAOutdated
	}
	return event.UANormal
}

func (c *UAClassifier) isOutdatedBrowser(userAgent string) bool {
	if major, ok := browserMajorVersion(userAgent, "Chrome/"); ok {
		if major < c.cfg.ChromeMinMajorVersion {
			return true
		}
	}
	if major, ok := browserMajorVersion(userAgent, "Firefox/"); ok {
		if major < c.cfg.FirefoxMinMajorVersion {
			return true
		}
	}
	return false
}

// browserMajorVersion extracts the integer major version following
// marker (e.g. "Chrome/119.0.0.0" -> 119).
func browserMajorVersion(userAgent, marker string) (int, bool) {
	idx := strings.Index(userAgent, marker)
	if idx < 0 {
		return 0, false
	}
	rest := userAgent[idx+len(marker):]
	end := strings.IndexAny(rest, ".  ")
	if end < 0 {
		end = len(rest)
	}
	major, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return major, true
}
