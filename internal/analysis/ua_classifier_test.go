package analysis

import (
	"testing"

	"github.com/crlsmrls/logsentry/internal/event"
)

func testUAClassifier() *UAClassifier {
	return NewUAClassifier(UAClassifierConfig{
		KnownBadSubstrings:     []string{"sqlmap", "nikto"},
		HeadlessSubstrings:     []string{"headlesschrome", "phantomjs"},
		ChromeMinMajorVersion:  90,
		FirefoxMinMajorVersion: 85,
	})
}

func TestClassifyMissing(t *testing.T) {
	c := testUAClassifier()
	if got := c.Classify(""); got != event.UAMissing {
		t.Errorf("Classify(\"\") = %v, want UAMissing", got)
	}
}

func TestClassifyKnownBad(t *testing.T) {
	c := testUAClassifier()
	if got := c.Classify("sqlmap/1.6"); got != event.UAKnownBad {
		t.Errorf("Classify(sqlmap) = %v, want UAKnownBad", got)
	}
}

func TestClassifyHeadless(t *testing.T) {
	c := testUAClassifier()
	if got := c.Classify("Mozilla/5.0 HeadlessChrome/100.0"); got != event.UAHeadless {
		t.Errorf("Classify(headless) = %v, want UAHeadless", got)
	}
}

func TestClassifyOutdatedChrome(t *testing.T) {
	c := testUAClassifier()
	ua := "Mozilla/5.0 (Windows NT 10.0) Chrome/70.0.3538.77 Safari/537.36"
	if got := c.Classify(ua); got != event.UAOutdated {
		t.Errorf("Classify(old chrome) = %v, want UAOutdated", got)
	}
}

func TestClassifyCurrentChromeIsNormal(t *testing.T) {
	c := testUAClassifier()
	ua := "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0.6099.109 Safari/537.36"
	if got := c.Classify(ua); got != event.UANormal {
		t.Errorf("Classify(current chrome) = %v, want UANormal", got)
	}
}
