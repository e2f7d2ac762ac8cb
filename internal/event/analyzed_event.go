// Package event defines AnalyzedEvent, the per-record enrichment produced
// by the analysis engine and consumed by the rule engine.
package event

import "github.com/crlsmrls/logsentry/internal/logrecord"

// FeatureVectorSize is the fixed number of ML feature slots; shorter
// vectors are zero-padded, longer ones truncated.
const FeatureVectorSize = 32

// UAClass classifies a request's user agent.
type UAClass int

const (
	UANormal UAClass = iota
	UAMissing
	UAKnownBad
	UAHeadless
	UAOutdated
	UACycled
)

// WindowCounters carries the sliding-window counts computed during
// enrichment.
type WindowCounters struct {
	RequestsInWindow     int
	FailedLoginsInWindow int
	HTMLRequestsInWindow int
	AssetRequestsInWindow int
}

// ZScores carries z-scores of the record against per-IP and per-path
// historical means/stddevs. A field is left at (0, false) when the
// underlying tracker had fewer than the configured minimum samples.
type ZScores struct {
	DurationIP, DurationPath     float64
	DurationIPOK, DurationPathOK bool

	BytesIP, BytesPath     float64
	BytesIPOK, BytesPathOK bool

	ErrorRateIP, ErrorRatePath     float64
	ErrorRateIPOK, ErrorRatePathOK bool

	VolumeIP, VolumePath     float64
	VolumeIPOK, VolumePathOK bool
}

// SessionFeatures is a snapshot of session-derived features, populated
// only when session tracking is enabled.
type SessionFeatures struct {
	Enabled             bool
	RequestCount        uint64
	FailedLoginCount    uint16
	Status4xxCount      uint16
	Status5xxCount      uint16
	UniqueUACount       uint8
	UniquePathCount     int
	MostRecentMethod    string
}

// AnalyzedEvent is a LogRecord plus derived features, produced once per
// record and consumed by the rule engine. It is kept alive only through
// the alerts it originates (see logrecord.Record's lifecycle doc).
type AnalyzedEvent struct {
	Record *logrecord.Record

	Windows WindowCounters
	Z       ZScores

	IsNewIP   bool
	IsNewPath bool // first time this path is seen for this IP

	UserAgentClass UAClass

	SuspiciousPathFound bool
	SensitivePathFound  bool
	SuspiciousUAFound   bool

	Session SessionFeatures

	// FeatureVector is the ordered, normalized feature vector handed to
	// the Tier 3 ML scorer.
	FeatureVector [FeatureVectorSize]float64
}
