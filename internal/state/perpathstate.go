package state

import (
	"fmt"

	"github.com/crlsmrls/logsentry/internal/util/bloom"
	"github.com/crlsmrls/logsentry/internal/util/stats"
)

// recentResponsesCap is the fixed size of PerPathState's recent-
// responses ring (spec.md §3's "16-entry ring of recent responses").
const recentResponsesCap = 16

// Flags bit-packed into PerPathState.Flags, mirroring PerIPState's
// threat-flag bitset.
const (
	PathFlagHasAnomaly   uint8 = 1 << 0
	PathFlagHighTraffic  uint8 = 1 << 1
	PathFlagMonitored    uint8 = 1 << 2
)

// ResponseSample is one entry of PerPathState's recent-responses ring:
// a status code and the response size actually sent.
type ResponseSample struct {
	StatusCode int
	BytesSent  int64
}

// PerPathStateConfig mirrors the sizing knobs carried per-path.
type PerPathStateConfig struct {
	MaxWindowElements       int
	DefaultWindowDurationMs int64
	BloomExpectedElements   uint64
	BloomFalsePositiveRate  float64
}

// PerPathState is the per-URL-path accumulator, symmetrical to
// PerIPState but scoped by path instead of source IP (spec.md §4.2,
// grounded on optimized_per_path_state.hpp).
type PerPathState struct {
	cfg PerPathStateConfig

	DurationStats  *stats.Tracker
	BytesStats     *stats.Tracker
	ErrorRateStats *stats.Tracker
	VolumeStats    *stats.Tracker

	// MethodQueryPatterns approximates the set of distinct
	// "method:query" combinations seen against this path.
	MethodQueryPatterns *bloom.Filter

	RecentResponses *Ring[ResponseSample]

	RequestCount int64
	ErrorCount   int64

	FirstSeenMs int64
	LastSeenMs  int64

	Flags uint8
}

// NewPerPathState constructs a fresh per-path state.
func NewPerPathState(cfg PerPathStateConfig, nowMs int64) *PerPathState {
	return &PerPathState{
		cfg:                 cfg,
		DurationStats:       &stats.Tracker{},
		BytesStats:          &stats.Tracker{},
		ErrorRateStats:      &stats.Tracker{},
		VolumeStats:         &stats.Tracker{},
		MethodQueryPatterns: bloom.New(cfg.BloomExpectedElements, cfg.BloomFalsePositiveRate),
		RecentResponses:     NewRing[ResponseSample](recentResponsesCap),
		FirstSeenMs:         nowMs,
		LastSeenMs:          nowMs,
	}
}

// UpdateRequestStats folds one observation into this path's trackers.
func (s *PerPathState) UpdateRequestStats(durationSeconds float64, bytesSent int64, isError bool) {
	s.DurationStats.Observe(durationSeconds)
	s.BytesStats.Observe(float64(bytesSent))
	s.RequestCount++
	errorIndicator := 0.0
	if isError {
		s.ErrorCount++
		errorIndicator = 1.0
	}
	s.ErrorRateStats.Observe(errorIndicator)
	s.VolumeStats.Observe(float64(s.RequestCount))
}

// RecordResponse folds a response into the recent-responses ring,
// separately from UpdateRequestStats's running aggregates.
func (s *PerPathState) RecordResponse(statusCode int, bytesSent int64) {
	s.RecentResponses.Push(ResponseSample{StatusCode: statusCode, BytesSent: bytesSent})
}

// AddMethodQueryPattern records one "method:query" combination seen
// against this path.
func (s *PerPathState) AddMethodQueryPattern(method, query string) {
	s.MethodQueryPatterns.Add([]byte(fmt.Sprintf("%s:%s", method, query)))
}

// HasSeenMethodQueryPattern reports whether the given "method:query"
// combination may have been seen before (bloom-approximate).
func (s *PerPathState) HasSeenMethodQueryPattern(method, query string) bool {
	return s.MethodQueryPatterns.Contains([]byte(fmt.Sprintf("%s:%s", method, query)))
}

func (s *PerPathState) SetFlag(flag uint8)      { s.Flags |= flag }
func (s *PerPathState) ClearFlag(flag uint8)    { s.Flags &^= flag }
func (s *PerPathState) HasFlag(flag uint8) bool { return s.Flags&flag != 0 }

// ErrorRate returns the fraction of observed requests to this path
// that were errors.
func (s *PerPathState) ErrorRate() float64 {
	if s.RequestCount == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.RequestCount)
}

// MemoryUsage estimates bytes held by this state.
func (s *PerPathState) MemoryUsage() int64 {
	usage := int64(96) // four stats.Tracker values plus scalar fields
	usage += int64(s.MethodQueryPatterns.MemoryUsage())
	usage += int64(s.RecentResponses.Cap()) * 16
	return usage
}
