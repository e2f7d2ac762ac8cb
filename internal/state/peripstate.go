package state

import (
	"github.com/crlsmrls/logsentry/internal/util/bloom"
	"github.com/crlsmrls/logsentry/internal/util/slidingwindow"
	"github.com/crlsmrls/logsentry/internal/util/stats"
)

// Threat flags bit-packed into PerIPState.ThreatFlags, mirroring the
// original's set_threat_flag/has_threat_flag bitmask.
const (
	ThreatFlagRateExceeded    uint8 = 1 << 0
	ThreatFlagSuspiciousPath  uint8 = 1 << 1
	ThreatFlagSensitivePath   uint8 = 1 << 2
	ThreatFlagSuspiciousUA    uint8 = 1 << 3
	ThreatFlagUACycling       uint8 = 1 << 4
	ThreatFlagKnownBad        uint8 = 1 << 5
)

// PerIPStateConfig mirrors the sizing knobs of the original
// OptimizedPerIPState::Config.
type PerIPStateConfig struct {
	MaxWindowElements       int
	DefaultWindowDurationMs int64
	BloomExpectedElements   uint64
	BloomFalsePositiveRate  float64
	ExactReservoirCap       int
}

// PerIPState is the per-source-IP accumulator updated on every event
// from that IP.
type PerIPState struct {
	cfg PerIPStateConfig

	RequestTimestamps     *slidingwindow.Window[struct{}]
	FailedLoginTimestamps *slidingwindow.Window[struct{}]
	HTMLTimestamps        *slidingwindow.Window[struct{}]
	AssetTimestamps       *slidingwindow.Window[struct{}]

	PathsSeen      *bloom.Filter
	UserAgentsSeen *bloom.Filter
	PathsExact     *ExactReservoir
	UserAgentsExact *ExactReservoir

	DurationStats  *stats.Tracker
	BytesStats     *stats.Tracker
	ErrorRateStats *stats.Tracker
	VolumeStats    *stats.Tracker

	RequestCount int64
	ErrorCount   int64

	FirstSeenMs int64
	LastSeenMs  int64

	ThreatFlags     uint8
	ActivityPattern [3]uint8 // 24 hourly bits, packed 8 per byte
}

// NewPerIPState constructs a fresh state at the given timestamp, the
// shape get_or_create and hibernation-resurrection both need.
func NewPerIPState(cfg PerIPStateConfig, nowMs int64) *PerIPState {
	return &PerIPState{
		cfg:                   cfg,
		RequestTimestamps:     slidingwindow.New[struct{}](cfg.DefaultWindowDurationMs, cfg.MaxWindowElements),
		FailedLoginTimestamps: slidingwindow.New[struct{}](cfg.DefaultWindowDurationMs, cfg.MaxWindowElements),
		HTMLTimestamps:        slidingwindow.New[struct{}](cfg.DefaultWindowDurationMs, cfg.MaxWindowElements),
		AssetTimestamps:       slidingwindow.New[struct{}](cfg.DefaultWindowDurationMs, cfg.MaxWindowElements),
		PathsSeen:             bloom.New(cfg.BloomExpectedElements, cfg.BloomFalsePositiveRate),
		UserAgentsSeen:        bloom.New(cfg.BloomExpectedElements, cfg.BloomFalsePositiveRate),
		PathsExact:            NewExactReservoir(cfg.ExactReservoirCap),
		UserAgentsExact:       NewExactReservoir(cfg.ExactReservoirCap),
		DurationStats:         &stats.Tracker{},
		BytesStats:            &stats.Tracker{},
		ErrorRateStats:        &stats.Tracker{},
		VolumeStats:           &stats.Tracker{},
		FirstSeenMs:           nowMs,
		LastSeenMs:            nowMs,
	}
}

func (s *PerIPState) AddRequestTimestamp(nowMs int64)     { s.RequestTimestamps.Add(nowMs, struct{}{}) }
func (s *PerIPState) AddFailedLoginTimestamp(nowMs int64) { s.FailedLoginTimestamps.Add(nowMs, struct{}{}) }
func (s *PerIPState) AddHTMLTimestamp(nowMs int64)        { s.HTMLTimestamps.Add(nowMs, struct{}{}) }
func (s *PerIPState) AddAssetTimestamp(nowMs int64)       { s.AssetTimestamps.Add(nowMs, struct{}{}) }

func (s *PerIPState) AddPath(path string) {
	s.PathsSeen.Add([]byte(path))
	s.PathsExact.Add(path)
}
func (s *PerIPState) AddUserAgent(ua string) {
	s.UserAgentsSeen.Add([]byte(ua))
	s.UserAgentsExact.Add(ua)
}

// HasSeenPath reports whether path has been seen, consulting the exact
// reservoir first (precise for anything still resident) and falling
// back to the bloom filter once an entry has aged out of it.
func (s *PerIPState) HasSeenPath(path string) bool {
	return s.PathsExact.Contains(path) || s.PathsSeen.Contains([]byte(path))
}

// HasSeenUserAgent reports whether ua has been seen, per the same
// exact-then-approximate precedence as HasSeenPath.
func (s *PerIPState) HasSeenUserAgent(ua string) bool {
	return s.UserAgentsExact.Contains(ua) || s.UserAgentsSeen.Contains([]byte(ua))
}

// UpdateRequestStats folds one observation into the duration/bytes
// trackers and the running request/error counters.
func (s *PerIPState) UpdateRequestStats(durationSeconds float64, bytesSent int64, isError bool) {
	s.DurationStats.Observe(durationSeconds)
	s.BytesStats.Observe(float64(bytesSent))
	s.RequestCount++
	errorIndicator := 0.0
	if isError {
		s.ErrorCount++
		errorIndicator = 1.0
	}
	s.ErrorRateStats.Observe(errorIndicator)
	s.VolumeStats.Observe(float64(s.RequestTimestamps.Count()))
}

// ErrorRate returns the fraction of observed requests that were
// errors, or 0 if none have been observed yet.
func (s *PerIPState) ErrorRate() float64 {
	if s.RequestCount == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.RequestCount)
}

func (s *PerIPState) SetThreatFlag(flag uint8)         { s.ThreatFlags |= flag }
func (s *PerIPState) ClearThreatFlag(flag uint8)       { s.ThreatFlags &^= flag }
func (s *PerIPState) HasThreatFlag(flag uint8) bool    { return s.ThreatFlags&flag != 0 }

// SetActivityPattern records whether the given UTC hour-of-day (0-23)
// was active.
func (s *PerIPState) SetActivityPattern(hour int, active bool) {
	if hour < 0 || hour >= 24 {
		return
	}
	bit := uint8(1) << uint(hour%8)
	if active {
		s.ActivityPattern[hour/8] |= bit
	} else {
		s.ActivityPattern[hour/8] &^= bit
	}
}

// MemoryUsage estimates bytes held by this state, used by the memory
// manager's eviction scoring.
func (s *PerIPState) MemoryUsage() int64 {
	usage := int64(0)
	usage += int64(s.RequestTimestamps.Count()+s.FailedLoginTimestamps.Count()+s.HTMLTimestamps.Count()+s.AssetTimestamps.Count()) * 6
	usage += int64(s.PathsSeen.MemoryUsage())
	usage += int64(s.UserAgentsSeen.MemoryUsage())
	usage += s.PathsExact.MemoryUsage()
	usage += s.UserAgentsExact.MemoryUsage()
	usage += 128 // fixed overhead for stats trackers and scalar fields
	return usage
}
