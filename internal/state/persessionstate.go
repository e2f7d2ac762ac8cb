package state

import (
	"github.com/crlsmrls/logsentry/internal/util/bloom"
	"github.com/crlsmrls/logsentry/internal/util/slidingwindow"
)

// HTTPMethod enumerates the methods PerSessionState counts distinctly,
// matching the original's compact fixed-size method-count array rather
// than an open-ended map.
type HTTPMethod uint8

const (
	MethodGET HTTPMethod = iota
	MethodPOST
	MethodPUT
	MethodDELETE
	MethodHEAD
	MethodOPTIONS
	MethodPATCH
	MethodTRACE
	MethodCONNECT
	MethodUnknown
)

// ParseHTTPMethod maps a request method string to the compact enum.
func ParseHTTPMethod(method string) HTTPMethod {
	switch method {
	case "GET":
		return MethodGET
	case "POST":
		return MethodPOST
	case "PUT":
		return MethodPUT
	case "DELETE":
		return MethodDELETE
	case "HEAD":
		return MethodHEAD
	case "OPTIONS":
		return MethodOPTIONS
	case "PATCH":
		return MethodPATCH
	case "TRACE":
		return MethodTRACE
	case "CONNECT":
		return MethodCONNECT
	default:
		return MethodUnknown
	}
}

func (m HTTPMethod) String() string {
	switch m {
	case MethodGET:
		return "GET"
	case MethodPOST:
		return "POST"
	case MethodPUT:
		return "PUT"
	case MethodDELETE:
		return "DELETE"
	case MethodHEAD:
		return "HEAD"
	case MethodOPTIONS:
		return "OPTIONS"
	case MethodPATCH:
		return "PATCH"
	case MethodTRACE:
		return "TRACE"
	case MethodCONNECT:
		return "CONNECT"
	default:
		return "UNKNOWN"
	}
}

// pathHashRingCap and uaHashRingCap size the two exact-confirmation
// rings PerSessionState keeps alongside its bloom filters (spec.md §3).
const (
	pathHashRingCap    = 100
	uaHashRingCap      = 10
	requestHistoryCap  = 200
)

// RequestHistoryEntry is one entry of PerSessionState's request-history
// ring: how long after the session's first request it arrived, and
// which path it hit.
type RequestHistoryEntry struct {
	DeltaMs  int64
	PathHash uint32
}

// PerSessionStateConfig configures the path/UA bloom trackers and the
// session's own request-timestamp window.
type PerSessionStateConfig struct {
	BloomExpectedElements  uint64
	BloomFalsePositiveRate float64

	WindowDurationMs int64
	MaxWindowElements int
}

// PerSessionState tracks a single logical session (keyed per
// config.SessionKeyFields, e.g. IP+UA) across requests, used for
// session-scoped features like unique-path fan-out (spec.md §3,
// grounded on optimized_per_session_state.hpp).
type PerSessionState struct {
	cfg PerSessionStateConfig

	PathsSeen      *bloom.Filter
	UserAgentsSeen *bloom.Filter

	// PathHashes and UAHashes are the exact-confirmation rings sitting
	// alongside PathsSeen/UserAgentsSeen's bloom filters, holding the
	// most recent 100 path hashes and 10 user-agent hashes seen.
	PathHashes *Ring[uint32]
	UAHashes   *Ring[uint32]

	// uniqueUACount counts distinct user agents seen, incremented only
	// when a user agent is absent from UserAgentsSeen, capped at 255
	// like the original's 8-bit counter. A bloom false positive leaves a
	// new user agent uncounted, so the count can fall short.
	uniqueUACount uint8

	// RequestHistory holds the most recent 200 (delta, path_hash)
	// pairs, delta measured from FirstSeenMs.
	RequestHistory *Ring[RequestHistoryEntry]

	// RequestTimestamps is this session's own sliding window of request
	// times, independent of the owning IP's window.
	RequestTimestamps *slidingwindow.Window[struct{}]

	MethodCounts [int(MethodUnknown) + 1]uint64

	RequestCount     uint64
	FailedLoginCount uint16
	Status4xxCount   uint16
	Status5xxCount   uint16

	MostRecentMethod HTTPMethod

	FirstSeenMs int64
	LastSeenMs  int64
}

// NewPerSessionState constructs a fresh session state.
func NewPerSessionState(cfg PerSessionStateConfig, nowMs int64) *PerSessionState {
	return &PerSessionState{
		cfg:               cfg,
		PathsSeen:         bloom.New(cfg.BloomExpectedElements, cfg.BloomFalsePositiveRate),
		UserAgentsSeen:    bloom.New(cfg.BloomExpectedElements, cfg.BloomFalsePositiveRate),
		PathHashes:        NewRing[uint32](pathHashRingCap),
		UAHashes:          NewRing[uint32](uaHashRingCap),
		RequestHistory:    NewRing[RequestHistoryEntry](requestHistoryCap),
		RequestTimestamps: slidingwindow.New[struct{}](cfg.WindowDurationMs, cfg.MaxWindowElements),
		FirstSeenMs:       nowMs,
		LastSeenMs:        nowMs,
	}
}

// RecordRequest folds one request's observations into the session.
func (s *PerSessionState) RecordRequest(nowMs int64, method HTTPMethod, path, userAgent string, status int, isFailedLogin bool) {
	s.LastSeenMs = nowMs
	s.RequestCount++
	if int(method) < len(s.MethodCounts) {
		s.MethodCounts[method]++
	}
	s.MostRecentMethod = method

	pathHash := hash32(path)
	s.PathsSeen.Add([]byte(path))
	s.PathHashes.Push(pathHash)

	if !s.UserAgentsSeen.Contains([]byte(userAgent)) {
		s.UserAgentsSeen.Add([]byte(userAgent))
		s.UAHashes.Push(hash32(userAgent))
		if s.uniqueUACount < 255 {
			s.uniqueUACount++
		}
	}

	s.RequestHistory.Push(RequestHistoryEntry{DeltaMs: nowMs - s.FirstSeenMs, PathHash: pathHash})
	s.RequestTimestamps.Add(nowMs, struct{}{})

	if isFailedLogin && s.FailedLoginCount < ^uint16(0) {
		s.FailedLoginCount++
	}
	switch {
	case status >= 500 && s.Status5xxCount < ^uint16(0):
		s.Status5xxCount++
	case status >= 400 && s.Status4xxCount < ^uint16(0):
		s.Status4xxCount++
	}
}

// UniquePathCount returns the approximate number of distinct paths
// seen in this session (bloom-filter insertion count; see
// bloom.Filter.InsertedCount).
func (s *PerSessionState) UniquePathCount() int { return int(s.PathsSeen.InsertedCount()) }

// UniqueUserAgentCount returns the number of distinct user agents seen
// in this session as counted by uniqueUACount (bloom-gated, so it can
// undercount), capped at 255.
func (s *PerSessionState) UniqueUserAgentCount() int { return int(s.uniqueUACount) }

// MemoryUsage estimates bytes held by this state.
func (s *PerSessionState) MemoryUsage() int64 {
	usage := int64(s.PathsSeen.MemoryUsage()) + int64(s.UserAgentsSeen.MemoryUsage()) + 64
	usage += int64(s.PathHashes.Cap()) * 4
	usage += int64(s.UAHashes.Cap()) * 4
	usage += int64(s.RequestHistory.Cap()) * 12
	usage += int64(s.RequestTimestamps.Count()) * 6
	return usage
}
