package analysis

import (
	"math"

	"github.com/crlsmrls/logsentry/internal/event"
	"github.com/crlsmrls/logsentry/internal/logrecord"
	"github.com/crlsmrls/logsentry/internal/state"
	"github.com/crlsmrls/logsentry/internal/util/ahocorasick"
	"github.com/crlsmrls/logsentry/internal/util/interner"
)

// Config collects every tunable the engine needs beyond the state
// store itself.
type Config struct {
	FailedLoginStatusCodes []int

	MaxUniqueUAsPerIPInWindow int

	SuspiciousPathSubstrings []string
	SensitivePathSubstrings  []string

	UAClassifier   UAClassifierConfig
	PathClassifier PathClassifierConfig

	SessionTrackingEnabled bool
	SessionKeyFields       []string

	MinSamplesForZScore int
	ZScoreThreshold     float64

	FeatureManager FeatureBuilder
}

// FeatureBuilder builds the ordered ML feature vector for an event
// (implemented by internal/ml.FeatureManager); kept as an interface
// here so the analysis engine doesn't import internal/ml directly.
type FeatureBuilder interface {
	Build(ev *event.AnalyzedEvent) [event.FeatureVectorSize]float64
}

// Engine enriches LogRecords into AnalyzedEvents, updating the shared
// state store along the way (spec.md §4.3).
type Engine struct {
	cfg   Config
	store *state.Store

	interner *interner.Interner

	suspiciousPaths *ahocorasick.Matcher
	sensitivePaths  *ahocorasick.Matcher

	ua   *UAClassifier
	path *PathClassifier

	maxTimestampSeenMs int64
	totalProcessed     uint64

	pressureMode bool
}

// NewEngine wires an Engine from its configuration and a shared
// state.Store.
func NewEngine(cfg Config, store *state.Store) *Engine {
	return &Engine{
		cfg:             cfg,
		store:           store,
		interner:        interner.New(),
		suspiciousPaths: ahocorasick.New(cfg.SuspiciousPathSubstrings),
		sensitivePaths:  ahocorasick.New(cfg.SensitivePathSubstrings),
		ua:              NewUAClassifier(cfg.UAClassifier),
		path:            NewPathClassifier(cfg.PathClassifier),
	}
}

// SetPressureMode flips the engine's idempotent pressure-mode flag and
// hibernates inactive IP and path states the first time pressure is
// reported (spec.md §4.3 step 2). The session table is not hibernated
// here.
func (e *Engine) SetPressureMode(active bool, nowMs, ipIdleMs, pathIdleMs int64) {
	if active && !e.pressureMode {
		e.store.IPs.HibernateInactive(nowMs, ipIdleMs)
		e.store.Paths.HibernateInactive(nowMs, pathIdleMs)
	}
	e.pressureMode = active
}

// Process enriches one record into an AnalyzedEvent, updating the
// state store as a side effect.
func (e *Engine) Process(r *logrecord.Record) *event.AnalyzedEvent {
	if r.TimestampMs > e.maxTimestampSeenMs {
		e.maxTimestampSeenMs = r.TimestampMs
	}
	e.totalProcessed++

	e.interner.Intern(r.ClientIP)
	path := r.PathWithoutQuery()
	e.interner.Intern(path)
	e.interner.Intern(r.UserAgent)

	ipKey := uint64(state.IPKey(r.ClientIP))
	pathKey := uint64(state.PathKey(path))

	ipState := e.store.IPs.GetOrCreate(ipKey, r.TimestampMs)
	pathState := e.store.Paths.GetOrCreate(pathKey, r.TimestampMs)

	isNewIP := ipState.RequestCount == 0
	isNewPath := !ipState.HasSeenPath(path)

	ipState.AddRequestTimestamp(r.TimestampMs)
	if isFailedLoginStatus(r.Status, e.cfg.FailedLoginStatusCodes) {
		ipState.AddFailedLoginTimestamp(r.TimestampMs)
	}
	isHTML := e.path.IsHTML(path)
	isAsset := e.path.IsAsset(path)
	if isHTML {
		ipState.AddHTMLTimestamp(r.TimestampMs)
	}
	if isAsset {
		ipState.AddAssetTimestamp(r.TimestampMs)
	}
	ipState.AddPath(path)
	ipState.AddUserAgent(r.UserAgent)
	ipState.UpdateRequestStats(r.DurationSeconds, r.BytesSent, r.IsError())

	pathState.UpdateRequestStats(r.DurationSeconds, r.BytesSent, r.IsError())
	pathState.RecordResponse(r.Status, r.BytesSent)
	pathState.AddMethodQueryPattern(r.Method, r.Query())

	var session *state.PerSessionState
	if e.cfg.SessionTrackingEnabled {
		values := map[string]string{"ip": r.ClientIP, "ua": r.UserAgent, "path": path}
		key := state.SessionKey(e.cfg.SessionKeyFields, values)
		session = e.store.Sessions.GetOrCreate(key, r.TimestampMs)
		session.RecordRequest(r.TimestampMs, state.ParseHTTPMethod(r.Method), path, r.UserAgent, r.Status, isFailedLoginStatus(r.Status, e.cfg.FailedLoginStatusCodes))
	}

	ev := &event.AnalyzedEvent{
		Record: r,
		Windows: event.WindowCounters{
			RequestsInWindow:      ipState.RequestTimestamps.Count(),
			FailedLoginsInWindow:  ipState.FailedLoginTimestamps.Count(),
			HTMLRequestsInWindow:  ipState.HTMLTimestamps.Count(),
			AssetRequestsInWindow: ipState.AssetTimestamps.Count(),
		},
		IsNewIP:             isNewIP,
		IsNewPath:           isNewPath,
		UserAgentClass:      e.classifyUA(ipState, r.UserAgent),
		SuspiciousPathFound: e.suspiciousPaths.ContainsAny(path),
		SensitivePathFound:  e.sensitivePaths.ContainsAny(path),
		SuspiciousUAFound:   e.ua.Classify(r.UserAgent) == event.UAKnownBad,
	}

	ev.Z = e.computeZScores(ipState, pathState, r)
	e.updatePathFlags(pathState, ev)

	if session != nil {
		ev.Session = event.SessionFeatures{
			Enabled:          true,
			RequestCount:     session.RequestCount,
			FailedLoginCount: session.FailedLoginCount,
			Status4xxCount:   session.Status4xxCount,
			Status5xxCount:   session.Status5xxCount,
			UniqueUACount:    uint8(min(session.UniqueUserAgentCount(), 255)),
			UniquePathCount:  session.UniquePathCount(),
			MostRecentMethod: session.MostRecentMethod.String(),
		}
	}

	if e.cfg.FeatureManager != nil {
		ev.FeatureVector = e.cfg.FeatureManager.Build(ev)
	}

	return ev
}

func (e *Engine) classifyUA(ipState *state.PerIPState, userAgent string) event.UAClass {
	if ipState.UserAgentsSeen.InsertedCount() > uint64(e.cfg.MaxUniqueUAsPerIPInWindow) {
		return event.UACycled
	}
	return e.ua.Classify(userAgent)
}

func (e *Engine) computeZScores(ipState *state.PerIPState, pathState *state.PerPathState, r *logrecord.Record) event.ZScores {
	var z event.ZScores

	if v, ok := ipState.DurationStats.ZScore(r.DurationSeconds, int64(e.cfg.MinSamplesForZScore)); ok {
		z.DurationIP, z.DurationIPOK = v, true
	}
	if v, ok := pathState.DurationStats.ZScore(r.DurationSeconds, int64(e.cfg.MinSamplesForZScore)); ok {
		z.DurationPath, z.DurationPathOK = v, true
	}
	if v, ok := ipState.BytesStats.ZScore(float64(r.BytesSent), int64(e.cfg.MinSamplesForZScore)); ok {
		z.BytesIP, z.BytesIPOK = v, true
	}
	if v, ok := pathState.BytesStats.ZScore(float64(r.BytesSent), int64(e.cfg.MinSamplesForZScore)); ok {
		z.BytesPath, z.BytesPathOK = v, true
	}

	errorIndicator := 0.0
	if r.IsError() {
		errorIndicator = 1.0
	}
	if v, ok := ipState.ErrorRateStats.ZScore(errorIndicator, int64(e.cfg.MinSamplesForZScore)); ok {
		z.ErrorRateIP, z.ErrorRateIPOK = v, true
	}
	if v, ok := pathState.ErrorRateStats.ZScore(errorIndicator, int64(e.cfg.MinSamplesForZScore)); ok {
		z.ErrorRatePath, z.ErrorRatePathOK = v, true
	}

	volume := float64(ipState.RequestTimestamps.Count())
	if v, ok := ipState.VolumeStats.ZScore(volume, int64(e.cfg.MinSamplesForZScore)); ok {
		z.VolumeIP, z.VolumeIPOK = v, true
	}
	if v, ok := pathState.VolumeStats.ZScore(float64(pathState.RequestCount), int64(e.cfg.MinSamplesForZScore)); ok {
		z.VolumePath, z.VolumePathOK = v, true
	}

	return z
}

// updatePathFlags keeps PerPathState.Flags current from the z-scores and
// sensitive-path match just computed for this event (spec.md §3's
// has_anomaly/is_high_traffic/is_monitored bits).
func (e *Engine) updatePathFlags(pathState *state.PerPathState, ev *event.AnalyzedEvent) {
	if e.cfg.ZScoreThreshold <= 0 {
		return
	}

	anomalous := (ev.Z.DurationPathOK && math.Abs(ev.Z.DurationPath) >= e.cfg.ZScoreThreshold) ||
		(ev.Z.BytesPathOK && math.Abs(ev.Z.BytesPath) >= e.cfg.ZScoreThreshold) ||
		(ev.Z.ErrorRatePathOK && math.Abs(ev.Z.ErrorRatePath) >= e.cfg.ZScoreThreshold)
	if anomalous {
		pathState.SetFlag(state.PathFlagHasAnomaly)
	} else {
		pathState.ClearFlag(state.PathFlagHasAnomaly)
	}

	if ev.Z.VolumePathOK && ev.Z.VolumePath >= e.cfg.ZScoreThreshold {
		pathState.SetFlag(state.PathFlagHighTraffic)
	} else {
		pathState.ClearFlag(state.PathFlagHighTraffic)
	}

	if ev.SensitivePathFound {
		pathState.SetFlag(state.PathFlagMonitored)
	}
}

func isFailedLoginStatus(status int, codes []int) bool {
	for _, c := range codes {
		if status == c {
			return true
		}
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
