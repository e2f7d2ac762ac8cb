package alert

import (
	"sync"
	"time"

	"github.com/crlsmrls/logsentry/internal/util/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher sends a single alert to an external sink, returning an
// error if the send failed.
type Dispatcher interface {
	Name() string
	Dispatch(a *Alert) error
}

// ThrottleCause names why a suppressed alert was suppressed, per
// spec.md §4.5/§8 scenario 2's metric label enum.
type ThrottleCause int

const (
	// ThrottleNone marks an alert that was not suppressed.
	ThrottleNone ThrottleCause = iota
	// ThrottleTimeWindow marks suppression of a near-immediate repeat:
	// no other key was recorded between this alert and the one it
	// duplicates, so recency alone explains the suppression.
	ThrottleTimeWindow
	// ThrottleInterveningLimit marks suppression that persisted despite
	// other alerts having been recorded in between, because their count
	// hadn't yet reached ThrottleMaxIntervening.
	ThrottleInterveningLimit
)

func (c ThrottleCause) String() string {
	switch c {
	case ThrottleTimeWindow:
		return "time_window"
	case ThrottleInterveningLimit:
		return "intervening_limit"
	default:
		return "none"
	}
}

// ManagerConfig tunes throttling, the recent-alerts ring, and queue
// sizing.
type ManagerConfig struct {
	ThrottleDurationMs     int64
	ThrottleMaxIntervening int
	RecentAlertsCapacity   int
	QueueCapacity          int
	OutputToStdout         bool
}

type throttleEntry struct {
	lastTimestampMs int64
	lastSequence    uint64
}

// Manager throttles, sequences, queues, and fans out alerts to a set
// of dispatchers from a single consumer goroutine.
type Manager struct {
	cfg         ManagerConfig
	dispatchers []Dispatcher
	logger      zerolog.Logger
	queue       *queue.Queue[*Alert]

	done chan struct{}

	mu            sync.Mutex
	throttle      map[string]throttleEntry
	globalSeq     uint64
	alertsTotal   uint64
	alertsThrottled uint64

	recentMu sync.Mutex
	recent   []*Alert

	onProcessed func(a *Alert, cause ThrottleCause)
	onDispatch  func(dispatcherName string, a *Alert, latency time.Duration, err error)
}

// NewManager constructs a Manager; dispatchers are invoked in the
// order given for every alert that survives throttling. Call Run in a
// goroutine to start the consumer loop.
func NewManager(cfg ManagerConfig, dispatchers []Dispatcher, logger zerolog.Logger) *Manager {
	if cfg.RecentAlertsCapacity <= 0 {
		cfg.RecentAlertsCapacity = 50
	}
	return &Manager{
		cfg:         cfg,
		dispatchers: dispatchers,
		logger:      logger,
		queue:       queue.New[*Alert](cfg.QueueCapacity),
		done:        make(chan struct{}),
		throttle:    make(map[string]throttleEntry),
	}
}

// OnProcessed registers a hook invoked for every RecordAlert call,
// after the throttle decision is known; cause is ThrottleNone for an
// alert that was not suppressed. Used to wire Prometheus counters
// without importing the metrics package from this one.
func (m *Manager) OnProcessed(fn func(a *Alert, cause ThrottleCause)) { m.onProcessed = fn }

// OnDispatch registers a hook invoked after each dispatcher attempt.
func (m *Manager) OnDispatch(fn func(dispatcherName string, a *Alert, latency time.Duration, err error)) {
	m.onDispatch = fn
}

// RecordAlert throttles, sequences, and enqueues a for asynchronous
// dispatch. Alerts sharing a throttle key (source IP + reason) within
// ThrottleDurationMs are suppressed unless ThrottleMaxIntervening
// alerts have since been recorded for other keys.
func (m *Manager) RecordAlert(a *Alert) {
	m.mu.Lock()
	m.alertsTotal++

	if m.cfg.ThrottleDurationMs > 0 {
		key := a.SourceIP + ":" + a.Reason
		if prev, ok := m.throttle[key]; ok {
			intervening := m.globalSeq - prev.lastSequence
			inWindow := a.TimestampMs < prev.lastTimestampMs+m.cfg.ThrottleDurationMs
			exceeded := m.cfg.ThrottleMaxIntervening > 0 && int(intervening) >= m.cfg.ThrottleMaxIntervening
			if inWindow && !exceeded {
				m.alertsThrottled++
				cause := ThrottleTimeWindow
				if intervening > 0 {
					cause = ThrottleInterveningLimit
				}
				m.mu.Unlock()
				if m.onProcessed != nil {
					m.onProcessed(a, cause)
				}
				return
			}
		}
		m.globalSeq++
		a.Sequence = m.globalSeq
		m.throttle[key] = throttleEntry{lastTimestampMs: a.TimestampMs, lastSequence: m.globalSeq}
	} else {
		m.globalSeq++
		a.Sequence = m.globalSeq
	}
	m.mu.Unlock()

	a.ID = uuid.NewString()

	m.pushRecent(a)

	if m.onProcessed != nil {
		m.onProcessed(a, ThrottleNone)
	}

	if m.cfg.OutputToStdout {
		m.logger.Info().
			Str("tier", a.Tier.String()).
			Str("action", a.Action.String()).
			Str("source_ip", a.SourceIP).
			Str("reason", a.Reason).
			Float64("score", a.Score).
			Msg("alert")
	}

	m.queue.Push(a)
}

func (m *Manager) pushRecent(a *Alert) {
	m.recentMu.Lock()
	defer m.recentMu.Unlock()
	m.recent = append([]*Alert{a}, m.recent...)
	if len(m.recent) > m.cfg.RecentAlertsCapacity {
		m.recent = m.recent[:m.cfg.RecentAlertsCapacity]
	}
}

// RecentAlerts returns up to limit of the most recently recorded
// alerts, newest first.
func (m *Manager) RecentAlerts(limit int) []*Alert {
	m.recentMu.Lock()
	defer m.recentMu.Unlock()
	if limit <= 0 || limit > len(m.recent) {
		limit = len(m.recent)
	}
	out := make([]*Alert, limit)
	copy(out, m.recent[:limit])
	return out
}

// Run drains the queue and fans out each alert to every dispatcher in
// order, timing each dispatch. It blocks until Shutdown is called and
// the queue has drained.
func (m *Manager) Run() {
	defer close(m.done)
	for {
		a, ok := m.queue.WaitAndPop()
		if !ok {
			return
		}
		for _, d := range m.dispatchers {
			start := time.Now()
			err := d.Dispatch(a)
			latency := time.Since(start)
			if err != nil {
				m.logger.Warn().Err(err).Str("dispatcher", d.Name()).Msg("alert dispatch failed")
			}
			if m.onDispatch != nil {
				m.onDispatch(d.Name(), a, latency, err)
			}
		}
	}
}

// Shutdown stops accepting new dispatch work once the queue drains and
// blocks until the consumer goroutine exits.
func (m *Manager) Shutdown() {
	m.queue.Shutdown()
	<-m.done
}

// Stats reports the manager's processed/throttled counters.
func (m *Manager) Stats() (total, throttled uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alertsTotal, m.alertsThrottled
}
