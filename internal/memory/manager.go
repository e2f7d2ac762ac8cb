// Package memory implements the managed-component registry and
// pressure state machine described in spec.md §4.7, grounded on
// original_source/src/core/memory_manager.{hpp,cpp}.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crlsmrls/logsentry/metrics"
)

// PressureLevel classifies current usage against the configured
// limit.
type PressureLevel int

const (
	PressureNormal PressureLevel = iota
	PressureMedium
	PressureHigh
	PressureCritical
)

func (p PressureLevel) String() string {
	switch p {
	case PressureNormal:
		return "normal"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Pressure thresholds as a fraction of the configured memory limit.
const (
	mediumThreshold   = 0.40
	highThreshold     = 0.60
	criticalThreshold = 0.75
	// above 0.90 is still "critical"; the fourth band exists for the
	// eviction loop to push harder, not for a distinct operator-visible level.
	hardCapThreshold = 0.90
)

// ManagedComponent is the contract a state table, bloom filter holder,
// or cache must implement to participate in pressure-driven
// compaction and eviction.
type ManagedComponent interface {
	MemoryUsageBytes() int64
	Compact() int64 // bytes freed
	OnMemoryPressure(level PressureLevel)
	CanEvict() bool
	ComponentName() string
	Priority() int // higher = kept longer (eviction score scales with 10-Priority)
	LastAccess() time.Time
}

// Config tunes the manager's polling cadence and memory budget.
type Config struct {
	LimitBytes   int64
	PollInterval time.Duration
}

// Manager polls registered components every PollInterval, classifies
// pressure, and drives compaction/eviction.
type Manager struct {
	cfg Config

	mu         sync.Mutex
	components []ManagedComponent

	lastLevel    PressureLevel
	currentLevel atomic.Int32

	onLevelChange func(level PressureLevel)

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Manager. Call Start to begin the poll loop.
func New(cfg Config) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Manager{cfg: cfg}
}

// Register adds a component to the pressure/eviction loop.
func (m *Manager) Register(c ManagedComponent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, c)
}

// OnLevelChange registers a hook invoked whenever the classified
// pressure level changes, letting the ingest loop react (e.g. refuse
// new state-store allocations under CRITICAL pressure) without this
// package importing the analysis engine or ingest loop.
func (m *Manager) OnLevelChange(fn func(level PressureLevel)) {
	m.onLevelChange = fn
}

// Level reports the most recently classified pressure level.
func (m *Manager) Level() PressureLevel {
	return PressureLevel(m.currentLevel.Load())
}

// Start launches the background poll loop. Calling Stop (or
// cancelling ctx) joins it.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.poll()
			}
		}
	}()
}

// Stop cancels the poll loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

func (m *Manager) poll() {
	usage := m.TotalUsage()
	level := m.classify(usage)

	metrics.MemoryUsageBytes.Set(float64(usage))
	metrics.MemoryPressureLevel.Set(float64(level))
	m.currentLevel.Store(int32(level))

	if level != m.lastLevel {
		log.Info().
			Str("previous", m.lastLevel.String()).
			Str("current", level.String()).
			Int64("usage_bytes", usage).
			Int64("limit_bytes", m.cfg.LimitBytes).
			Msg("memory pressure transition")
		if m.onLevelChange != nil {
			m.onLevelChange(level)
		}
	}
	m.lastLevel = level

	if level >= PressureMedium {
		m.mu.Lock()
		components := append([]ManagedComponent(nil), m.components...)
		m.mu.Unlock()
		for _, c := range components {
			c.OnMemoryPressure(level)
		}
		m.TriggerCompaction()
	}

	// Cumulative actions per spec.md §4.4: HIGH additionally evicts ~5%
	// of the configured limit, CRITICAL ~15%.
	switch level {
	case PressureHigh:
		m.TriggerEviction(int64(float64(m.cfg.LimitBytes) * 0.05))
	case PressureCritical:
		m.TriggerEviction(int64(float64(m.cfg.LimitBytes) * 0.15))
	}
}

// TotalUsage sums MemoryUsageBytes across every registered component.
func (m *Manager) TotalUsage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, c := range m.components {
		total += c.MemoryUsageBytes()
	}
	return total
}

// Utilization returns current usage as a fraction of the configured
// limit (0 if no limit is configured).
func (m *Manager) Utilization() float64 {
	if m.cfg.LimitBytes <= 0 {
		return 0
	}
	return float64(m.TotalUsage()) / float64(m.cfg.LimitBytes)
}

func (m *Manager) classify(usage int64) PressureLevel {
	if m.cfg.LimitBytes <= 0 {
		return PressureNormal
	}
	util := float64(usage) / float64(m.cfg.LimitBytes)
	switch {
	case util >= criticalThreshold:
		return PressureCritical
	case util >= highThreshold:
		return PressureHigh
	case util >= mediumThreshold:
		return PressureMedium
	default:
		return PressureNormal
	}
}

// TriggerCompaction invokes Compact on every registered component and
// returns the total bytes freed.
func (m *Manager) TriggerCompaction() int64 {
	m.mu.Lock()
	components := append([]ManagedComponent(nil), m.components...)
	m.mu.Unlock()

	var freed int64
	for _, c := range components {
		freed += c.Compact()
	}
	return freed
}

// TriggerEviction scores every evictable component by
// age_factor * size_mb * (10 - priority) and evicts (invokes Compact
// as the eviction action, since components manage their own storage)
// in descending score order until targetBytes have been freed, or
// every evictable candidate has been visited.
func (m *Manager) TriggerEviction(targetBytes int64) int64 {
	m.mu.Lock()
	components := append([]ManagedComponent(nil), m.components...)
	m.mu.Unlock()

	type candidate struct {
		c     ManagedComponent
		score float64
	}

	now := time.Now()
	var candidates []candidate
	for _, c := range components {
		if !c.CanEvict() {
			continue
		}
		ageFactor := now.Sub(c.LastAccess()).Seconds()
		sizeMB := float64(c.MemoryUsageBytes()) / (1024 * 1024)
		score := ageFactor * sizeMB * float64(10-c.Priority())
		candidates = append(candidates, candidate{c, score})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	var freed int64
	for _, cand := range candidates {
		if targetBytes > 0 && freed >= targetBytes {
			break
		}
		freed += cand.c.Compact()
	}
	return freed
}
