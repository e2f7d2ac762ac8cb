package memory

import (
	"time"

	"github.com/crlsmrls/logsentry/internal/ml"
	"github.com/crlsmrls/logsentry/internal/state"
)

// featureManagerBytesPerSlot estimates one quantized cache entry's
// resident size (hash + 32 quantized bytes + a stored-at timestamp),
// since ml.FeatureManager doesn't track exact byte accounting itself.
const featureManagerBytesPerSlot = 64

// featureManagerComponent adapts *ml.FeatureManager to ManagedComponent.
// Grounded on the same original_source/src/core/memory_manager.hpp
// managed-component pattern as tableComponent; lives here rather than
// in internal/ml so that package stays free of the memory package's
// PressureLevel type.
type featureManagerComponent struct {
	fm *ml.FeatureManager
}

// NewFeatureManagerComponent wraps fm for registration with a Manager.
func NewFeatureManagerComponent(fm *ml.FeatureManager) ManagedComponent {
	return &featureManagerComponent{fm: fm}
}

func (c *featureManagerComponent) MemoryUsageBytes() int64 {
	return int64(c.fm.CacheCapacity()) * featureManagerBytesPerSlot
}

// Compact clears the quantized feature cache, freeing its full
// estimated footprint; the cache rebuilds itself lazily on the next
// Build call.
func (c *featureManagerComponent) Compact() int64 {
	freed := c.MemoryUsageBytes()
	c.fm.HandleMemoryPressure()
	return freed
}

func (c *featureManagerComponent) OnMemoryPressure(level PressureLevel) {
	if level >= PressureHigh {
		c.fm.HandleMemoryPressure()
	}
}

func (c *featureManagerComponent) CanEvict() bool        { return true }
func (c *featureManagerComponent) ComponentName() string { return "ml.feature_cache" }
func (c *featureManagerComponent) Priority() int         { return 8 }

// LastAccess has no meaningful per-entry tracking in the feature
// cache; reporting the current time keeps this component from being
// treated as the oldest (and thus first-evicted) one.
func (c *featureManagerComponent) LastAccess() time.Time { return time.Now() }

// tableComponent adapts one of state.Store's three SyncTables to the
// ManagedComponent contract, grounded on original_source/src/core/
// memory_manager.hpp's "managed component" registration of the state
// tables themselves. The state package stays free of any import back
// to memory (spec.md §9 "singleton ... state as process-wide state"
// keeps layering one-directional): this file owns the wiring.
type tableComponent[V any] struct {
	table           *state.SyncTable[V]
	memoryUsage     func(*V) int64
	hibernateIdleMs int64
	compactAfterMs  int64
	priority        int
	name            string
}

func (c *tableComponent[V]) MemoryUsageBytes() int64 {
	var total int64
	c.table.ForEach(func(_ uint64, v *V) { total += c.memoryUsage(v) })
	return total
}

// Compact hibernates entries idle past hibernateIdleMs and drops
// already-hibernated entries older than compactAfterMs, reporting the
// bytes freed (spec.md §4.2 hibernate_inactive / compact).
func (c *tableComponent[V]) Compact() int64 {
	before := c.MemoryUsageBytes()
	now := time.Now().UnixMilli()
	c.table.HibernateInactive(now, c.hibernateIdleMs)
	c.table.Compact(now, c.compactAfterMs)
	return before - c.MemoryUsageBytes()
}

// OnMemoryPressure hibernates more aggressively once pressure reaches
// HIGH, ahead of the next scheduled Compact.
func (c *tableComponent[V]) OnMemoryPressure(level PressureLevel) {
	if level >= PressureHigh {
		c.table.HibernateInactive(time.Now().UnixMilli(), c.hibernateIdleMs/2)
	}
}

func (c *tableComponent[V]) CanEvict() bool        { return true }
func (c *tableComponent[V]) ComponentName() string { return c.name }
func (c *tableComponent[V]) Priority() int         { return c.priority }
func (c *tableComponent[V]) LastAccess() time.Time {
	return time.UnixMilli(c.table.MostRecentAccessMs())
}

// NewIPTableComponent wraps store.IPs for registration with a Manager.
func NewIPTableComponent(store *state.Store, hibernateIdleMs, compactAfterMs int64) ManagedComponent {
	return &tableComponent[state.PerIPState]{
		table:           store.IPs,
		memoryUsage:     func(v *state.PerIPState) int64 { return v.MemoryUsage() },
		hibernateIdleMs: hibernateIdleMs,
		compactAfterMs:  compactAfterMs,
		priority:        5,
		name:            "state.ips",
	}
}

// NewPathTableComponent wraps store.Paths for registration with a
// Manager.
func NewPathTableComponent(store *state.Store, hibernateIdleMs, compactAfterMs int64) ManagedComponent {
	return &tableComponent[state.PerPathState]{
		table:           store.Paths,
		memoryUsage:     func(v *state.PerPathState) int64 { return v.MemoryUsage() },
		hibernateIdleMs: hibernateIdleMs,
		compactAfterMs:  compactAfterMs,
		priority:        6,
		name:            "state.paths",
	}
}

// NewSessionTableComponent wraps store.Sessions for registration with
// a Manager. Compact hibernates and drops idle sessions the same way it
// does for the other tables; separately, store.Tick evicts sessions past
// their inactivity TTL (spec.md §4.2) outright, so compactAfterMs can be
// small.
func NewSessionTableComponent(store *state.Store, hibernateIdleMs, compactAfterMs int64) ManagedComponent {
	return &tableComponent[state.PerSessionState]{
		table:           store.Sessions,
		memoryUsage:     func(v *state.PerSessionState) int64 { return v.MemoryUsage() },
		hibernateIdleMs: hibernateIdleMs,
		compactAfterMs:  compactAfterMs,
		priority:        7,
		name:            "state.sessions",
	}
}
