package memory

import (
	"testing"
	"time"
)

type fakeComponent struct {
	usage      int64
	freed      int64
	evictable  bool
	priority   int
	name       string
	lastAccess time.Time
	pressures  []PressureLevel
}

func (f *fakeComponent) MemoryUsageBytes() int64 { return f.usage }
func (f *fakeComponent) Compact() int64          { freed := f.freed; f.usage -= freed; return freed }
func (f *fakeComponent) OnMemoryPressure(level PressureLevel) {
	f.pressures = append(f.pressures, level)
}
func (f *fakeComponent) CanEvict() bool        { return f.evictable }
func (f *fakeComponent) ComponentName() string { return f.name }
func (f *fakeComponent) Priority() int         { return f.priority }
func (f *fakeComponent) LastAccess() time.Time { return f.lastAccess }

func TestClassifyMonotonicNonDecreasing(t *testing.T) {
	m := New(Config{LimitBytes: 1000})
	c := &fakeComponent{usage: 0}
	m.Register(c)

	prevLevel := PressureNormal
	for _, usage := range []int64{0, 300, 450, 650, 800, 950} {
		c.usage = usage
		level := m.classify(m.TotalUsage())
		if level < prevLevel {
			t.Fatalf("pressure level decreased at usage=%d: %v -> %v", usage, prevLevel, level)
		}
		prevLevel = level
	}
}

func TestPollNotifiesComponentsAtMediumAndAbove(t *testing.T) {
	m := New(Config{LimitBytes: 1000})
	c := &fakeComponent{usage: 500}
	m.Register(c)

	m.poll()

	if len(c.pressures) != 1 {
		t.Fatalf("expected one pressure notification, got %d", len(c.pressures))
	}
	if c.pressures[0] != PressureMedium {
		t.Errorf("pressure = %v, want Medium", c.pressures[0])
	}
}

func TestPollSkipsNotificationBelowThreshold(t *testing.T) {
	m := New(Config{LimitBytes: 1000})
	c := &fakeComponent{usage: 100}
	m.Register(c)

	m.poll()

	if len(c.pressures) != 0 {
		t.Fatalf("expected no pressure notification at low usage, got %d", len(c.pressures))
	}
}

func TestTriggerEvictionPrefersLowerPriorityAndOlderAccess(t *testing.T) {
	m := New(Config{LimitBytes: 1000})
	now := time.Now()

	highPriorityRecent := &fakeComponent{usage: 10 * 1024 * 1024, freed: 10 * 1024 * 1024, evictable: true, priority: 9, lastAccess: now}
	lowPriorityOld := &fakeComponent{usage: 10 * 1024 * 1024, freed: 10 * 1024 * 1024, evictable: true, priority: 1, lastAccess: now.Add(-1 * time.Hour)}

	m.Register(highPriorityRecent)
	m.Register(lowPriorityOld)

	freed := m.TriggerEviction(10 * 1024 * 1024)
	if freed < 10*1024*1024 {
		t.Fatalf("freed = %d, want at least target", freed)
	}
	if lowPriorityOld.usage != 0 {
		t.Error("expected the low-priority, older component to be evicted first")
	}
}

func TestTriggerCompactionSumsAcrossComponents(t *testing.T) {
	m := New(Config{})
	m.Register(&fakeComponent{freed: 100})
	m.Register(&fakeComponent{freed: 250})

	freed := m.TriggerCompaction()
	if freed != 350 {
		t.Errorf("freed = %d, want 350", freed)
	}
}
