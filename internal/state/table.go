// Package state implements the three concurrent per-key tables the
// analysis engine consults per event: per-IP, per-path, and
// per-session state, each backed by a Robin-Hood open-addressed hash
// table.
package state

import "sync"

const maxLoadFactor = 0.7

// entry is one slot of a Table. probeDistance is the Robin-Hood
// "distance from ideal bucket" counter used to decide, on insert,
// whether an incoming element should displace the one already
// occupying the slot.
type entry[V any] struct {
	used          bool
	key           uint64
	probeDistance int
	value         V
	hibernated    bool
	lastAccessMs  int64
}

// Table is a generic Robin-Hood open-addressed hash table keyed by a
// pre-hashed uint64 (a 32-bit IP, a 32-bit path hash, or a 64-bit
// composed session-key hash, per spec.md §4.2). Not safe for
// unsynchronized concurrent use; callers needing concurrency should
// wrap a Table in their own mutex, which is how Store does it so
// find/get_or_create can interleave with hibernate_inactive/evict_lru
// without the table itself taking a lock on every read.
type Table[V any] struct {
	slots      []entry[V]
	count      int
	newValue   func(now int64) V
	onResurrect func(v *V, now int64)
}

// NewTable constructs a table with the given initial capacity (rounded
// up to a power of two, minimum 16). newValue constructs a fresh V for
// get_or_create on miss and for resurrection after hibernation;
// onResurrect, if non-nil, lets the caller additionally reset
// resurrection-specific fields beyond what newValue already zeroes.
func NewTable[V any](initialCapacity int, newValue func(now int64) V, onResurrect func(v *V, now int64)) *Table[V] {
	cap := 16
	for cap < initialCapacity {
		cap *= 2
	}
	return &Table[V]{
		slots:       make([]entry[V], cap),
		newValue:    newValue,
		onResurrect: onResurrect,
	}
}

func (t *Table[V]) bucket(key uint64) int {
	return int(key % uint64(len(t.slots)))
}

// Find probes for key, bumping last_access_time on hit. If the entry
// is hibernated it is resurrected in place (fresh value constructed at
// now) per spec.md §4.2's find() contract. Returns (nil, false) on a
// genuine miss.
func (t *Table[V]) Find(key uint64, now int64) (*V, bool) {
	idx := t.bucket(key)
	dist := 0
	for {
		s := &t.slots[idx]
		if !s.used {
			return nil, false
		}
		if s.key == key {
			s.lastAccessMs = now
			if s.hibernated {
				s.value = t.newValue(now)
				if t.onResurrect != nil {
					t.onResurrect(&s.value, now)
				}
				s.hibernated = false
			}
			return &s.value, true
		}
		if dist > s.probeDistance {
			return nil, false // Robin-Hood invariant: would have displaced by now
		}
		idx = (idx + 1) % len(t.slots)
		dist++
	}
}

// GetOrCreate looks up key, inserting a freshly constructed value on
// miss. Growth happens before insertion when the load factor would
// otherwise exceed maxLoadFactor.
func (t *Table[V]) GetOrCreate(key uint64, now int64) *V {
	if v, ok := t.Find(key, now); ok {
		return v
	}
	if float64(t.count+1)/float64(len(t.slots)) > maxLoadFactor {
		t.grow()
	}
	v := t.newValue(now)
	t.insert(key, v, now)
	p, _ := t.Find(key, now)
	return p
}

// insert performs Robin-Hood insertion: the element being carried
// displaces any resident whose probe distance is smaller, and the
// displaced element continues the same walk with the incumbent's slot
// as its new starting point.
func (t *Table[V]) insert(key uint64, value V, now int64) {
	idx := t.bucket(key)
	dist := 0
	carry := entry[V]{used: true, key: key, probeDistance: 0, value: value, lastAccessMs: now}

	for {
		s := &t.slots[idx]
		if !s.used {
			carry.probeDistance = dist
			*s = carry
			t.count++
			return
		}
		if s.key == carry.key {
			s.value = carry.value
			s.lastAccessMs = now
			s.hibernated = false
			return
		}
		if dist > s.probeDistance {
			carry.probeDistance = dist
			*s, carry = carry, *s
			dist = carry.probeDistance
		}
		idx = (idx + 1) % len(t.slots)
		dist++
	}
}

func (t *Table[V]) grow() {
	old := t.slots
	t.slots = make([]entry[V], len(old)*2)
	t.count = 0
	for _, s := range old {
		if s.used {
			t.insert(s.key, s.value, s.lastAccessMs)
			t.slots[t.findSlotIndex(s.key)].hibernated = s.hibernated
		}
	}
}

func (t *Table[V]) findSlotIndex(key uint64) int {
	idx := t.bucket(key)
	for {
		s := &t.slots[idx]
		if !s.used || s.key == key {
			return idx
		}
		idx = (idx + 1) % len(t.slots)
	}
}

// HibernateInactive drops the value payload (replacing it with a fresh
// zero value) for every non-hibernated entry whose last access is
// older than maxIdleMs, keeping the key slot resident.
func (t *Table[V]) HibernateInactive(now, maxIdleMs int64) int {
	hibernated := 0
	for i := range t.slots {
		s := &t.slots[i]
		if s.used && !s.hibernated && now-s.lastAccessMs > maxIdleMs {
			var zero V
			s.value = zero
			s.hibernated = true
			hibernated++
		}
	}
	return hibernated
}

// EvictLRU removes the count non-hibernated entries with the oldest
// last_access_time.
func (t *Table[V]) EvictLRU(count int) int {
	type candidate struct {
		key  uint64
		last int64
	}
	candidates := make([]candidate, 0, t.count)
	for i := range t.slots {
		if t.slots[i].used && !t.slots[i].hibernated {
			candidates = append(candidates, candidate{t.slots[i].key, t.slots[i].lastAccessMs})
		}
	}
	if count > len(candidates) {
		count = len(candidates)
	}
	// partial selection sort is fine: count is small relative to table size
	for i := 0; i < count; i++ {
		min := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].last < candidates[min].last {
				min = j
			}
		}
		candidates[i], candidates[min] = candidates[min], candidates[i]
		// Removed by key: backward-shift deletion moves other entries
		// between slots, so slot indices collected above go stale.
		t.Remove(candidates[i].key)
	}
	return count
}

// removeSlot deletes the occupied slot at idx and performs the
// backward-shift deletion Robin-Hood tables require to keep probe
// sequences contiguous.
func (t *Table[V]) removeSlot(idx int) {
	t.slots[idx] = entry[V]{}
	t.count--
	next := (idx + 1) % len(t.slots)
	for t.slots[next].used && t.slots[next].probeDistance > 0 {
		t.slots[idx] = t.slots[next]
		t.slots[idx].probeDistance--
		t.slots[next] = entry[V]{}
		idx = next
		next = (idx + 1) % len(t.slots)
	}
}

// Remove deletes key if present, reporting whether it was found.
func (t *Table[V]) Remove(key uint64) bool {
	idx := t.findSlotIndex(key)
	if !t.slots[idx].used {
		return false
	}
	t.removeSlot(idx)
	return true
}

// Compact drops hibernated entries whose lastAccessMs is older than
// now-olderThanMs, freeing their slots.
func (t *Table[V]) Compact(now, olderThanMs int64) int {
	compacted := 0
	for i := 0; i < len(t.slots); {
		if t.slots[i].used && t.slots[i].hibernated && now-t.slots[i].lastAccessMs > olderThanMs {
			// removeSlot may shift the next entry into slot i, so slot i
			// is examined again.
			t.removeSlot(i)
			compacted++
			continue
		}
		i++
	}
	return compacted
}

// Len reports the number of occupied slots (hibernated or not).
func (t *Table[V]) Len() int { return t.count }

// MostRecentAccessMs returns the newest lastAccessMs across every
// occupied slot (hibernated slots included, since their key/timestamp
// is retained), or 0 if the table is empty. Used by the memory
// manager's eviction-scoring age factor.
func (t *Table[V]) MostRecentAccessMs() int64 {
	var max int64
	for i := range t.slots {
		if t.slots[i].used && t.slots[i].lastAccessMs > max {
			max = t.slots[i].lastAccessMs
		}
	}
	return max
}

// ForEach visits every live (non-hibernated) entry. fn must not
// resize the table.
func (t *Table[V]) ForEach(fn func(key uint64, value *V)) {
	for i := range t.slots {
		if t.slots[i].used && !t.slots[i].hibernated {
			fn(t.slots[i].key, &t.slots[i].value)
		}
	}
}

// SyncTable wraps a Table with a mutex so callers from multiple
// goroutines (the ingest loop and the memory manager's poll loop) can
// share one table safely, per spec.md §4.2 "three independently locked
// tables".
type SyncTable[V any] struct {
	mu sync.Mutex
	t  *Table[V]
}

// NewSyncTable wraps NewTable with its own mutex.
func NewSyncTable[V any](initialCapacity int, newValue func(now int64) V, onResurrect func(v *V, now int64)) *SyncTable[V] {
	return &SyncTable[V]{t: NewTable(initialCapacity, newValue, onResurrect)}
}

func (s *SyncTable[V]) Find(key uint64, now int64) (*V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Find(key, now)
}

func (s *SyncTable[V]) GetOrCreate(key uint64, now int64) *V {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.GetOrCreate(key, now)
}

func (s *SyncTable[V]) HibernateInactive(now, maxIdleMs int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.HibernateInactive(now, maxIdleMs)
}

func (s *SyncTable[V]) EvictLRU(count int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.EvictLRU(count)
}

func (s *SyncTable[V]) Remove(key uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Remove(key)
}

func (s *SyncTable[V]) Compact(now, olderThanMs int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Compact(now, olderThanMs)
}

func (s *SyncTable[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Len()
}

func (s *SyncTable[V]) ForEach(fn func(key uint64, value *V)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t.ForEach(fn)
}

func (s *SyncTable[V]) MostRecentAccessMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.MostRecentAccessMs()
}
