// Package interner implements a process-wide pool mapping printable
// strings to 32-bit IDs, for high-cardinality repeated values (paths,
// user agents, IPs) seen in a log stream.
package interner

import "sync"

// EmptyID is reserved for the empty string and is never assigned to any
// other value.
const EmptyID uint32 = 0

// Interner maps strings to stable, monotonically assigned IDs. IDs are
// never reused or shrunk; Compact only releases spare capacity retained
// inside the stored strings, not the ID space itself.
type Interner struct {
	mu      sync.RWMutex
	ids     map[string]uint32
	strings []string // strings[id-1] holds the string for id (id 0 is reserved)
}

// New creates an empty Interner.
func New() *Interner {
	return &Interner{
		ids: make(map[string]uint32),
	}
}

// Intern returns s's ID, assigning a new one on first sight.
func (in *Interner) Intern(s string) uint32 {
	if s == "" {
		return EmptyID
	}

	in.mu.RLock()
	if id, ok := in.ids[s]; ok {
		in.mu.RUnlock()
		return id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.ids[s]; ok {
		return id
	}
	in.strings = append(in.strings, s)
	id := uint32(len(in.strings))
	in.ids[s] = id
	return id
}

// Get returns the string for id, and false if id was never assigned (or
// is EmptyID, whose string is always "").
func (in *Interner) Get(id uint32) (string, bool) {
	if id == EmptyID {
		return "", true
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	idx := int(id) - 1
	if idx < 0 || idx >= len(in.strings) {
		return "", false
	}
	return in.strings[idx], true
}

// Len returns the number of distinct non-empty strings interned.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.strings)
}

// Compact releases spare capacity held by the stored strings without
// changing any assigned ID.
func (in *Interner) Compact() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, s := range in.strings {
		// Re-allocating via string([]byte(s)) drops any extra capacity
		// the runtime may have retained from prior concatenation.
		in.strings[i] = string([]byte(s))
	}
}
