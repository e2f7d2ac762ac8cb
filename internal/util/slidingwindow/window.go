// Package slidingwindow implements a bounded ordered sequence of
// timestamped events enforcing both an age cap and an element-count cap.
//
// Timestamps are stored as 32-bit deltas from a per-window base so that
// a million-entry window of plain int64 millisecond stamps does not cost
// 8 bytes per element. When the newest event's delta would overflow
// uint32, the window rebases to half the uint32 range below that event's
// timestamp and drops every element whose delta would have gone negative
// under the new base.
package slidingwindow

// Window holds timestamped values of type T in insertion order, pruning
// anything older than Duration or beyond MaxElements. If T is struct{},
// the window behaves as a timestamp-only window.
type Window[T any] struct {
	duration    int64 // milliseconds; 0 disables age pruning
	maxElements int

	base int64 // base_timestamp_ms such that stored deltas are current_ts - base
	ts   []uint32
	vals []T
}

// New creates a window with the given age cap (milliseconds, 0 = no age
// cap) and element-count cap.
func New[T any](durationMs int64, maxElements int) *Window[T] {
	if maxElements <= 0 {
		maxElements = 1
	}
	return &Window[T]{
		duration:    durationMs,
		maxElements: maxElements,
	}
}

// Add inserts a (timestamp, value) pair and prunes the window.
func (w *Window[T]) Add(timestampMs int64, value T) {
	if len(w.ts) == 0 {
		w.base = timestampMs
	}
	w.rebaseIfNeeded(timestampMs)

	delta := timestampMs - w.base
	if delta < 0 {
		// Out-of-order event older than the current base: rebase down so
		// it can still be represented, dropping nothing (it is the
		// oldest thing we've seen).
		shift := w.base - timestampMs
		for i := range w.ts {
			w.ts[i] += uint32(shift)
		}
		w.base = timestampMs
		delta = 0
	}

	w.ts = append(w.ts, uint32(delta))
	w.vals = append(w.vals, value)
	w.Prune(timestampMs)
}

// rebaseIfNeeded shifts the base forward when the incoming timestamp
// would overflow a uint32 delta, dropping elements that would go
// negative under the new base.
func (w *Window[T]) rebaseIfNeeded(timestampMs int64) {
	delta := timestampMs - w.base
	if delta >= 0 && delta <= int64(^uint32(0)) {
		return
	}
	if delta < 0 {
		return // handled by the caller as an out-of-order insert
	}

	newBase := timestampMs - int64(^uint32(0)/2)
	keepFrom := 0
	for i, d := range w.ts {
		abs := w.base + int64(d)
		if abs < newBase {
			keepFrom = i + 1
			continue
		}
		break
	}
	w.ts = append(w.ts[:0], w.ts[keepFrom:]...)
	w.vals = append(w.vals[:0], w.vals[keepFrom:]...)
	for i := range w.ts {
		w.ts[i] = uint32(w.base + int64(w.ts[i]) - newBase)
	}
	w.base = newBase
}

// Prune drops elements older than now-Duration and trims to MaxElements,
// keeping the most recent ones.
func (w *Window[T]) Prune(nowMs int64) {
	if len(w.ts) == 0 {
		return
	}

	if w.duration > 0 {
		cutoff := nowMs - w.duration
		keepFrom := 0
		for i, d := range w.ts {
			if w.base+int64(d) >= cutoff {
				keepFrom = i
				break
			}
			keepFrom = i + 1
		}
		if keepFrom > 0 {
			w.ts = append(w.ts[:0], w.ts[keepFrom:]...)
			w.vals = append(w.vals[:0], w.vals[keepFrom:]...)
		}
	}

	if over := len(w.ts) - w.maxElements; over > 0 {
		w.ts = append(w.ts[:0], w.ts[over:]...)
		w.vals = append(w.vals[:0], w.vals[over:]...)
	}
}

// Count returns the number of elements currently retained.
func (w *Window[T]) Count() int { return len(w.ts) }

// Empty reports whether the window holds no elements.
func (w *Window[T]) Empty() bool { return len(w.ts) == 0 }

// Timestamps returns the absolute millisecond timestamps in insertion
// order. The returned slice must not be retained past the next mutation.
func (w *Window[T]) Timestamps() []int64 {
	out := make([]int64, len(w.ts))
	for i, d := range w.ts {
		out[i] = w.base + int64(d)
	}
	return out
}

// ForEach invokes fn for every (timestamp, value) pair, oldest first.
func (w *Window[T]) ForEach(fn func(timestampMs int64, value T)) {
	for i, d := range w.ts {
		fn(w.base+int64(d), w.vals[i])
	}
}

// Reconfigure changes the age and count caps and immediately re-prunes.
func (w *Window[T]) Reconfigure(durationMs int64, maxElements int, nowMs int64) {
	w.duration = durationMs
	if maxElements > 0 {
		w.maxElements = maxElements
	}
	w.Prune(nowMs)
}
