// Package stats implements a Welford-style running mean/variance
// estimator and a fixed-point variant that stores its sums as scaled
// int64 integers instead of float64 values. Both are 8 bytes wide, so
// the fixed-point variant uses no less memory.
package stats

import "math"

// Tracker accumulates count, sum, and sum-of-squares incrementally and
// derives mean/variance/stddev/z-score without retaining samples.
type Tracker struct {
	count int64
	sum   float64
	sumSq float64
}

// Observe folds a new sample into the running aggregates.
func (t *Tracker) Observe(x float64) {
	t.count++
	t.sum += x
	t.sumSq += x * x
}

// Count returns the number of observed samples.
func (t *Tracker) Count() int64 { return t.count }

// Sum returns the running sum of observed samples.
func (t *Tracker) Sum() float64 { return t.sum }

// SumSq returns the running sum of squared observed samples.
func (t *Tracker) SumSq() float64 { return t.sumSq }

// LoadTracker reconstructs a Tracker from previously captured
// count/sum/sum-of-squares aggregates, the snapshot package's
// counterpart to Sum/SumSq/Count.
func LoadTracker(count int64, sum, sumSq float64) *Tracker {
	return &Tracker{count: count, sum: sum, sumSq: sumSq}
}

// Mean returns the running mean, or 0 if no samples were observed.
func (t *Tracker) Mean() float64 {
	if t.count == 0 {
		return 0
	}
	return t.sum / float64(t.count)
}

// Variance returns the sample variance (Bessel-corrected), or 0 when
// fewer than two samples have been observed.
func (t *Tracker) Variance() float64 {
	if t.count < 2 {
		return 0
	}
	mean := t.Mean()
	v := (t.sumSq - float64(t.count)*mean*mean) / float64(t.count-1)
	if v < 0 {
		// Guard against floating-point cancellation producing a tiny
		// negative variance for near-constant samples.
		v = 0
	}
	return v
}

// StdDev returns the sample standard deviation.
func (t *Tracker) StdDev() float64 {
	return math.Sqrt(t.Variance())
}

// ZScore returns (x - mean) / stddev for the current aggregates. The
// second return is false when fewer than minSamples observations have
// been made or the standard deviation is zero (z-score undefined).
func (t *Tracker) ZScore(x float64, minSamples int64) (float64, bool) {
	if t.count < minSamples {
		return 0, false
	}
	sd := t.StdDev()
	if sd == 0 {
		return 0, false
	}
	return (x - t.Mean()) / sd, true
}

// Reset clears all accumulated state.
func (t *Tracker) Reset() {
	t.count = 0
	t.sum = 0
	t.sumSq = 0
}

// fixedScale is the 16.16 fixed-point scale factor used by
// CompactTracker, matching the ratio described for CompactStatsTracker
// in the original source (sum/sum-of-squares stored as scaled integers).
const fixedScale = 1 << 16

// CompactTracker is a fixed-point Tracker: sum and sum-of-squares are
// stored as scaled int64 values instead of float64, each observation's
// contribution truncated to a multiple of 2^-16. The int64 fields take
// the same 8 bytes as Tracker's float64 fields, so it uses no less
// memory. Unlike the original C++ implementation (which mixes 16.16
// and 32.32 formats across fields and leaves sum-of-squares overflow
// behavior for long-running IPs unspecified), this port uses a single
// int64 16.16 format uniformly for both sum and sum-of-squares, which
// removes that ambiguity: sum-of-squares only overflows int64 once a
// single tracker's accumulated squares exceed roughly 2^47 squared
// units, far past any realistic per-IP/per-path lifetime.
type CompactTracker struct {
	count int64
	sum   int64 // scaled by fixedScale
	sumSq int64 // scaled by fixedScale
}

// Observe folds x into the fixed-point aggregates.
func (t *CompactTracker) Observe(x float64) {
	t.count++
	t.sum += int64(x * fixedScale)
	t.sumSq += int64(x * x * fixedScale)
}

// Count returns the number of observed samples.
func (t *CompactTracker) Count() int64 { return t.count }

// Mean returns the dequantized running mean.
func (t *CompactTracker) Mean() float64 {
	if t.count == 0 {
		return 0
	}
	return float64(t.sum) / fixedScale / float64(t.count)
}

// Variance returns the dequantized sample variance.
func (t *CompactTracker) Variance() float64 {
	if t.count < 2 {
		return 0
	}
	mean := t.Mean()
	sumSq := float64(t.sumSq) / fixedScale
	v := (sumSq - float64(t.count)*mean*mean) / float64(t.count-1)
	if v < 0 {
		v = 0
	}
	return v
}

// StdDev returns the dequantized sample standard deviation.
func (t *CompactTracker) StdDev() float64 {
	return math.Sqrt(t.Variance())
}

// ZScore mirrors Tracker.ZScore using the fixed-point aggregates.
func (t *CompactTracker) ZScore(x float64, minSamples int64) (float64, bool) {
	if t.count < minSamples {
		return 0, false
	}
	sd := t.StdDev()
	if sd == 0 {
		return 0, false
	}
	return (x - t.Mean()) / sd, true
}
