// Package bloom implements a classical non-counting bloom filter and a
// 4-bit saturating-counter counting variant, sized from an expected
// element count and target false-positive rate the way
// original_source/src/utils/bloom_filter.hpp does.
package bloom

import (
	"hash/fnv"
	"math"
)

const (
	defaultExpectedElements = 10_000
	defaultFalsePositive    = 0.01
)

// Filter is a classical bloom filter over byte-slice-convertible keys.
type Filter struct {
	bits            []byte
	bitCount        uint64
	hashCount       int
	insertedCount   uint64
	expectedN       uint64
	falsePositiveP  float64
}

// New builds a Filter sized for expectedElements items at the given
// falsePositiveRate. A zero expectedElements or falsePositiveRate falls
// back to the package defaults (10k / 0.01).
func New(expectedElements uint64, falsePositiveRate float64) *Filter {
	if expectedElements == 0 {
		expectedElements = defaultExpectedElements
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = defaultFalsePositive
	}

	bitCount := optimalBitCount(expectedElements, falsePositiveRate)
	hashCount := optimalHashCount(bitCount, expectedElements)

	return &Filter{
		bits:           make([]byte, (bitCount+7)/8),
		bitCount:       bitCount,
		hashCount:      hashCount,
		expectedN:      expectedElements,
		falsePositiveP: falsePositiveRate,
	}
}

func optimalBitCount(n uint64, p float64) uint64 {
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	if m < 8 {
		m = 8
	}
	return uint64(math.Ceil(m))
}

func optimalHashCount(m, n uint64) int {
	if n == 0 {
		return 1
	}
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return k
}

// hashes derives hashCount independent bit indices for key using the
// double-hashing technique (Kirsch-Mitzenmacher): h_i = h1 + i*h2.
func (f *Filter) hashes(key []byte) []uint64 {
	h1 := fnv.New64a()
	h1.Write(key)
	sum1 := h1.Sum64()

	h2 := fnv.New64()
	h2.Write(key)
	sum2 := h2.Sum64()
	if sum2 == 0 {
		sum2 = 1
	}

	out := make([]uint64, f.hashCount)
	for i := 0; i < f.hashCount; i++ {
		out[i] = (sum1 + uint64(i)*sum2) % f.bitCount
	}
	return out
}

// Add inserts key into the filter.
func (f *Filter) Add(key []byte) {
	for _, idx := range f.hashes(key) {
		f.bits[idx/8] |= 1 << (idx % 8)
	}
	f.insertedCount++
}

// Contains reports whether key may have been added (false positives
// possible, false negatives never).
func (f *Filter) Contains(key []byte) bool {
	for _, idx := range f.hashes(key) {
		if f.bits[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}

// Clear resets the filter to empty without changing its sizing.
func (f *Filter) Clear() {
	for i := range f.bits {
		f.bits[i] = 0
	}
	f.insertedCount = 0
}

// MemoryUsage returns an approximate byte footprint.
func (f *Filter) MemoryUsage() int {
	return len(f.bits) + 64
}

// InsertedCount returns the number of Add calls since construction or
// the last Clear.
func (f *Filter) InsertedCount() uint64 { return f.insertedCount }

// Serialize encodes the filter's sizing and bit array for snapshotting.
func (f *Filter) Serialize() []byte {
	out := make([]byte, 0, len(f.bits)+32)
	out = appendUint64(out, f.bitCount)
	out = appendUint64(out, uint64(f.hashCount))
	out = appendUint64(out, f.insertedCount)
	out = appendUint64(out, uint64(len(f.bits)))
	out = append(out, f.bits...)
	return out
}

// Deserialize restores a filter previously produced by Serialize.
func Deserialize(data []byte) (*Filter, int, error) {
	f := &Filter{}
	var n int
	f.bitCount, n = readUint64(data)
	data = data[n:]
	var hc uint64
	hc, n = readUint64(data)
	f.hashCount = int(hc)
	data = data[n:]
	f.insertedCount, n = readUint64(data)
	data = data[n:]
	var blen uint64
	blen, n = readUint64(data)
	data = data[n:]
	consumed := 8*4 + int(blen)
	if uint64(len(data)) < blen {
		return nil, 0, errShortBuffer
	}
	f.bits = append([]byte(nil), data[:blen]...)
	return f, consumed, nil
}

// CountingFilter stores 4-bit saturating counters per slot so elements
// can be approximately removed, at the cost of approximate-positive
// behavior on Contains (a removed element whose counters are shared
// with a still-present element may still test positive).
type CountingFilter struct {
	counters  []byte // 2 counters per byte
	bitCount  uint64
	hashCount int
}

// NewCounting builds a counting filter sized like New.
func NewCounting(expectedElements uint64, falsePositiveRate float64) *CountingFilter {
	if expectedElements == 0 {
		expectedElements = defaultExpectedElements
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = defaultFalsePositive
	}
	bitCount := optimalBitCount(expectedElements, falsePositiveRate)
	hashCount := optimalHashCount(bitCount, expectedElements)
	return &CountingFilter{
		counters:  make([]byte, (bitCount+1)/2),
		bitCount:  bitCount,
		hashCount: hashCount,
	}
}

func (f *CountingFilter) hashes(key []byte) []uint64 {
	h1 := fnv.New64a()
	h1.Write(key)
	sum1 := h1.Sum64()
	h2 := fnv.New64()
	h2.Write(key)
	sum2 := h2.Sum64()
	if sum2 == 0 {
		sum2 = 1
	}
	out := make([]uint64, f.hashCount)
	for i := 0; i < f.hashCount; i++ {
		out[i] = (sum1 + uint64(i)*sum2) % f.bitCount
	}
	return out
}

func (f *CountingFilter) counterAt(idx uint64) uint8 {
	b := f.counters[idx/2]
	if idx%2 == 0 {
		return b & 0x0F
	}
	return (b >> 4) & 0x0F
}

func (f *CountingFilter) setCounterAt(idx uint64, v uint8) {
	if v > 0x0F {
		v = 0x0F
	}
	b := &f.counters[idx/2]
	if idx%2 == 0 {
		*b = (*b &^ 0x0F) | v
	} else {
		*b = (*b &^ 0xF0) | (v << 4)
	}
}

// Add inserts key, incrementing (saturating at 15) each of its counters.
func (f *CountingFilter) Add(key []byte) {
	for _, idx := range f.hashes(key) {
		c := f.counterAt(idx)
		if c < 0x0F {
			f.setCounterAt(idx, c+1)
		}
	}
}

// Remove decrements key's counters (never below zero). This is
// approximate: shared counters mean Remove can under- or over-decrement
// relative to the true membership multiset.
func (f *CountingFilter) Remove(key []byte) {
	for _, idx := range f.hashes(key) {
		c := f.counterAt(idx)
		if c > 0 {
			f.setCounterAt(idx, c-1)
		}
	}
}

// Contains reports whether every counter for key is non-zero.
func (f *CountingFilter) Contains(key []byte) bool {
	for _, idx := range f.hashes(key) {
		if f.counterAt(idx) == 0 {
			return false
		}
	}
	return true
}

var errShortBuffer = errShort{}

type errShort struct{}

func (errShort) Error() string { return "bloom: short buffer" }

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * i))
	}
	return append(b, tmp[:]...)
}

func readUint64(b []byte) (uint64, int) {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v, 8
}
