// Package ml implements Tier 3 of the detection cascade: a fixed-order
// feature vector builder with per-feature normalization, a quantized
// feature cache, and a hot-swappable scorer pool standing in for an
// ONNX inference runtime.
// Grounded on original_source/src/models/optimized_feature_manager.hpp
// and optimized_model_manager.hpp.
package ml

import (
	"encoding/json"
	"math"
	"os"
	"sync"
	"time"

	"github.com/crlsmrls/logsentry/internal/event"
)

// FeatureNorm is one feature slot's learned normalization parameters,
// loaded from a JSON metadata sidecar.
type FeatureNorm struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Metadata is the on-disk sidecar shape: one FeatureNorm per feature
// slot, in order.
type Metadata struct {
	Features [event.FeatureVectorSize]FeatureNorm `json:"features"`
}

// LoadMetadata reads a normalization sidecar from path.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DefaultMetadata returns a metadata set with mean 0, std-dev 1 for
// every slot (identity normalization before tanh), used when no
// sidecar is configured.
func DefaultMetadata() *Metadata {
	var m Metadata
	for i := range m.Features {
		m.Features[i] = FeatureNorm{Mean: 0, StdDev: 1}
	}
	return &m
}

type cacheEntry struct {
	hash      uint64
	quantized [event.FeatureVectorSize]uint8
	storedAt  time.Time
}

// FeatureManagerConfig tunes the cache TTL and size.
type FeatureManagerConfig struct {
	CacheTTL  time.Duration
	CacheSize int
}

// FeatureManager builds the ordered, normalized feature vector the
// Tier 3 scorer consumes. It implements analysis.FeatureBuilder.
type FeatureManager struct {
	mu       sync.Mutex
	meta     *Metadata
	cfg      FeatureManagerConfig
	cache    []cacheEntry
	cacheIdx int

	totalExtractions uint64
	cacheHits        uint64
	cacheMisses      uint64
}

// NewFeatureManager constructs a manager from metadata and cfg,
// defaulting cache TTL to 30s and cache size to 512 slots.
func NewFeatureManager(meta *Metadata, cfg FeatureManagerConfig) *FeatureManager {
	if meta == nil {
		meta = DefaultMetadata()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	return &FeatureManager{
		meta:  meta,
		cfg:   cfg,
		cache: make([]cacheEntry, cfg.CacheSize),
	}
}

// Build extracts, normalizes, and (optionally cache-shortcuts) the
// ordered feature vector for ev.
func (f *FeatureManager) Build(ev *event.AnalyzedEvent) [event.FeatureVectorSize]float64 {
	f.mu.Lock()
	f.totalExtractions++
	f.mu.Unlock()

	h := hashEvent(ev)
	slot := int(h % uint64(len(f.cache)))

	f.mu.Lock()
	entry := f.cache[slot]
	f.mu.Unlock()

	if entry.hash == h && time.Since(entry.storedAt) < f.cfg.CacheTTL {
		f.mu.Lock()
		f.cacheHits++
		f.mu.Unlock()
		return dequantize(entry.quantized)
	}

	f.mu.Lock()
	f.cacheMisses++
	f.mu.Unlock()

	raw := extractRaw(ev)
	normalized := f.normalize(raw)

	f.mu.Lock()
	f.cache[slot] = cacheEntry{hash: h, quantized: quantize(normalized), storedAt: time.Now()}
	f.mu.Unlock()

	return normalized
}

// normalize applies per-feature (x-mean)/stddev then tanh squashing.
func (f *FeatureManager) normalize(raw [event.FeatureVectorSize]float64) [event.FeatureVectorSize]float64 {
	var out [event.FeatureVectorSize]float64
	for i, x := range raw {
		p := f.meta.Features[i]
		sd := p.StdDev
		if sd == 0 {
			sd = 1
		}
		out[i] = math.Tanh((x - p.Mean) / sd)
	}
	return out
}

// HandleMemoryPressure clears cache entries the registry's memory
// manager would otherwise keep resident, implementing
// memory.ManagedComponent's contract for this component.
func (f *FeatureManager) HandleMemoryPressure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.cache {
		f.cache[i] = cacheEntry{}
	}
}

// CacheCapacity reports the configured number of cache slots, used by
// the memory manager to estimate this component's resident size.
func (f *FeatureManager) CacheCapacity() int {
	return len(f.cache)
}

// CacheHitRate reports the fraction of Build calls served from cache.
func (f *FeatureManager) CacheHitRate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := f.cacheHits + f.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(f.cacheHits) / float64(total)
}

func quantize(features [event.FeatureVectorSize]float64) [event.FeatureVectorSize]uint8 {
	var q [event.FeatureVectorSize]uint8
	for i, x := range features {
		clamped := math.Max(-1, math.Min(1, x))
		q[i] = uint8((clamped + 1) * 0.5 * 255)
	}
	return q
}

func dequantize(q [event.FeatureVectorSize]uint8) [event.FeatureVectorSize]float64 {
	var out [event.FeatureVectorSize]float64
	for i, v := range q {
		out[i] = (float64(v)/255.0)*2 - 1
	}
	return out
}

// hashEvent is a cheap djb2-style hash over the fields that determine
// the feature vector, used only for the cache lookup (not a security
// hash).
func hashEvent(ev *event.AnalyzedEvent) uint64 {
	h := uint64(5381)
	h = h*33 + uint64(ev.Record.TimestampMs)
	h = h*33 + uint64(ev.Record.Status)
	h = h*33 + uint64(ev.Record.BytesSent)
	for _, c := range ev.Record.ClientIP {
		h = h*33 + uint64(c)
	}
	for _, c := range ev.Record.Path {
		h = h*33 + uint64(c)
	}
	return h
}

// extractRaw builds the raw (pre-normalization) feature vector in a
// fixed order, zero-padding unused trailing slots.
func extractRaw(ev *event.AnalyzedEvent) [event.FeatureVectorSize]float64 {
	var f [event.FeatureVectorSize]float64
	r := ev.Record
	i := 0
	put := func(v float64) {
		if i < len(f) {
			f[i] = v
			i++
		}
	}

	put(r.DurationSeconds)
	put(float64(r.Status))
	put(float64(r.BytesSent))
	put(float64(ev.Windows.RequestsInWindow))
	put(float64(ev.Windows.FailedLoginsInWindow))
	put(float64(ev.Windows.HTMLRequestsInWindow))
	put(float64(ev.Windows.AssetRequestsInWindow))

	put(boolF(ev.IsNewIP))
	put(boolF(ev.IsNewPath))
	put(boolF(ev.SuspiciousUAFound))
	put(boolF(ev.SuspiciousPathFound))
	put(boolF(ev.SensitivePathFound))
	put(float64(ev.UserAgentClass))

	put(zOrZero(ev.Z.DurationIP, ev.Z.DurationIPOK))
	put(zOrZero(ev.Z.DurationPath, ev.Z.DurationPathOK))
	put(zOrZero(ev.Z.BytesIP, ev.Z.BytesIPOK))
	put(zOrZero(ev.Z.BytesPath, ev.Z.BytesPathOK))
	put(zOrZero(ev.Z.ErrorRateIP, ev.Z.ErrorRateIPOK))
	put(zOrZero(ev.Z.ErrorRatePath, ev.Z.ErrorRatePathOK))
	put(zOrZero(ev.Z.VolumeIP, ev.Z.VolumeIPOK))
	put(zOrZero(ev.Z.VolumePath, ev.Z.VolumePathOK))

	put(float64(len(r.Path)))
	put(float64(countRune(r.Path, '/')))
	put(boolF(hasQuery(r.Path)))

	put(float64(r.TimestampMs % (24 * 60 * 60 * 1000)))
	put(float64((r.TimestampMs / (24 * 60 * 60 * 1000)) % 7))

	if ev.Session.Enabled {
		put(float64(ev.Session.RequestCount))
		put(float64(ev.Session.FailedLoginCount))
		put(float64(ev.Session.Status4xxCount))
		put(float64(ev.Session.Status5xxCount))
		put(float64(ev.Session.UniqueUACount))
		put(float64(ev.Session.UniquePathCount))
	}

	// remaining slots stay zero (padding)
	return f
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func zOrZero(z float64, ok bool) float64 {
	if !ok {
		return 0
	}
	return z
}

func countRune(s string, r rune) int {
	n := 0
	for _, c := range s {
		if c == r {
			n++
		}
	}
	return n
}

func hasQuery(path string) bool {
	for _, c := range path {
		if c == '?' {
			return true
		}
	}
	return false
}
