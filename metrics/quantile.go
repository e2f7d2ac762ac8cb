package metrics

import (
	"sort"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// quantileSeries accumulates raw observations for one named series and
// computes quantiles from a sorted copy at scrape time, rather than
// pre-bucketing like a prometheus.Histogram. This trades scrape-time
// CPU for exact quantiles on bounded-size series, which suits the
// low-cardinality, low-volume distributions (per-tier scoring
// latency, feature-vector build time) this registry is meant for.
type quantileSeries struct {
	mu    sync.Mutex
	name  string
	help  string
	cap   int
	vals  []float64
	count uint64
	sum   float64
}

func newQuantileSeries(name, help string, cap int) *quantileSeries {
	return &quantileSeries{name: name, help: help, cap: cap}
}

func (s *quantileSeries) observe(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	s.sum += v
	if len(s.vals) >= s.cap {
		// Drop the oldest observation to keep memory bounded; this
		// biases quantiles toward recent behavior, which is the
		// desired windowing effect for an always-on process.
		copy(s.vals, s.vals[1:])
		s.vals[len(s.vals)-1] = v
		return
	}
	s.vals = append(s.vals, v)
}

func (s *quantileSeries) snapshot() (sorted []float64, count uint64, sum float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted = make([]float64, len(s.vals))
	copy(sorted, s.vals)
	sort.Float64s(sorted)
	return sorted, s.count, s.sum
}

func quantileAt(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// QuantileRegistry is a prometheus.Collector exposing named summaries
// whose quantiles are computed from a sorted copy of retained samples
// at scrape time, rather than from pre-allocated histogram buckets.
type QuantileRegistry struct {
	mu     sync.Mutex
	series map[string]*quantileSeries
}

// NewQuantileRegistry constructs an empty registry. Series are created
// lazily on first Observe.
func NewQuantileRegistry() *QuantileRegistry {
	return &QuantileRegistry{series: map[string]*quantileSeries{}}
}

// Observe records v under name, creating the series (with retention
// cap samples) on first use. help is only used for the first
// registration of a series name.
func (r *QuantileRegistry) Observe(name, help string, cap int, v float64) {
	r.mu.Lock()
	s, ok := r.series[name]
	if !ok {
		if cap <= 0 {
			cap = 1000
		}
		s = newQuantileSeries(name, help, cap)
		r.series[name] = s
	}
	r.mu.Unlock()
	s.observe(v)
}

// SeriesSnapshot is a read-through view of one named quantile series,
// used by the JSON performance-metrics endpoint.
type SeriesSnapshot struct {
	Name      string             `json:"name"`
	Count     uint64             `json:"count"`
	Sum       float64            `json:"sum"`
	Quantiles map[string]float64 `json:"quantiles"`
}

// Snapshot copies out every series' current count/sum/quantiles
// without blocking writers beyond each series' own brief lock (spec.md
// §4.1 "scrape operations snapshot without blocking writers beyond
// brief per-metric locks").
func (r *QuantileRegistry) Snapshot() []SeriesSnapshot {
	r.mu.Lock()
	names := make([]string, 0, len(r.series))
	seriesList := make([]*quantileSeries, 0, len(r.series))
	for name, s := range r.series {
		names = append(names, name)
		seriesList = append(seriesList, s)
	}
	r.mu.Unlock()

	out := make([]SeriesSnapshot, 0, len(seriesList))
	for i, s := range seriesList {
		sorted, count, sum := s.snapshot()
		quantiles := make(map[string]float64, len(quantileLevels))
		for _, q := range quantileLevels {
			quantiles[strconv.FormatFloat(q, 'f', -1, 64)] = quantileAt(sorted, q)
		}
		out = append(out, SeriesSnapshot{Name: names[i], Count: count, Sum: sum, Quantiles: quantiles})
	}
	return out
}

// Describe implements prometheus.Collector. No static descriptors are
// sent since series are registered dynamically; Collect emits
// self-describing metrics instead (matching prometheus.Collector's
// "unchecked" collector convention).
func (r *QuantileRegistry) Describe(ch chan<- *prometheus.Desc) {}

var quantileLevels = []float64{0.5, 0.9, 0.95, 0.99}

// Collect implements prometheus.Collector.
func (r *QuantileRegistry) Collect(ch chan<- prometheus.Metric) {
	r.mu.Lock()
	seriesList := make([]*quantileSeries, 0, len(r.series))
	for _, s := range r.series {
		seriesList = append(seriesList, s)
	}
	r.mu.Unlock()

	for _, s := range seriesList {
		sorted, count, sum := s.snapshot()
		quantiles := make(map[float64]float64, len(quantileLevels))
		for _, q := range quantileLevels {
			quantiles[q] = quantileAt(sorted, q)
		}
		desc := prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", s.name),
			s.help,
			nil, nil,
		)
		metric, err := prometheus.NewConstSummary(desc, count, sum, quantiles)
		if err != nil {
			continue
		}
		ch <- metric
	}
}
