// Package metrics wires the detector's counters, gauges, and quantile
// summaries into a prometheus.Registry, following the teacher's
// InitMetrics/MetricsHandler shape.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "logsentry"

var (
	// Operational HTTP surface.
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of operational API requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of operational API requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Ingest.
	RecordsProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "records_processed_total",
		Help: "Total access log records successfully parsed and analyzed.",
	})
	ParseErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "parse_errors_total",
		Help: "Total access log lines dropped for failing to parse.",
	})
	SourceBackoffTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "source_backoff_total",
		Help: "Total ingest backoff episodes, by source kind.",
	}, []string{"source"})
	PressureRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "pressure_rejected_total",
		Help: "Total events skipped because the state store could not accommodate a new entry.",
	}, []string{"table"})

	// Alerts (ad_ prefix kept from the original alert-dispatch naming).
	AlertsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ad_alerts_emitted_total",
		Help: "Total alerts emitted, by tier and action.",
	}, []string{"tier", "action"})
	AlertsThrottledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ad_alerts_throttled_total",
		Help: "Total alerts suppressed by throttling, by cause (time_window|intervening_limit) and tier.",
	}, []string{"reason", "tier"})
	DispatchAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ad_alert_dispatch_attempts_total",
		Help: "Total alert-dispatch attempts, by sink.",
	}, []string{"sink"})
	DispatchSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ad_alert_dispatch_success_total",
		Help: "Total successful alert dispatches, by sink.",
	}, []string{"sink"})
	DispatchFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ad_dispatch_failures_total",
		Help: "Total alert-dispatch failures, by sink.",
	}, []string{"sink"})
	DispatchLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "ad_alert_dispatch_latency_seconds",
		Help:    "Time taken to dispatch an alert, by sink.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	}, []string{"sink"})
	AlertQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "ad_alert_queue_size",
		Help: "Current number of alerts queued for dispatch.",
	})
	RecentAlertsCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "ad_recent_alerts_count",
		Help: "Number of alerts held in the recent-alerts ring.",
	})

	// Circuit breaker (Tier 4).
	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "circuit_breaker_state",
		Help: "Circuit breaker state by name (0=closed, 1=half_open, 2=open).",
	}, []string{"name"})

	// Memory manager.
	MemoryPressureLevel = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "memory_pressure_level",
		Help: "Current memory pressure level (0=normal, 1=medium, 2=high, 3=critical).",
	})
	MemoryUsageBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "memory_usage_bytes",
		Help: "Current estimated memory usage tracked by the memory manager.",
	})
)

var (
	initMetricsOnce sync.Once
	registry        *prometheus.Registry
	quantiles       = NewQuantileRegistry()
)

// InitMetrics initializes and registers every collector.
func InitMetrics() *prometheus.Registry {
	initMetricsOnce.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(
			httpRequestsTotal,
			httpRequestDurationSeconds,
			RecordsProcessedTotal,
			ParseErrorsTotal,
			SourceBackoffTotal,
			PressureRejectedTotal,
			AlertsEmittedTotal,
			AlertsThrottledTotal,
			DispatchAttemptsTotal,
			DispatchSuccessTotal,
			DispatchFailuresTotal,
			DispatchLatencySeconds,
			AlertQueueSize,
			RecentAlertsCount,
			CircuitBreakerState,
			MemoryPressureLevel,
			MemoryUsageBytes,
			quantiles,
		)

		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		log.Info().Msg("prometheus metrics initialized")
	})
	return registry
}

// Quantiles returns the process-wide quantile registry used by
// components that report non-bucketed distributions (e.g. per-tier
// scoring latency) rather than fixed histogram buckets.
func Quantiles() *QuantileRegistry { return quantiles }

// MetricsHandler returns an http.Handler that serves Prometheus text
// exposition for reg.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// HTTPMetricsMiddleware records request counts and durations for the
// operational API.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lw, r)

		duration := time.Since(start).Seconds()
		method := r.Method
		path := r.URL.Path
		status := strconv.Itoa(lw.statusCode)

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(method, path).Observe(duration)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}
