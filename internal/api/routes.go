package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/crlsmrls/logsentry/config"
	"github.com/crlsmrls/logsentry/metrics"
)

// setupRoutes configures the operational API's routes, following the
// teacher's setupRoutes shape (root health checks, a metrics endpoint,
// then a set of JSON operational endpoints, mutation routes wrapped in
// an auth-guarded sub-router).
func setupRoutes(router *chi.Mux, cfg *config.Config, deps Deps) {
	if deps.TopN <= 0 {
		deps.TopN = 10
	}

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Handle(cfg.MetricsPath, metrics.MetricsHandler(deps.Registry))

	router.Get("/api/v1/metrics/performance", performanceHandler(deps))
	router.Get("/api/v1/operations/alerts", recentAlertsHandler(deps))
	router.Get("/api/v1/operations/state", engineStateHandler(deps))

	router.Route("/api/v1/operations", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(cfg.JWTSecret))
		r.Post("/compact", compactHandler(deps))
		r.Post("/model/swap", modelSwapHandler(deps))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// performanceHandler serves GET /api/v1/metrics/performance.
func performanceHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, throttled := uint64(0), uint64(0)
		if deps.Alerts != nil {
			total, throttled = deps.Alerts.Stats()
		}

		resp := struct {
			AlertsProcessed  uint64                     `json:"alerts_processed"`
			AlertsThrottled  uint64                     `json:"alerts_throttled"`
			MemoryUsageBytes int64                      `json:"memory_usage_bytes,omitempty"`
			MemoryUtilization float64                   `json:"memory_utilization,omitempty"`
			Quantiles        []metrics.SeriesSnapshot   `json:"quantiles"`
		}{
			AlertsProcessed: total,
			AlertsThrottled: throttled,
			Quantiles:       metrics.Quantiles().Snapshot(),
		}
		if deps.Memory != nil {
			resp.MemoryUsageBytes = deps.Memory.TotalUsage()
			resp.MemoryUtilization = deps.Memory.Utilization()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// alertView is the JSON shape for one entry of GET
// /api/v1/operations/alerts, reusing the stable Alert JSON fields
// spec.md §4.6 defines for the dispatchers.
type alertView struct {
	ID            string  `json:"id"`
	TimestampMs   int64   `json:"timestamp_ms"`
	AlertReason   string  `json:"alert_reason"`
	DetectionTier string  `json:"detection_tier"`
	Action        string  `json:"suggested_action"`
	AnomalyScore  float64 `json:"anomaly_score"`
	OffendingKey  string  `json:"offending_key"`
	SourceIP      string  `json:"source_ip"`
}

// recentAlertsHandler serves GET /api/v1/operations/alerts: the
// recent-alerts ring, newest first.
func recentAlertsHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Alerts == nil {
			writeJSON(w, http.StatusServiceUnavailable, []alertView{})
			return
		}
		recent := deps.Alerts.RecentAlerts(50)
		out := make([]alertView, 0, len(recent))
		for _, a := range recent {
			out = append(out, alertView{
				ID:            a.ID,
				TimestampMs:   a.TimestampMs,
				AlertReason:   a.Reason,
				DetectionTier: a.Tier.String(),
				Action:        a.Action.String(),
				AnomalyScore:  a.Score,
				OffendingKey:  a.OffendingKey,
				SourceIP:      a.SourceIP,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// engineStateHandler serves GET /api/v1/operations/state: the top-N
// active/error IP snapshot spec.md §6 names.
func engineStateHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"top_active_ips": deps.Store.TopActiveIPs(deps.TopN),
			"top_error_ips":  deps.Store.TopErrorIPs(deps.TopN),
		})
	}
}

// compactHandler serves POST /api/v1/operations/compact: an operator
// may force an out-of-cycle compaction pass rather than waiting for
// the memory manager's next poll.
func compactHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Memory == nil {
			http.Error(w, "memory manager not configured", http.StatusServiceUnavailable)
			return
		}
		freed := deps.Memory.TriggerCompaction()
		writeJSON(w, http.StatusOK, map[string]int64{"bytes_freed": freed})
	}
}

// modelSwapHandler serves POST /api/v1/operations/model/swap, hot-
// swapping the active Tier 3 model slot.
func modelSwapHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Model == nil {
			http.Error(w, "ml model manager not configured", http.StatusServiceUnavailable)
			return
		}
		var body struct {
			Index int `json:"index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := deps.Model.Swap(body.Index); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"active_index": body.Index})
	}
}
