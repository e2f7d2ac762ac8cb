// Package api implements the operational HTTP surface spec.md §6
// describes: Prometheus-format metrics, a JSON performance snapshot,
// the recent-alerts feed, a top-IP engine-state snapshot, and two
// JWT-protected mutation endpoints (manual compaction, ML model
// hot-swap). Grounded on the teacher's server/{server,routes,
// middleware}.go — same chi router, same middleware chain shape —
// generalized from a chaos-testing dashboard to this detector's
// read-mostly operational surface.
package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/crlsmrls/logsentry/internal/memory"
	"github.com/crlsmrls/logsentry/internal/state"
)

// AlertSource is the subset of *alert.Manager the operational API
// reads from.
type AlertSource interface {
	RecentAlerts(limit int) []*alert.Alert
	Stats() (total, throttled uint64)
}

// ModelSwapper is the subset of *ml.ModelManager the operational API
// can drive a hot-swap through.
type ModelSwapper interface {
	Swap(index int) error
}

// Deps bundles every collaborator the operational API reads from or
// drives. Fields may be left nil where the corresponding subsystem is
// disabled (e.g. ModelSwapper when Tier 3 is off); handlers degrade to
// 503 rather than panicking.
type Deps struct {
	Registry *prometheus.Registry
	Alerts   AlertSource
	Store    *state.Store
	Memory   *memory.Manager
	Model    ModelSwapper

	TopN int // top_active_ips / top_error_ips cardinality, default 10
}
