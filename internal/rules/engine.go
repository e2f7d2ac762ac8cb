package rules

import (
	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/crlsmrls/logsentry/internal/event"
)

// Scorer is implemented by internal/ml.ModelManager's model pool,
// kept as an interface here so the rule engine doesn't import
// internal/ml directly (mirrors analysis.FeatureBuilder's separation).
type Scorer interface {
	Score(ev *event.AnalyzedEvent) (alert *alert.Alert, ok bool)
}

// Engine feeds an AnalyzedEvent through Tier 1, Tier 2, and (if wired)
// Tier 3, accumulating every alert each tier produced. Tier 4 runs on
// its own polling schedule and is not part of the per-event cascade.
type Engine struct {
	tier1 *Tier1
	tier2 *Tier2
	tier3 Scorer
}

// NewEngine constructs a cascade from its tier configs. tier3 may be
// nil when no ML scorer is wired (Tier 3 disabled).
func NewEngine(tier1Cfg Tier1Config, tier2Cfg Tier2Config, tier3 Scorer) *Engine {
	return &Engine{
		tier1: NewTier1(tier1Cfg),
		tier2: NewTier2(tier2Cfg),
		tier3: tier3,
	}
}

// Evaluate runs every configured tier against ev and returns the
// alerts produced, in tier order.
func (e *Engine) Evaluate(ev *event.AnalyzedEvent) []*alert.Alert {
	var alerts []*alert.Alert

	if a := e.tier1.Evaluate(ev); a != nil {
		alerts = append(alerts, a)
	}
	if a := e.tier2.Evaluate(ev); a != nil {
		alerts = append(alerts, a)
	}
	if e.tier3 != nil {
		if a, ok := e.tier3.Score(ev); ok {
			alerts = append(alerts, a)
		}
	}

	return alerts
}
