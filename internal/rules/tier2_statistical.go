package rules

import (
	"fmt"
	"math"

	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/crlsmrls/logsentry/internal/event"
)

// Tier2 evaluates the statistical rule set against one AnalyzedEvent's
// precomputed z-scores.
type Tier2 struct {
	cfg Tier2Config
}

// NewTier2 constructs a statistical rule evaluator from cfg.
func NewTier2(cfg Tier2Config) *Tier2 {
	return &Tier2{cfg: cfg}
}

type zSignal struct {
	name string
	z    float64
	ok   bool
}

// Evaluate coalesces every z-score signal whose magnitude crosses the
// configured threshold into a single alert citing the highest-magnitude
// feature, or returns nil if none crossed.
func (t *Tier2) Evaluate(ev *event.AnalyzedEvent) *alert.Alert {
	signals := []zSignal{
		{"duration (IP)", ev.Z.DurationIP, ev.Z.DurationIPOK},
		{"duration (path)", ev.Z.DurationPath, ev.Z.DurationPathOK},
		{"bytes sent (IP)", ev.Z.BytesIP, ev.Z.BytesIPOK},
		{"bytes sent (path)", ev.Z.BytesPath, ev.Z.BytesPathOK},
		{"error rate (IP)", ev.Z.ErrorRateIP, ev.Z.ErrorRateIPOK},
		{"error rate (path)", ev.Z.ErrorRatePath, ev.Z.ErrorRatePathOK},
		{"request volume (IP)", ev.Z.VolumeIP, ev.Z.VolumeIPOK},
		{"request volume (path)", ev.Z.VolumePath, ev.Z.VolumePathOK},
	}

	var worst *zSignal
	for i := range signals {
		s := &signals[i]
		if !s.ok || math.Abs(s.z) < t.cfg.ZScoreThreshold {
			continue
		}
		if worst == nil || math.Abs(s.z) > math.Abs(worst.z) {
			worst = s
		}
	}
	if worst == nil {
		return nil
	}

	normalized := math.Abs(worst.z) / t.cfg.ZScoreThreshold
	if normalized > 1 {
		normalized = 1
	}
	score := logistic(normalized)

	return &alert.Alert{
		Event:        ev,
		TimestampMs:  ev.Record.TimestampMs,
		SourceIP:     ev.Record.ClientIP,
		Reason:       fmt.Sprintf("%s z-score %.2f exceeds threshold %.2f", worst.name, worst.z, t.cfg.ZScoreThreshold),
		Tier:         alert.TierStatistical,
		Action:       alert.Log,
		Score:        score,
		OffendingKey: "z_score",
		LogLine:      ev.Record.LineNumber,
	}
}

// logistic squashes x (already normalized and capped to [0, 1]) into
// (0, 1) so the reported score stays a well-behaved anomaly confidence
// rather than an unbounded z-score ratio.
func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-4*(x-0.5)))
}
