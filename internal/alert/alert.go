// Package alert defines the Alert record emitted by the rule engine and
// the throttling/queueing/dispatch fan-out that turns alerts into
// externalized side effects.
package alert

import "github.com/crlsmrls/logsentry/internal/event"

// Tier identifies which cascade stage produced an alert.
type Tier int

const (
	TierHeuristic Tier = iota + 1
	TierStatistical
	TierML
	TierExternal
)

func (t Tier) String() string {
	switch t {
	case TierHeuristic:
		return "T1_HEURISTIC"
	case TierStatistical:
		return "T2_STATISTICAL"
	case TierML:
		return "T3_ML"
	case TierExternal:
		return "T4_EXTERNAL"
	default:
		return "UNKNOWN"
	}
}

// Action is the suggested mitigation for an alert.
type Action int

const (
	NoAction Action = iota
	Log
	Challenge
	RateLimit
	Block
)

func (a Action) String() string {
	switch a {
	case NoAction:
		return "NO_ACTION"
	case Log:
		return "LOG"
	case Challenge:
		return "CHALLENGE"
	case RateLimit:
		return "RATE_LIMIT"
	case Block:
		return "BLOCK"
	default:
		return "UNKNOWN"
	}
}

// ActionForScore maps a clamped [0, 100] Tier 1 score to a suggested
// action per spec.md §4.4: <20 LOG, 20-50 CHALLENGE, 50-80 RATE_LIMIT,
// >=80 BLOCK.
func ActionForScore(score float64) Action {
	switch {
	case score >= 80:
		return Block
	case score >= 50:
		return RateLimit
	case score >= 20:
		return Challenge
	default:
		return Log
	}
}

// Alert is a single emitted detection.
type Alert struct {
	// ID is a random identifier assigned by the alert manager once an
	// alert survives throttling, used to correlate a dispatch across
	// sinks and the operational API.
	ID string

	Event *event.AnalyzedEvent

	TimestampMs int64
	SourceIP    string
	Reason      string
	Tier        Tier
	Action      Action

	// Score is the normalized anomaly score in [0, 1]; 1 is high
	// confidence.
	Score float64

	OffendingKey string
	LogLine      int64
	RawLineSample string

	// FeatureContribution is an optional description of the ML features
	// that contributed to a Tier 3 alert.
	FeatureContribution string

	// Sequence is the alert manager's global emission sequence number,
	// assigned only for alerts that pass throttling (see spec.md §8).
	Sequence uint64
}
