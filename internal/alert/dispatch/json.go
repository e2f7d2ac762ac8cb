// Package dispatch implements the alert manager's output sinks: a
// newline-delimited JSON file, RFC 3164 syslog over UDP, and a pooled
// HTTP webhook.
package dispatch

import (
	"encoding/json"
	"time"

	"github.com/crlsmrls/logsentry/internal/alert"
)

// wireAlert is the JSON shape written to the file sink and posted to
// the HTTP webhook.
type wireAlert struct {
	ID            string  `json:"id"`
	Timestamp     string  `json:"timestamp"`
	TimestampMs   int64   `json:"timestamp_ms"`
	Tier          string  `json:"tier"`
	SourceIP      string  `json:"source_ip"`
	Reason        string  `json:"reason"`
	Action        string  `json:"action"`
	Score         float64 `json:"score"`
	OffendingKey  string  `json:"offending_key,omitempty"`
	LogLine       int64   `json:"log_line,omitempty"`
	RawSample     string  `json:"raw_sample,omitempty"`
	MLContribution string `json:"ml_feature_contribution,omitempty"`
	Sequence      uint64  `json:"sequence"`
}

func toWire(a *alert.Alert) wireAlert {
	return wireAlert{
		ID:             a.ID,
		Timestamp:      time.UnixMilli(a.TimestampMs).UTC().Format(time.RFC3339),
		TimestampMs:    a.TimestampMs,
		Tier:           a.Tier.String(),
		SourceIP:       a.SourceIP,
		Reason:         a.Reason,
		Action:         a.Action.String(),
		Score:          a.Score,
		OffendingKey:   a.OffendingKey,
		LogLine:        a.LogLine,
		RawSample:      truncate(a.RawLineSample, 200),
		MLContribution: a.FeatureContribution,
		Sequence:       a.Sequence,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func marshalAlert(a *alert.Alert) ([]byte, error) {
	return json.Marshal(toWire(a))
}
