package external

import (
	"context"
	"fmt"
	"time"

	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/rs/zerolog"
)

// ThresholdRule pairs a named, parameterized template with the
// anomaly threshold its returned value is compared against.
type ThresholdRule struct {
	TemplateName string
	Params       map[string]string
	Threshold    float64
	// Above, when true, alerts when value > Threshold; otherwise when
	// value < Threshold.
	Above bool
	Reason string
}

// CorrelatorConfig tunes the polling cadence.
type CorrelatorConfig struct {
	PollInterval time.Duration
}

// Correlator periodically evaluates a set of ThresholdRules against
// the external metrics endpoint and emits alerts for crossings
// (spec.md §4.4 Tier 4).
type Correlator struct {
	cfg    CorrelatorConfig
	client *Client
	rules  []ThresholdRule
	logger zerolog.Logger
	emit   func(*alert.Alert)
}

// NewCorrelator constructs a Correlator polling client with rules,
// invoking emit for every alert produced.
func NewCorrelator(cfg CorrelatorConfig, client *Client, rules []ThresholdRule, logger zerolog.Logger, emit func(*alert.Alert)) *Correlator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	return &Correlator{cfg: cfg, client: client, rules: rules, logger: logger, emit: emit}
}

// Run blocks, polling on cfg.PollInterval until ctx is cancelled.
func (c *Correlator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

func (c *Correlator) pollOnce(ctx context.Context) {
	for _, rule := range c.rules {
		result, err := c.client.QueryTemplate(ctx, rule.TemplateName, rule.Params)
		if err != nil {
			c.logger.Warn().Err(err).Str("template", rule.TemplateName).Msg("external query failed")
			continue
		}
		if !result.HasValue {
			continue
		}

		crossed := (rule.Above && result.Value > rule.Threshold) || (!rule.Above && result.Value < rule.Threshold)
		if !crossed {
			continue
		}

		c.emit(&alert.Alert{
			TimestampMs:  time.Now().UnixMilli(),
			Reason:       fmt.Sprintf("%s: value %.2f crossed threshold %.2f", rule.Reason, result.Value, rule.Threshold),
			Tier:         alert.TierExternal,
			Action:       alert.Log,
			Score:        1,
			OffendingKey: rule.TemplateName,
		})
	}
}
