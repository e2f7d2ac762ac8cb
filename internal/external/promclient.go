// Package external implements Tier 4 of the detection cascade:
// periodic correlation against an external Prometheus-compatible
// metrics endpoint using parameterized PromQL templates, behind a
// connection pool and circuit breaker.
// Grounded on
// original_source/src/analysis/optimized_prometheus_client.hpp.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crlsmrls/logsentry/internal/errs"
	"github.com/crlsmrls/logsentry/internal/util/circuitbreaker"
)

// QueryResult is a decoded instant-query response, trimmed to the
// fields Tier 4 thresholding needs.
type QueryResult struct {
	Status string
	Value  float64
	HasValue bool
	Error  string
}

// promResponse mirrors the Prometheus HTTP API's instant-query JSON
// shape for a vector result.
type promResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Value []interface{} `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// ClientConfig tunes the HTTP client, connection pool, and circuit
// breaker.
type ClientConfig struct {
	BaseURL string

	MaxIdleConnsPerHost int
	ConnectTimeout      time.Duration
	ReadTimeout         time.Duration

	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// Client queries a Prometheus-compatible HTTP API using named,
// parameterized templates, short-circuiting through a circuit breaker
// after repeated failures.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker

	mu        sync.Mutex
	templates map[string]string

	totalQueries      uint64
	successfulQueries uint64
}

// NewClient constructs a Client from cfg, defaulting idle-connection
// and timeout knobs and pre-loading no templates (call AddTemplate).
func NewClient(cfg ClientConfig) *Client {
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if cfg.CircuitBreakerTimeout <= 0 {
		cfg.CircuitBreakerTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     5 * time.Minute,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		breaker:   circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout),
		templates: make(map[string]string),
	}
}

// AddTemplate registers a named PromQL template containing
// "${param}"-style placeholders.
func (c *Client) AddTemplate(name, template string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[name] = template
}

// BuildQuery substitutes params into the named template in a single
// left-to-right pass over its placeholders.
func (c *Client) BuildQuery(name string, params map[string]string) (string, error) {
	c.mu.Lock()
	tmpl, ok := c.templates[name]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("external: template %q not registered", name)
	}
	return substituteParams(tmpl, params), nil
}

func substituteParams(tmpl string, params map[string]string) string {
	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		name := rest[start+2 : end]
		if v, ok := params[name]; ok {
			b.WriteString(v)
		}
		rest = rest[end+1:]
	}
	return b.String()
}

// QueryTemplate builds and executes a named template query.
func (c *Client) QueryTemplate(ctx context.Context, name string, params map[string]string) (QueryResult, error) {
	promql, err := c.BuildQuery(name, params)
	if err != nil {
		return QueryResult{}, err
	}
	return c.Query(ctx, promql)
}

// Query executes an instant PromQL query, respecting the circuit
// breaker.
func (c *Client) Query(ctx context.Context, promql string) (QueryResult, error) {
	c.mu.Lock()
	c.totalQueries++
	c.mu.Unlock()

	if !c.breaker.Allow() {
		return QueryResult{}, fmt.Errorf("external: %w", errs.ErrCircuitOpen)
	}

	reqURL := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/v1/query?" + url.Values{"query": {promql}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.breaker.RecordFailure()
		return QueryResult{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return QueryResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return QueryResult{}, fmt.Errorf("external: query failed with status %d", resp.StatusCode)
	}

	var parsed promResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.breaker.RecordFailure()
		return QueryResult{}, err
	}
	if parsed.Status != "success" {
		c.breaker.RecordFailure()
		return QueryResult{Status: parsed.Status, Error: parsed.Error}, nil
	}

	c.breaker.RecordSuccess()
	c.mu.Lock()
	c.successfulQueries++
	c.mu.Unlock()

	result := QueryResult{Status: "success"}
	if len(parsed.Data.Result) > 0 && len(parsed.Data.Result[0].Value) == 2 {
		if s, ok := parsed.Data.Result[0].Value[1].(string); ok {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				result.Value = v
				result.HasValue = true
			}
		}
	}
	return result, nil
}

// SuccessRate reports the fraction of queries that completed
// successfully.
func (c *Client) SuccessRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.totalQueries == 0 {
		return 0
	}
	return float64(c.successfulQueries) / float64(c.totalQueries)
}
