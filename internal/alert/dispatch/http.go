package dispatch

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/crlsmrls/logsentry/internal/errs"
)

// HTTPDispatcherConfig tunes the pooled webhook client.
type HTTPDispatcherConfig struct {
	URL string

	PoolSize           int
	MaxRequestsPerConn int
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration

	// InsecureSkipVerify disables TLS certificate verification, kept
	// as a config knob rather than always-off since defaulting a
	// production dispatcher to skip verification is a meaningful
	// security tradeoff (see DESIGN.md Open Question on this point).
	InsecureSkipVerify bool
}

// HTTPDispatcher posts each alert as a JSON body to a webhook URL over
// a pooled keep-alive client, recycling a connection after it has
// served MaxRequestsPerConn requests.
type HTTPDispatcher struct {
	cfg    HTTPDispatcherConfig
	client *http.Client

	requestsOnConn atomic.Int64
}

// NewHTTPDispatcher constructs an HTTPDispatcher, defaulting pool size
// and timeouts.
func NewHTTPDispatcher(cfg HTTPDispatcherConfig) *HTTPDispatcher {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.MaxRequestsPerConn <= 0 {
		cfg.MaxRequestsPerConn = 1000
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.PoolSize,
		IdleConnTimeout:     5 * time.Minute,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
	}

	return &HTTPDispatcher{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
	}
}

func (d *HTTPDispatcher) Name() string { return "http" }

// Dispatch posts a as JSON, forcing a fresh connection once the
// current one has served MaxRequestsPerConn requests.
func (d *HTTPDispatcher) Dispatch(a *alert.Alert) error {
	body, err := marshalAlert(a)
	if err != nil {
		return err
	}

	closeConn := d.requestsOnConn.Add(1) >= int64(d.cfg.MaxRequestsPerConn)
	if closeConn {
		d.requestsOnConn.Store(0)
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Close = closeConn

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: webhook returned status %d", errs.ErrDispatchFailed, resp.StatusCode)
	}
	return nil
}
