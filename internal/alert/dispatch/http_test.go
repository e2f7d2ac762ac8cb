package dispatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crlsmrls/logsentry/internal/alert"
)

func TestHTTPDispatcherPostsJSONBody(t *testing.T) {
	var got wireAlert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPDispatcherConfig{URL: srv.URL})
	a := &alert.Alert{SourceIP: "5.5.5.5", Reason: "uac_cycling", Tier: alert.TierHeuristic, Action: alert.Challenge, Score: 0.4}
	if err := d.Dispatch(a); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got.SourceIP != "5.5.5.5" || got.Reason != "uac_cycling" {
		t.Errorf("decoded body = %+v, want matching source_ip/reason", got)
	}
}

func TestHTTPDispatcherErrorsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPDispatcherConfig{URL: srv.URL})
	if err := d.Dispatch(&alert.Alert{SourceIP: "1.1.1.1"}); err == nil {
		t.Error("expected an error for a 500 response")
	}
}

func TestHTTPDispatcherRecyclesConnectionAfterLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPDispatcherConfig{URL: srv.URL, MaxRequestsPerConn: 2})
	for i := 0; i < 3; i++ {
		if err := d.Dispatch(&alert.Alert{SourceIP: "1.1.1.1"}); err != nil {
			t.Fatalf("Dispatch %d: %v", i, err)
		}
	}
	if d.requestsOnConn.Load() != 1 {
		t.Errorf("requestsOnConn = %d, want 1 after a recycle at request 2", d.requestsOnConn.Load())
	}
}
