package external

import (
	"context"
	"testing"
)

func testContext() context.Context { return context.Background() }

func TestBuildQuerySubstitutesParams(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://localhost:9090"})
	c.AddTemplate("error_rate", `rate(http_requests_total{job="${job}",status=~"5.."}[${interval}])`)

	got, err := c.BuildQuery("error_rate", map[string]string{"job": "logsentry", "interval": "5m"})
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	want := `rate(http_requests_total{job="logsentry",status=~"5.."}[5m])`
	if got != want {
		t.Errorf("BuildQuery = %q, want %q", got, want)
	}
}

func TestBuildQueryMissingTemplateErrors(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://localhost:9090"})
	if _, err := c.BuildQuery("missing", nil); err == nil {
		t.Error("expected an error for an unregistered template")
	}
}

func TestSubstituteParamsLeavesUnknownPlaceholdersEmpty(t *testing.T) {
	got := substituteParams("value=${x}", map[string]string{})
	if got != "value=" {
		t.Errorf("substituteParams = %q, want %q", got, "value=")
	}
}

func TestQueryShortCircuitsWhenBreakerOpen(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", CircuitBreakerThreshold: 1})
	ctx := testContext()

	// First query fails (nothing listening on :1), tripping the breaker.
	if _, err := c.Query(ctx, "up"); err == nil {
		t.Fatal("expected first query to fail")
	}
	if c.breaker.State().String() != "open" {
		t.Fatalf("breaker state = %s, want open", c.breaker.State())
	}

	_, err := c.Query(ctx, "up")
	if err == nil {
		t.Fatal("expected the second query to short-circuit")
	}
}
